package core

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VendorService provides vendor master data operations.
type VendorService interface {
	ListVendors(ctx context.Context, p ListParams) (Page[Vendor], error)
	CreateVendor(ctx context.Context, in VendorInput) (Vendor, error)
	GetVendor(ctx context.Context, id uuid.UUID) (Vendor, error)
}

type vendorService struct {
	vendors *Resource[Vendor]
	audit   AuditService
}

// NewVendorService constructs a VendorService backed by PostgreSQL.
func NewVendorService(pool *pgxpool.Pool, audit AuditService) VendorService {
	return &vendorService{vendors: vendorResource(pool), audit: audit}
}

func vendorResource(q Querier) *Resource[Vendor] {
	return NewResource[Vendor](q, ResourceSpec{
		Table: "vendors", Entity: "vendor",
		Filters: map[string]string{"status": "status"},
		Search:  []string{"code", "name", "email"},
		OrderBy: "code",
	})
}

func (s *vendorService) ListVendors(ctx context.Context, p ListParams) (Page[Vendor], error) {
	return s.vendors.List(ctx, p)
}

func (s *vendorService) GetVendor(ctx context.Context, id uuid.UUID) (Vendor, error) {
	return s.vendors.Get(ctx, id)
}

func (s *vendorService) CreateVendor(ctx context.Context, in VendorInput) (Vendor, error) {
	if err := requireFields("code", in.Code, "name", in.Name); err != nil {
		return Vendor{}, err
	}
	terms := in.PaymentTermsDays
	if terms == 0 {
		terms = 30
	}
	if terms < 0 {
		return Vendor{}, validationf("payment_terms_days cannot be negative")
	}
	v, err := s.vendors.Insert(ctx, map[string]any{
		"code":               strings.TrimSpace(in.Code),
		"name":               strings.TrimSpace(in.Name),
		"email":              strings.TrimSpace(in.Email),
		"phone":              in.Phone,
		"address":            in.Address,
		"payment_terms_days": terms,
	})
	if errors.Is(err, ErrConflict) {
		return Vendor{}, conflictf("vendor code %s already exists", strings.TrimSpace(in.Code))
	}
	if err != nil {
		return Vendor{}, err
	}
	s.audit.Record(ctx, "vendor", v.ID, "create", v)
	return v, nil
}
