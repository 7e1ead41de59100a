package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	AssetAvailable   = "Available"
	AssetInUse       = "InUse"
	AssetMaintenance = "Maintenance"
	AssetRetired     = "Retired"
)

var assetTypes = []string{"Laptop", "Desktop", "Server", "Monitor", "Phone", "Tablet", "Printer", "Network", "Other"}

type ITAsset struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AssetTag     string          `db:"asset_tag" json:"asset_tag"`
	Name         string          `db:"name" json:"name"`
	AssetType    string          `db:"asset_type" json:"asset_type"`
	Status       string          `db:"status" json:"status"`
	SerialNumber string          `db:"serial_number" json:"serial_number"`
	AssignedTo   *uuid.UUID      `db:"assigned_to" json:"assigned_to"`
	Location     string          `db:"location" json:"location"`
	PurchaseDate *time.Time      `db:"purchase_date" json:"purchase_date"`
	PurchaseCost decimal.Decimal `db:"purchase_cost" json:"purchase_cost"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type ITAssetInput struct {
	AssetTag     string          `json:"asset_tag"`
	Name         string          `json:"name"`
	AssetType    string          `json:"asset_type"`
	SerialNumber string          `json:"serial_number"`
	Location     string          `json:"location"`
	PurchaseDate string          `json:"purchase_date"`
	PurchaseCost decimal.Decimal `json:"purchase_cost"`
}

type AssetStatusInput struct {
	Status     string     `json:"status"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
}

type AssetStats struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"by_status"`
	ByType            map[string]int64 `json:"by_type"`
	TotalPurchaseCost decimal.Decimal  `json:"total_purchase_cost"`
}

type SoftwareLicense struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Vendor     string     `db:"vendor" json:"vendor"`
	LicenseKey string     `db:"license_key" json:"license_key"`
	SeatsTotal int        `db:"seats_total" json:"seats_total"`
	SeatsUsed  int        `db:"seats_used" json:"seats_used"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

type SoftwareLicenseInput struct {
	Name       string `json:"name"`
	Vendor     string `json:"vendor"`
	LicenseKey string `json:"license_key"`
	SeatsTotal int    `json:"seats_total"`
	ExpiresAt  string `json:"expires_at"`
}

type AssetService interface {
	ListAssets(ctx context.Context, p ListParams) (Page[ITAsset], error)
	CreateAsset(ctx context.Context, in ITAssetInput) (ITAsset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (ITAsset, error)
	// SetAssetStatus changes the status. InUse requires an assignee; any other
	// status clears it. Retired assets cannot change.
	SetAssetStatus(ctx context.Context, id uuid.UUID, in AssetStatusInput) (ITAsset, error)
	Stats(ctx context.Context) (AssetStats, error)

	ListLicenses(ctx context.Context, p ListParams) (Page[SoftwareLicense], error)
	CreateLicense(ctx context.Context, in SoftwareLicenseInput) (SoftwareLicense, error)
	GetLicense(ctx context.Context, id uuid.UUID) (SoftwareLicense, error)
	UseSeat(ctx context.Context, id uuid.UUID) (SoftwareLicense, error)
}

type assetService struct {
	pool     *pgxpool.Pool
	assets   *Resource[ITAsset]
	licenses *Resource[SoftwareLicense]
	audit    AuditService
	log      zerolog.Logger
}

func NewAssetService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) AssetService {
	return &assetService{
		pool: pool,
		assets: NewResource[ITAsset](pool, ResourceSpec{
			Table: "it_assets", Entity: "asset",
			Filters: map[string]string{"status": "status", "asset_type": "asset_type", "assigned_to": "assigned_to"},
			Search:  []string{"asset_tag", "name", "serial_number"},
			OrderBy: "asset_tag",
			Touch:   true,
		}),
		licenses: NewResource[SoftwareLicense](pool, ResourceSpec{
			Table: "software_licenses", Entity: "license",
			Search:  []string{"name", "vendor"},
			OrderBy: "name",
		}),
		audit: audit,
		log:   log,
	}
}

func (s *assetService) ListAssets(ctx context.Context, p ListParams) (Page[ITAsset], error) {
	return s.assets.List(ctx, p)
}

func (s *assetService) GetAsset(ctx context.Context, id uuid.UUID) (ITAsset, error) {
	return s.assets.Get(ctx, id)
}

func (s *assetService) CreateAsset(ctx context.Context, in ITAssetInput) (ITAsset, error) {
	if err := requireFields("asset_tag", in.AssetTag, "name", in.Name, "asset_type", in.AssetType); err != nil {
		return ITAsset{}, err
	}
	if err := oneOf("asset_type", in.AssetType, assetTypes...); err != nil {
		return ITAsset{}, err
	}
	if in.PurchaseCost.IsNegative() {
		return ITAsset{}, validationf("purchase_cost cannot be negative")
	}
	purchased, err := optionalDate(in.PurchaseDate)
	if err != nil {
		return ITAsset{}, err
	}
	a, err := s.assets.Insert(ctx, map[string]any{
		"asset_tag":     strings.TrimSpace(in.AssetTag),
		"name":          strings.TrimSpace(in.Name),
		"asset_type":    in.AssetType,
		"serial_number": in.SerialNumber,
		"location":      in.Location,
		"purchase_date": purchased,
		"purchase_cost": in.PurchaseCost,
	})
	if errors.Is(err, ErrConflict) {
		return ITAsset{}, conflictf("asset tag %s already exists", strings.TrimSpace(in.AssetTag))
	}
	if err != nil {
		return ITAsset{}, err
	}
	s.audit.Record(ctx, "asset", a.ID, "create", a)
	return a, nil
}

func (s *assetService) SetAssetStatus(ctx context.Context, id uuid.UUID, in AssetStatusInput) (ITAsset, error) {
	assignee, err := assetAssignee(in)
	if err != nil {
		return ITAsset{}, err
	}
	from := []string{AssetAvailable, AssetInUse, AssetMaintenance}
	a, err := s.assets.Transition(ctx, id, from, in.Status, map[string]any{"assigned_to": assignee})
	if err != nil {
		return ITAsset{}, err
	}
	s.audit.Record(ctx, "asset", id, "status", map[string]any{"status": in.Status, "assigned_to": assignee})
	return a, nil
}

// assetAssignee validates a status change and returns the assignee to store:
// the given user for InUse, nil otherwise.
func assetAssignee(in AssetStatusInput) (*uuid.UUID, error) {
	if err := oneOf("status", in.Status, AssetAvailable, AssetInUse, AssetMaintenance, AssetRetired); err != nil {
		return nil, err
	}
	if in.Status != AssetInUse {
		return nil, nil
	}
	if in.AssignedTo == nil || *in.AssignedTo == uuid.Nil {
		return nil, validationf("assigned_to is required when status is %s", AssetInUse)
	}
	return in.AssignedTo, nil
}

func (s *assetService) Stats(ctx context.Context) (AssetStats, error) {
	st := AssetStats{ByStatus: map[string]int64{}, ByType: map[string]int64{}, TotalPurchaseCost: decimal.Zero}
	rows, err := s.pool.Query(ctx, `
		SELECT status, asset_type, count(*), COALESCE(SUM(purchase_cost), 0)
		FROM it_assets GROUP BY status, asset_type`)
	if err != nil {
		return AssetStats{}, fmt.Errorf("failed to count assets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, kind string
		var n int64
		var cost decimal.Decimal
		if err := rows.Scan(&status, &kind, &n, &cost); err != nil {
			return AssetStats{}, fmt.Errorf("failed to scan asset counts: %w", err)
		}
		st.ByStatus[status] += n
		st.ByType[kind] += n
		st.Total += n
		st.TotalPurchaseCost = st.TotalPurchaseCost.Add(cost)
	}
	return st, rows.Err()
}

func (s *assetService) ListLicenses(ctx context.Context, p ListParams) (Page[SoftwareLicense], error) {
	return s.licenses.List(ctx, p)
}

func (s *assetService) GetLicense(ctx context.Context, id uuid.UUID) (SoftwareLicense, error) {
	return s.licenses.Get(ctx, id)
}

func (s *assetService) CreateLicense(ctx context.Context, in SoftwareLicenseInput) (SoftwareLicense, error) {
	if err := requireFields("name", in.Name); err != nil {
		return SoftwareLicense{}, err
	}
	if in.SeatsTotal <= 0 {
		return SoftwareLicense{}, validationf("seats_total must be greater than zero")
	}
	expires, err := optionalDate(in.ExpiresAt)
	if err != nil {
		return SoftwareLicense{}, err
	}
	l, err := s.licenses.Insert(ctx, map[string]any{
		"name":        strings.TrimSpace(in.Name),
		"vendor":      in.Vendor,
		"license_key": in.LicenseKey,
		"seats_total": in.SeatsTotal,
		"expires_at":  expires,
	})
	if err != nil {
		return SoftwareLicense{}, err
	}
	s.audit.Record(ctx, "license", l.ID, "create", map[string]any{"name": l.Name, "seats_total": l.SeatsTotal})
	return l, nil
}

// UseSeat claims one seat with a single conditional update.
func (s *assetService) UseSeat(ctx context.Context, id uuid.UUID) (SoftwareLicense, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		UPDATE software_licenses SET seats_used = seats_used + 1
		WHERE id = $1 AND seats_used < seats_total
		RETURNING %s`, s.licenses.selectList()), id)
	if err != nil {
		return SoftwareLicense{}, mapDBError(err, "license")
	}
	l, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[SoftwareLicense])
	if errors.Is(err, pgx.ErrNoRows) {
		cur, gerr := s.licenses.Get(ctx, id)
		if gerr != nil {
			return SoftwareLicense{}, gerr
		}
		return SoftwareLicense{}, businessf("license %s has no free seats (%d of %d used)", cur.Name, cur.SeatsUsed, cur.SeatsTotal)
	}
	if err != nil {
		return SoftwareLicense{}, mapDBError(err, "license")
	}
	s.audit.Record(ctx, "license", id, "use_seat", map[string]any{"seats_used": l.SeatsUsed})
	return l, nil
}
