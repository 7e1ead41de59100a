package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	DiscountPercentage = "Percentage"
	DiscountFixed      = "Fixed"
)

type PriceBook struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Currency  string     `db:"currency" json:"currency"`
	IsDefault bool       `db:"is_default" json:"is_default"`
	ValidFrom *time.Time `db:"valid_from" json:"valid_from"`
	ValidTo   *time.Time `db:"valid_to" json:"valid_to"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type PriceBookInput struct {
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	IsDefault bool   `json:"is_default"`
	ValidFrom string `json:"valid_from"`
	ValidTo   string `json:"valid_to"`
}

type Discount struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	DiscountType string          `db:"discount_type" json:"discount_type"`
	Value        decimal.Decimal `db:"value" json:"value"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type DiscountInput struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	DiscountType string          `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
}

type Promotion struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	StartDate   time.Time  `db:"start_date" json:"start_date"`
	EndDate     time.Time  `db:"end_date" json:"end_date"`
	DiscountID  *uuid.UUID `db:"discount_id" json:"discount_id"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

type PromotionInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	DiscountID  *uuid.UUID `json:"discount_id"`
}

// ValidateDiscount checks a discount value against its type: percentages lie
// in (0, 100] and fixed amounts must be positive.
func ValidateDiscount(kind string, value decimal.Decimal) error {
	if err := oneOf("discount_type", kind, DiscountPercentage, DiscountFixed); err != nil {
		return err
	}
	if !value.IsPositive() {
		return validationf("value must be greater than zero")
	}
	if kind == DiscountPercentage && value.GreaterThan(hundred) {
		return validationf("percentage discount cannot exceed 100")
	}
	return nil
}

type PricingService interface {
	ListPriceBooks(ctx context.Context, p ListParams) (Page[PriceBook], error)
	CreatePriceBook(ctx context.Context, in PriceBookInput) (PriceBook, error)
	GetPriceBook(ctx context.Context, id uuid.UUID) (PriceBook, error)

	ListDiscounts(ctx context.Context, p ListParams) (Page[Discount], error)
	CreateDiscount(ctx context.Context, in DiscountInput) (Discount, error)
	GetDiscount(ctx context.Context, id uuid.UUID) (Discount, error)

	ListPromotions(ctx context.Context, p ListParams) (Page[Promotion], error)
	CreatePromotion(ctx context.Context, in PromotionInput) (Promotion, error)
	GetPromotion(ctx context.Context, id uuid.UUID) (Promotion, error)
}

type pricingService struct {
	books      *Resource[PriceBook]
	discounts  *Resource[Discount]
	promotions *Resource[Promotion]
	audit      AuditService
}

func NewPricingService(pool *pgxpool.Pool, audit AuditService) PricingService {
	return &pricingService{
		books: NewResource[PriceBook](pool, ResourceSpec{
			Table: "price_books", Entity: "price book",
			Filters: map[string]string{"status": "status", "currency": "currency"},
			Search:  []string{"name"},
			OrderBy: "name",
		}),
		discounts: NewResource[Discount](pool, ResourceSpec{
			Table: "discounts", Entity: "discount",
			Filters: map[string]string{"status": "status", "discount_type": "discount_type"},
			Search:  []string{"code", "name"},
			OrderBy: "code",
		}),
		promotions: NewResource[Promotion](pool, ResourceSpec{
			Table: "promotions", Entity: "promotion",
			Filters: map[string]string{"status": "status"},
			Search:  []string{"name"},
			OrderBy: "start_date DESC",
		}),
		audit: audit,
	}
}

func (s *pricingService) ListPriceBooks(ctx context.Context, p ListParams) (Page[PriceBook], error) {
	return s.books.List(ctx, p)
}

func (s *pricingService) GetPriceBook(ctx context.Context, id uuid.UUID) (PriceBook, error) {
	return s.books.Get(ctx, id)
}

func (s *pricingService) CreatePriceBook(ctx context.Context, in PriceBookInput) (PriceBook, error) {
	if err := requireFields("name", in.Name); err != nil {
		return PriceBook{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultBase
	}
	if len(currency) != 3 {
		return PriceBook{}, validationf("currency must be a 3-letter code")
	}
	from, err := optionalDate(in.ValidFrom)
	if err != nil {
		return PriceBook{}, err
	}
	to, err := optionalDate(in.ValidTo)
	if err != nil {
		return PriceBook{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return PriceBook{}, validationf("valid_to cannot be before valid_from")
	}
	b, err := s.books.Insert(ctx, map[string]any{
		"name":       strings.TrimSpace(in.Name),
		"currency":   currency,
		"is_default": in.IsDefault,
		"valid_from": from,
		"valid_to":   to,
	})
	if err != nil {
		return PriceBook{}, err
	}
	s.audit.Record(ctx, "price_book", b.ID, "create", b)
	return b, nil
}

func (s *pricingService) ListDiscounts(ctx context.Context, p ListParams) (Page[Discount], error) {
	return s.discounts.List(ctx, p)
}

func (s *pricingService) GetDiscount(ctx context.Context, id uuid.UUID) (Discount, error) {
	return s.discounts.Get(ctx, id)
}

func (s *pricingService) CreateDiscount(ctx context.Context, in DiscountInput) (Discount, error) {
	if err := requireFields("code", in.Code, "name", in.Name); err != nil {
		return Discount{}, err
	}
	if err := ValidateDiscount(in.DiscountType, in.Value); err != nil {
		return Discount{}, err
	}
	d, err := s.discounts.Insert(ctx, map[string]any{
		"code":          strings.TrimSpace(in.Code),
		"name":          strings.TrimSpace(in.Name),
		"discount_type": in.DiscountType,
		"value":         in.Value,
	})
	if errors.Is(err, ErrConflict) {
		return Discount{}, conflictf("discount code %s already exists", strings.TrimSpace(in.Code))
	}
	if err != nil {
		return Discount{}, err
	}
	s.audit.Record(ctx, "discount", d.ID, "create", d)
	return d, nil
}

func (s *pricingService) ListPromotions(ctx context.Context, p ListParams) (Page[Promotion], error) {
	return s.promotions.List(ctx, p)
}

func (s *pricingService) GetPromotion(ctx context.Context, id uuid.UUID) (Promotion, error) {
	return s.promotions.Get(ctx, id)
}

func (s *pricingService) CreatePromotion(ctx context.Context, in PromotionInput) (Promotion, error) {
	if err := requireFields("name", in.Name, "start_date", in.StartDate, "end_date", in.EndDate); err != nil {
		return Promotion{}, err
	}
	start, err := ParseDate(in.StartDate)
	if err != nil {
		return Promotion{}, err
	}
	end, err := ParseDate(in.EndDate)
	if err != nil {
		return Promotion{}, err
	}
	if end.Before(start) {
		return Promotion{}, validationf("end_date cannot be before start_date")
	}
	pr, err := s.promotions.Insert(ctx, map[string]any{
		"name":        strings.TrimSpace(in.Name),
		"description": in.Description,
		"start_date":  start,
		"end_date":    end,
		"discount_id": in.DiscountID,
	})
	if err != nil {
		return Promotion{}, err
	}
	s.audit.Record(ctx, "promotion", pr.ID, "create", pr)
	return pr, nil
}
