package core

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var opportunityStages = []string{"Prospecting", "Qualification", "Proposal", "Negotiation", "ClosedWon", "ClosedLost"}

type Lead struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Company   string    `db:"company" json:"company"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Source    string    `db:"source" json:"source"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type LeadInput struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Source  string `json:"source"`
}

type Opportunity struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	CustomerID    *uuid.UUID      `db:"customer_id" json:"customer_id"`
	LeadID        *uuid.UUID      `db:"lead_id" json:"lead_id"`
	Stage         string          `db:"stage" json:"stage"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Probability   int             `db:"probability" json:"probability"`
	ExpectedClose *time.Time      `db:"expected_close" json:"expected_close"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type OpportunityInput struct {
	Name          string          `json:"name"`
	CustomerID    *uuid.UUID      `json:"customer_id"`
	LeadID        *uuid.UUID      `json:"lead_id"`
	Stage         string          `json:"stage"`
	Amount        decimal.Decimal `json:"amount"`
	Probability   int             `json:"probability"`
	ExpectedClose string          `json:"expected_close"`
}

type CRMService interface {
	ListLeads(ctx context.Context, p ListParams) (Page[Lead], error)
	CreateLead(ctx context.Context, in LeadInput) (Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (Lead, error)

	ListOpportunities(ctx context.Context, p ListParams) (Page[Opportunity], error)
	CreateOpportunity(ctx context.Context, in OpportunityInput) (Opportunity, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (Opportunity, error)
}

type crmService struct {
	leads         *Resource[Lead]
	opportunities *Resource[Opportunity]
	audit         AuditService
}

func NewCRMService(pool *pgxpool.Pool, audit AuditService) CRMService {
	return &crmService{
		leads: NewResource[Lead](pool, ResourceSpec{
			Table: "leads", Entity: "lead",
			Filters: map[string]string{"status": "status", "source": "source"},
			Search:  []string{"name", "company", "email"},
		}),
		opportunities: NewResource[Opportunity](pool, ResourceSpec{
			Table: "opportunities", Entity: "opportunity",
			Filters: map[string]string{"stage": "stage", "customer_id": "customer_id", "lead_id": "lead_id"},
			Search:  []string{"name"},
		}),
		audit: audit,
	}
}

func (s *crmService) ListLeads(ctx context.Context, p ListParams) (Page[Lead], error) {
	return s.leads.List(ctx, p)
}

func (s *crmService) GetLead(ctx context.Context, id uuid.UUID) (Lead, error) {
	return s.leads.Get(ctx, id)
}

func (s *crmService) CreateLead(ctx context.Context, in LeadInput) (Lead, error) {
	if err := requireFields("name", in.Name); err != nil {
		return Lead{}, err
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return Lead{}, validationf("invalid email %q", email)
		}
	}
	l, err := s.leads.Insert(ctx, map[string]any{
		"name":    strings.TrimSpace(in.Name),
		"company": in.Company,
		"email":   email,
		"phone":   in.Phone,
		"source":  in.Source,
	})
	if err != nil {
		return Lead{}, err
	}
	s.audit.Record(ctx, "lead", l.ID, "create", l)
	return l, nil
}

func (s *crmService) ListOpportunities(ctx context.Context, p ListParams) (Page[Opportunity], error) {
	return s.opportunities.List(ctx, p)
}

func (s *crmService) GetOpportunity(ctx context.Context, id uuid.UUID) (Opportunity, error) {
	return s.opportunities.Get(ctx, id)
}

func (s *crmService) CreateOpportunity(ctx context.Context, in OpportunityInput) (Opportunity, error) {
	if err := requireFields("name", in.Name); err != nil {
		return Opportunity{}, err
	}
	if in.Probability < 0 || in.Probability > 100 {
		return Opportunity{}, validationf("probability must be between 0 and 100")
	}
	if in.Amount.IsNegative() {
		return Opportunity{}, validationf("amount cannot be negative")
	}
	if in.Stage == "" {
		in.Stage = opportunityStages[0]
	}
	if err := oneOf("stage", in.Stage, opportunityStages...); err != nil {
		return Opportunity{}, err
	}
	closes, err := optionalDate(in.ExpectedClose)
	if err != nil {
		return Opportunity{}, err
	}
	o, err := s.opportunities.Insert(ctx, map[string]any{
		"name":           strings.TrimSpace(in.Name),
		"customer_id":    in.CustomerID,
		"lead_id":        in.LeadID,
		"stage":          in.Stage,
		"amount":         in.Amount,
		"probability":    in.Probability,
		"expected_close": closes,
	})
	if err != nil {
		return Opportunity{}, err
	}
	s.audit.Record(ctx, "opportunity", o.ID, "create", o)
	return o, nil
}
