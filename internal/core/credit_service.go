package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erp-server/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CreditService tracks customer credit exposure and holds.
//
// The Record* hooks run inside the caller's transaction and return the holds
// they placed or released; the caller passes them to Announce after commit.
type CreditService interface {
	ListProfiles(ctx context.Context, p ListParams) (Page[CreditProfile], error)
	GetProfile(ctx context.Context, customerID uuid.UUID) (CreditProfile, error)
	Summary(ctx context.Context) (CreditSummary, error)
	OnHold(ctx context.Context, p ListParams) (Page[CreditProfile], error)
	HighRisk(ctx context.Context, p ListParams) (Page[CreditProfile], error)
	Transactions(ctx context.Context, customerID uuid.UUID, p ListParams) (Page[CreditTransaction], error)
	Holds(ctx context.Context, customerID uuid.UUID, p ListParams) (Page[CreditHold], error)
	LimitChanges(ctx context.Context, customerID uuid.UUID, p ListParams) (Page[CreditLimitChange], error)
	Alerts(ctx context.Context, p ListParams) (Page[CreditAlert], error)

	Check(ctx context.Context, in CreditCheckInput) (CreditCheckResult, error)
	UpdateLimit(ctx context.Context, customerID uuid.UUID, in CreditLimitInput) (CreditProfile, error)
	PlaceHold(ctx context.Context, customerID uuid.UUID, reason string) (CreditHold, error)
	ReleaseHold(ctx context.Context, customerID uuid.UUID, overrideReason string) (CreditHold, error)

	EnsureProfile(ctx context.Context, q Querier, customerID uuid.UUID, limit decimal.Decimal) (CreditProfile, error)
	RecordOrder(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) error
	ReleaseOrder(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) error
	RecordInvoice(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) ([]CreditHold, error)
	RecordPayment(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) ([]CreditHold, error)
	Announce(ctx context.Context, holds []CreditHold)
}

type creditService struct {
	pool          *pgxpool.Pool
	profiles      *Resource[CreditProfile]
	transactions  *Resource[CreditTransaction]
	holds         *Resource[CreditHold]
	limitChanges  *Resource[CreditLimitChange]
	alerts        *Resource[CreditAlert]
	audit         AuditService
	notifications NotificationService
	log           zerolog.Logger
}

func NewCreditService(pool *pgxpool.Pool, audit AuditService, notifications NotificationService, log zerolog.Logger) CreditService {
	return &creditService{
		pool: pool,
		profiles: NewResource[CreditProfile](pool, ResourceSpec{
			Table: "credit_profiles", Entity: "credit profile",
			Filters: map[string]string{"risk_level": "risk_level", "status": "status"},
			Touch:   true,
		}),
		transactions: NewResource[CreditTransaction](pool, ResourceSpec{
			Table: "credit_transactions", Entity: "credit transaction",
			Filters: map[string]string{"transaction_type": "transaction_type"},
		}),
		holds: NewResource[CreditHold](pool, ResourceSpec{
			Table: "credit_holds", Entity: "credit hold",
			Filters: map[string]string{"status": "status"},
			OrderBy: "placed_at DESC",
		}),
		limitChanges: NewResource[CreditLimitChange](pool, ResourceSpec{
			Table: "credit_limit_changes", Entity: "credit limit change",
		}),
		alerts: NewResource[CreditAlert](pool, ResourceSpec{
			Table: "credit_alerts", Entity: "credit alert",
			Filters: map[string]string{"customer_id": "customer_id", "is_read": "is_read", "severity": "severity"},
		}),
		audit:         audit,
		notifications: notifications,
		log:           log,
	}
}

// RiskLevel grades a profile from its utilisation and overdue ratio. A zero
// limit or zero outstanding balance contributes a ratio of zero.
func RiskLevel(used, limit, overdue, outstanding decimal.Decimal) string {
	ratio := func(a, b decimal.Decimal) float64 {
		if !b.IsPositive() {
			return 0
		}
		f, _ := a.Div(b).Float64()
		return f
	}
	u, o := ratio(used, limit), ratio(overdue, outstanding)
	switch {
	case u > 0.95 || o > 0.5:
		return RiskCritical
	case u > 0.8 || o > 0.3:
		return RiskHigh
	case u > 0.6 || o > 0.1:
		return RiskMedium
	default:
		return RiskLow
	}
}

// EvaluateCredit decides a check for amount against a profile. hold is the
// customer's active hold, if any. It has no side effects.
func EvaluateCredit(p CreditProfile, hold *CreditHold, amount decimal.Decimal) CreditCheckResult {
	res := CreditCheckResult{
		CustomerID:         p.CustomerID,
		Result:             CreditApproved,
		CreditLimit:        p.CreditLimit,
		CreditUsed:         p.CreditUsed,
		AvailableCredit:    p.AvailableCredit,
		RequestedAmount:    amount,
		ProjectedAvailable: p.AvailableCredit.Sub(amount),
		Warnings:           []string{},
		CheckedAt:          nowUTC(),
	}
	if hold != nil {
		res.Result = CreditBlocked
		res.HoldID = &hold.ID
		res.Reason = "Customer is on credit hold: " + hold.Reason
		return res
	}

	if res.ProjectedAvailable.IsNegative() {
		res.Result = CreditBlocked
		res.Reason = fmt.Sprintf("Order exceeds available credit by $%s", res.ProjectedAvailable.Neg().StringFixed(2))
	} else if p.CreditLimit.IsPositive() {
		threshold := p.CreditLimit.Mul(decimal.NewFromInt(int64(p.HoldThresholdPercent))).Div(hundred)
		projectedUsed := p.CreditUsed.Add(amount)
		if projectedUsed.GreaterThan(threshold) {
			res.Result = CreditWarning
			res.Warnings = append(res.Warnings, fmt.Sprintf("Order will utilize %s%% of credit limit",
				projectedUsed.Div(p.CreditLimit).Mul(hundred).StringFixed(1)))
		}
	}

	if p.OverdueAmount.IsPositive() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Customer has $%s in overdue invoices", p.OverdueAmount.StringFixed(2)))
		if res.Result == CreditApproved && p.OverdueAmount.GreaterThan(p.CreditLimit.Div(decimal.NewFromInt(4))) {
			res.Result = CreditWarning
		}
	}
	return res
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *creditService) ListProfiles(ctx context.Context, p ListParams) (Page[CreditProfile], error) {
	return s.profiles.List(ctx, p)
}

func (s *creditService) GetProfile(ctx context.Context, customerID uuid.UUID) (CreditProfile, error) {
	return s.profiles.GetBy(ctx, "customer_id", customerID)
}

func (s *creditService) OnHold(ctx context.Context, p ListParams) (Page[CreditProfile], error) {
	r := NewResource[CreditProfile](s.pool, ResourceSpec{
		Table: "credit_profiles", Entity: "credit profile",
		Scope: "customer_id IN (SELECT customer_id FROM credit_holds WHERE status = 'Active')",
	})
	return r.List(ctx, p)
}

func (s *creditService) HighRisk(ctx context.Context, p ListParams) (Page[CreditProfile], error) {
	r := NewResource[CreditProfile](s.pool, ResourceSpec{
		Table: "credit_profiles", Entity: "credit profile",
		Scope:   "risk_level IN ('High', 'Critical')",
		OrderBy: "credit_used DESC",
	})
	return r.List(ctx, p)
}

func (s *creditService) Transactions(ctx context.Context, customerID uuid.UUID, p ListParams) (Page[CreditTransaction], error) {
	return s.transactions.List(ctx, p.With("customer_id", customerID))
}

func (s *creditService) Holds(ctx context.Context, customerID uuid.UUID, p ListParams) (Page[CreditHold], error) {
	return s.holds.List(ctx, p.With("customer_id", customerID))
}

func (s *creditService) LimitChanges(ctx context.Context, customerID uuid.UUID, p ListParams) (Page[CreditLimitChange], error) {
	return s.limitChanges.List(ctx, p.With("customer_id", customerID))
}

func (s *creditService) Alerts(ctx context.Context, p ListParams) (Page[CreditAlert], error) {
	return s.alerts.List(ctx, p)
}

func (s *creditService) Summary(ctx context.Context) (CreditSummary, error) {
	var sum CreditSummary
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
		       COALESCE(SUM(credit_limit), 0),
		       COALESCE(SUM(credit_used), 0),
		       COALESCE(SUM(available_credit), 0),
		       COALESCE(SUM(overdue_amount), 0),
		       (SELECT count(DISTINCT customer_id) FROM credit_holds WHERE status = 'Active'),
		       count(*) FILTER (WHERE risk_level IN ('High', 'Critical'))
		FROM credit_profiles`,
	).Scan(&sum.TotalCustomers, &sum.TotalCreditLimit, &sum.TotalCreditUsed, &sum.TotalAvailableCredit,
		&sum.TotalOverdue, &sum.CustomersOnHold, &sum.HighRiskCustomers)
	if err != nil {
		return CreditSummary{}, fmt.Errorf("failed to summarise credit profiles: %w", err)
	}
	if sum.TotalCreditLimit.IsPositive() {
		sum.AvgUtilizationPercent = sum.TotalCreditUsed.Div(sum.TotalCreditLimit).Mul(hundred).Round(2)
	}
	return sum, nil
}

// ── Check and manual operations ───────────────────────────────────────────────

func (s *creditService) Check(ctx context.Context, in CreditCheckInput) (CreditCheckResult, error) {
	if in.CustomerID == uuid.Nil {
		return CreditCheckResult{}, validationf("customer_id is required")
	}
	if !in.OrderAmount.IsPositive() {
		return CreditCheckResult{}, validationf("order_amount must be greater than zero")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CreditCheckResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.profiles.With(tx).LockBy(ctx, "customer_id", in.CustomerID)
	if errors.Is(err, ErrNotFound) {
		metrics.CreditChecks.WithLabelValues(CreditApproved).Inc()
		return CreditCheckResult{
			CustomerID:      in.CustomerID,
			Result:          CreditApproved,
			RequestedAmount: in.OrderAmount,
			Reason:          "No credit profile found - customer has no credit limit set",
			Warnings:        []string{"Customer has no credit profile. Consider setting up credit management."},
			CheckedAt:       nowUTC(),
		}, nil
	}
	if err != nil {
		return CreditCheckResult{}, err
	}
	hold, err := s.activeHold(ctx, tx, in.CustomerID)
	if err != nil {
		return CreditCheckResult{}, err
	}

	res := EvaluateCredit(p, hold, in.OrderAmount)
	var placed []CreditHold
	if hold == nil && res.Result == CreditBlocked && p.AutoHoldEnabled {
		h, err := s.insertHold(ctx, tx, p, HoldLimitExceeded,
			fmt.Sprintf("Credit limit exceeded by order of $%s", in.OrderAmount.StringFixed(2)),
			res.ProjectedAvailable.Neg(), in.OrderID, nil)
		if err != nil {
			return CreditCheckResult{}, err
		}
		res.HoldID = &h.ID
		placed = append(placed, h)
	}
	if err := tx.Commit(ctx); err != nil {
		return CreditCheckResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.CreditChecks.WithLabelValues(res.Result).Inc()
	s.log.Info().Str("customer_id", in.CustomerID.String()).Str("result", res.Result).
		Str("amount", in.OrderAmount.StringFixed(2)).Msg("credit check")
	s.Announce(ctx, placed)
	return res, nil
}

func (s *creditService) UpdateLimit(ctx context.Context, customerID uuid.UUID, in CreditLimitInput) (CreditProfile, error) {
	if err := requireFields("reason", in.Reason); err != nil {
		return CreditProfile{}, err
	}
	if in.CreditLimit.IsNegative() {
		return CreditProfile{}, validationf("credit_limit cannot be negative")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CreditProfile{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.lockOrCreate(ctx, tx, customerID, decimal.Zero)
	if err != nil {
		return CreditProfile{}, err
	}
	previous := p.CreditLimit
	_, err = s.limitChanges.With(tx).Insert(ctx, map[string]any{
		"profile_id":     p.ID,
		"customer_id":    customerID,
		"previous_limit": previous,
		"new_limit":      in.CreditLimit,
		"change_reason":  strings.TrimSpace(in.Reason),
		"created_by":     actorID(ctx),
	})
	if err != nil {
		return CreditProfile{}, err
	}

	p.CreditLimit = in.CreditLimit
	p, err = s.saveProfile(ctx, tx, p)
	if err != nil {
		return CreditProfile{}, err
	}
	err = s.insertTransaction(ctx, tx, p, TxnCreditLimitChanged, in.CreditLimit.Sub(previous), p.CreditUsed,
		CreditRef{}, fmt.Sprintf("Credit limit changed from $%s to $%s", previous.StringFixed(2), in.CreditLimit.StringFixed(2)))
	if err != nil {
		return CreditProfile{}, err
	}

	var placed []CreditHold
	if p.CreditUsed.GreaterThan(p.CreditLimit) {
		hold, err := s.activeHold(ctx, tx, customerID)
		if err != nil {
			return CreditProfile{}, err
		}
		if hold == nil {
			h, err := s.insertHold(ctx, tx, p, HoldLimitExceeded, "Credit limit reduced below current usage",
				p.CreditUsed.Sub(p.CreditLimit), nil, nil)
			if err != nil {
				return CreditProfile{}, err
			}
			placed = append(placed, h)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return CreditProfile{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.audit.Record(ctx, "credit_profile", p.ID, "limit_change", map[string]any{
		"previous_limit": previous, "new_limit": in.CreditLimit, "reason": in.Reason,
	})
	s.Announce(ctx, placed)
	return p, nil
}

func (s *creditService) PlaceHold(ctx context.Context, customerID uuid.UUID, reason string) (CreditHold, error) {
	if err := requireFields("reason", reason); err != nil {
		return CreditHold{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CreditHold{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.profiles.With(tx).LockBy(ctx, "customer_id", customerID)
	if err != nil {
		return CreditHold{}, err
	}
	existing, err := s.activeHold(ctx, tx, customerID)
	if err != nil {
		return CreditHold{}, err
	}
	if existing != nil {
		return CreditHold{}, conflictf("customer already has an active credit hold")
	}
	h, err := s.insertHold(ctx, tx, p, HoldManual, strings.TrimSpace(reason), decimal.Zero, nil, nil)
	if err != nil {
		return CreditHold{}, err
	}
	err = s.insertTransaction(ctx, tx, p, TxnHoldPlaced, decimal.Zero, p.CreditUsed, CreditRef{}, "Manual hold: "+h.Reason)
	if err != nil {
		return CreditHold{}, err
	}
	if err := s.insertAlert(ctx, tx, p, "HoldPlaced", "Warning", "Manual credit hold placed: "+h.Reason, decimal.Zero, decimal.Zero); err != nil {
		return CreditHold{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CreditHold{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.Announce(ctx, []CreditHold{h})
	return h, nil
}

func (s *creditService) ReleaseHold(ctx context.Context, customerID uuid.UUID, overrideReason string) (CreditHold, error) {
	if err := requireFields("override_reason", overrideReason); err != nil {
		return CreditHold{}, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CreditHold{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := s.profiles.With(tx).LockBy(ctx, "customer_id", customerID)
	if err != nil {
		return CreditHold{}, err
	}
	hold, err := s.activeHold(ctx, tx, customerID)
	if err != nil {
		return CreditHold{}, err
	}
	if hold == nil {
		return CreditHold{}, businessf("customer has no active credit hold")
	}
	h, err := s.releaseHold(ctx, tx, *hold, strings.TrimSpace(overrideReason))
	if err != nil {
		return CreditHold{}, err
	}
	err = s.insertTransaction(ctx, tx, p, TxnHoldReleased, decimal.Zero, p.CreditUsed, CreditRef{}, "Hold released: "+overrideReason)
	if err != nil {
		return CreditHold{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CreditHold{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.Announce(ctx, []CreditHold{h})
	return h, nil
}

// ── Sales hooks ───────────────────────────────────────────────────────────────

func (s *creditService) EnsureProfile(ctx context.Context, q Querier, customerID uuid.UUID, limit decimal.Decimal) (CreditProfile, error) {
	return s.lockOrCreate(ctx, q, customerID, limit)
}

// RecordOrder adds a confirmed order to pending exposure. Customers without a
// profile are not tracked.
func (s *creditService) RecordOrder(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) error {
	p, err := s.profiles.With(q).LockBy(ctx, "customer_id", customerID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.PendingOrders = p.PendingOrders.Add(amount)
	if p, err = s.saveProfile(ctx, q, p); err != nil {
		return err
	}
	return s.insertTransaction(ctx, q, p, TxnOrderPlaced, amount, p.CreditUsed, ref, "Order "+ref.Number+" placed")
}

// ReleaseOrder removes a cancelled confirmed order from pending exposure.
func (s *creditService) ReleaseOrder(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) error {
	p, err := s.profiles.With(q).LockBy(ctx, "customer_id", customerID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	p.PendingOrders = decimal.Max(p.PendingOrders.Sub(amount), decimal.Zero)
	if p, err = s.saveProfile(ctx, q, p); err != nil {
		return err
	}
	return s.insertTransaction(ctx, q, p, TxnOrderCancelled, amount.Neg(), p.CreditUsed, ref, "Order "+ref.Number+" cancelled")
}

func (s *creditService) RecordInvoice(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) ([]CreditHold, error) {
	p, err := s.lockOrCreate(ctx, q, customerID, decimal.Zero)
	if err != nil {
		return nil, err
	}
	previous := p.CreditUsed
	p.CreditUsed = p.CreditUsed.Add(amount)
	p.OutstandingInvoices = p.OutstandingInvoices.Add(amount)
	p.PendingOrders = decimal.Max(p.PendingOrders.Sub(amount), decimal.Zero)
	if p, err = s.saveProfile(ctx, q, p); err != nil {
		return nil, err
	}
	err = s.insertTransaction(ctx, q, p, TxnInvoiceCreated, amount, previous, ref, "Invoice "+ref.Number+" created")
	if err != nil {
		return nil, err
	}

	var placed []CreditHold
	if p.CreditUsed.GreaterThan(p.CreditLimit) && p.AutoHoldEnabled {
		hold, err := s.activeHold(ctx, q, customerID)
		if err != nil {
			return nil, err
		}
		if hold == nil {
			over := p.CreditUsed.Sub(p.CreditLimit)
			h, err := s.insertHold(ctx, q, p, HoldLimitExceeded,
				fmt.Sprintf("Credit limit exceeded after invoice: $%s over limit", over.StringFixed(2)), over, nil, &ref.ID)
			if err != nil {
				return nil, err
			}
			placed = append(placed, h)
			err = s.insertAlert(ctx, q, p, "LimitExceeded", "Critical",
				fmt.Sprintf("Credit limit exceeded by $%s", over.StringFixed(2)), p.CreditLimit, p.CreditUsed)
			if err != nil {
				return nil, err
			}
		}
	} else if p.AvailableCredit.LessThan(p.CreditLimit.Div(decimal.NewFromInt(10))) {
		err = s.insertAlert(ctx, q, p, "ApproachingLimit", "Warning",
			fmt.Sprintf("Only $%s credit available", p.AvailableCredit.StringFixed(2)), p.CreditLimit, p.CreditUsed)
		if err != nil {
			return nil, err
		}
	}
	return placed, nil
}

func (s *creditService) RecordPayment(ctx context.Context, q Querier, customerID uuid.UUID, amount decimal.Decimal, ref CreditRef) ([]CreditHold, error) {
	p, err := s.profiles.With(q).LockBy(ctx, "customer_id", customerID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	previous := p.CreditUsed
	p.CreditUsed = decimal.Max(p.CreditUsed.Sub(amount), decimal.Zero)
	p.OutstandingInvoices = decimal.Max(p.OutstandingInvoices.Sub(amount), decimal.Zero)
	if p, err = s.saveProfile(ctx, q, p); err != nil {
		return nil, err
	}
	err = s.insertTransaction(ctx, q, p, TxnInvoicePaid, amount.Neg(), previous, ref, "Payment on invoice "+ref.Number)
	if err != nil {
		return nil, err
	}

	hold, err := s.activeHold(ctx, q, customerID)
	if err != nil {
		return nil, err
	}
	if hold == nil || p.CreditUsed.GreaterThan(p.CreditLimit) {
		return nil, nil
	}
	h, err := s.releaseHold(ctx, q, *hold, "Payment received - credit within limit")
	if err != nil {
		return nil, err
	}
	err = s.insertAlert(ctx, q, p, "HoldReleased", "Info", "Credit hold released after payment", p.CreditLimit, p.CreditUsed)
	if err != nil {
		return nil, err
	}
	return []CreditHold{h}, nil
}

// Announce audits hold changes and notifies administrators. Call after commit.
func (s *creditService) Announce(ctx context.Context, holds []CreditHold) {
	for _, h := range holds {
		action, title := "hold_placed", "Credit hold placed"
		msg := h.Reason
		if h.Status == HoldReleased {
			action, title = "hold_released", "Credit hold released"
			if h.OverrideReason != nil {
				msg = *h.OverrideReason
			}
		}
		s.audit.Record(ctx, "credit_hold", h.ID, action, h)
		s.notifications.NotifyRole(ctx, RoleAdmin, NotificationInput{
			Title:   title,
			Message: msg,
			Type:    "credit",
			Link:    "/credit/profiles/" + h.CustomerID.String(),
		})
		s.log.Info().Str("customer_id", h.CustomerID.String()).Str("action", action).Msg("credit hold changed")
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *creditService) lockOrCreate(ctx context.Context, q Querier, customerID uuid.UUID, limit decimal.Decimal) (CreditProfile, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO credit_profiles (customer_id, credit_limit, available_credit)
		VALUES ($1, $2, $2)
		ON CONFLICT (customer_id) DO NOTHING`, customerID, limit)
	if err != nil {
		return CreditProfile{}, mapDBError(err, "credit profile")
	}
	return s.profiles.With(q).LockBy(ctx, "customer_id", customerID)
}

// saveProfile recomputes available credit and risk level and writes the
// mutable balance columns.
func (s *creditService) saveProfile(ctx context.Context, q Querier, p CreditProfile) (CreditProfile, error) {
	p.AvailableCredit = p.CreditLimit.Sub(p.CreditUsed)
	p.RiskLevel = RiskLevel(p.CreditUsed, p.CreditLimit, p.OverdueAmount, p.OutstandingInvoices)
	return s.profiles.With(q).Update(ctx, p.ID, map[string]any{
		"credit_limit":         p.CreditLimit,
		"credit_used":          p.CreditUsed,
		"available_credit":     p.AvailableCredit,
		"outstanding_invoices": p.OutstandingInvoices,
		"pending_orders":       p.PendingOrders,
		"risk_level":           p.RiskLevel,
	})
}

func (s *creditService) activeHold(ctx context.Context, q Querier, customerID uuid.UUID) (*CreditHold, error) {
	holds, err := s.holds.With(q).All(ctx, ListParams{}.With("customer_id", customerID).With("status", HoldActive))
	if err != nil {
		return nil, err
	}
	if len(holds) == 0 {
		return nil, nil
	}
	return &holds[0], nil
}

func (s *creditService) insertHold(ctx context.Context, q Querier, p CreditProfile, holdType, reason string,
	over decimal.Decimal, orderID, invoiceID *uuid.UUID) (CreditHold, error) {
	h, err := s.holds.With(q).Insert(ctx, map[string]any{
		"profile_id":         p.ID,
		"customer_id":        p.CustomerID,
		"hold_type":          holdType,
		"reason":             reason,
		"amount_over_limit":  over,
		"related_order_id":   orderID,
		"related_invoice_id": invoiceID,
		"placed_by":          actorID(ctx),
	})
	if errors.Is(err, ErrConflict) {
		return CreditHold{}, conflictf("customer already has an active credit hold")
	}
	return h, err
}

func (s *creditService) releaseHold(ctx context.Context, q Querier, h CreditHold, reason string) (CreditHold, error) {
	return s.holds.With(q).Transition(ctx, h.ID, []string{HoldActive}, HoldReleased, map[string]any{
		"released_by":     actorID(ctx),
		"released_at":     nowUTC(),
		"override_reason": reason,
	})
}

func (s *creditService) insertTransaction(ctx context.Context, q Querier, p CreditProfile, kind string,
	amount, previousUsed decimal.Decimal, ref CreditRef, description string) error {
	var refID *uuid.UUID
	if ref.ID != uuid.Nil {
		refID = &ref.ID
	}
	_, err := s.transactions.With(q).Insert(ctx, map[string]any{
		"profile_id":           p.ID,
		"customer_id":          p.CustomerID,
		"transaction_type":     kind,
		"amount":               amount,
		"previous_credit_used": previousUsed,
		"new_credit_used":      p.CreditUsed,
		"reference_type":       ref.Type,
		"reference_id":         refID,
		"reference_number":     ref.Number,
		"description":          description,
		"created_by":           actorID(ctx),
	})
	return err
}

func (s *creditService) insertAlert(ctx context.Context, q Querier, p CreditProfile, kind, severity, message string,
	threshold, actual decimal.Decimal) error {
	_, err := s.alerts.With(q).Insert(ctx, map[string]any{
		"profile_id":      p.ID,
		"customer_id":     p.CustomerID,
		"alert_type":      kind,
		"severity":        severity,
		"message":         message,
		"threshold_value": threshold,
		"actual_value":    actual,
	})
	return err
}
