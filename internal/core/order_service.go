package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SalesService manages customers, quotations, sales orders and invoices.
// Order confirmation, invoicing and payment feed the customer's credit profile.
type SalesService interface {
	ListCustomers(ctx context.Context, p ListParams) (Page[Customer], error)
	CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error)

	ListOrders(ctx context.Context, p ListParams) (Page[SalesOrder], error)
	CreateOrder(ctx context.Context, in SalesOrderInput) (SalesOrder, error)
	GetOrder(ctx context.Context, id uuid.UUID) (SalesOrder, error)
	// ConfirmOrder runs a credit check for the order total and moves Draft → Confirmed.
	// Confirming an already confirmed order returns it unchanged.
	ConfirmOrder(ctx context.Context, id uuid.UUID) (SalesOrder, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (SalesOrder, error)

	ListInvoices(ctx context.Context, p ListParams) (Page[Invoice], error)
	CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error)
	PayInvoice(ctx context.Context, id uuid.UUID, in PaymentInput) (Invoice, error)

	ListQuotations(ctx context.Context, p ListParams) (Page[Quotation], error)
	CreateQuotation(ctx context.Context, in QuotationInput) (Quotation, error)
	GetQuotation(ctx context.Context, id uuid.UUID) (Quotation, error)
	SendQuotation(ctx context.Context, id uuid.UUID) (Quotation, error)
	AcceptQuotation(ctx context.Context, id uuid.UUID) (Quotation, error)
	RejectQuotation(ctx context.Context, id uuid.UUID) (Quotation, error)
	// ConvertQuotation turns an accepted quotation into a draft sales order.
	ConvertQuotation(ctx context.Context, id uuid.UUID) (SalesOrder, error)
}

type salesService struct {
	pool       *pgxpool.Pool
	customers  *Resource[Customer]
	orders     *Resource[SalesOrder]
	invoices   *Resource[Invoice]
	quotations *Resource[Quotation]
	credit     CreditService
	audit      AuditService
	log        zerolog.Logger
}

func NewSalesService(pool *pgxpool.Pool, credit CreditService, audit AuditService, log zerolog.Logger) SalesService {
	return &salesService{
		pool: pool,
		customers: NewResource[Customer](pool, ResourceSpec{
			Table: "customers", Entity: "customer",
			Filters: map[string]string{"status": "status"},
			Search:  []string{"code", "name", "email"},
			OrderBy: "code",
		}),
		orders: NewResource[SalesOrder](pool, ResourceSpec{
			Table: "sales_orders", Entity: "sales order",
			Filters: map[string]string{"status": "status", "customer_id": "customer_id"},
			Search:  []string{"order_number"},
			Touch:   true,
		}),
		invoices: NewResource[Invoice](pool, ResourceSpec{
			Table: "invoices", Entity: "invoice",
			Filters: map[string]string{"status": "status", "customer_id": "customer_id"},
			Search:  []string{"invoice_number"},
			Touch:   true,
		}),
		quotations: NewResource[Quotation](pool, ResourceSpec{
			Table: "quotations", Entity: "quotation",
			Filters: map[string]string{"status": "status", "customer_id": "customer_id"},
			Search:  []string{"quotation_number"},
			Touch:   true,
		}),
		credit: credit,
		audit:  audit,
		log:    log,
	}
}

// ── Customers ─────────────────────────────────────────────────────────────────

func (s *salesService) ListCustomers(ctx context.Context, p ListParams) (Page[Customer], error) {
	return s.customers.List(ctx, p)
}

func (s *salesService) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	return s.customers.Get(ctx, id)
}

func (s *salesService) CreateCustomer(ctx context.Context, in CustomerInput) (Customer, error) {
	if err := requireFields("code", in.Code, "name", in.Name); err != nil {
		return Customer{}, err
	}
	limit := decimal.Zero
	if in.CreditLimit != nil {
		if in.CreditLimit.IsNegative() {
			return Customer{}, validationf("credit_limit cannot be negative")
		}
		limit = *in.CreditLimit
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Customer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.customers.With(tx).Insert(ctx, map[string]any{
		"code":         strings.TrimSpace(in.Code),
		"name":         strings.TrimSpace(in.Name),
		"email":        strings.TrimSpace(in.Email),
		"phone":        in.Phone,
		"address":      in.Address,
		"credit_limit": limit,
	})
	if errors.Is(err, ErrConflict) {
		return Customer{}, conflictf("customer code %s already exists", strings.TrimSpace(in.Code))
	}
	if err != nil {
		return Customer{}, err
	}
	if in.CreditLimit != nil {
		if _, err := s.credit.EnsureProfile(ctx, tx, c.ID, limit); err != nil {
			return Customer{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Customer{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "customer", c.ID, "create", c)
	return c, nil
}

// ── Orders ────────────────────────────────────────────────────────────────────

func (s *salesService) ListOrders(ctx context.Context, p ListParams) (Page[SalesOrder], error) {
	return s.orders.List(ctx, p)
}

func (s *salesService) GetOrder(ctx context.Context, id uuid.UUID) (SalesOrder, error) {
	return s.loadOrder(ctx, s.pool, id)
}

func (s *salesService) loadOrder(ctx context.Context, q Querier, id uuid.UUID) (SalesOrder, error) {
	o, err := s.orders.With(q).Get(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	o.Lines, err = loadLines(ctx, q, "sales_order_lines", "order_id", id)
	return o, err
}

func (s *salesService) CreateOrder(ctx context.Context, in SalesOrderInput) (SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SalesOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.insertOrder(ctx, tx, in, nil)
	if err != nil {
		return SalesOrder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return SalesOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("order_number", o.OrderNumber).Str("total", o.Total.StringFixed(2)).Msg("sales order created")
	s.audit.Record(ctx, "sales_order", o.ID, "create", o)
	return o, nil
}

func (s *salesService) insertOrder(ctx context.Context, q Querier, in SalesOrderInput, quotationID *uuid.UUID) (SalesOrder, error) {
	if in.CustomerID == uuid.Nil {
		return SalesOrder{}, validationf("customer_id is required")
	}
	date, err := dateOrToday(in.OrderDate)
	if err != nil {
		return SalesOrder{}, err
	}
	if _, err := s.customers.With(q).Get(ctx, in.CustomerID); err != nil {
		return SalesOrder{}, err
	}
	lines, total, err := priceLines(ctx, q, in.Lines, false)
	if err != nil {
		return SalesOrder{}, err
	}
	number, err := NextDocumentNumber(ctx, q, DocSalesOrder, date)
	if err != nil {
		return SalesOrder{}, err
	}
	o, err := s.orders.With(q).Insert(ctx, map[string]any{
		"order_number": number,
		"customer_id":  in.CustomerID,
		"order_date":   date,
		"total":        total,
		"quotation_id": quotationID,
		"created_by":   actorID(ctx),
	})
	if err != nil {
		return SalesOrder{}, err
	}
	if err := insertLines(ctx, q, "sales_order_lines", "order_id", o.ID, lines); err != nil {
		return SalesOrder{}, err
	}
	o.Lines = lines
	return o, nil
}

func (s *salesService) ConfirmOrder(ctx context.Context, id uuid.UUID) (SalesOrder, error) {
	o, err := s.loadOrder(ctx, s.pool, id)
	if err != nil {
		return SalesOrder{}, err
	}
	if o.Status == OrderConfirmed {
		return o, nil
	}
	if o.Status != OrderDraft {
		return SalesOrder{}, businessf("sales order %s cannot be confirmed: status is %s", o.OrderNumber, o.Status)
	}

	// The check commits on its own so an automatic hold survives a refused confirmation.
	if o.Total.IsPositive() {
		check, err := s.credit.Check(ctx, CreditCheckInput{CustomerID: o.CustomerID, OrderID: &o.ID, OrderAmount: o.Total})
		if err != nil {
			return SalesOrder{}, err
		}
		if check.Result == CreditBlocked {
			return SalesOrder{}, businessf("credit check failed: %s", check.Reason)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SalesOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	confirmed, err := s.orders.With(tx).Transition(ctx, id, []string{OrderDraft}, OrderConfirmed, map[string]any{"confirmed_at": nowUTC()})
	if err != nil {
		// A concurrent confirm won the race.
		if errors.Is(err, ErrBusinessRule) {
			if cur, gerr := s.loadOrder(ctx, s.pool, id); gerr == nil && cur.Status == OrderConfirmed {
				return cur, nil
			}
		}
		return SalesOrder{}, err
	}
	err = s.credit.RecordOrder(ctx, tx, o.CustomerID, o.Total, CreditRef{Type: "sales_order", ID: o.ID, Number: o.OrderNumber})
	if err != nil {
		return SalesOrder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return SalesOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	confirmed.Lines = o.Lines
	s.log.Info().Str("order_number", o.OrderNumber).Msg("sales order confirmed")
	s.audit.Record(ctx, "sales_order", id, "confirm", map[string]any{"status": OrderConfirmed})
	return confirmed, nil
}

func (s *salesService) CancelOrder(ctx context.Context, id uuid.UUID) (SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SalesOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.orders.With(tx).LockBy(ctx, "id", id)
	if err != nil {
		return SalesOrder{}, err
	}
	cancelled, err := s.orders.With(tx).Transition(ctx, id, []string{OrderDraft, OrderConfirmed}, OrderCancelled, nil)
	if err != nil {
		return SalesOrder{}, err
	}
	// Only confirmed orders were counted as pending exposure.
	if o.Status == OrderConfirmed {
		err = s.credit.ReleaseOrder(ctx, tx, o.CustomerID, o.Total, CreditRef{Type: "sales_order", ID: o.ID, Number: o.OrderNumber})
		if err != nil {
			return SalesOrder{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return SalesOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "sales_order", id, "cancel", map[string]any{"status": OrderCancelled})
	return cancelled, nil
}

// ── Invoices ──────────────────────────────────────────────────────────────────

func (s *salesService) ListInvoices(ctx context.Context, p ListParams) (Page[Invoice], error) {
	return s.invoices.List(ctx, p)
}

func (s *salesService) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.invoices.Get(ctx, id)
}

func (s *salesService) CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, error) {
	if in.OrderID == uuid.Nil {
		return Invoice{}, validationf("order_id is required")
	}
	date, err := dateOrToday(in.InvoiceDate)
	if err != nil {
		return Invoice{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.orders.With(tx).GetForUpdate(ctx, in.OrderID)
	if err != nil {
		return Invoice{}, err
	}
	if o.Status != OrderConfirmed {
		return Invoice{}, businessf("sales order %s cannot be invoiced: status is %s (must be %s)", o.OrderNumber, o.Status, OrderConfirmed)
	}
	number, err := NextDocumentNumber(ctx, tx, DocInvoice, date)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := s.invoices.With(tx).Insert(ctx, map[string]any{
		"invoice_number": number,
		"order_id":       o.ID,
		"customer_id":    o.CustomerID,
		"invoice_date":   date,
		"due_date":       date.AddDate(0, 0, invoiceTermDays),
		"total":          o.Total,
	})
	if errors.Is(err, ErrConflict) {
		return Invoice{}, conflictf("sales order %s is already invoiced", o.OrderNumber)
	}
	if err != nil {
		return Invoice{}, err
	}
	if _, err := s.orders.With(tx).Transition(ctx, o.ID, []string{OrderConfirmed}, OrderInvoiced, nil); err != nil {
		return Invoice{}, err
	}
	holds, err := s.credit.RecordInvoice(ctx, tx, o.CustomerID, inv.Total, CreditRef{Type: "invoice", ID: inv.ID, Number: inv.InvoiceNumber})
	if err != nil {
		return Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("invoice_number", inv.InvoiceNumber).Str("order_number", o.OrderNumber).Msg("invoice created")
	s.audit.Record(ctx, "invoice", inv.ID, "create", inv)
	s.credit.Announce(ctx, holds)
	return inv, nil
}

func (s *salesService) PayInvoice(ctx context.Context, id uuid.UUID, in PaymentInput) (Invoice, error) {
	if !in.Amount.IsPositive() {
		return Invoice{}, validationf("amount must be greater than zero")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invoice{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := s.invoices.With(tx).GetForUpdate(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == InvoicePaid {
		return Invoice{}, businessf("invoice %s is already paid", inv.InvoiceNumber)
	}
	outstanding := inv.Total.Sub(inv.AmountPaid)
	if in.Amount.GreaterThan(outstanding) {
		return Invoice{}, validationf("payment of %s exceeds the outstanding balance of %s", in.Amount.StringFixed(2), outstanding.StringFixed(2))
	}
	paid := inv.AmountPaid.Add(in.Amount)
	inv, err = s.invoices.With(tx).Update(ctx, id, map[string]any{
		"amount_paid": paid,
		"status":      InvoiceStatus(inv.Total, paid),
	})
	if err != nil {
		return Invoice{}, err
	}
	holds, err := s.credit.RecordPayment(ctx, tx, inv.CustomerID, in.Amount, CreditRef{Type: "invoice", ID: inv.ID, Number: inv.InvoiceNumber})
	if err != nil {
		return Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "invoice", id, "payment", map[string]any{"amount": in.Amount, "amount_paid": paid, "status": inv.Status})
	s.credit.Announce(ctx, holds)
	return inv, nil
}

// ── Quotations ────────────────────────────────────────────────────────────────

func (s *salesService) ListQuotations(ctx context.Context, p ListParams) (Page[Quotation], error) {
	return s.quotations.List(ctx, p)
}

func (s *salesService) GetQuotation(ctx context.Context, id uuid.UUID) (Quotation, error) {
	q, err := s.quotations.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	q.Lines, err = loadLines(ctx, s.pool, "quotation_lines", "quotation_id", id)
	return q, err
}

func (s *salesService) CreateQuotation(ctx context.Context, in QuotationInput) (Quotation, error) {
	if in.CustomerID == uuid.Nil {
		return Quotation{}, validationf("customer_id is required")
	}
	date, err := dateOrToday(in.QuotationDate)
	if err != nil {
		return Quotation{}, err
	}
	validUntil, err := optionalDate(in.ValidUntil)
	if err != nil {
		return Quotation{}, err
	}
	if validUntil != nil && validUntil.Before(date) {
		return Quotation{}, validationf("valid_until cannot be before quotation_date")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Quotation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.customers.With(tx).Get(ctx, in.CustomerID); err != nil {
		return Quotation{}, err
	}
	lines, total, err := priceLines(ctx, tx, in.Lines, false)
	if err != nil {
		return Quotation{}, err
	}
	number, err := NextDocumentNumber(ctx, tx, DocQuotation, date)
	if err != nil {
		return Quotation{}, err
	}
	q, err := s.quotations.With(tx).Insert(ctx, map[string]any{
		"quotation_number": number,
		"customer_id":      in.CustomerID,
		"quotation_date":   date,
		"valid_until":      validUntil,
		"total":            total,
		"created_by":       actorID(ctx),
	})
	if err != nil {
		return Quotation{}, err
	}
	if err := insertLines(ctx, tx, "quotation_lines", "quotation_id", q.ID, lines); err != nil {
		return Quotation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Quotation{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	q.Lines = lines
	s.audit.Record(ctx, "quotation", q.ID, "create", q)
	return q, nil
}

func (s *salesService) moveQuotation(ctx context.Context, id uuid.UUID, from, next, action string) (Quotation, error) {
	q, err := s.quotations.Transition(ctx, id, []string{from}, next, nil)
	if err != nil {
		return Quotation{}, err
	}
	s.audit.Record(ctx, "quotation", id, action, map[string]any{"status": next})
	return q, nil
}

func (s *salesService) SendQuotation(ctx context.Context, id uuid.UUID) (Quotation, error) {
	return s.moveQuotation(ctx, id, QuoteDraft, QuoteSent, "send")
}

func (s *salesService) AcceptQuotation(ctx context.Context, id uuid.UUID) (Quotation, error) {
	return s.moveQuotation(ctx, id, QuoteSent, QuoteAccepted, "accept")
}

func (s *salesService) RejectQuotation(ctx context.Context, id uuid.UUID) (Quotation, error) {
	return s.moveQuotation(ctx, id, QuoteSent, QuoteRejected, "reject")
}

func (s *salesService) ConvertQuotation(ctx context.Context, id uuid.UUID) (SalesOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SalesOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	q, err := s.quotations.With(tx).GetForUpdate(ctx, id)
	if err != nil {
		return SalesOrder{}, err
	}
	if q.Status != QuoteAccepted {
		return SalesOrder{}, businessf("quotation %s cannot move to %s: status is %s (must be %s)",
			q.QuotationNumber, QuoteConverted, q.Status, QuoteAccepted)
	}
	lines, err := loadLines(ctx, tx, "quotation_lines", "quotation_id", id)
	if err != nil {
		return SalesOrder{}, err
	}
	o, err := s.insertOrder(ctx, tx, SalesOrderInput{CustomerID: q.CustomerID, Lines: inputsFrom(lines)}, &q.ID)
	if err != nil {
		return SalesOrder{}, err
	}
	_, err = s.quotations.With(tx).Transition(ctx, id, []string{QuoteAccepted}, QuoteConverted, map[string]any{"converted_order_id": o.ID})
	if err != nil {
		return SalesOrder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return SalesOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("quotation_number", q.QuotationNumber).Str("order_number", o.OrderNumber).Msg("quotation converted")
	s.audit.Record(ctx, "quotation", id, "convert", map[string]any{"status": QuoteConverted, "order_id": o.ID})
	s.audit.Record(ctx, "sales_order", o.ID, "create", o)
	return o, nil
}
