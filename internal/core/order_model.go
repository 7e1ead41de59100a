package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sales order lifecycle:
//
//	Draft → Confirmed → Invoiced
//	Draft | Confirmed → Cancelled
const (
	OrderDraft     = "Draft"
	OrderConfirmed = "Confirmed"
	OrderInvoiced  = "Invoiced"
	OrderCancelled = "Cancelled"

	InvoiceOpen          = "Open"
	InvoicePartiallyPaid = "PartiallyPaid"
	InvoicePaid          = "Paid"

	QuoteDraft     = "Draft"
	QuoteSent      = "Sent"
	QuoteAccepted  = "Accepted"
	QuoteRejected  = "Rejected"
	QuoteConverted = "Converted"
)

// invoiceTermDays is the due-date offset applied to every invoice.
const invoiceTermDays = 30

type Customer struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Code        string          `db:"code" json:"code"`
	Name        string          `db:"name" json:"name"`
	Email       string          `db:"email" json:"email"`
	Phone       string          `db:"phone" json:"phone"`
	Address     string          `db:"address" json:"address"`
	CreditLimit decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

type CustomerInput struct {
	Code        string           `json:"code"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	Address     string           `json:"address"`
	CreditLimit *decimal.Decimal `json:"credit_limit"`
}

type SalesOrder struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	OrderNumber string          `db:"order_number" json:"order_number"`
	CustomerID  uuid.UUID       `db:"customer_id" json:"customer_id"`
	OrderDate   time.Time       `db:"order_date" json:"order_date"`
	Status      string          `db:"status" json:"status"`
	Total       decimal.Decimal `db:"total" json:"total"`
	QuotationID *uuid.UUID      `db:"quotation_id" json:"quotation_id"`
	CreatedBy   *uuid.UUID      `db:"created_by" json:"created_by"`
	ConfirmedAt *time.Time      `db:"confirmed_at" json:"confirmed_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Lines       []LineItem      `db:"-" json:"lines"`
}

type SalesOrderInput struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	OrderDate  string          `json:"order_date"`
	Lines      []LineItemInput `json:"lines"`
}

type Invoice struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	InvoiceNumber string          `db:"invoice_number" json:"invoice_number"`
	OrderID       uuid.UUID       `db:"order_id" json:"order_id"`
	CustomerID    uuid.UUID       `db:"customer_id" json:"customer_id"`
	InvoiceDate   time.Time       `db:"invoice_date" json:"invoice_date"`
	DueDate       time.Time       `db:"due_date" json:"due_date"`
	Total         decimal.Decimal `db:"total" json:"total"`
	AmountPaid    decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

type InvoiceInput struct {
	OrderID     uuid.UUID `json:"order_id"`
	InvoiceDate string    `json:"invoice_date"`
}

type PaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
}

type Quotation struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	QuotationNumber  string          `db:"quotation_number" json:"quotation_number"`
	CustomerID       uuid.UUID       `db:"customer_id" json:"customer_id"`
	QuotationDate    time.Time       `db:"quotation_date" json:"quotation_date"`
	ValidUntil       *time.Time      `db:"valid_until" json:"valid_until"`
	Status           string          `db:"status" json:"status"`
	Total            decimal.Decimal `db:"total" json:"total"`
	ConvertedOrderID *uuid.UUID      `db:"converted_order_id" json:"converted_order_id"`
	CreatedBy        *uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	Lines            []LineItem      `db:"-" json:"lines"`
}

type QuotationInput struct {
	CustomerID    uuid.UUID       `json:"customer_id"`
	QuotationDate string          `json:"quotation_date"`
	ValidUntil    string          `json:"valid_until"`
	Lines         []LineItemInput `json:"lines"`
}

// InvoiceStatus derives the payment status of an invoice from amounts.
func InvoiceStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(total):
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartiallyPaid
	default:
		return InvoiceOpen
	}
}
