package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RiskLow      = "Low"
	RiskMedium   = "Medium"
	RiskHigh     = "High"
	RiskCritical = "Critical"

	CreditApproved = "Approved"
	CreditWarning  = "Warning"
	CreditBlocked  = "Blocked"

	HoldActive   = "Active"
	HoldReleased = "Released"

	HoldLimitExceeded = "CreditLimitExceeded"
	HoldManual        = "ManualHold"

	TxnOrderPlaced        = "OrderPlaced"
	TxnOrderCancelled     = "OrderCancelled"
	TxnInvoiceCreated     = "InvoiceCreated"
	TxnInvoicePaid        = "InvoicePaid"
	TxnCreditLimitChanged = "CreditLimitChanged"
	TxnHoldPlaced         = "CreditHoldPlaced"
	TxnHoldReleased       = "CreditHoldReleased"
)

type CreditProfile struct {
	ID                   uuid.UUID       `db:"id" json:"id"`
	CustomerID           uuid.UUID       `db:"customer_id" json:"customer_id"`
	CreditLimit          decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	CreditUsed           decimal.Decimal `db:"credit_used" json:"credit_used"`
	AvailableCredit      decimal.Decimal `db:"available_credit" json:"available_credit"`
	OutstandingInvoices  decimal.Decimal `db:"outstanding_invoices" json:"outstanding_invoices"`
	PendingOrders        decimal.Decimal `db:"pending_orders" json:"pending_orders"`
	OverdueAmount        decimal.Decimal `db:"overdue_amount" json:"overdue_amount"`
	OverdueDaysAvg       int             `db:"overdue_days_avg" json:"overdue_days_avg"`
	CreditScore          *int            `db:"credit_score" json:"credit_score"`
	RiskLevel            string          `db:"risk_level" json:"risk_level"`
	AutoHoldEnabled      bool            `db:"auto_hold_enabled" json:"auto_hold_enabled"`
	HoldThresholdPercent int             `db:"hold_threshold_percent" json:"hold_threshold_percent"`
	Status               string          `db:"status" json:"status"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

type CreditTransaction struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	ProfileID          uuid.UUID       `db:"profile_id" json:"profile_id"`
	CustomerID         uuid.UUID       `db:"customer_id" json:"customer_id"`
	TransactionType    string          `db:"transaction_type" json:"transaction_type"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	PreviousCreditUsed decimal.Decimal `db:"previous_credit_used" json:"previous_credit_used"`
	NewCreditUsed      decimal.Decimal `db:"new_credit_used" json:"new_credit_used"`
	ReferenceType      string          `db:"reference_type" json:"reference_type"`
	ReferenceID        *uuid.UUID      `db:"reference_id" json:"reference_id"`
	ReferenceNumber    string          `db:"reference_number" json:"reference_number"`
	Description        string          `db:"description" json:"description"`
	CreatedBy          *uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

type CreditHold struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ProfileID        uuid.UUID       `db:"profile_id" json:"profile_id"`
	CustomerID       uuid.UUID       `db:"customer_id" json:"customer_id"`
	HoldType         string          `db:"hold_type" json:"hold_type"`
	Reason           string          `db:"reason" json:"reason"`
	AmountOverLimit  decimal.Decimal `db:"amount_over_limit" json:"amount_over_limit"`
	RelatedOrderID   *uuid.UUID      `db:"related_order_id" json:"related_order_id"`
	RelatedInvoiceID *uuid.UUID      `db:"related_invoice_id" json:"related_invoice_id"`
	Status           string          `db:"status" json:"status"`
	PlacedBy         *uuid.UUID      `db:"placed_by" json:"placed_by"`
	PlacedAt         time.Time       `db:"placed_at" json:"placed_at"`
	ReleasedBy       *uuid.UUID      `db:"released_by" json:"released_by"`
	ReleasedAt       *time.Time      `db:"released_at" json:"released_at"`
	OverrideReason   *string         `db:"override_reason" json:"override_reason"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type CreditLimitChange struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ProfileID     uuid.UUID       `db:"profile_id" json:"profile_id"`
	CustomerID    uuid.UUID       `db:"customer_id" json:"customer_id"`
	PreviousLimit decimal.Decimal `db:"previous_limit" json:"previous_limit"`
	NewLimit      decimal.Decimal `db:"new_limit" json:"new_limit"`
	ChangeReason  string          `db:"change_reason" json:"change_reason"`
	CreatedBy     *uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type CreditAlert struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	ProfileID      uuid.UUID       `db:"profile_id" json:"profile_id"`
	CustomerID     uuid.UUID       `db:"customer_id" json:"customer_id"`
	AlertType      string          `db:"alert_type" json:"alert_type"`
	Severity       string          `db:"severity" json:"severity"`
	Message        string          `db:"message" json:"message"`
	ThresholdValue decimal.Decimal `db:"threshold_value" json:"threshold_value"`
	ActualValue    decimal.Decimal `db:"actual_value" json:"actual_value"`
	IsRead         bool            `db:"is_read" json:"is_read"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type CreditCheckInput struct {
	CustomerID  uuid.UUID       `json:"customer_id"`
	OrderID     *uuid.UUID      `json:"order_id"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

type CreditCheckResult struct {
	CustomerID         uuid.UUID       `json:"customer_id"`
	Result             string          `json:"result"`
	CreditLimit        decimal.Decimal `json:"credit_limit"`
	CreditUsed         decimal.Decimal `json:"credit_used"`
	AvailableCredit    decimal.Decimal `json:"available_credit"`
	RequestedAmount    decimal.Decimal `json:"requested_amount"`
	ProjectedAvailable decimal.Decimal `json:"projected_available"`
	HoldID             *uuid.UUID      `json:"hold_id"`
	Reason             string          `json:"reason,omitempty"`
	Warnings           []string        `json:"warnings"`
	CheckedAt          time.Time       `json:"checked_at"`
}

type CreditLimitInput struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Reason      string          `json:"reason"`
}

type CreditSummary struct {
	TotalCustomers        int64           `json:"total_customers"`
	TotalCreditLimit      decimal.Decimal `json:"total_credit_limit"`
	TotalCreditUsed       decimal.Decimal `json:"total_credit_used"`
	TotalAvailableCredit  decimal.Decimal `json:"total_available_credit"`
	TotalOverdue          decimal.Decimal `json:"total_overdue"`
	CustomersOnHold       int64           `json:"customers_on_hold"`
	HighRiskCustomers     int64           `json:"high_risk_customers"`
	AvgUtilizationPercent decimal.Decimal `json:"avg_utilization_percent"`
}

// CreditRef identifies the sales document behind a credit movement.
type CreditRef struct {
	Type   string
	ID     uuid.UUID
	Number string
}
