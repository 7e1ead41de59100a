package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purchase order lifecycle:
//
//	Draft → Approved → Received
//	Draft → Cancelled
const (
	PODraft     = "Draft"
	POApproved  = "Approved"
	POReceived  = "Received"
	POCancelled = "Cancelled"
)

// PurchaseOrder represents a purchase order header.
type PurchaseOrder struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	PONumber     string          `db:"po_number" json:"po_number"`
	VendorID     uuid.UUID       `db:"vendor_id" json:"vendor_id"`
	OrderDate    time.Time       `db:"order_date" json:"order_date"`
	ExpectedDate *time.Time      `db:"expected_date" json:"expected_date"`
	Status       string          `db:"status" json:"status"`
	Total        decimal.Decimal `db:"total" json:"total"`
	ApprovedBy   *uuid.UUID      `db:"approved_by" json:"approved_by"`
	ApprovedAt   *time.Time      `db:"approved_at" json:"approved_at"`
	ReceivedAt   *time.Time      `db:"received_at" json:"received_at"`
	CreatedBy    *uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	Lines        []LineItem      `db:"-" json:"lines"`
}

// PurchaseOrderInput holds the fields for a new purchase order. Every line
// needs an explicit unit price.
type PurchaseOrderInput struct {
	VendorID     uuid.UUID       `json:"vendor_id"`
	OrderDate    string          `json:"order_date"`
	ExpectedDate string          `json:"expected_date"`
	Lines        []LineItemInput `json:"lines"`
}

// ReceiveInput names the warehouse that takes delivery of an approved order.
type ReceiveInput struct {
	WarehouseID uuid.UUID `json:"warehouse_id"`
}
