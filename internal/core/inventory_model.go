package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MovementReceipt    = "Receipt"
	MovementIssue      = "Issue"
	MovementTransfer   = "Transfer"
	MovementAdjustment = "Adjustment"
)

type Product struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	SKU          string          `db:"sku" json:"sku"`
	Name         string          `db:"name" json:"name"`
	Description  string          `db:"description" json:"description"`
	Unit         string          `db:"unit" json:"unit"`
	UnitPrice    decimal.Decimal `db:"unit_price" json:"unit_price"`
	Cost         decimal.Decimal `db:"cost" json:"cost"`
	ReorderLevel decimal.Decimal `db:"reorder_level" json:"reorder_level"`
	Status       string          `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type ProductInput struct {
	SKU          string           `json:"sku"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Unit         string           `json:"unit"`
	UnitPrice    *decimal.Decimal `json:"unit_price"`
	Cost         *decimal.Decimal `json:"cost"`
	ReorderLevel *decimal.Decimal `json:"reorder_level"`
	Status       string           `json:"status"`
}

// ImportResult counts the outcome of a product spreadsheet import.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Warehouse represents a physical storage location.
type Warehouse struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type WarehouseInput struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type StockMovement struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ProductID     uuid.UUID       `db:"product_id" json:"product_id"`
	WarehouseID   uuid.UUID       `db:"warehouse_id" json:"warehouse_id"`
	ToWarehouseID *uuid.UUID      `db:"to_warehouse_id" json:"to_warehouse_id"`
	MovementType  string          `db:"movement_type" json:"movement_type"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	Reference     string          `db:"reference" json:"reference"`
	CreatedBy     *uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type StockMovementInput struct {
	ProductID     uuid.UUID       `json:"product_id"`
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	MovementType  string          `json:"movement_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	ToWarehouseID *uuid.UUID      `json:"to_warehouse_id"`
	Reference     string          `json:"reference"`
}

// WarehouseStock is the quantity of one product held in one warehouse.
type WarehouseStock struct {
	WarehouseID   uuid.UUID       `json:"warehouse_id"`
	WarehouseCode string          `json:"warehouse_code"`
	WarehouseName string          `json:"warehouse_name"`
	Quantity      decimal.Decimal `json:"quantity"`
}

type ProductStock struct {
	ProductID  uuid.UUID        `json:"product_id"`
	SKU        string           `json:"sku"`
	Name       string           `json:"name"`
	Warehouses []WarehouseStock `json:"warehouses"`
	Total      decimal.Decimal  `json:"total"`
}
