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

// InventoryService manages products, warehouses and stock movements.
type InventoryService interface {
	ListProducts(ctx context.Context, p ListParams) (Page[Product], error)
	AllProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, in ProductInput) (Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	// ImportProducts upserts rows by sku. Rows without sku or name are skipped.
	ImportProducts(ctx context.Context, rows []ProductInput) (ImportResult, error)

	ListWarehouses(ctx context.Context, p ListParams) (Page[Warehouse], error)
	CreateWarehouse(ctx context.Context, in WarehouseInput) (Warehouse, error)
	GetWarehouse(ctx context.Context, id uuid.UUID) (Warehouse, error)

	ListMovements(ctx context.Context, p ListParams) (Page[StockMovement], error)
	// RecordMovement applies a movement to stock levels in one transaction.
	RecordMovement(ctx context.Context, in StockMovementInput) (StockMovement, error)
	ProductStock(ctx context.Context, productID uuid.UUID) (ProductStock, error)
}

type inventoryService struct {
	pool       *pgxpool.Pool
	products   *Resource[Product]
	warehouses *Resource[Warehouse]
	movements  *Resource[StockMovement]
	audit      AuditService
	log        zerolog.Logger
}

func NewInventoryService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) InventoryService {
	return &inventoryService{
		pool:       pool,
		products:   productResource(pool),
		warehouses: warehouseResource(pool),
		movements:  movementResource(pool),
		audit:      audit,
		log:        log,
	}
}

func warehouseResource(q Querier) *Resource[Warehouse] {
	return NewResource[Warehouse](q, ResourceSpec{
		Table: "warehouses", Entity: "warehouse",
		Filters: map[string]string{"status": "status"},
		Search:  []string{"code", "name"},
		OrderBy: "code",
	})
}

func movementResource(q Querier) *Resource[StockMovement] {
	return NewResource[StockMovement](q, ResourceSpec{
		Table: "stock_movements", Entity: "stock movement",
		Filters: map[string]string{
			"product_id":    "product_id",
			"warehouse_id":  "warehouse_id",
			"movement_type": "movement_type",
		},
		Search: []string{"reference"},
	})
}

func productResource(q Querier) *Resource[Product] {
	return NewResource[Product](q, ResourceSpec{
		Table: "products", Entity: "product",
		Filters:    map[string]string{"status": "status"},
		Search:     []string{"sku", "name"},
		Scope:      "status <> 'Deleted'",
		OrderBy:    "sku",
		SoftDelete: StatusDeleted,
		Touch:      true,
	})
}

// ── Products ──────────────────────────────────────────────────────────────────

func (s *inventoryService) ListProducts(ctx context.Context, p ListParams) (Page[Product], error) {
	return s.products.List(ctx, p)
}

func (s *inventoryService) AllProducts(ctx context.Context) ([]Product, error) {
	return s.products.All(ctx, ListParams{})
}

func (s *inventoryService) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.products.Get(ctx, id)
}

// productValues maps the set fields of in to columns, validating amounts.
func productValues(in ProductInput) (map[string]any, error) {
	values := map[string]any{}
	if v := strings.TrimSpace(in.SKU); v != "" {
		values["sku"] = v
	}
	if v := strings.TrimSpace(in.Name); v != "" {
		values["name"] = v
	}
	if in.Description != "" {
		values["description"] = in.Description
	}
	if v := strings.TrimSpace(in.Unit); v != "" {
		values["unit"] = v
	}
	for col, d := range map[string]*decimal.Decimal{"unit_price": in.UnitPrice, "cost": in.Cost, "reorder_level": in.ReorderLevel} {
		if d == nil {
			continue
		}
		if d.IsNegative() {
			return nil, validationf("%s cannot be negative", col)
		}
		values[col] = *d
	}
	if in.Status != "" {
		if err := oneOf("status", in.Status, StatusActive, "Inactive"); err != nil {
			return nil, err
		}
		values["status"] = in.Status
	}
	return values, nil
}

func (s *inventoryService) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := requireFields("sku", in.SKU, "name", in.Name); err != nil {
		return Product{}, err
	}
	values, err := productValues(in)
	if err != nil {
		return Product{}, err
	}
	p, err := s.products.Insert(ctx, values)
	if errors.Is(err, ErrConflict) {
		return Product{}, conflictf("product sku %s already exists", strings.TrimSpace(in.SKU))
	}
	if err != nil {
		return Product{}, err
	}
	s.audit.Record(ctx, "product", p.ID, "create", p)
	return p, nil
}

func (s *inventoryService) UpdateProduct(ctx context.Context, id uuid.UUID, in ProductInput) (Product, error) {
	values, err := productValues(in)
	if err != nil {
		return Product{}, err
	}
	p, err := s.products.Update(ctx, id, values)
	if errors.Is(err, ErrConflict) {
		return Product{}, conflictf("product sku %s already exists", strings.TrimSpace(in.SKU))
	}
	if err != nil {
		return Product{}, err
	}
	s.audit.Record(ctx, "product", id, "update", values)
	return p, nil
}

func (s *inventoryService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, "product", id, "delete", nil)
	return nil
}

func (s *inventoryService) ImportProducts(ctx context.Context, rows []ProductInput) (ImportResult, error) {
	res := ImportResult{}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, row := range rows {
		if strings.TrimSpace(row.SKU) == "" || strings.TrimSpace(row.Name) == "" {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: sku and name are required", i+2))
			continue
		}
		values, err := productValues(row)
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %s", i+2, err.Error()))
			continue
		}
		delete(values, "status")
		cols, args := sortedValues(values)
		sets := make([]string, 0, len(cols))
		for _, c := range cols {
			if c != "sku" {
				sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
			}
		}
		placeholders := make([]string, len(cols))
		for j := range cols {
			placeholders[j] = fmt.Sprintf("$%d", j+1)
		}
		// xmax = 0 only for freshly inserted tuples.
		var inserted bool
		err = tx.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO products (%s) VALUES (%s)
			ON CONFLICT (sku) DO UPDATE SET %s, status = 'Active', updated_at = now()
			RETURNING (xmax = 0)`,
			strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(sets, ", ")),
			args...,
		).Scan(&inserted)
		if err != nil {
			return res, mapDBError(err, "product")
		}
		if inserted {
			res.Created++
		} else {
			res.Updated++
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Int("created", res.Created).Int("updated", res.Updated).Int("skipped", res.Skipped).Msg("products imported")
	s.audit.Record(ctx, "product", "import", "import", res)
	return res, nil
}

// ── Warehouses ────────────────────────────────────────────────────────────────

func (s *inventoryService) ListWarehouses(ctx context.Context, p ListParams) (Page[Warehouse], error) {
	return s.warehouses.List(ctx, p)
}

func (s *inventoryService) GetWarehouse(ctx context.Context, id uuid.UUID) (Warehouse, error) {
	return s.warehouses.Get(ctx, id)
}

func (s *inventoryService) CreateWarehouse(ctx context.Context, in WarehouseInput) (Warehouse, error) {
	if err := requireFields("code", in.Code, "name", in.Name); err != nil {
		return Warehouse{}, err
	}
	w, err := s.warehouses.Insert(ctx, map[string]any{
		"code":    strings.TrimSpace(in.Code),
		"name":    strings.TrimSpace(in.Name),
		"address": in.Address,
	})
	if errors.Is(err, ErrConflict) {
		return Warehouse{}, conflictf("warehouse code %s already exists", in.Code)
	}
	if err != nil {
		return Warehouse{}, err
	}
	s.audit.Record(ctx, "warehouse", w.ID, "create", w)
	return w, nil
}

// ── Stock ─────────────────────────────────────────────────────────────────────

func (s *inventoryService) ListMovements(ctx context.Context, p ListParams) (Page[StockMovement], error) {
	return s.movements.List(ctx, p)
}

func validateMovement(in StockMovementInput) error {
	if in.ProductID == uuid.Nil || in.WarehouseID == uuid.Nil {
		return validationf("product_id and warehouse_id are required")
	}
	if err := oneOf("movement_type", in.MovementType, MovementReceipt, MovementIssue, MovementTransfer, MovementAdjustment); err != nil {
		return err
	}
	if in.MovementType == MovementAdjustment {
		if in.Quantity.IsNegative() {
			return validationf("adjustment quantity cannot be negative")
		}
	} else if !in.Quantity.IsPositive() {
		return validationf("quantity must be greater than zero")
	}
	if in.MovementType == MovementTransfer {
		if in.ToWarehouseID == nil || *in.ToWarehouseID == uuid.Nil {
			return validationf("to_warehouse_id is required for a transfer")
		}
		if *in.ToWarehouseID == in.WarehouseID {
			return validationf("to_warehouse_id must differ from warehouse_id")
		}
	}
	return nil
}

func (s *inventoryService) RecordMovement(ctx context.Context, in StockMovementInput) (StockMovement, error) {
	if err := validateMovement(in); err != nil {
		return StockMovement{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return StockMovement{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	m, sku, err := applyMovement(ctx, tx, in)
	if err != nil {
		return StockMovement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return StockMovement{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("sku", sku).Str("type", in.MovementType).Str("quantity", in.Quantity.String()).Msg("stock movement recorded")
	s.audit.Record(ctx, "stock_movement", m.ID, strings.ToLower(in.MovementType), m)
	return m, nil
}

// applyMovement updates stock levels for a validated movement and records it
// inside the caller's transaction. It returns the movement and the product sku.
func applyMovement(ctx context.Context, tx Querier, in StockMovementInput) (StockMovement, string, error) {
	product, err := productResource(tx).Get(ctx, in.ProductID)
	if err != nil {
		return StockMovement{}, "", err
	}
	if product.Status == StatusDeleted {
		return StockMovement{}, "", validationf("product %s is deleted", product.SKU)
	}
	warehouses := warehouseResource(tx)
	if _, err := warehouses.Get(ctx, in.WarehouseID); err != nil {
		return StockMovement{}, "", err
	}
	if in.ToWarehouseID != nil {
		if _, err := warehouses.Get(ctx, *in.ToWarehouseID); err != nil {
			return StockMovement{}, "", err
		}
	}

	switch in.MovementType {
	case MovementReceipt:
		qty, err := lockStock(ctx, tx, in.ProductID, in.WarehouseID)
		if err != nil {
			return StockMovement{}, "", err
		}
		if err := setStock(ctx, tx, in.ProductID, in.WarehouseID, qty.Add(in.Quantity)); err != nil {
			return StockMovement{}, "", err
		}
	case MovementIssue:
		qty, err := lockStock(ctx, tx, in.ProductID, in.WarehouseID)
		if err != nil {
			return StockMovement{}, "", err
		}
		if qty.LessThan(in.Quantity) {
			return StockMovement{}, "", businessf("insufficient stock for %s: available %s, requested %s", product.SKU, qty, in.Quantity)
		}
		if err := setStock(ctx, tx, in.ProductID, in.WarehouseID, qty.Sub(in.Quantity)); err != nil {
			return StockMovement{}, "", err
		}
	case MovementTransfer:
		to := *in.ToWarehouseID
		// Lock both rows in a stable order so concurrent opposite transfers cannot deadlock.
		first, second := in.WarehouseID, to
		if second.String() < first.String() {
			first, second = second, first
		}
		locked := map[uuid.UUID]decimal.Decimal{}
		for _, w := range []uuid.UUID{first, second} {
			qty, err := lockStock(ctx, tx, in.ProductID, w)
			if err != nil {
				return StockMovement{}, "", err
			}
			locked[w] = qty
		}
		if locked[in.WarehouseID].LessThan(in.Quantity) {
			return StockMovement{}, "", businessf("insufficient stock for %s: available %s, requested %s",
				product.SKU, locked[in.WarehouseID], in.Quantity)
		}
		if err := setStock(ctx, tx, in.ProductID, in.WarehouseID, locked[in.WarehouseID].Sub(in.Quantity)); err != nil {
			return StockMovement{}, "", err
		}
		if err := setStock(ctx, tx, in.ProductID, to, locked[to].Add(in.Quantity)); err != nil {
			return StockMovement{}, "", err
		}
	case MovementAdjustment:
		if _, err := lockStock(ctx, tx, in.ProductID, in.WarehouseID); err != nil {
			return StockMovement{}, "", err
		}
		if err := setStock(ctx, tx, in.ProductID, in.WarehouseID, in.Quantity); err != nil {
			return StockMovement{}, "", err
		}
	}

	m, err := movementResource(tx).Insert(ctx, map[string]any{
		"product_id":      in.ProductID,
		"warehouse_id":    in.WarehouseID,
		"to_warehouse_id": in.ToWarehouseID,
		"movement_type":   in.MovementType,
		"quantity":        in.Quantity,
		"reference":       in.Reference,
		"created_by":      actorID(ctx),
	})
	if err != nil {
		return StockMovement{}, "", err
	}
	return m, product.SKU, nil
}

// lockStock ensures a stock row exists and locks it for the caller's transaction.
func lockStock(ctx context.Context, tx Querier, productID, warehouseID uuid.UUID) (decimal.Decimal, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO stock_levels (product_id, warehouse_id, quantity) VALUES ($1, $2, 0)
		ON CONFLICT (product_id, warehouse_id) DO NOTHING`, productID, warehouseID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to initialise stock level: %w", err)
	}
	var qty decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT quantity FROM stock_levels
		WHERE product_id = $1 AND warehouse_id = $2
		FOR UPDATE`, productID, warehouseID).Scan(&qty)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock stock level: %w", err)
	}
	return qty, nil
}

func setStock(ctx context.Context, tx Querier, productID, warehouseID uuid.UUID, qty decimal.Decimal) error {
	_, err := tx.Exec(ctx, `
		UPDATE stock_levels SET quantity = $3, updated_at = now()
		WHERE product_id = $1 AND warehouse_id = $2`, productID, warehouseID, qty)
	if err != nil {
		return fmt.Errorf("failed to update stock level: %w", err)
	}
	return nil
}

func (s *inventoryService) ProductStock(ctx context.Context, productID uuid.UUID) (ProductStock, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return ProductStock{}, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.code, w.name, sl.quantity
		FROM stock_levels sl
		JOIN warehouses w ON w.id = sl.warehouse_id
		WHERE sl.product_id = $1
		ORDER BY w.code`, productID)
	if err != nil {
		return ProductStock{}, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	out := ProductStock{ProductID: p.ID, SKU: p.SKU, Name: p.Name, Warehouses: []WarehouseStock{}, Total: decimal.Zero}
	for rows.Next() {
		var ws WarehouseStock
		if err := rows.Scan(&ws.WarehouseID, &ws.WarehouseCode, &ws.WarehouseName, &ws.Quantity); err != nil {
			return ProductStock{}, fmt.Errorf("failed to scan stock level: %w", err)
		}
		out.Total = out.Total.Add(ws.Quantity)
		out.Warehouses = append(out.Warehouses, ws)
	}
	return out, rows.Err()
}
