package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LineItem is one priced product line of a quotation, sales order or purchase order.
type LineItem struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	LineNo    int             `db:"line_no" json:"line_no"`
	ProductID uuid.UUID       `db:"product_id" json:"product_id"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal decimal.Decimal `db:"line_total" json:"line_total"`
}

type LineItemInput struct {
	ProductID uuid.UUID        `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

// priceLines validates the inputs against the product catalog and returns the
// priced lines and their total. When priceRequired is false a missing unit
// price defaults to the product's list price.
func priceLines(ctx context.Context, q Querier, in []LineItemInput, priceRequired bool) ([]LineItem, decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, decimal.Zero, validationf("at least one line is required")
	}
	products := productResource(q)
	lines := make([]LineItem, 0, len(in))
	total := decimal.Zero
	for i, l := range in {
		n := i + 1
		if l.ProductID == uuid.Nil {
			return nil, decimal.Zero, validationf("line %d: product_id is required", n)
		}
		if !l.Quantity.IsPositive() {
			return nil, decimal.Zero, validationf("line %d: quantity must be greater than zero", n)
		}
		p, err := products.Get(ctx, l.ProductID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("line %d: %w", n, err)
		}
		if p.Status == StatusDeleted {
			return nil, decimal.Zero, validationf("line %d: product %s is deleted", n, p.SKU)
		}
		price := p.UnitPrice
		if l.UnitPrice != nil {
			price = *l.UnitPrice
		} else if priceRequired {
			return nil, decimal.Zero, validationf("line %d: unit_price is required", n)
		}
		if price.IsNegative() {
			return nil, decimal.Zero, validationf("line %d: unit_price cannot be negative", n)
		}
		lt := round2(l.Quantity.Mul(price))
		lines = append(lines, LineItem{LineNo: n, ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price, LineTotal: lt})
		total = total.Add(lt)
	}
	return lines, total, nil
}

// insertLines writes lines under parentID and fills in their ids.
func insertLines(ctx context.Context, q Querier, table, parentCol string, parentID uuid.UUID, lines []LineItem) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (%s, line_no, product_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, table, parentCol)
	for i := range lines {
		l := &lines[i]
		if err := q.QueryRow(ctx, sql, parentID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice, l.LineTotal).Scan(&l.ID); err != nil {
			return mapDBError(err, "line")
		}
	}
	return nil
}

func loadLines(ctx context.Context, q Querier, table, parentCol string, parentID uuid.UUID) ([]LineItem, error) {
	rows, err := q.Query(ctx, fmt.Sprintf(`
		SELECT id, line_no, product_id, quantity, unit_price, line_total
		FROM %s WHERE %s = $1 ORDER BY line_no`, table, parentCol), parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowToStructByName[LineItem])
	if err != nil {
		return nil, fmt.Errorf("failed to scan lines: %w", err)
	}
	return lines, nil
}

// inputsFrom copies priced lines back into inputs, keeping their prices.
func inputsFrom(lines []LineItem) []LineItemInput {
	out := make([]LineItemInput, len(lines))
	for i, l := range lines {
		price := l.UnitPrice
		out[i] = LineItemInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: &price}
	}
	return out
}
