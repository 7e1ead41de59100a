package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PurchaseOrderService manages the purchase order lifecycle.
type PurchaseOrderService interface {
	ListOrders(ctx context.Context, p ListParams) (Page[PurchaseOrder], error)
	CreateOrder(ctx context.Context, in PurchaseOrderInput) (PurchaseOrder, error)
	GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	// ApproveOrder moves Draft → Approved. Approving an approved order is a no-op.
	ApproveOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
	// ReceiveOrder books every line into the warehouse as a stock receipt and
	// moves Approved → Received.
	ReceiveOrder(ctx context.Context, id uuid.UUID, in ReceiveInput) (PurchaseOrder, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error)
}

type purchaseOrderService struct {
	pool   *pgxpool.Pool
	orders *Resource[PurchaseOrder]
	audit  AuditService
	log    zerolog.Logger
}

func NewPurchaseOrderService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) PurchaseOrderService {
	return &purchaseOrderService{
		pool: pool,
		orders: NewResource[PurchaseOrder](pool, ResourceSpec{
			Table: "purchase_orders", Entity: "purchase order",
			Filters: map[string]string{"status": "status", "vendor_id": "vendor_id"},
			Search:  []string{"po_number"},
			Touch:   true,
		}),
		audit: audit,
		log:   log,
	}
}

func (s *purchaseOrderService) ListOrders(ctx context.Context, p ListParams) (Page[PurchaseOrder], error) {
	return s.orders.List(ctx, p)
}

func (s *purchaseOrderService) GetOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return s.load(ctx, s.pool, id)
}

func (s *purchaseOrderService) load(ctx context.Context, q Querier, id uuid.UUID) (PurchaseOrder, error) {
	po, err := s.orders.With(q).Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = loadLines(ctx, q, "purchase_order_lines", "po_id", id)
	return po, err
}

func (s *purchaseOrderService) CreateOrder(ctx context.Context, in PurchaseOrderInput) (PurchaseOrder, error) {
	if in.VendorID == uuid.Nil {
		return PurchaseOrder{}, validationf("vendor_id is required")
	}
	date, err := dateOrToday(in.OrderDate)
	if err != nil {
		return PurchaseOrder{}, err
	}
	expected, err := optionalDate(in.ExpectedDate)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if expected != nil && expected.Before(date) {
		return PurchaseOrder{}, validationf("expected_date cannot be before order_date")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := vendorResource(tx).Get(ctx, in.VendorID); err != nil {
		return PurchaseOrder{}, err
	}
	lines, total, err := priceLines(ctx, tx, in.Lines, true)
	if err != nil {
		return PurchaseOrder{}, err
	}
	number, err := NextDocumentNumber(ctx, tx, DocPurchase, date)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po, err := s.orders.With(tx).Insert(ctx, map[string]any{
		"po_number":     number,
		"vendor_id":     in.VendorID,
		"order_date":    date,
		"expected_date": expected,
		"total":         total,
		"created_by":    actorID(ctx),
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := insertLines(ctx, tx, "purchase_order_lines", "po_id", po.ID, lines); err != nil {
		return PurchaseOrder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PurchaseOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	po.Lines = lines
	s.log.Info().Str("po_number", po.PONumber).Str("total", po.Total.StringFixed(2)).Msg("purchase order created")
	s.audit.Record(ctx, "purchase_order", po.ID, "create", po)
	return po, nil
}

func (s *purchaseOrderService) ApproveOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	orders := s.orders.With(tx)
	po, err := orders.GetForUpdate(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status == POApproved {
		return s.load(ctx, tx, id)
	}
	if po.Status != PODraft {
		return PurchaseOrder{}, businessf("purchase order %s cannot be approved: status is %s (must be %s)", po.PONumber, po.Status, PODraft)
	}
	po, err = orders.Update(ctx, id, map[string]any{
		"status":      POApproved,
		"approved_by": actorID(ctx),
		"approved_at": nowUTC(),
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = loadLines(ctx, tx, "purchase_order_lines", "po_id", id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PurchaseOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("po_number", po.PONumber).Msg("purchase order approved")
	s.audit.Record(ctx, "purchase_order", id, "approve", map[string]any{"status": POApproved})
	return po, nil
}

func (s *purchaseOrderService) ReceiveOrder(ctx context.Context, id uuid.UUID, in ReceiveInput) (PurchaseOrder, error) {
	if in.WarehouseID == uuid.Nil {
		return PurchaseOrder{}, validationf("warehouse_id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	po, err := s.orders.With(tx).Transition(ctx, id, []string{POApproved}, POReceived, map[string]any{"received_at": nowUTC()})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = loadLines(ctx, tx, "purchase_order_lines", "po_id", id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for _, l := range po.Lines {
		_, _, err := applyMovement(ctx, tx, StockMovementInput{
			ProductID:    l.ProductID,
			WarehouseID:  in.WarehouseID,
			MovementType: MovementReceipt,
			Quantity:     l.Quantity,
			Reference:    po.PONumber,
		})
		if err != nil {
			return PurchaseOrder{}, fmt.Errorf("line %d: %w", l.LineNo, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return PurchaseOrder{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("po_number", po.PONumber).Int("lines", len(po.Lines)).Msg("purchase order received")
	s.audit.Record(ctx, "purchase_order", id, "receive", map[string]any{"status": POReceived, "warehouse_id": in.WarehouseID})
	return po, nil
}

func (s *purchaseOrderService) CancelOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	po, err := s.orders.Transition(ctx, id, []string{PODraft}, POCancelled, nil)
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.audit.Record(ctx, "purchase_order", id, "cancel", map[string]any{"status": POCancelled})
	return po, nil
}
