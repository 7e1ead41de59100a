package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	EventDraft     = "Draft"
	EventPublished = "Published"
	EventAwarded   = "Awarded"

	BidSubmitted = "Submitted"
	BidAccepted  = "Accepted"
	BidRejected  = "Rejected"
)

type SourcingEvent struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	EventNumber  string     `db:"event_number" json:"event_number"`
	Title        string     `db:"title" json:"title"`
	Description  string     `db:"description" json:"description"`
	EventType    string     `db:"event_type" json:"event_type"`
	Status       string     `db:"status" json:"status"`
	ClosesAt     *time.Time `db:"closes_at" json:"closes_at"`
	AwardedBidID *uuid.UUID `db:"awarded_bid_id" json:"awarded_bid_id"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type SourcingEventInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	EventType   string     `json:"event_type"`
	ClosesAt    *time.Time `json:"closes_at"`
}

type Bid struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	EventID   uuid.UUID       `db:"event_id" json:"event_id"`
	VendorID  uuid.UUID       `db:"vendor_id" json:"vendor_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Notes     string          `db:"notes" json:"notes"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type BidInput struct {
	EventID  uuid.UUID       `json:"event_id"`
	VendorID uuid.UUID       `json:"vendor_id"`
	Amount   decimal.Decimal `json:"amount"`
	Notes    string          `json:"notes"`
}

type SourcingService interface {
	ListEvents(ctx context.Context, p ListParams) (Page[SourcingEvent], error)
	CreateEvent(ctx context.Context, in SourcingEventInput) (SourcingEvent, error)
	GetEvent(ctx context.Context, id uuid.UUID) (SourcingEvent, error)
	PublishEvent(ctx context.Context, id uuid.UUID) (SourcingEvent, error)

	ListBids(ctx context.Context, p ListParams) (Page[Bid], error)
	PlaceBid(ctx context.Context, in BidInput) (Bid, error)
	// AcceptBid awards the bid's event to it and rejects every competing bid.
	AcceptBid(ctx context.Context, id uuid.UUID) (Bid, error)
}

type sourcingService struct {
	pool   *pgxpool.Pool
	events *Resource[SourcingEvent]
	bids   *Resource[Bid]
	audit  AuditService
	log    zerolog.Logger
}

func NewSourcingService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) SourcingService {
	return &sourcingService{
		pool: pool,
		events: NewResource[SourcingEvent](pool, ResourceSpec{
			Table: "sourcing_events", Entity: "sourcing event",
			Filters: map[string]string{"status": "status", "event_type": "event_type"},
			Search:  []string{"event_number", "title"},
			Touch:   true,
		}),
		bids: NewResource[Bid](pool, ResourceSpec{
			Table: "bids", Entity: "bid",
			Filters: map[string]string{"event_id": "event_id", "vendor_id": "vendor_id", "status": "status"},
			OrderBy: "amount",
		}),
		audit: audit,
		log:   log,
	}
}

func (s *sourcingService) ListEvents(ctx context.Context, p ListParams) (Page[SourcingEvent], error) {
	return s.events.List(ctx, p)
}

func (s *sourcingService) GetEvent(ctx context.Context, id uuid.UUID) (SourcingEvent, error) {
	return s.events.Get(ctx, id)
}

func (s *sourcingService) CreateEvent(ctx context.Context, in SourcingEventInput) (SourcingEvent, error) {
	if err := requireFields("title", in.Title, "event_type", in.EventType); err != nil {
		return SourcingEvent{}, err
	}
	if err := oneOf("event_type", in.EventType, "RFQ", "RFP", "RFI"); err != nil {
		return SourcingEvent{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SourcingEvent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := NextDocumentNumber(ctx, tx, DocSourcing, todayUTC())
	if err != nil {
		return SourcingEvent{}, err
	}
	ev, err := s.events.With(tx).Insert(ctx, map[string]any{
		"event_number": number,
		"title":        strings.TrimSpace(in.Title),
		"description":  in.Description,
		"event_type":   in.EventType,
		"closes_at":    in.ClosesAt,
	})
	if err != nil {
		return SourcingEvent{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return SourcingEvent{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "sourcing_event", ev.ID, "create", ev)
	return ev, nil
}

func (s *sourcingService) PublishEvent(ctx context.Context, id uuid.UUID) (SourcingEvent, error) {
	ev, err := s.events.Transition(ctx, id, []string{EventDraft}, EventPublished, nil)
	if err != nil {
		return SourcingEvent{}, err
	}
	s.log.Info().Str("event", ev.EventNumber).Msg("sourcing event published")
	s.audit.Record(ctx, "sourcing_event", id, "publish", nil)
	return ev, nil
}

func (s *sourcingService) ListBids(ctx context.Context, p ListParams) (Page[Bid], error) {
	return s.bids.List(ctx, p)
}

func (s *sourcingService) PlaceBid(ctx context.Context, in BidInput) (Bid, error) {
	if in.EventID == uuid.Nil || in.VendorID == uuid.Nil {
		return Bid{}, validationf("event_id and vendor_id are required")
	}
	if !in.Amount.IsPositive() {
		return Bid{}, validationf("amount must be greater than zero")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Bid{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The lock keeps a bid from landing after a concurrent award.
	ev, err := s.events.With(tx).GetForUpdate(ctx, in.EventID)
	if err != nil {
		return Bid{}, err
	}
	if ev.Status != EventPublished {
		return Bid{}, businessf("sourcing event %s is %s; bids are accepted only while it is %s", ev.EventNumber, ev.Status, EventPublished)
	}
	b, err := s.bids.With(tx).Insert(ctx, map[string]any{
		"event_id":  in.EventID,
		"vendor_id": in.VendorID,
		"amount":    in.Amount,
		"notes":     in.Notes,
	})
	if err != nil {
		return Bid{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Bid{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "bid", b.ID, "create", b)
	return b, nil
}

func (s *sourcingService) AcceptBid(ctx context.Context, id uuid.UUID) (Bid, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Bid{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bids := s.bids.With(tx)
	current, err := bids.Get(ctx, id)
	if err != nil {
		return Bid{}, err
	}
	ev, err := s.events.With(tx).GetForUpdate(ctx, current.EventID)
	if err != nil {
		return Bid{}, err
	}
	if ev.Status != EventPublished {
		return Bid{}, businessf("sourcing event %s is %s; only %s events can be awarded", ev.EventNumber, ev.Status, EventPublished)
	}
	accepted, err := bids.Transition(ctx, id, []string{BidSubmitted}, BidAccepted, nil)
	if err != nil {
		return Bid{}, err
	}
	tag, err := tx.Exec(ctx,
		`UPDATE bids SET status = $1 WHERE event_id = $2 AND id <> $3 AND status = $4`,
		BidRejected, ev.ID, id, BidSubmitted)
	if err != nil {
		return Bid{}, fmt.Errorf("failed to reject competing bids: %w", err)
	}
	if _, err := s.events.With(tx).Transition(ctx, ev.ID, []string{EventPublished}, EventAwarded,
		map[string]any{"awarded_bid_id": id}); err != nil {
		return Bid{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Bid{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info().Str("event", ev.EventNumber).Str("bid", id.String()).
		Int64("rejected", tag.RowsAffected()).Msg("sourcing event awarded")
	s.audit.Record(ctx, "bid", id, "accept", map[string]any{"event_id": ev.ID, "amount": accepted.Amount})
	s.audit.Record(ctx, "sourcing_event", ev.ID, "award", map[string]any{"awarded_bid_id": id})
	return accepted, nil
}
