package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// AuditLog is one row of the audit trail.
type AuditLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Action     string          `db:"action" json:"action"`
	UserID     *uuid.UUID      `db:"user_id" json:"user_id"`
	Changes    json.RawMessage `db:"changes" json:"changes"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// AuditService appends to and reads the audit trail.
type AuditService interface {
	// Record writes an audit row for the actor in ctx. Failures are logged, never returned.
	Record(ctx context.Context, entityType string, entityID any, action string, changes any)
	List(ctx context.Context, p ListParams) (Page[AuditLog], error)
}

type auditService struct {
	pool *pgxpool.Pool
	logs *Resource[AuditLog]
	log  zerolog.Logger
}

func NewAuditService(pool *pgxpool.Pool, log zerolog.Logger) AuditService {
	return &auditService{
		pool: pool,
		logs: NewResource[AuditLog](pool, ResourceSpec{
			Table:  "audit_logs",
			Entity: "audit log",
			Filters: map[string]string{
				"entity_type": "entity_type",
				"entity_id":   "entity_id",
				"user_id":     "user_id",
				"action":      "action",
			},
		}),
		log: log,
	}
}

func (s *auditService) Record(ctx context.Context, entityType string, entityID any, action string, changes any) {
	if changes == nil {
		changes = map[string]any{}
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		s.log.Warn().Err(err).Str("entity_type", entityType).Str("action", action).Msg("audit: failed to encode changes")
		return
	}
	id := fmt.Sprint(entityID)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (entity_type, entity_id, action, user_id, changes)
		VALUES ($1, $2, $3, $4, $5)`,
		entityType, id, action, actorID(ctx), payload,
	)
	if err != nil {
		s.log.Warn().Err(err).
			Str("entity_type", entityType).
			Str("entity_id", id).
			Str("action", action).
			Msg("audit: failed to write log (non-fatal)")
	}
}

func (s *auditService) List(ctx context.Context, p ListParams) (Page[AuditLog], error) {
	return s.logs.List(ctx, p)
}
