package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Notification struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Title     string     `db:"title" json:"title"`
	Message   string     `db:"message" json:"message"`
	Type      string     `db:"notification_type" json:"type"`
	Link      string     `db:"link" json:"link"`
	IsRead    bool       `db:"is_read" json:"is_read"`
	ReadAt    *time.Time `db:"read_at" json:"read_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// NotificationInput describes one message fanned out to a set of users.
type NotificationInput struct {
	UserIDs []uuid.UUID
	Title   string
	Message string
	Type    string
	Link    string
}

// NotificationPublisher forwards stored notifications to an external bus.
// Implementations must not block the caller on delivery failures.
type NotificationPublisher interface {
	Publish(ctx context.Context, n Notification)
}

type NotificationService interface {
	// Notify stores one notification per recipient and publishes each. Failures are
	// logged and never returned, so callers can notify after committing their own work.
	Notify(ctx context.Context, in NotificationInput)
	// NotifyRole notifies every active user holding role.
	NotifyRole(ctx context.Context, role string, in NotificationInput)
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, p ListParams) (Page[Notification], error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	pool      *pgxpool.Pool
	items     *Resource[Notification]
	publisher NotificationPublisher
	log       zerolog.Logger
}

// NewNotificationService builds the service. publisher may be nil.
func NewNotificationService(pool *pgxpool.Pool, publisher NotificationPublisher, log zerolog.Logger) NotificationService {
	return &notificationService{
		pool: pool,
		items: NewResource[Notification](pool, ResourceSpec{
			Table:   "notifications",
			Entity:  "notification",
			Filters: map[string]string{"type": "notification_type"},
		}),
		publisher: publisher,
		log:       log,
	}
}

func (s *notificationService) Notify(ctx context.Context, in NotificationInput) {
	if in.Type == "" {
		in.Type = "info"
	}
	for _, uid := range in.UserIDs {
		n, err := s.items.Insert(ctx, map[string]any{
			"user_id":           uid,
			"title":             in.Title,
			"message":           in.Message,
			"notification_type": in.Type,
			"link":              in.Link,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", uid.String()).Str("type", in.Type).
				Msg("notification: failed to store (non-fatal)")
			continue
		}
		if s.publisher != nil {
			s.publisher.Publish(ctx, n)
		}
	}
}

func (s *notificationService) NotifyRole(ctx context.Context, role string, in NotificationInput) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM users WHERE role = $1 AND status = $2`, role, UserStatusActive)
	if err != nil {
		s.log.Warn().Err(err).Str("role", role).Msg("notification: failed to resolve recipients")
		return
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			s.log.Warn().Err(err).Msg("notification: failed to scan recipient")
			return
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		s.log.Warn().Err(err).Msg("notification: recipient query failed")
		return
	}
	in.UserIDs = append(in.UserIDs, ids...)
	s.Notify(ctx, in)
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, p ListParams) (Page[Notification], error) {
	p = p.With("user_id", userID)
	if unreadOnly {
		p = p.With("is_read", false)
	}
	return s.items.List(ctx, p)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true, read_at = COALESCE(read_at, now())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("notification %s not found", id)
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true, read_at = now()
		WHERE user_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}
