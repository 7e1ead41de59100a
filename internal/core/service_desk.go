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
	TicketOpen       = "Open"
	TicketInProgress = "InProgress"
	TicketResolved   = "Resolved"
	TicketClosed     = "Closed"
)

var ticketPriorities = []string{"Low", "Medium", "High", "Critical"}

// ticketTransitions lists, for each target status, the statuses it may be reached from.
var ticketTransitions = map[string][]string{
	TicketInProgress: {TicketOpen},
	TicketResolved:   {TicketInProgress},
	TicketClosed:     {TicketResolved},
	TicketOpen:       {TicketResolved, TicketClosed},
}

type Ticket struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TicketNumber string     `db:"ticket_number" json:"ticket_number"`
	Subject      string     `db:"subject" json:"subject"`
	Description  string     `db:"description" json:"description"`
	Priority     string     `db:"priority" json:"priority"`
	Status       string     `db:"status" json:"status"`
	CustomerID   *uuid.UUID `db:"customer_id" json:"customer_id"`
	AssignedTo   *uuid.UUID `db:"assigned_to" json:"assigned_to"`
	CreatedBy    *uuid.UUID `db:"created_by" json:"created_by"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

type TicketInput struct {
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	CustomerID  *uuid.UUID `json:"customer_id"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
}

type TicketStats struct {
	Total              int64            `json:"total"`
	ByStatus           map[string]int64 `json:"by_status"`
	ByPriority         map[string]int64 `json:"by_priority"`
	AvgResolutionHours decimal.Decimal  `json:"avg_resolution_hours"`
}

type Article struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Category  string    `db:"category" json:"category"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ArticleInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Status   string `json:"status"`
}

// ServiceDeskService manages support tickets and the knowledge base.
type ServiceDeskService interface {
	ListTickets(ctx context.Context, p ListParams) (Page[Ticket], error)
	CreateTicket(ctx context.Context, in TicketInput) (Ticket, error)
	GetTicket(ctx context.Context, id uuid.UUID) (Ticket, error)
	SetTicketStatus(ctx context.Context, id uuid.UUID, status string) (Ticket, error)
	TicketStats(ctx context.Context) (TicketStats, error)

	ListArticles(ctx context.Context, p ListParams) (Page[Article], error)
	CreateArticle(ctx context.Context, in ArticleInput) (Article, error)
	GetArticle(ctx context.Context, id uuid.UUID) (Article, error)
	SearchArticles(ctx context.Context, q string, p ListParams) (Page[Article], error)
}

type serviceDeskService struct {
	pool     *pgxpool.Pool
	tickets  *Resource[Ticket]
	articles *Resource[Article]
	audit    AuditService
	log      zerolog.Logger
}

func NewServiceDeskService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) ServiceDeskService {
	return &serviceDeskService{
		pool: pool,
		tickets: NewResource[Ticket](pool, ResourceSpec{
			Table: "tickets", Entity: "ticket",
			Filters: map[string]string{"status": "status", "priority": "priority", "assigned_to": "assigned_to"},
			Search:  []string{"ticket_number", "subject"},
			Touch:   true,
		}),
		articles: NewResource[Article](pool, ResourceSpec{
			Table: "kb_articles", Entity: "article",
			Filters: map[string]string{"status": "status", "category": "category"},
			Search:  []string{"title", "content"},
			OrderBy: "title",
			Touch:   true,
		}),
		audit: audit,
		log:   log,
	}
}

func (s *serviceDeskService) ListTickets(ctx context.Context, p ListParams) (Page[Ticket], error) {
	return s.tickets.List(ctx, p)
}

func (s *serviceDeskService) GetTicket(ctx context.Context, id uuid.UUID) (Ticket, error) {
	return s.tickets.Get(ctx, id)
}

func (s *serviceDeskService) CreateTicket(ctx context.Context, in TicketInput) (Ticket, error) {
	if err := requireFields("subject", in.Subject); err != nil {
		return Ticket{}, err
	}
	if in.Priority == "" {
		in.Priority = "Medium"
	}
	if err := oneOf("priority", in.Priority, ticketPriorities...); err != nil {
		return Ticket{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := NextDocumentNumber(ctx, tx, DocTicket, todayUTC())
	if err != nil {
		return Ticket{}, err
	}
	t, err := s.tickets.With(tx).Insert(ctx, map[string]any{
		"ticket_number": number,
		"subject":       strings.TrimSpace(in.Subject),
		"description":   in.Description,
		"priority":      in.Priority,
		"customer_id":   in.CustomerID,
		"assigned_to":   in.AssignedTo,
		"created_by":    actorID(ctx),
	})
	if err != nil {
		return Ticket{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Ticket{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.audit.Record(ctx, "ticket", t.ID, "create", t)
	return t, nil
}

func (s *serviceDeskService) SetTicketStatus(ctx context.Context, id uuid.UUID, status string) (Ticket, error) {
	from, ok := ticketTransitions[status]
	if !ok {
		return Ticket{}, validationf("invalid status %q: must be one of %s, %s, %s or %s",
			status, TicketOpen, TicketInProgress, TicketResolved, TicketClosed)
	}
	extra := map[string]any{}
	switch status {
	case TicketResolved:
		extra["resolved_at"] = nowUTC()
	case TicketOpen:
		extra["resolved_at"] = nil
	}
	t, err := s.tickets.Transition(ctx, id, from, status, extra)
	if err != nil {
		return Ticket{}, err
	}
	s.audit.Record(ctx, "ticket", id, "status", map[string]any{"status": status})
	return t, nil
}

func (s *serviceDeskService) TicketStats(ctx context.Context) (TicketStats, error) {
	st := TicketStats{ByStatus: map[string]int64{}, ByPriority: map[string]int64{}}
	rows, err := s.pool.Query(ctx, `SELECT status, priority, count(*) FROM tickets GROUP BY status, priority`)
	if err != nil {
		return TicketStats{}, fmt.Errorf("failed to count tickets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, priority string
		var n int64
		if err := rows.Scan(&status, &priority, &n); err != nil {
			return TicketStats{}, fmt.Errorf("failed to scan ticket counts: %w", err)
		}
		st.ByStatus[status] += n
		st.ByPriority[priority] += n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return TicketStats{}, err
	}
	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM resolved_at - created_at) / 3600), 0)::numeric(18,2)
		FROM tickets WHERE resolved_at IS NOT NULL`).Scan(&st.AvgResolutionHours)
	if err != nil {
		return TicketStats{}, fmt.Errorf("failed to average resolution time: %w", err)
	}
	return st, nil
}

func (s *serviceDeskService) ListArticles(ctx context.Context, p ListParams) (Page[Article], error) {
	return s.articles.List(ctx, p)
}

func (s *serviceDeskService) GetArticle(ctx context.Context, id uuid.UUID) (Article, error) {
	return s.articles.Get(ctx, id)
}

func (s *serviceDeskService) CreateArticle(ctx context.Context, in ArticleInput) (Article, error) {
	if err := requireFields("title", in.Title, "content", in.Content); err != nil {
		return Article{}, err
	}
	if in.Status == "" {
		in.Status = "Published"
	}
	if err := oneOf("status", in.Status, "Draft", "Published", "Archived"); err != nil {
		return Article{}, err
	}
	a, err := s.articles.Insert(ctx, map[string]any{
		"title":    strings.TrimSpace(in.Title),
		"content":  in.Content,
		"category": in.Category,
		"status":   in.Status,
	})
	if err != nil {
		return Article{}, err
	}
	s.audit.Record(ctx, "article", a.ID, "create", map[string]any{"title": a.Title})
	return a, nil
}

// SearchArticles matches published articles by title or content.
func (s *serviceDeskService) SearchArticles(ctx context.Context, q string, p ListParams) (Page[Article], error) {
	if strings.TrimSpace(q) == "" {
		return Page[Article]{}, validationf("q is required")
	}
	p.Search = q
	return s.articles.List(ctx, p.With("status", "Published"))
}
