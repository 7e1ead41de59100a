package core

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	ConsentGranted   = "Granted"
	ConsentWithdrawn = "Withdrawn"

	DSAROpen       = "Open"
	DSARInProgress = "InProgress"
	DSARCompleted  = "Completed"

	// dsarResponseDays is the statutory response window for a subject access request.
	dsarResponseDays = 30
	// breachNotifyWindow is the time allowed to notify the authority of a breach.
	breachNotifyWindow = 72 * time.Hour
)

var dsarTypes = []string{"Access", "Rectification", "Erasure", "Portability", "Restriction", "Objection"}

type DataSubject struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	SubjectType string    `db:"subject_type" json:"subject_type"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type DataSubjectInput struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	SubjectType string `json:"subject_type"`
}

type Consent struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	DataSubjectID uuid.UUID  `db:"data_subject_id" json:"data_subject_id"`
	Purpose       string     `db:"purpose" json:"purpose"`
	Status        string     `db:"status" json:"status"`
	GrantedAt     time.Time  `db:"granted_at" json:"granted_at"`
	WithdrawnAt   *time.Time `db:"withdrawn_at" json:"withdrawn_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

type ConsentInput struct {
	DataSubjectID uuid.UUID `json:"data_subject_id"`
	Purpose       string    `json:"purpose"`
}

type DSAR struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	RequestNumber string     `db:"request_number" json:"request_number"`
	DataSubjectID uuid.UUID  `db:"data_subject_id" json:"data_subject_id"`
	RequestType   string     `db:"request_type" json:"request_type"`
	Status        string     `db:"status" json:"status"`
	ReceivedDate  time.Time  `db:"received_date" json:"received_date"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Response      string     `db:"response" json:"response"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

type DSARInput struct {
	DataSubjectID uuid.UUID `json:"data_subject_id"`
	RequestType   string    `json:"request_type"`
	ReceivedDate  string    `json:"received_date"`
}

type DataBreach struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Title                string     `db:"title" json:"title"`
	Description          string     `db:"description" json:"description"`
	Severity             string     `db:"severity" json:"severity"`
	Status               string     `db:"status" json:"status"`
	DiscoveredAt         time.Time  `db:"discovered_at" json:"discovered_at"`
	NotificationDeadline time.Time  `db:"notification_deadline" json:"notification_deadline"`
	AffectedRecords      int        `db:"affected_records" json:"affected_records"`
	ReportedAt           *time.Time `db:"reported_at" json:"reported_at"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

type DataBreachInput struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Severity        string `json:"severity"`
	DiscoveredAt    string `json:"discovered_at"`
	AffectedRecords int    `json:"affected_records"`
}

type ComplianceStats struct {
	DataSubjects   int64 `json:"data_subjects"`
	ActiveConsents int64 `json:"active_consents"`
	OpenDSARs      int64 `json:"open_dsars"`
	OverdueDSARs   int64 `json:"overdue_dsars"`
	OpenBreaches   int64 `json:"open_breaches"`
}

// ComplianceService covers data protection records: subjects, consents,
// subject access requests and breaches.
type ComplianceService interface {
	ListSubjects(ctx context.Context, p ListParams) (Page[DataSubject], error)
	CreateSubject(ctx context.Context, in DataSubjectInput) (DataSubject, error)
	GetSubject(ctx context.Context, id uuid.UUID) (DataSubject, error)

	ListConsents(ctx context.Context, p ListParams) (Page[Consent], error)
	CreateConsent(ctx context.Context, in ConsentInput) (Consent, error)
	WithdrawConsent(ctx context.Context, id uuid.UUID) (Consent, error)

	ListDSARs(ctx context.Context, p ListParams) (Page[DSAR], error)
	CreateDSAR(ctx context.Context, in DSARInput) (DSAR, error)
	GetDSAR(ctx context.Context, id uuid.UUID) (DSAR, error)
	CompleteDSAR(ctx context.Context, id uuid.UUID, response string) (DSAR, error)

	ListBreaches(ctx context.Context, p ListParams) (Page[DataBreach], error)
	CreateBreach(ctx context.Context, in DataBreachInput) (DataBreach, error)
	GetBreach(ctx context.Context, id uuid.UUID) (DataBreach, error)

	Stats(ctx context.Context) (ComplianceStats, error)
}

type complianceService struct {
	pool     *pgxpool.Pool
	subjects *Resource[DataSubject]
	consents *Resource[Consent]
	dsars    *Resource[DSAR]
	breaches *Resource[DataBreach]
	audit    AuditService
	log      zerolog.Logger
}

func NewComplianceService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) ComplianceService {
	return &complianceService{
		pool: pool,
		subjects: NewResource[DataSubject](pool, ResourceSpec{
			Table: "data_subjects", Entity: "data subject",
			Filters: map[string]string{"subject_type": "subject_type"},
			Search:  []string{"email", "first_name", "last_name"},
		}),
		consents: NewResource[Consent](pool, ResourceSpec{
			Table: "consents", Entity: "consent",
			Filters: map[string]string{"data_subject_id": "data_subject_id", "status": "status"},
		}),
		dsars: NewResource[DSAR](pool, ResourceSpec{
			Table: "dsar_requests", Entity: "DSAR",
			Filters: map[string]string{"status": "status", "request_type": "request_type", "data_subject_id": "data_subject_id"},
			Search:  []string{"request_number"},
			OrderBy: "due_date",
		}),
		breaches: NewResource[DataBreach](pool, ResourceSpec{
			Table: "data_breaches", Entity: "breach",
			Filters: map[string]string{"status": "status", "severity": "severity"},
			Search:  []string{"title"},
			OrderBy: "discovered_at DESC",
		}),
		audit: audit,
		log:   log,
	}
}

func (s *complianceService) ListSubjects(ctx context.Context, p ListParams) (Page[DataSubject], error) {
	return s.subjects.List(ctx, p)
}

func (s *complianceService) GetSubject(ctx context.Context, id uuid.UUID) (DataSubject, error) {
	return s.subjects.Get(ctx, id)
}

func (s *complianceService) CreateSubject(ctx context.Context, in DataSubjectInput) (DataSubject, error) {
	if err := requireFields("email", in.Email); err != nil {
		return DataSubject{}, err
	}
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return DataSubject{}, validationf("invalid email %q", email)
	}
	if in.SubjectType == "" {
		in.SubjectType = "Customer"
	}
	if err := oneOf("subject_type", in.SubjectType, "Customer", "Employee", "Vendor", "Prospect", "Other"); err != nil {
		return DataSubject{}, err
	}
	d, err := s.subjects.Insert(ctx, map[string]any{
		"email":        email,
		"first_name":   in.FirstName,
		"last_name":    in.LastName,
		"subject_type": in.SubjectType,
	})
	if err != nil {
		return DataSubject{}, err
	}
	s.audit.Record(ctx, "data_subject", d.ID, "create", nil)
	return d, nil
}

func (s *complianceService) ListConsents(ctx context.Context, p ListParams) (Page[Consent], error) {
	return s.consents.List(ctx, p)
}

func (s *complianceService) CreateConsent(ctx context.Context, in ConsentInput) (Consent, error) {
	if in.DataSubjectID == uuid.Nil {
		return Consent{}, validationf("data_subject_id is required")
	}
	if err := requireFields("purpose", in.Purpose); err != nil {
		return Consent{}, err
	}
	c, err := s.consents.Insert(ctx, map[string]any{
		"data_subject_id": in.DataSubjectID,
		"purpose":         strings.TrimSpace(in.Purpose),
	})
	if err != nil {
		return Consent{}, err
	}
	s.audit.Record(ctx, "consent", c.ID, "grant", map[string]any{"purpose": c.Purpose})
	return c, nil
}

func (s *complianceService) WithdrawConsent(ctx context.Context, id uuid.UUID) (Consent, error) {
	c, err := s.consents.Transition(ctx, id, []string{ConsentGranted}, ConsentWithdrawn, map[string]any{"withdrawn_at": nowUTC()})
	if err != nil {
		return Consent{}, err
	}
	s.audit.Record(ctx, "consent", id, "withdraw", nil)
	return c, nil
}

func (s *complianceService) ListDSARs(ctx context.Context, p ListParams) (Page[DSAR], error) {
	return s.dsars.List(ctx, p)
}

func (s *complianceService) GetDSAR(ctx context.Context, id uuid.UUID) (DSAR, error) {
	return s.dsars.Get(ctx, id)
}

func (s *complianceService) CreateDSAR(ctx context.Context, in DSARInput) (DSAR, error) {
	if in.DataSubjectID == uuid.Nil {
		return DSAR{}, validationf("data_subject_id is required")
	}
	if err := oneOf("request_type", in.RequestType, dsarTypes...); err != nil {
		return DSAR{}, err
	}
	received, err := dateOrToday(in.ReceivedDate)
	if err != nil {
		return DSAR{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return DSAR{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	number, err := NextDocumentNumber(ctx, tx, DocDSAR, received)
	if err != nil {
		return DSAR{}, err
	}
	d, err := s.dsars.With(tx).Insert(ctx, map[string]any{
		"request_number":  number,
		"data_subject_id": in.DataSubjectID,
		"request_type":    in.RequestType,
		"received_date":   received,
		"due_date":        received.AddDate(0, 0, dsarResponseDays),
	})
	if err != nil {
		return DSAR{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return DSAR{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("request_number", d.RequestNumber).Str("type", d.RequestType).Msg("DSAR received")
	s.audit.Record(ctx, "dsar", d.ID, "create", d)
	return d, nil
}

func (s *complianceService) CompleteDSAR(ctx context.Context, id uuid.UUID, response string) (DSAR, error) {
	d, err := s.dsars.Transition(ctx, id, []string{DSAROpen, DSARInProgress}, DSARCompleted, map[string]any{
		"response":     response,
		"completed_at": nowUTC(),
	})
	if err != nil {
		return DSAR{}, err
	}
	s.audit.Record(ctx, "dsar", id, "complete", nil)
	return d, nil
}

func (s *complianceService) ListBreaches(ctx context.Context, p ListParams) (Page[DataBreach], error) {
	return s.breaches.List(ctx, p)
}

func (s *complianceService) GetBreach(ctx context.Context, id uuid.UUID) (DataBreach, error) {
	return s.breaches.Get(ctx, id)
}

func (s *complianceService) CreateBreach(ctx context.Context, in DataBreachInput) (DataBreach, error) {
	if err := requireFields("title", in.Title, "discovered_at", in.DiscoveredAt); err != nil {
		return DataBreach{}, err
	}
	if in.Severity == "" {
		in.Severity = "Medium"
	}
	if err := oneOf("severity", in.Severity, "Low", "Medium", "High", "Critical"); err != nil {
		return DataBreach{}, err
	}
	if in.AffectedRecords < 0 {
		return DataBreach{}, validationf("affected_records cannot be negative")
	}
	discovered, err := time.Parse(time.RFC3339, strings.TrimSpace(in.DiscoveredAt))
	if err != nil {
		day, derr := ParseDate(in.DiscoveredAt)
		if derr != nil {
			return DataBreach{}, validationf("invalid discovered_at %q: use RFC 3339", in.DiscoveredAt)
		}
		discovered = day
	}
	b, err := s.breaches.Insert(ctx, map[string]any{
		"title":                 strings.TrimSpace(in.Title),
		"description":           in.Description,
		"severity":              in.Severity,
		"discovered_at":         discovered.UTC(),
		"notification_deadline": discovered.UTC().Add(breachNotifyWindow),
		"affected_records":      in.AffectedRecords,
	})
	if err != nil {
		return DataBreach{}, err
	}
	s.log.Warn().Str("title", b.Title).Str("severity", b.Severity).Time("deadline", b.NotificationDeadline).Msg("data breach recorded")
	s.audit.Record(ctx, "breach", b.ID, "create", b)
	return b, nil
}

func (s *complianceService) Stats(ctx context.Context) (ComplianceStats, error) {
	var st ComplianceStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM data_subjects),
			(SELECT count(*) FROM consents WHERE status = 'Granted'),
			(SELECT count(*) FROM dsar_requests WHERE status <> 'Completed'),
			(SELECT count(*) FROM dsar_requests WHERE status <> 'Completed' AND due_date < CURRENT_DATE),
			(SELECT count(*) FROM data_breaches WHERE status <> 'Closed')`,
	).Scan(&st.DataSubjects, &st.ActiveConsents, &st.OpenDSARs, &st.OverdueDSARs, &st.OpenBreaches)
	if err != nil {
		return ComplianceStats{}, fmt.Errorf("failed to compute compliance stats: %w", err)
	}
	return st, nil
}
