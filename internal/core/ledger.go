package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"erp-server/internal/metrics"
)

// LedgerService owns the chart of accounts, journal entries, fiscal years and
// exchange rates.
type LedgerService interface {
	ListAccounts(ctx context.Context, p ListParams) (Page[Account], error)
	CreateAccount(ctx context.Context, in AccountInput) (Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, in AccountInput) (Account, error)
	// DeleteAccount marks the account Deleted; it keeps its journal history.
	DeleteAccount(ctx context.Context, id uuid.UUID) error

	ListEntries(ctx context.Context, p ListParams) (Page[JournalEntry], error)
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	// ValidateEntry runs every create-time check without writing anything.
	ValidateEntry(ctx context.Context, in JournalEntryInput) (JournalValidation, error)
	CreateEntry(ctx context.Context, in JournalEntryInput) (JournalEntry, error)
	// PostEntry moves a Draft entry to Posted. Posting a Posted entry is a no-op.
	PostEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	// ReverseEntry books a posted mirror entry and marks the original Reversed.
	ReverseEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)

	ListFiscalYears(ctx context.Context, p ListParams) (Page[FiscalYear], error)
	CreateFiscalYear(ctx context.Context, in FiscalYearInput) (FiscalYear, error)
	GetFiscalYear(ctx context.Context, id uuid.UUID) (FiscalYear, error)
	CloseFiscalYear(ctx context.Context, id uuid.UUID) (FiscalYear, error)

	ListExchangeRates(ctx context.Context, p ListParams) (Page[ExchangeRate], error)
	CreateExchangeRate(ctx context.Context, in ExchangeRateInput) (ExchangeRate, error)
	// RateOn returns the latest rate effective on or before date.
	RateOn(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error)
}

type ledgerService struct {
	pool     *pgxpool.Pool
	accounts *Resource[Account]
	entries  *Resource[JournalEntry]
	lines    *Resource[JournalLine]
	years    *Resource[FiscalYear]
	rates    *Resource[ExchangeRate]
	audit    AuditService
	log      zerolog.Logger
}

func NewLedgerService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) LedgerService {
	return &ledgerService{
		pool:     pool,
		accounts: accountResource(pool),
		entries:  entryResource(pool),
		lines:    NewResource[JournalLine](pool, ResourceSpec{Table: "journal_lines", Entity: "journal line", OrderBy: "line_no"}),
		years: NewResource[FiscalYear](pool, ResourceSpec{
			Table: "fiscal_years", Entity: "fiscal year",
			Filters: map[string]string{"status": "status"},
			OrderBy: "start_date DESC",
		}),
		rates: NewResource[ExchangeRate](pool, ResourceSpec{
			Table: "exchange_rates", Entity: "exchange rate",
			Filters: map[string]string{"from_currency": "from_currency", "to_currency": "to_currency"},
			OrderBy: "effective_date DESC, from_currency, to_currency",
		}),
		audit: audit,
		log:   log,
	}
}

func accountResource(q Querier) *Resource[Account] {
	return NewResource[Account](q, ResourceSpec{
		Table:      "accounts",
		Entity:     "account",
		Filters:    map[string]string{"account_type": "account_type", "status": "status", "currency": "currency"},
		Search:     []string{"code", "name"},
		Scope:      "status <> 'Deleted'",
		OrderBy:    "code",
		SoftDelete: StatusDeleted,
		Touch:      true,
	})
}

func entryResource(q Querier) *Resource[JournalEntry] {
	return NewResource[JournalEntry](q, ResourceSpec{
		Table:   "journal_entries",
		Entity:  "journal entry",
		Filters: map[string]string{"status": "status", "source": "source"},
		Search:  []string{"entry_number", "description", "reference"},
		OrderBy: "entry_date DESC, entry_number DESC",
		Touch:   true,
	})
}

// ── Accounts ────────────────────────────────────────────────────────────────

func (s *ledgerService) ListAccounts(ctx context.Context, p ListParams) (Page[Account], error) {
	return s.accounts.List(ctx, p)
}

func (s *ledgerService) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.accounts.Get(ctx, id)
}

func (in *AccountInput) normalize() {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = defaultBase
	}
}

func (s *ledgerService) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	in.normalize()
	if err := requireFields("code", in.Code, "name", in.Name); err != nil {
		return Account{}, err
	}
	if err := oneOf("account_type", in.AccountType, accountTypes...); err != nil {
		return Account{}, err
	}
	if len(in.Currency) != 3 {
		return Account{}, validationf("currency must be a 3-letter ISO code")
	}
	status := in.Status
	if status == "" {
		status = StatusActive
	}
	a, err := s.accounts.Insert(ctx, map[string]any{
		"code":         in.Code,
		"name":         in.Name,
		"account_type": in.AccountType,
		"parent_id":    in.ParentID,
		"currency":     in.Currency,
		"description":  in.Description,
		"status":       status,
	})
	if errors.Is(err, ErrConflict) {
		return Account{}, conflictf("account code %s already exists", in.Code)
	}
	if err != nil {
		return Account{}, err
	}
	s.audit.Record(ctx, "account", a.ID, "create", a)
	return a, nil
}

func (s *ledgerService) UpdateAccount(ctx context.Context, id uuid.UUID, in AccountInput) (Account, error) {
	current, err := s.accounts.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if current.Status == StatusDeleted {
		return Account{}, notFoundf("account not found")
	}
	values := map[string]any{}
	if v := strings.TrimSpace(in.Code); v != "" {
		values["code"] = v
	}
	if v := strings.TrimSpace(in.Name); v != "" {
		values["name"] = v
	}
	if in.AccountType != "" {
		if err := oneOf("account_type", in.AccountType, accountTypes...); err != nil {
			return Account{}, err
		}
		values["account_type"] = in.AccountType
	}
	if in.ParentID != nil {
		if *in.ParentID == id {
			return Account{}, validationf("an account cannot be its own parent")
		}
		values["parent_id"] = in.ParentID
	}
	if in.Currency != "" {
		values["currency"] = strings.ToUpper(in.Currency)
	}
	if in.Description != "" {
		values["description"] = in.Description
	}
	if in.Status != "" {
		if err := oneOf("status", in.Status, StatusActive, "Inactive"); err != nil {
			return Account{}, err
		}
		values["status"] = in.Status
	}
	a, err := s.accounts.Update(ctx, id, values)
	if errors.Is(err, ErrConflict) {
		return Account{}, conflictf("account code %s already exists", in.Code)
	}
	if err != nil {
		return Account{}, err
	}
	s.audit.Record(ctx, "account", id, "update", values)
	return a, nil
}

func (s *ledgerService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, "account", id, "delete", nil)
	return nil
}

// ── Journal entries ─────────────────────────────────────────────────────────

func (s *ledgerService) ListEntries(ctx context.Context, p ListParams) (Page[JournalEntry], error) {
	return s.entries.List(ctx, p)
}

func (s *ledgerService) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return loadJournalEntry(ctx, s.pool, id)
}

func (s *ledgerService) ValidateEntry(ctx context.Context, in JournalEntryInput) (JournalValidation, error) {
	v := ValidateJournalLines(in.Lines)
	if strings.TrimSpace(in.Description) == "" {
		v.Errors = append(v.Errors, "description is required")
	}
	if in.Date != "" {
		if _, err := ParseDate(in.Date); err != nil {
			v.Errors = append(v.Errors, err.Error())
		}
	}
	for i, l := range in.Lines {
		if l.AccountID == nil && strings.TrimSpace(l.AccountCode) == "" {
			continue
		}
		if _, err := resolveAccount(ctx, s.pool, l); err != nil {
			if errors.Is(err, ErrValidation) {
				v.Errors = append(v.Errors, fmt.Sprintf("line %d: %s", i+1, err.Error()))
				continue
			}
			return v, err
		}
	}
	v.Valid = len(v.Errors) == 0
	return v, nil
}

func (s *ledgerService) CreateEntry(ctx context.Context, in JournalEntryInput) (JournalEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	je, err := insertJournalEntry(ctx, tx, in)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return JournalEntry{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("entry_number", je.EntryNumber).Str("total", je.TotalDebit.StringFixed(2)).Msg("journal entry created")
	s.audit.Record(ctx, "journal_entry", je.ID, "create", map[string]any{"entry_number": je.EntryNumber, "total": je.TotalDebit})
	return je, nil
}

func (s *ledgerService) PostEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	je, changed, err := postJournalEntry(ctx, tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return JournalEntry{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if changed {
		metrics.JournalEntriesPosted.Inc()
		s.log.Info().Str("entry_number", je.EntryNumber).Msg("journal entry posted")
		s.audit.Record(ctx, "journal_entry", je.ID, "post", map[string]any{"status": EntryPosted})
	}
	return je, nil
}

func (s *ledgerService) ReverseEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	reversal, err := reverseJournalEntry(ctx, tx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return JournalEntry{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.JournalEntriesPosted.Inc()
	s.log.Info().Str("entry_number", reversal.EntryNumber).Str("reversal_of", id.String()).Msg("journal entry reversed")
	s.audit.Record(ctx, "journal_entry", id, "reverse", map[string]any{"reversal_entry_id": reversal.ID})
	return reversal, nil
}

// resolveAccount finds the active account a line refers to.
func resolveAccount(ctx context.Context, q Querier, l JournalLineInput) (Account, error) {
	accounts := accountResource(q)
	var (
		a   Account
		err error
		ref string
	)
	if l.AccountID != nil {
		ref = l.AccountID.String()
		a, err = accounts.Get(ctx, *l.AccountID)
	} else {
		ref = strings.TrimSpace(l.AccountCode)
		a, err = accounts.GetBy(ctx, "code", ref)
	}
	if errors.Is(err, ErrNotFound) {
		return Account{}, validationf("account %s not found", ref)
	}
	if err != nil {
		return Account{}, err
	}
	if a.Status == StatusDeleted {
		return Account{}, validationf("account %s is deleted", a.Code)
	}
	return a, nil
}

// insertJournalEntry validates in and stores a Draft entry with its lines inside q.
func insertJournalEntry(ctx context.Context, q Querier, in JournalEntryInput) (JournalEntry, error) {
	if err := validateJournalInput(in); err != nil {
		return JournalEntry{}, err
	}
	date, err := dateOrToday(in.Date)
	if err != nil {
		return JournalEntry{}, err
	}

	accountIDs := make([]uuid.UUID, len(in.Lines))
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	for i, l := range in.Lines {
		a, err := resolveAccount(ctx, q, l)
		if err != nil {
			return JournalEntry{}, err
		}
		accountIDs[i] = a.ID
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}

	number, err := NextDocumentNumber(ctx, q, DocJournalEntry, date)
	if err != nil {
		return JournalEntry{}, err
	}
	source := in.source
	if source == "" {
		source = SourceManual
	}

	je, err := entryResource(q).Insert(ctx, map[string]any{
		"entry_number": number,
		"entry_date":   date,
		"description":  strings.TrimSpace(in.Description),
		"reference":    in.Reference,
		"status":       EntryDraft,
		"source":       source,
		"reversal_of":  in.reversalOf,
		"total_debit":  round2(totalDebit),
		"total_credit": round2(totalCredit),
		"created_by":   actorID(ctx),
	})
	if err != nil {
		return JournalEntry{}, err
	}

	lines := NewResource[JournalLine](q, ResourceSpec{Table: "journal_lines", Entity: "journal line"})
	for i, l := range in.Lines {
		line, err := lines.Insert(ctx, map[string]any{
			"entry_id":    je.ID,
			"line_no":     i + 1,
			"account_id":  accountIDs[i],
			"description": l.Description,
			"debit":       round2(l.Debit),
			"credit":      round2(l.Credit),
		})
		if err != nil {
			return JournalEntry{}, fmt.Errorf("failed to insert journal line %d: %w", i+1, err)
		}
		je.Lines = append(je.Lines, line)
	}
	return je, nil
}

func loadJournalEntry(ctx context.Context, q Querier, id uuid.UUID) (JournalEntry, error) {
	je, err := entryResource(q).Get(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	je.Lines, err = loadJournalLines(ctx, q, id)
	return je, err
}

func loadJournalLines(ctx context.Context, q Querier, entryID uuid.UUID) ([]JournalLine, error) {
	lines := NewResource[JournalLine](q, ResourceSpec{Table: "journal_lines", Entity: "journal line", OrderBy: "line_no"})
	return lines.All(ctx, ListParams{}.With("entry_id", entryID))
}

// postJournalEntry locks the entry and posts it. changed is false when it was
// already Posted.
func postJournalEntry(ctx context.Context, tx Querier, id uuid.UUID) (je JournalEntry, changed bool, err error) {
	entries := entryResource(tx)
	je, err = entries.GetForUpdate(ctx, id)
	if err != nil {
		return je, false, err
	}
	switch je.Status {
	case EntryPosted:
		je.Lines, err = loadJournalLines(ctx, tx, id)
		return je, false, err
	case EntryDraft:
	default:
		return je, false, businessf("journal entry %s cannot be posted: status is %s (must be %s)", je.EntryNumber, je.Status, EntryDraft)
	}

	var closed bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM fiscal_years WHERE status = $1 AND $2 BETWEEN start_date AND end_date)`,
		FiscalClosed, je.EntryDate,
	).Scan(&closed)
	if err != nil {
		return je, false, fmt.Errorf("check fiscal year: %w", err)
	}
	if closed {
		return je, false, businessf("journal entry %s cannot be posted: its date falls in a closed fiscal year", je.EntryNumber)
	}

	je, err = entries.Update(ctx, id, map[string]any{"status": EntryPosted, "posted_at": nowUTC()})
	if err != nil {
		return je, false, err
	}
	je.Lines, err = loadJournalLines(ctx, tx, id)
	return je, true, err
}

// reverseJournalEntry books and posts a mirror of a Posted entry dated today,
// then marks the original Reversed.
func reverseJournalEntry(ctx context.Context, tx Querier, id uuid.UUID) (JournalEntry, error) {
	entries := entryResource(tx)
	orig, err := entries.GetForUpdate(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	if orig.Status != EntryPosted {
		return JournalEntry{}, businessf("journal entry %s cannot be reversed: status is %s (must be %s)", orig.EntryNumber, orig.Status, EntryPosted)
	}
	lines, err := loadJournalLines(ctx, tx, id)
	if err != nil {
		return JournalEntry{}, err
	}

	in := JournalEntryInput{
		Description: fmt.Sprintf("Reversal of %s: %s", orig.EntryNumber, orig.Description),
		Reference:   orig.EntryNumber,
		source:      SourceReversal,
		reversalOf:  &orig.ID,
	}
	if orig.Source == SourceRevaluation {
		in.source = SourceRevaluation
	}
	for _, l := range lines {
		accountID := l.AccountID
		in.Lines = append(in.Lines, JournalLineInput{
			AccountID:   &accountID,
			Debit:       l.Credit,
			Credit:      l.Debit,
			Description: l.Description,
		})
	}
	reversal, err := insertJournalEntry(ctx, tx, in)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("failed to insert reversal entry: %w", err)
	}
	reversal, _, err = postJournalEntry(ctx, tx, reversal.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	if _, err := entries.Update(ctx, id, map[string]any{"status": EntryReversed}); err != nil {
		return JournalEntry{}, err
	}
	return reversal, nil
}

// ── Fiscal years ────────────────────────────────────────────────────────────

func (s *ledgerService) ListFiscalYears(ctx context.Context, p ListParams) (Page[FiscalYear], error) {
	return s.years.List(ctx, p)
}

func (s *ledgerService) GetFiscalYear(ctx context.Context, id uuid.UUID) (FiscalYear, error) {
	return s.years.Get(ctx, id)
}

func (s *ledgerService) CreateFiscalYear(ctx context.Context, in FiscalYearInput) (FiscalYear, error) {
	if err := requireFields("name", in.Name, "start_date", in.StartDate, "end_date", in.EndDate); err != nil {
		return FiscalYear{}, err
	}
	start, err := ParseDate(in.StartDate)
	if err != nil {
		return FiscalYear{}, err
	}
	end, err := ParseDate(in.EndDate)
	if err != nil {
		return FiscalYear{}, err
	}
	if !end.After(start) {
		return FiscalYear{}, validationf("end_date must be after start_date")
	}
	fy, err := s.years.Insert(ctx, map[string]any{
		"name":       strings.TrimSpace(in.Name),
		"start_date": start,
		"end_date":   end,
		"status":     FiscalOpen,
	})
	if err != nil {
		return FiscalYear{}, err
	}
	s.audit.Record(ctx, "fiscal_year", fy.ID, "create", fy)
	return fy, nil
}

func (s *ledgerService) CloseFiscalYear(ctx context.Context, id uuid.UUID) (FiscalYear, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return FiscalYear{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	years := s.years.With(tx)
	fy, err := years.GetForUpdate(ctx, id)
	if err != nil {
		return FiscalYear{}, err
	}
	if fy.Status != FiscalOpen {
		return FiscalYear{}, businessf("fiscal year %s cannot be closed: status is %s (must be %s)", fy.Name, fy.Status, FiscalOpen)
	}
	var drafts int64
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM journal_entries
		WHERE status = $1 AND entry_date BETWEEN $2 AND $3`,
		EntryDraft, fy.StartDate, fy.EndDate,
	).Scan(&drafts)
	if err != nil {
		return FiscalYear{}, fmt.Errorf("count draft entries: %w", err)
	}
	if drafts > 0 {
		return FiscalYear{}, businessf("fiscal year %s cannot be closed: %d draft journal entries are dated within it", fy.Name, drafts)
	}
	fy, err = years.Update(ctx, id, map[string]any{"status": FiscalClosed, "closed_at": nowUTC()})
	if err != nil {
		return FiscalYear{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FiscalYear{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("fiscal_year", fy.Name).Msg("fiscal year closed")
	s.audit.Record(ctx, "fiscal_year", id, "close", map[string]any{"status": FiscalClosed})
	return fy, nil
}

// ── Exchange rates ──────────────────────────────────────────────────────────

func (s *ledgerService) ListExchangeRates(ctx context.Context, p ListParams) (Page[ExchangeRate], error) {
	return s.rates.List(ctx, p)
}

func (s *ledgerService) CreateExchangeRate(ctx context.Context, in ExchangeRateInput) (ExchangeRate, error) {
	from := strings.ToUpper(strings.TrimSpace(in.FromCurrency))
	to := strings.ToUpper(strings.TrimSpace(in.ToCurrency))
	if len(from) != 3 || len(to) != 3 {
		return ExchangeRate{}, validationf("from_currency and to_currency must be 3-letter ISO codes")
	}
	if from == to {
		return ExchangeRate{}, validationf("from_currency and to_currency must differ")
	}
	if !in.Rate.IsPositive() {
		return ExchangeRate{}, validationf("rate must be greater than zero")
	}
	if err := requireFields("effective_date", in.EffectiveDate); err != nil {
		return ExchangeRate{}, err
	}
	date, err := ParseDate(in.EffectiveDate)
	if err != nil {
		return ExchangeRate{}, err
	}
	r, err := s.rates.Insert(ctx, map[string]any{
		"from_currency":  from,
		"to_currency":    to,
		"rate":           in.Rate,
		"effective_date": date,
	})
	if errors.Is(err, ErrConflict) {
		return ExchangeRate{}, conflictf("a %s/%s rate already exists for %s", from, to, date.Format(dateLayout))
	}
	if err != nil {
		return ExchangeRate{}, err
	}
	s.audit.Record(ctx, "exchange_rate", r.ID, "create", r)
	return r, nil
}

func (s *ledgerService) RateOn(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	return rateOn(ctx, s.pool, from, to, date)
}

// rateOn looks up the direct pair first and falls back to the inverse of the
// opposite pair.
func rateOn(ctx context.Context, q Querier, from, to string, date time.Time) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	const query = `
		SELECT rate FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2 AND effective_date <= $3
		ORDER BY effective_date DESC LIMIT 1`
	var rate decimal.Decimal
	err := q.QueryRow(ctx, query, from, to, date).Scan(&rate)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("lookup exchange rate: %w", err)
	}
	err = q.QueryRow(ctx, query, to, from, date).Scan(&rate)
	if err == nil && rate.IsPositive() {
		return decimal.NewFromInt(1).DivRound(rate, 8), nil
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("lookup exchange rate: %w", err)
	}
	return decimal.Zero, businessf("no exchange rate from %s to %s on or before %s", from, to, date.Format(dateLayout))
}
