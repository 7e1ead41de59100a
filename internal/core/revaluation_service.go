package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"erp-server/internal/metrics"
)

// RevaluationService restates foreign-currency account balances at current rates
// and books the unrealized difference.
type RevaluationService interface {
	List(ctx context.Context, p ListParams) (Page[CurrencyRevaluation], error)
	Get(ctx context.Context, id uuid.UUID) (CurrencyRevaluation, error)
	Lines(ctx context.Context, id uuid.UUID) ([]RevaluationLine, error)
	Preview(ctx context.Context, in RevaluationPreviewInput) (RevaluationPreview, error)
	Create(ctx context.Context, in RevaluationInput) (CurrencyRevaluation, error)
	Post(ctx context.Context, id uuid.UUID, in RevaluationPostInput) (CurrencyRevaluation, error)
	Reverse(ctx context.Context, id uuid.UUID) (CurrencyRevaluation, error)
}

type revaluationService struct {
	pool  *pgxpool.Pool
	revs  *Resource[CurrencyRevaluation]
	lines *Resource[RevaluationLine]
	audit AuditService
	log   zerolog.Logger
}

func NewRevaluationService(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) RevaluationService {
	return &revaluationService{
		pool: pool,
		revs: NewResource[CurrencyRevaluation](pool, ResourceSpec{
			Table:   "currency_revaluations",
			Entity:  "currency revaluation",
			Filters: map[string]string{"status": "status", "base_currency": "base_currency"},
			Search:  []string{"revaluation_number"},
			OrderBy: "revaluation_date DESC, revaluation_number DESC",
		}),
		lines: NewResource[RevaluationLine](pool, ResourceSpec{
			Table:   "currency_revaluation_lines",
			Entity:  "revaluation line",
			OrderBy: "currency, account_code",
		}),
		audit: audit,
		log:   log,
	}
}

func (s *revaluationService) List(ctx context.Context, p ListParams) (Page[CurrencyRevaluation], error) {
	return s.revs.List(ctx, p)
}

func (s *revaluationService) Get(ctx context.Context, id uuid.UUID) (CurrencyRevaluation, error) {
	r, err := s.revs.Get(ctx, id)
	if err != nil {
		return r, err
	}
	r.Lines, err = s.Lines(ctx, id)
	return r, err
}

func (s *revaluationService) Lines(ctx context.Context, id uuid.UUID) ([]RevaluationLine, error) {
	if _, err := s.revs.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.lines.All(ctx, ListParams{}.With("revaluation_id", id))
}

func baseCurrency(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultBase
	}
	return s
}

func (s *revaluationService) Preview(ctx context.Context, in RevaluationPreviewInput) (RevaluationPreview, error) {
	if err := requireFields("revaluation_date", in.RevaluationDate); err != nil {
		return RevaluationPreview{}, err
	}
	date, err := ParseDate(in.RevaluationDate)
	if err != nil {
		return RevaluationPreview{}, err
	}
	return computeRevaluation(ctx, s.pool, date, baseCurrency(in.BaseCurrency))
}

// computeRevaluation builds one line per active foreign-currency account with a
// non-zero posted balance. Earlier revaluation entries are excluded from the
// balance so a revaluation never revalues its own adjustment.
func computeRevaluation(ctx context.Context, q Querier, date time.Time, base string) (RevaluationPreview, error) {
	rows, err := q.Query(ctx, `
		SELECT a.id, a.code, a.name, a.currency,
		       COALESCE(SUM(jl.debit), 0) - COALESCE(SUM(jl.credit), 0) AS balance
		FROM accounts a
		JOIN journal_lines jl ON jl.account_id = a.id
		JOIN journal_entries je ON je.id = jl.entry_id
		WHERE a.status = $1
		  AND a.currency <> $2
		  AND je.status IN ('Posted', 'Reversed')
		  AND je.source <> $3
		  AND je.entry_date <= $4
		GROUP BY a.id, a.code, a.name, a.currency
		HAVING COALESCE(SUM(jl.debit), 0) - COALESCE(SUM(jl.credit), 0) <> 0
		ORDER BY a.currency, a.code`,
		StatusActive, base, SourceRevaluation, date,
	)
	if err != nil {
		return RevaluationPreview{}, fmt.Errorf("failed to query foreign balances: %w", err)
	}
	var lines []RevaluationLine
	for rows.Next() {
		var l RevaluationLine
		if err := rows.Scan(&l.AccountID, &l.AccountCode, &l.AccountName, &l.Currency, &l.OriginalBalance); err != nil {
			rows.Close()
			return RevaluationPreview{}, fmt.Errorf("failed to scan foreign balance: %w", err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return RevaluationPreview{}, fmt.Errorf("foreign balance iteration error: %w", err)
	}

	type ratePair struct{ original, current decimal.Decimal }
	rates := map[string]ratePair{}
	for i := range lines {
		cur := lines[i].Currency
		rp, ok := rates[cur]
		if !ok {
			orig, err := originalRate(ctx, q, cur, base, date)
			if err != nil {
				return RevaluationPreview{}, err
			}
			now, err := rateOn(ctx, q, cur, base, date)
			if err != nil {
				return RevaluationPreview{}, err
			}
			rp = ratePair{original: orig, current: now}
			rates[cur] = rp
		}
		lines[i] = RevalueLine(lines[i], rp.original, rp.current)
	}

	p := SummarizeRevaluation(lines)
	p.RevaluationDate = date.Format(dateLayout)
	p.BaseCurrency = base
	return p, nil
}

// originalRate is the rate used by the latest posted revaluation of currency
// before date, or the earliest rate on record when none exists.
func originalRate(ctx context.Context, q Querier, currency, base string, date time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT l.revaluation_rate
		FROM currency_revaluation_lines l
		JOIN currency_revaluations r ON r.id = l.revaluation_id
		WHERE r.status = $1 AND r.base_currency = $2 AND l.currency = $3 AND r.revaluation_date < $4
		ORDER BY r.revaluation_date DESC, r.revaluation_number DESC
		LIMIT 1`,
		RevaluationPosted, base, currency, date,
	).Scan(&rate)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("lookup previous revaluation rate: %w", err)
	}

	err = q.QueryRow(ctx, `
		SELECT rate FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2
		ORDER BY effective_date ASC LIMIT 1`,
		currency, base,
	).Scan(&rate)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("lookup earliest exchange rate: %w", err)
	}
	return decimal.Zero, businessf("no exchange rate on record from %s to %s", currency, base)
}

// RevalueLine fills the base-currency columns of l for the two rates.
func RevalueLine(l RevaluationLine, originalRate, revaluationRate decimal.Decimal) RevaluationLine {
	l.OriginalRate = originalRate
	l.RevaluationRate = revaluationRate
	l.BaseCurrencyBalance = round2(l.OriginalBalance.Mul(originalRate))
	l.RevaluedBalance = round2(l.OriginalBalance.Mul(revaluationRate))
	diff := l.RevaluedBalance.Sub(l.BaseCurrencyBalance)
	l.UnrealizedGain, l.UnrealizedLoss = decimal.Zero, decimal.Zero
	if diff.IsPositive() {
		l.UnrealizedGain = diff
	} else {
		l.UnrealizedLoss = diff.Abs()
	}
	return l
}

// SummarizeRevaluation totals lines overall and per currency.
func SummarizeRevaluation(lines []RevaluationLine) RevaluationPreview {
	p := RevaluationPreview{
		Lines:               lines,
		TotalUnrealizedGain: decimal.Zero,
		TotalUnrealizedLoss: decimal.Zero,
		Summaries:           []RevaluationSummary{},
	}
	if p.Lines == nil {
		p.Lines = []RevaluationLine{}
	}
	byCurrency := map[string]*RevaluationSummary{}
	for _, l := range lines {
		p.TotalUnrealizedGain = p.TotalUnrealizedGain.Add(l.UnrealizedGain)
		p.TotalUnrealizedLoss = p.TotalUnrealizedLoss.Add(l.UnrealizedLoss)
		sum, ok := byCurrency[l.Currency]
		if !ok {
			sum = &RevaluationSummary{Currency: l.Currency}
			byCurrency[l.Currency] = sum
		}
		sum.TotalAccounts++
		sum.TotalOriginalBalance = sum.TotalOriginalBalance.Add(l.OriginalBalance)
		sum.TotalRevaluedBalance = sum.TotalRevaluedBalance.Add(l.RevaluedBalance)
		sum.TotalUnrealizedGain = sum.TotalUnrealizedGain.Add(l.UnrealizedGain)
		sum.TotalUnrealizedLoss = sum.TotalUnrealizedLoss.Add(l.UnrealizedLoss)
		sum.NetChange = sum.TotalUnrealizedGain.Sub(sum.TotalUnrealizedLoss)
	}
	p.NetUnrealized = p.TotalUnrealizedGain.Sub(p.TotalUnrealizedLoss)

	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		p.Summaries = append(p.Summaries, *byCurrency[c])
	}
	return p
}

func (s *revaluationService) Create(ctx context.Context, in RevaluationInput) (CurrencyRevaluation, error) {
	if err := requireFields("revaluation_date", in.RevaluationDate, "period_start", in.PeriodStart, "period_end", in.PeriodEnd); err != nil {
		return CurrencyRevaluation{}, err
	}
	date, err := ParseDate(in.RevaluationDate)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	start, err := ParseDate(in.PeriodStart)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	end, err := ParseDate(in.PeriodEnd)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	if end.Before(start) {
		return CurrencyRevaluation{}, validationf("period_end must not be before period_start")
	}
	base := baseCurrency(in.BaseCurrency)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CurrencyRevaluation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	preview, err := computeRevaluation(ctx, tx, date, base)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	number, err := NextDocumentNumber(ctx, tx, DocRevaluation, date)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	rev, err := s.revs.With(tx).Insert(ctx, map[string]any{
		"revaluation_number":    number,
		"revaluation_date":      date,
		"period_start":          start,
		"period_end":            end,
		"base_currency":         base,
		"status":                RevaluationDraft,
		"gain_account_id":       in.GainAccountID,
		"loss_account_id":       in.LossAccountID,
		"total_unrealized_gain": preview.TotalUnrealizedGain,
		"total_unrealized_loss": preview.TotalUnrealizedLoss,
		"net_unrealized":        preview.NetUnrealized,
		"created_by":            actorID(ctx),
	})
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	lines := s.lines.With(tx)
	for _, l := range preview.Lines {
		stored, err := lines.Insert(ctx, map[string]any{
			"revaluation_id":        rev.ID,
			"account_id":            l.AccountID,
			"account_code":          l.AccountCode,
			"account_name":          l.AccountName,
			"currency":              l.Currency,
			"original_balance":      l.OriginalBalance,
			"original_rate":         l.OriginalRate,
			"revaluation_rate":      l.RevaluationRate,
			"base_currency_balance": l.BaseCurrencyBalance,
			"revalued_balance":      l.RevaluedBalance,
			"unrealized_gain":       l.UnrealizedGain,
			"unrealized_loss":       l.UnrealizedLoss,
		})
		if err != nil {
			return CurrencyRevaluation{}, fmt.Errorf("failed to insert revaluation line: %w", err)
		}
		rev.Lines = append(rev.Lines, stored)
	}
	if err := tx.Commit(ctx); err != nil {
		return CurrencyRevaluation{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info().Str("revaluation_number", number).Int("lines", len(rev.Lines)).
		Str("net_unrealized", rev.NetUnrealized.StringFixed(2)).Msg("currency revaluation created")
	s.audit.Record(ctx, "currency_revaluation", rev.ID, "create", map[string]any{"number": number, "net_unrealized": rev.NetUnrealized})
	return rev, nil
}

func (s *revaluationService) Post(ctx context.Context, id uuid.UUID, in RevaluationPostInput) (CurrencyRevaluation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CurrencyRevaluation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	revs := s.revs.With(tx)
	rev, err := revs.GetForUpdate(ctx, id)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	if rev.Status != RevaluationDraft {
		return CurrencyRevaluation{}, businessf("currency revaluation %s cannot be posted: status is %s (must be %s)",
			rev.RevaluationNumber, rev.Status, RevaluationDraft)
	}
	if in.GainAccountID != nil {
		rev.GainAccountID = in.GainAccountID
	}
	if in.LossAccountID != nil {
		rev.LossAccountID = in.LossAccountID
	}
	if rev.GainAccountID == nil || rev.LossAccountID == nil {
		return CurrencyRevaluation{}, validationf("gain_account_id and loss_account_id are required to post a revaluation")
	}

	lines, err := s.lines.With(tx).All(ctx, ListParams{}.With("revaluation_id", id))
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	je := BuildRevaluationEntry(rev, lines)
	if len(je.Lines) == 0 {
		return CurrencyRevaluation{}, businessf("currency revaluation %s has no unrealized gain or loss to post", rev.RevaluationNumber)
	}
	entry, err := insertJournalEntry(ctx, tx, je)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	if _, _, err := postJournalEntry(ctx, tx, entry.ID); err != nil {
		return CurrencyRevaluation{}, err
	}
	rev, err = revs.Update(ctx, id, map[string]any{
		"status":           RevaluationPosted,
		"gain_account_id":  rev.GainAccountID,
		"loss_account_id":  rev.LossAccountID,
		"journal_entry_id": entry.ID,
		"posted_at":        nowUTC(),
	})
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CurrencyRevaluation{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.JournalEntriesPosted.Inc()
	s.log.Info().Str("revaluation_number", rev.RevaluationNumber).Str("entry_number", entry.EntryNumber).Msg("currency revaluation posted")
	s.audit.Record(ctx, "currency_revaluation", id, "post", map[string]any{"journal_entry_id": entry.ID})
	rev.Lines = lines
	return rev, nil
}

// BuildRevaluationEntry turns revaluation lines into a balanced journal entry.
// A gain debits the revalued account and credits the gain account; a loss
// debits the loss account and credits the revalued account.
func BuildRevaluationEntry(rev CurrencyRevaluation, lines []RevaluationLine) JournalEntryInput {
	in := JournalEntryInput{
		Date:        rev.RevaluationDate.Format(dateLayout),
		Description: fmt.Sprintf("Currency revaluation %s (%s)", rev.RevaluationNumber, rev.BaseCurrency),
		Reference:   rev.RevaluationNumber,
		source:      SourceRevaluation,
	}
	for _, l := range lines {
		accountID := l.AccountID
		memo := fmt.Sprintf("%s revaluation %s @ %s", l.Currency, l.AccountCode, l.RevaluationRate.String())
		switch {
		case l.UnrealizedGain.IsPositive():
			in.Lines = append(in.Lines,
				JournalLineInput{AccountID: &accountID, Debit: l.UnrealizedGain, Description: memo},
				JournalLineInput{AccountID: rev.GainAccountID, Credit: l.UnrealizedGain, Description: memo},
			)
		case l.UnrealizedLoss.IsPositive():
			in.Lines = append(in.Lines,
				JournalLineInput{AccountID: rev.LossAccountID, Debit: l.UnrealizedLoss, Description: memo},
				JournalLineInput{AccountID: &accountID, Credit: l.UnrealizedLoss, Description: memo},
			)
		}
	}
	return in
}

func (s *revaluationService) Reverse(ctx context.Context, id uuid.UUID) (CurrencyRevaluation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return CurrencyRevaluation{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	revs := s.revs.With(tx)
	rev, err := revs.GetForUpdate(ctx, id)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	if rev.Status != RevaluationPosted || rev.JournalEntryID == nil {
		return CurrencyRevaluation{}, businessf("currency revaluation %s cannot be reversed: status is %s (must be %s)",
			rev.RevaluationNumber, rev.Status, RevaluationPosted)
	}
	reversal, err := reverseJournalEntry(ctx, tx, *rev.JournalEntryID)
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	rev, err = revs.Update(ctx, id, map[string]any{
		"status":            RevaluationReversed,
		"reversal_entry_id": reversal.ID,
	})
	if err != nil {
		return CurrencyRevaluation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CurrencyRevaluation{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	metrics.JournalEntriesPosted.Inc()
	s.log.Info().Str("revaluation_number", rev.RevaluationNumber).Msg("currency revaluation reversed")
	s.audit.Record(ctx, "currency_revaluation", id, "reverse", map[string]any{"reversal_entry_id": reversal.ID})
	return rev, nil
}
