package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// AccountBalance is the posted net-debit position of one account
// (positive = net debit, negative = net credit).
type AccountBalance struct {
	AccountID   uuid.UUID       `json:"account_id"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	AccountType string          `json:"account_type"`
	Balance     decimal.Decimal `json:"balance"`
}

type TrialBalanceLine struct {
	AccountID   uuid.UUID       `json:"account_id"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type TrialBalance struct {
	AsOfDate     string             `json:"as_of_date"`
	Accounts     []TrialBalanceLine `json:"accounts"`
	TotalDebits  decimal.Decimal    `json:"total_debits"`
	TotalCredits decimal.Decimal    `json:"total_credits"`
}

// BalanceSheet shows liabilities and equity as positive credit balances.
type BalanceSheet struct {
	AsOfDate         string           `json:"as_of_date"`
	Assets           []AccountBalance `json:"assets"`
	TotalAssets      decimal.Decimal  `json:"total_assets"`
	Liabilities      []AccountBalance `json:"liabilities"`
	TotalLiabilities decimal.Decimal  `json:"total_liabilities"`
	Equity           []AccountBalance `json:"equity"`
	TotalEquity      decimal.Decimal  `json:"total_equity"`
}

type ProfitAndLoss struct {
	FromDate      string           `json:"from_date"`
	ToDate        string           `json:"to_date"`
	Revenue       []AccountBalance `json:"revenue"`
	TotalRevenue  decimal.Decimal  `json:"total_revenue"`
	Expenses      []AccountBalance `json:"expenses"`
	TotalExpenses decimal.Decimal  `json:"total_expenses"`
	NetIncome     decimal.Decimal  `json:"net_income"`
}

// StatementLine is one posted journal line of an account statement.
// RunningBalance is the cumulative debit minus credit after this line.
type StatementLine struct {
	EntryID        uuid.UUID       `json:"entry_id"`
	EntryNumber    string          `json:"entry_number"`
	EntryDate      time.Time       `json:"entry_date"`
	Description    string          `json:"description"`
	Reference      string          `json:"reference"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// ReportPeriod bounds a report. Nil bounds are open.
type ReportPeriod struct {
	From *time.Time
	To   *time.Time
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only reporting queries over posted entries.
type ReportingService interface {
	TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error)
	BalanceSheet(ctx context.Context, asOf *time.Time) (BalanceSheet, error)
	ProfitAndLoss(ctx context.Context, period ReportPeriod) (ProfitAndLoss, error)
	// AccountStatement returns posted lines for one account ordered by date.
	AccountStatement(ctx context.Context, accountID uuid.UUID, period ReportPeriod) ([]StatementLine, error)
}

type reportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) ReportingService {
	return &reportingService{pool: pool}
}

// balances aggregates posted journal lines per account within period.
func (s *reportingService) balances(ctx context.Context, period ReportPeriod, types ...string) ([]AccountBalance, error) {
	const q = `
		SELECT a.id, a.code, a.name, a.account_type,
		       COALESCE(b.total_debit, 0) - COALESCE(b.total_credit, 0) AS net_balance
		FROM accounts a
		LEFT JOIN (
		    SELECT jl.account_id,
		           SUM(jl.debit)  AS total_debit,
		           SUM(jl.credit) AS total_credit
		    FROM journal_lines jl
		    JOIN journal_entries je ON je.id = jl.entry_id
		    WHERE je.status IN ('Posted', 'Reversed')
		      AND ($1::date IS NULL OR je.entry_date >= $1::date)
		      AND ($2::date IS NULL OR je.entry_date <= $2::date)
		    GROUP BY jl.account_id
		) b ON b.account_id = a.id
		WHERE a.account_type = ANY($3)
		ORDER BY a.code`

	rows, err := s.pool.Query(ctx, q, period.From, period.To, types)
	if err != nil {
		return nil, fmt.Errorf("failed to query account balances: %w", err)
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.AccountCode, &b.AccountName, &b.AccountType, &b.Balance); err != nil {
			return nil, fmt.Errorf("failed to scan account balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("account balance iteration error: %w", err)
	}
	return out, nil
}

func (s *reportingService) TrialBalance(ctx context.Context, asOf *time.Time) (TrialBalance, error) {
	b, err := s.balances(ctx, ReportPeriod{To: asOf}, accountTypes...)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(b, reportDate(asOf)), nil
}

func (s *reportingService) BalanceSheet(ctx context.Context, asOf *time.Time) (BalanceSheet, error) {
	b, err := s.balances(ctx, ReportPeriod{To: asOf}, AccountAsset, AccountLiability, AccountEquity)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(b, reportDate(asOf)), nil
}

func (s *reportingService) ProfitAndLoss(ctx context.Context, period ReportPeriod) (ProfitAndLoss, error) {
	b, err := s.balances(ctx, period, AccountRevenue, AccountExpense)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	pl := BuildProfitAndLoss(b)
	if period.From != nil {
		pl.FromDate = period.From.Format(dateLayout)
	}
	pl.ToDate = reportDate(period.To)
	return pl, nil
}

func (s *reportingService) AccountStatement(ctx context.Context, accountID uuid.UUID, period ReportPeriod) ([]StatementLine, error) {
	if _, err := accountResource(s.pool).Get(ctx, accountID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT je.id, je.entry_number, je.entry_date, je.description, je.reference, jl.debit, jl.credit
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.entry_id
		WHERE jl.account_id = $1
		  AND je.status IN ('Posted', 'Reversed')
		  AND ($2::date IS NULL OR je.entry_date >= $2::date)
		  AND ($3::date IS NULL OR je.entry_date <= $3::date)
		ORDER BY je.entry_date, je.entry_number, jl.line_no`,
		accountID, period.From, period.To,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query account statement: %w", err)
	}
	defer rows.Close()

	lines := []StatementLine{}
	running := decimal.Zero
	for rows.Next() {
		var sl StatementLine
		if err := rows.Scan(&sl.EntryID, &sl.EntryNumber, &sl.EntryDate, &sl.Description, &sl.Reference, &sl.Debit, &sl.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		running = running.Add(sl.Debit).Sub(sl.Credit)
		sl.RunningBalance = running
		lines = append(lines, sl)
	}
	return lines, rows.Err()
}

func reportDate(t *time.Time) string {
	if t == nil {
		return nowUTC().Format(dateLayout)
	}
	return t.Format(dateLayout)
}

// ── Report shaping ────────────────────────────────────────────────────────────

// BuildTrialBalance places each non-zero balance on its debit or credit side.
func BuildTrialBalance(balances []AccountBalance, asOf string) TrialBalance {
	tb := TrialBalance{AsOfDate: asOf, Accounts: []TrialBalanceLine{}, TotalDebits: decimal.Zero, TotalCredits: decimal.Zero}
	for _, b := range balances {
		if b.Balance.IsZero() {
			continue
		}
		line := TrialBalanceLine{
			AccountID: b.AccountID, AccountCode: b.AccountCode, AccountName: b.AccountName,
			Debit: decimal.Zero, Credit: decimal.Zero,
		}
		if b.Balance.IsPositive() {
			line.Debit = b.Balance
		} else {
			line.Credit = b.Balance.Abs()
		}
		tb.TotalDebits = tb.TotalDebits.Add(line.Debit)
		tb.TotalCredits = tb.TotalCredits.Add(line.Credit)
		tb.Accounts = append(tb.Accounts, line)
	}
	return tb
}

func BuildBalanceSheet(balances []AccountBalance, asOf string) BalanceSheet {
	bs := BalanceSheet{
		AsOfDate: asOf,
		Assets:   []AccountBalance{}, Liabilities: []AccountBalance{}, Equity: []AccountBalance{},
		TotalAssets: decimal.Zero, TotalLiabilities: decimal.Zero, TotalEquity: decimal.Zero,
	}
	for _, b := range balances {
		if b.Balance.IsZero() {
			continue
		}
		switch b.AccountType {
		case AccountAsset:
			bs.Assets = append(bs.Assets, b)
			bs.TotalAssets = bs.TotalAssets.Add(b.Balance)
		case AccountLiability:
			b.Balance = b.Balance.Neg()
			bs.Liabilities = append(bs.Liabilities, b)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(b.Balance)
		case AccountEquity:
			b.Balance = b.Balance.Neg()
			bs.Equity = append(bs.Equity, b)
			bs.TotalEquity = bs.TotalEquity.Add(b.Balance)
		}
	}
	return bs
}

// BuildProfitAndLoss reports revenue and expense balances as absolute values.
func BuildProfitAndLoss(balances []AccountBalance) ProfitAndLoss {
	pl := ProfitAndLoss{
		Revenue: []AccountBalance{}, Expenses: []AccountBalance{},
		TotalRevenue: decimal.Zero, TotalExpenses: decimal.Zero,
	}
	for _, b := range balances {
		if b.Balance.IsZero() {
			continue
		}
		b.Balance = b.Balance.Abs()
		switch b.AccountType {
		case AccountRevenue:
			pl.Revenue = append(pl.Revenue, b)
			pl.TotalRevenue = pl.TotalRevenue.Add(b.Balance)
		case AccountExpense:
			pl.Expenses = append(pl.Expenses, b)
			pl.TotalExpenses = pl.TotalExpenses.Add(b.Balance)
		}
	}
	pl.NetIncome = pl.TotalRevenue.Sub(pl.TotalExpenses)
	return pl
}
