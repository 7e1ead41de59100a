package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	AccountAsset     = "Asset"
	AccountLiability = "Liability"
	AccountEquity    = "Equity"
	AccountRevenue   = "Revenue"
	AccountExpense   = "Expense"

	StatusActive  = "Active"
	StatusDeleted = "Deleted"

	EntryDraft    = "Draft"
	EntryPosted   = "Posted"
	EntryReversed = "Reversed"

	SourceManual      = "MANUAL"
	SourceReversal    = "REVERSAL"
	SourceRevaluation = "REVALUATION"

	FiscalOpen   = "Open"
	FiscalClosed = "Closed"
)

var accountTypes = []string{AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense}

type Account struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Code        string     `db:"code" json:"code"`
	Name        string     `db:"name" json:"name"`
	AccountType string     `db:"account_type" json:"account_type"`
	ParentID    *uuid.UUID `db:"parent_id" json:"parent_id"`
	Currency    string     `db:"currency" json:"currency"`
	Description string     `db:"description" json:"description"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type AccountInput struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	AccountType string     `json:"account_type"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Currency    string     `json:"currency"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
}

type JournalEntry struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EntryNumber string          `db:"entry_number" json:"entry_number"`
	EntryDate   time.Time       `db:"entry_date" json:"entry_date"`
	Description string          `db:"description" json:"description"`
	Reference   string          `db:"reference" json:"reference"`
	Status      string          `db:"status" json:"status"`
	Source      string          `db:"source" json:"source"`
	ReversalOf  *uuid.UUID      `db:"reversal_of" json:"reversal_of"`
	TotalDebit  decimal.Decimal `db:"total_debit" json:"total_debit"`
	TotalCredit decimal.Decimal `db:"total_credit" json:"total_credit"`
	CreatedBy   *uuid.UUID      `db:"created_by" json:"created_by"`
	PostedAt    *time.Time      `db:"posted_at" json:"posted_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
	Lines       []JournalLine   `db:"-" json:"lines,omitempty"`
}

type JournalLine struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EntryID     uuid.UUID       `db:"entry_id" json:"entry_id"`
	LineNo      int             `db:"line_no" json:"line_no"`
	AccountID   uuid.UUID       `db:"account_id" json:"account_id"`
	Description string          `db:"description" json:"description"`
	Debit       decimal.Decimal `db:"debit" json:"debit"`
	Credit      decimal.Decimal `db:"credit" json:"credit"`
}

// JournalLineInput identifies the account by id or by code.
type JournalLineInput struct {
	AccountID   *uuid.UUID      `json:"account_id,omitempty"`
	AccountCode string          `json:"account_code,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

type JournalEntryInput struct {
	Date        string             `json:"date"`
	Description string             `json:"description"`
	Reference   string             `json:"reference"`
	Lines       []JournalLineInput `json:"lines"`

	source     string
	reversalOf *uuid.UUID
}

// JournalValidation is the dry-run result of POST /journal-entries/validate.
type JournalValidation struct {
	Valid       bool            `json:"valid"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Difference  decimal.Decimal `json:"difference"`
	Errors      []string        `json:"errors"`
}

type FiscalYear struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	StartDate time.Time  `db:"start_date" json:"start_date"`
	EndDate   time.Time  `db:"end_date" json:"end_date"`
	Status    string     `db:"status" json:"status"`
	ClosedAt  *time.Time `db:"closed_at" json:"closed_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

type FiscalYearInput struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type ExchangeRate struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	FromCurrency  string          `db:"from_currency" json:"from_currency"`
	ToCurrency    string          `db:"to_currency" json:"to_currency"`
	Rate          decimal.Decimal `db:"rate" json:"rate"`
	EffectiveDate time.Time       `db:"effective_date" json:"effective_date"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type ExchangeRateInput struct {
	FromCurrency  string          `json:"from_currency"`
	ToCurrency    string          `json:"to_currency"`
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate string          `json:"effective_date"`
}
