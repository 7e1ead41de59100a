package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	RevaluationDraft    = "Draft"
	RevaluationPosted   = "Posted"
	RevaluationReversed = "Reversed"
)

type CurrencyRevaluation struct {
	ID                  uuid.UUID         `db:"id" json:"id"`
	RevaluationNumber   string            `db:"revaluation_number" json:"revaluation_number"`
	RevaluationDate     time.Time         `db:"revaluation_date" json:"revaluation_date"`
	PeriodStart         time.Time         `db:"period_start" json:"period_start"`
	PeriodEnd           time.Time         `db:"period_end" json:"period_end"`
	BaseCurrency        string            `db:"base_currency" json:"base_currency"`
	Status              string            `db:"status" json:"status"`
	GainAccountID       *uuid.UUID        `db:"gain_account_id" json:"gain_account_id"`
	LossAccountID       *uuid.UUID        `db:"loss_account_id" json:"loss_account_id"`
	TotalUnrealizedGain decimal.Decimal   `db:"total_unrealized_gain" json:"total_unrealized_gain"`
	TotalUnrealizedLoss decimal.Decimal   `db:"total_unrealized_loss" json:"total_unrealized_loss"`
	NetUnrealized       decimal.Decimal   `db:"net_unrealized" json:"net_unrealized"`
	JournalEntryID      *uuid.UUID        `db:"journal_entry_id" json:"journal_entry_id"`
	ReversalEntryID     *uuid.UUID        `db:"reversal_entry_id" json:"reversal_entry_id"`
	CreatedBy           *uuid.UUID        `db:"created_by" json:"created_by"`
	PostedAt            *time.Time        `db:"posted_at" json:"posted_at"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	Lines               []RevaluationLine `db:"-" json:"lines,omitempty"`
}

type RevaluationLine struct {
	ID                  uuid.UUID       `db:"id" json:"id"`
	RevaluationID       uuid.UUID       `db:"revaluation_id" json:"revaluation_id"`
	AccountID           uuid.UUID       `db:"account_id" json:"account_id"`
	AccountCode         string          `db:"account_code" json:"account_code"`
	AccountName         string          `db:"account_name" json:"account_name"`
	Currency            string          `db:"currency" json:"currency"`
	OriginalBalance     decimal.Decimal `db:"original_balance" json:"original_balance"`
	OriginalRate        decimal.Decimal `db:"original_rate" json:"original_rate"`
	RevaluationRate     decimal.Decimal `db:"revaluation_rate" json:"revaluation_rate"`
	BaseCurrencyBalance decimal.Decimal `db:"base_currency_balance" json:"base_currency_balance"`
	RevaluedBalance     decimal.Decimal `db:"revalued_balance" json:"revalued_balance"`
	UnrealizedGain      decimal.Decimal `db:"unrealized_gain" json:"unrealized_gain"`
	UnrealizedLoss      decimal.Decimal `db:"unrealized_loss" json:"unrealized_loss"`
}

type RevaluationSummary struct {
	Currency             string          `json:"currency"`
	TotalAccounts        int             `json:"total_accounts"`
	TotalOriginalBalance decimal.Decimal `json:"total_original_balance"`
	TotalRevaluedBalance decimal.Decimal `json:"total_revalued_balance"`
	TotalUnrealizedGain  decimal.Decimal `json:"total_unrealized_gain"`
	TotalUnrealizedLoss  decimal.Decimal `json:"total_unrealized_loss"`
	NetChange            decimal.Decimal `json:"net_change"`
}

type RevaluationPreview struct {
	RevaluationDate     string               `json:"revaluation_date"`
	BaseCurrency        string               `json:"base_currency"`
	Lines               []RevaluationLine    `json:"lines"`
	TotalUnrealizedGain decimal.Decimal      `json:"total_unrealized_gain"`
	TotalUnrealizedLoss decimal.Decimal      `json:"total_unrealized_loss"`
	NetUnrealized       decimal.Decimal      `json:"net_unrealized"`
	Summaries           []RevaluationSummary `json:"summaries"`
}

type RevaluationPreviewInput struct {
	RevaluationDate string `json:"revaluation_date"`
	BaseCurrency    string `json:"base_currency"`
}

type RevaluationInput struct {
	RevaluationDate string     `json:"revaluation_date"`
	PeriodStart     string     `json:"period_start"`
	PeriodEnd       string     `json:"period_end"`
	BaseCurrency    string     `json:"base_currency"`
	GainAccountID   *uuid.UUID `json:"gain_account_id"`
	LossAccountID   *uuid.UUID `json:"loss_account_id"`
}

// RevaluationPostInput optionally supplies the gain and loss accounts at posting time.
type RevaluationPostInput struct {
	GainAccountID *uuid.UUID `json:"gain_account_id"`
	LossAccountID *uuid.UUID `json:"loss_account_id"`
}
