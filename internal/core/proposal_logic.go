package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ValidateJournalLines checks the structural rules a journal entry must satisfy
// before any account lookup: at least two lines, one positive side per line, no
// negative amounts, and debits within 0.01 of credits.
func ValidateJournalLines(lines []JournalLineInput) JournalValidation {
	v := JournalValidation{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero, Errors: []string{}}
	if len(lines) < 2 {
		v.Errors = append(v.Errors, "Journal entry must have at least 2 lines")
	}
	for i, l := range lines {
		n := i + 1
		if l.AccountID == nil && strings.TrimSpace(l.AccountCode) == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: account is required", n))
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: amounts cannot be negative", n))
			continue
		}
		hasDebit, hasCredit := l.Debit.IsPositive(), l.Credit.IsPositive()
		if hasDebit == hasCredit {
			v.Errors = append(v.Errors, fmt.Sprintf("line %d: exactly one of debit or credit must be greater than zero", n))
		}
		v.TotalDebit = v.TotalDebit.Add(l.Debit)
		v.TotalCredit = v.TotalCredit.Add(l.Credit)
	}
	v.Difference = v.TotalDebit.Sub(v.TotalCredit).Abs()
	if !v.Balanced() {
		v.Errors = append(v.Errors, BalanceMessage(v.TotalDebit, v.TotalCredit))
	}
	v.Valid = len(v.Errors) == 0
	return v
}

// Balanced reports whether debits and credits agree within one cent.
func (v JournalValidation) Balanced() bool {
	return !v.Difference.GreaterThan(balanceTol)
}

// BalanceMessage describes an unbalanced entry.
func BalanceMessage(debits, credits decimal.Decimal) string {
	return fmt.Sprintf("Journal entry must balance. Debits: %s, Credits: %s", debits.StringFixed(2), credits.StringFixed(2))
}

// validateJournalInput returns the first rule violation as a validation error.
func validateJournalInput(in JournalEntryInput) error {
	if strings.TrimSpace(in.Description) == "" {
		return validationf("description is required")
	}
	v := ValidateJournalLines(in.Lines)
	if v.Valid {
		return nil
	}
	// The balance message is the one callers key on; surface it first.
	for _, e := range v.Errors {
		if strings.HasPrefix(e, "Journal entry must balance") {
			return validationf("%s", e)
		}
	}
	return validationf("%s", v.Errors[0])
}

// Normalize cleans up model output before validation.
func (p *Proposal) Normalize() {
	p.Description = strings.TrimSpace(p.Description)
	p.Date = strings.TrimSpace(p.Date)
	for i := range p.Lines {
		line := &p.Lines[i]
		line.AccountCode = strings.TrimSpace(line.AccountCode)
		if strings.TrimSpace(line.Amount) == "" || strings.EqualFold(line.Amount, "null") {
			line.Amount = "0.00"
		}
	}
}

// ToInput converts a proposal into a journal entry request, rejecting
// unparseable amounts.
func (p *Proposal) ToInput() (JournalEntryInput, error) {
	in := JournalEntryInput{Date: p.Date, Description: p.Description, Reference: "AI"}
	for _, l := range p.Lines {
		amt, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return in, validationf("invalid amount %q for account %s", l.Amount, l.AccountCode)
		}
		li := JournalLineInput{AccountCode: l.AccountCode, Description: l.Memo}
		if l.IsDebit {
			li.Debit = amt
		} else {
			li.Credit = amt
		}
		in.Lines = append(in.Lines, li)
	}
	return in, nil
}

// Validate applies the journal rules to the proposal.
func (p *Proposal) Validate() error {
	if p.Date != "" {
		if _, err := ParseDate(p.Date); err != nil {
			return err
		}
	}
	in, err := p.ToInput()
	if err != nil {
		return err
	}
	return validateJournalInput(in)
}
