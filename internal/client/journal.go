package client

import (
	"errors"

	"erp-server/internal/core"
)

// ErrUnbalanced matches every *BalanceError.
var ErrUnbalanced = errors.New("journal entry must balance")

// BalanceError reports the totals of a line set that fails the balance rule.
type BalanceError struct {
	Validation core.JournalValidation
}

func (e *BalanceError) Error() string {
	return core.BalanceMessage(e.Validation.TotalDebit, e.Validation.TotalCredit)
}

func (e *BalanceError) Is(target error) bool { return target == ErrUnbalanced }

// ValidateJournalLines runs the server's journal rules locally and rejects
// line sets that do not balance. The other line rules are left to the server,
// which reports them with field context.
func ValidateJournalLines(lines []core.JournalLineInput) error {
	v := core.ValidateJournalLines(lines)
	if v.Balanced() {
		return nil
	}
	return &BalanceError{Validation: v}
}
