package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ApproveAny        = "AnyApprover"
	ApproveAll        = "AllApprovers"
	ApproveSequential = "Sequential"

	RequestPending   = "Pending"
	RequestApproved  = "Approved"
	RequestRejected  = "Rejected"
	RequestCancelled = "Cancelled"

	ActionApproved = "Approved"
	ActionRejected = "Rejected"
)

type ApprovalWorkflow struct {
	ID               uuid.UUID        `db:"id" json:"id"`
	Code             string           `db:"code" json:"code"`
	Name             string           `db:"name" json:"name"`
	Description      string           `db:"description" json:"description"`
	DocumentType     string           `db:"document_type" json:"document_type"`
	ApprovalType     string           `db:"approval_type" json:"approval_type"`
	MinAmount        *decimal.Decimal `db:"min_amount" json:"min_amount"`
	MaxAmount        *decimal.Decimal `db:"max_amount" json:"max_amount"`
	AutoApproveBelow *decimal.Decimal `db:"auto_approve_below" json:"auto_approve_below"`
	Status           string           `db:"status" json:"status"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`

	Levels []ApprovalLevel `db:"-" json:"levels"`
}

// Covers reports whether amount falls inside the workflow's band. Missing
// bounds are open.
func (w ApprovalWorkflow) Covers(amount decimal.Decimal) bool {
	if w.MinAmount != nil && amount.LessThan(*w.MinAmount) {
		return false
	}
	if w.MaxAmount != nil && amount.GreaterThan(*w.MaxAmount) {
		return false
	}
	return true
}

// AutoApproves reports whether amount is below the auto-approval threshold.
func (w ApprovalWorkflow) AutoApproves(amount decimal.Decimal) bool {
	return w.AutoApproveBelow != nil && amount.LessThan(*w.AutoApproveBelow)
}

type ApprovalLevel struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	WorkflowID  uuid.UUID   `db:"workflow_id" json:"workflow_id"`
	LevelNumber int         `db:"level_number" json:"level_number"`
	Name        string      `db:"name" json:"name"`
	ApproverIDs []uuid.UUID `db:"approver_ids" json:"approver_ids"`
	DueHours    *int        `db:"due_hours" json:"due_hours"`
}

func (l ApprovalLevel) HasApprover(id uuid.UUID) bool {
	for _, a := range l.ApproverIDs {
		if a == id {
			return true
		}
	}
	return false
}

func (l ApprovalLevel) dueFrom(t time.Time) *time.Time {
	if l.DueHours == nil {
		return nil
	}
	due := t.Add(time.Duration(*l.DueHours) * time.Hour)
	return &due
}

type ApprovalWorkflowInput struct {
	Code             string               `json:"code"`
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	DocumentType     string               `json:"document_type"`
	ApprovalType     string               `json:"approval_type"`
	MinAmount        *decimal.Decimal     `json:"min_amount"`
	MaxAmount        *decimal.Decimal     `json:"max_amount"`
	AutoApproveBelow *decimal.Decimal     `json:"auto_approve_below"`
	Levels           []ApprovalLevelInput `json:"levels"`
}

type ApprovalLevelInput struct {
	Name        string      `json:"name"`
	ApproverIDs []uuid.UUID `json:"approver_ids"`
	DueHours    *int        `json:"due_hours"`
}

type ApprovalRequest struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RequestNumber   string          `db:"request_number" json:"request_number"`
	WorkflowID      uuid.UUID       `db:"workflow_id" json:"workflow_id"`
	DocumentType    string          `db:"document_type" json:"document_type"`
	DocumentID      string          `db:"document_id" json:"document_id"`
	DocumentNumber  string          `db:"document_number" json:"document_number"`
	RequestedBy     uuid.UUID       `db:"requested_by" json:"requested_by"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	Status          string          `db:"status" json:"status"`
	CurrentLevel    *int            `db:"current_level" json:"current_level"`
	DueDate         *time.Time      `db:"due_date" json:"due_date"`
	ApprovedAt      *time.Time      `db:"approved_at" json:"approved_at"`
	ApprovedBy      *uuid.UUID      `db:"approved_by" json:"approved_by"`
	RejectedAt      *time.Time      `db:"rejected_at" json:"rejected_at"`
	RejectedBy      *uuid.UUID      `db:"rejected_by" json:"rejected_by"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`

	Approvals []ApprovalRecord `db:"-" json:"approvals,omitempty"`
}

type ApprovalRecord struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RequestID   uuid.UUID `db:"request_id" json:"request_id"`
	LevelNumber int       `db:"level_number" json:"level_number"`
	ApproverID  uuid.UUID `db:"approver_id" json:"approver_id"`
	Action      string    `db:"action" json:"action"`
	Comments    string    `db:"comments" json:"comments"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type SubmitApprovalInput struct {
	DocumentType   string          `json:"document_type"`
	DocumentID     string          `json:"document_id"`
	DocumentNumber string          `json:"document_number"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// LevelComplete reports whether approvals distinct approvals finish a level
// that has approvers approvers.
func LevelComplete(approvalType string, approvals, approvers int) bool {
	if approvalType == ApproveAll {
		return approvals >= approvers
	}
	return approvals >= 1
}

// nextLevel returns the lowest level numbered above current.
func nextLevel(levels []ApprovalLevel, current int) (ApprovalLevel, bool) {
	var best ApprovalLevel
	found := false
	for _, l := range levels {
		if l.LevelNumber > current && (!found || l.LevelNumber < best.LevelNumber) {
			best, found = l, true
		}
	}
	return best, found
}

func levelByNumber(levels []ApprovalLevel, n int) (ApprovalLevel, bool) {
	for _, l := range levels {
		if l.LevelNumber == n {
			return l, true
		}
	}
	return ApprovalLevel{}, false
}
