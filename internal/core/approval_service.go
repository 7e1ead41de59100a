package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"erp-server/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ApprovalService routes documents through multi-level approval workflows.
type ApprovalService interface {
	ListWorkflows(ctx context.Context, p ListParams) (Page[ApprovalWorkflow], error)
	CreateWorkflow(ctx context.Context, in ApprovalWorkflowInput) (ApprovalWorkflow, error)
	GetWorkflow(ctx context.Context, id uuid.UUID) (ApprovalWorkflow, error)

	ListRequests(ctx context.Context, p ListParams) (Page[ApprovalRequest], error)
	GetRequest(ctx context.Context, id uuid.UUID) (ApprovalRequest, error)
	// Pending lists the requests waiting on the caller at their current level.
	Pending(ctx context.Context, p ListParams) (Page[ApprovalRequest], error)

	Submit(ctx context.Context, in SubmitApprovalInput) (ApprovalRequest, error)
	Approve(ctx context.Context, id uuid.UUID, comments string) (ApprovalRequest, error)
	Reject(ctx context.Context, id uuid.UUID, reason string) (ApprovalRequest, error)
	Cancel(ctx context.Context, id uuid.UUID) (ApprovalRequest, error)
}

type approvalService struct {
	pool          *pgxpool.Pool
	workflows     *Resource[ApprovalWorkflow]
	levels        *Resource[ApprovalLevel]
	requests      *Resource[ApprovalRequest]
	records       *Resource[ApprovalRecord]
	audit         AuditService
	notifications NotificationService
	log           zerolog.Logger
}

func NewApprovalService(pool *pgxpool.Pool, audit AuditService, notifications NotificationService, log zerolog.Logger) ApprovalService {
	return &approvalService{
		pool: pool,
		workflows: NewResource[ApprovalWorkflow](pool, ResourceSpec{
			Table: "approval_workflows", Entity: "approval workflow",
			Filters: map[string]string{"document_type": "document_type", "status": "status"},
			Search:  []string{"code", "name"},
			OrderBy: "created_at",
			Touch:   true,
		}),
		levels: NewResource[ApprovalLevel](pool, ResourceSpec{
			Table: "approval_levels", Entity: "approval level",
			OrderBy: "level_number",
		}),
		requests: NewResource[ApprovalRequest](pool, ResourceSpec{
			Table: "approval_requests", Entity: "approval request",
			Filters: map[string]string{"status": "status", "document_type": "document_type", "requested_by": "requested_by"},
			Search:  []string{"request_number", "document_number"},
			Touch:   true,
		}),
		records: NewResource[ApprovalRecord](pool, ResourceSpec{
			Table: "approval_records", Entity: "approval record",
			OrderBy: "created_at",
		}),
		audit:         audit,
		notifications: notifications,
		log:           log,
	}
}

// ── Workflows ─────────────────────────────────────────────────────────────────

func (s *approvalService) ListWorkflows(ctx context.Context, p ListParams) (Page[ApprovalWorkflow], error) {
	page, err := s.workflows.List(ctx, p)
	if err != nil {
		return Page[ApprovalWorkflow]{}, err
	}
	for i := range page.Items {
		if page.Items[i].Levels, err = s.loadLevels(ctx, s.pool, page.Items[i].ID); err != nil {
			return Page[ApprovalWorkflow]{}, err
		}
	}
	return page, nil
}

func (s *approvalService) GetWorkflow(ctx context.Context, id uuid.UUID) (ApprovalWorkflow, error) {
	return s.workflowWithLevels(ctx, s.pool, id)
}

func (s *approvalService) CreateWorkflow(ctx context.Context, in ApprovalWorkflowInput) (ApprovalWorkflow, error) {
	if err := requireFields("code", in.Code, "name", in.Name, "document_type", in.DocumentType); err != nil {
		return ApprovalWorkflow{}, err
	}
	if in.ApprovalType == "" {
		in.ApprovalType = ApproveAny
	}
	if err := oneOf("approval_type", in.ApprovalType, ApproveAny, ApproveAll, ApproveSequential); err != nil {
		return ApprovalWorkflow{}, err
	}
	if len(in.Levels) == 0 {
		return ApprovalWorkflow{}, validationf("at least one approval level is required")
	}
	if in.MinAmount != nil && in.MaxAmount != nil && in.MaxAmount.LessThan(*in.MinAmount) {
		return ApprovalWorkflow{}, validationf("max_amount cannot be less than min_amount")
	}
	for i, l := range in.Levels {
		if strings.TrimSpace(l.Name) == "" {
			return ApprovalWorkflow{}, validationf("level %d: name is required", i+1)
		}
		if len(l.ApproverIDs) == 0 {
			return ApprovalWorkflow{}, validationf("level %d: at least one approver is required", i+1)
		}
		if l.DueHours != nil && *l.DueHours <= 0 {
			return ApprovalWorkflow{}, validationf("level %d: due_hours must be greater than zero", i+1)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApprovalWorkflow{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wf, err := s.workflows.With(tx).Insert(ctx, map[string]any{
		"code":               strings.TrimSpace(in.Code),
		"name":               strings.TrimSpace(in.Name),
		"description":        in.Description,
		"document_type":      in.DocumentType,
		"approval_type":      in.ApprovalType,
		"min_amount":         in.MinAmount,
		"max_amount":         in.MaxAmount,
		"auto_approve_below": in.AutoApproveBelow,
	})
	if errors.Is(err, ErrConflict) {
		return ApprovalWorkflow{}, conflictf("approval workflow %s already exists", strings.TrimSpace(in.Code))
	}
	if err != nil {
		return ApprovalWorkflow{}, err
	}
	levels := s.levels.With(tx)
	for i, l := range in.Levels {
		lv, err := levels.Insert(ctx, map[string]any{
			"workflow_id":  wf.ID,
			"level_number": i + 1,
			"name":         strings.TrimSpace(l.Name),
			"approver_ids": l.ApproverIDs,
			"due_hours":    l.DueHours,
		})
		if err != nil {
			return ApprovalWorkflow{}, err
		}
		wf.Levels = append(wf.Levels, lv)
	}
	if err := tx.Commit(ctx); err != nil {
		return ApprovalWorkflow{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.audit.Record(ctx, "approval_workflow", wf.ID, "create", map[string]any{
		"code": wf.Code, "document_type": wf.DocumentType, "levels": len(wf.Levels),
	})
	return wf, nil
}

// ── Requests ──────────────────────────────────────────────────────────────────

func (s *approvalService) ListRequests(ctx context.Context, p ListParams) (Page[ApprovalRequest], error) {
	return s.requests.List(ctx, p)
}

func (s *approvalService) GetRequest(ctx context.Context, id uuid.UUID) (ApprovalRequest, error) {
	req, err := s.requests.Get(ctx, id)
	if err != nil {
		return ApprovalRequest{}, err
	}
	req.Approvals, err = s.records.All(ctx, ListParams{}.With("request_id", id))
	if err != nil {
		return ApprovalRequest{}, err
	}
	return req, nil
}

func (s *approvalService) Pending(ctx context.Context, p ListParams) (Page[ApprovalRequest], error) {
	me, err := requireActor(ctx)
	if err != nil {
		return Page[ApprovalRequest]{}, err
	}
	p = p.Normalize()
	const from = `
		FROM approval_requests r
		JOIN approval_levels l ON l.workflow_id = r.workflow_id AND l.level_number = r.current_level
		WHERE r.status = 'Pending' AND $1 = ANY(l.approver_ids)
		  AND NOT EXISTS (
		      SELECT 1 FROM approval_records a
		      WHERE a.request_id = r.id AND a.level_number = r.current_level AND a.approver_id = $1)`

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*)"+from, me).Scan(&total); err != nil {
		return Page[ApprovalRequest]{}, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	cols := columnsOf[ApprovalRequest]()
	for i, c := range cols {
		cols[i] = "r." + c
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s%s ORDER BY r.due_date NULLS LAST, r.created_at LIMIT $2 OFFSET $3", strings.Join(cols, ", "), from),
		me, p.PerPage, p.Offset())
	if err != nil {
		return Page[ApprovalRequest]{}, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[ApprovalRequest])
	if err != nil {
		return Page[ApprovalRequest]{}, fmt.Errorf("failed to scan pending approvals: %w", err)
	}
	return NewPage(items, total, p), nil
}

func (s *approvalService) Submit(ctx context.Context, in SubmitApprovalInput) (ApprovalRequest, error) {
	me, err := requireActor(ctx)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if err := requireFields("document_type", in.DocumentType, "document_id", in.DocumentID); err != nil {
		return ApprovalRequest{}, err
	}
	if in.Amount.IsNegative() {
		return ApprovalRequest{}, validationf("amount cannot be negative")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = defaultBase
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	wf, err := s.matchWorkflow(ctx, tx, in.DocumentType, in.Amount)
	if err != nil {
		return ApprovalRequest{}, err
	}
	number, err := NextDocumentNumber(ctx, tx, DocApproval, todayUTC())
	if err != nil {
		return ApprovalRequest{}, err
	}
	now := nowUTC()
	values := map[string]any{
		"request_number":  number,
		"workflow_id":     wf.ID,
		"document_type":   in.DocumentType,
		"document_id":     in.DocumentID,
		"document_number": in.DocumentNumber,
		"requested_by":    me,
		"amount":          in.Amount,
		"currency":        currency,
	}
	auto := wf.AutoApproves(in.Amount)
	var first ApprovalLevel
	if auto {
		values["status"] = RequestApproved
		values["approved_at"] = now
		values["approved_by"] = me
	} else {
		var ok bool
		if first, ok = nextLevel(wf.Levels, 0); !ok {
			return ApprovalRequest{}, businessf("approval workflow %s has no levels", wf.Code)
		}
		values["current_level"] = first.LevelNumber
		values["due_date"] = first.dueFrom(now)
	}
	req, err := s.requests.With(tx).Insert(ctx, values)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if auto {
		metrics.ApprovalDecisions.WithLabelValues("auto_approve").Inc()
		s.log.Info().Str("request", req.RequestNumber).Str("amount", in.Amount.String()).Msg("approval request auto-approved")
		s.audit.Record(ctx, "approval_request", req.ID, "auto_approve", map[string]any{"workflow": wf.Code, "amount": req.Amount})
		return req, nil
	}
	metrics.ApprovalDecisions.WithLabelValues("submit").Inc()
	s.log.Info().Str("request", req.RequestNumber).Str("workflow", wf.Code).Msg("approval request submitted")
	s.audit.Record(ctx, "approval_request", req.ID, "submit", map[string]any{"workflow": wf.Code, "amount": req.Amount})
	s.notifyLevel(ctx, req, first)
	return req, nil
}

func (s *approvalService) Approve(ctx context.Context, id uuid.UUID, comments string) (ApprovalRequest, error) {
	me, err := requireActor(ctx)
	if err != nil {
		return ApprovalRequest{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	req, wf, level, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if !level.HasApprover(me) {
		return ApprovalRequest{}, forbiddenf("you are not an approver for level %d of request %s", level.LevelNumber, req.RequestNumber)
	}

	var already bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM approval_records
		WHERE request_id = $1 AND level_number = $2 AND approver_id = $3 AND action = $4)`,
		id, level.LevelNumber, me, ActionApproved).Scan(&already)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to check prior approval: %w", err)
	}
	if already {
		return ApprovalRequest{}, conflictf("you already approved level %d of request %s", level.LevelNumber, req.RequestNumber)
	}
	if _, err := s.records.With(tx).Insert(ctx, map[string]any{
		"request_id":   id,
		"level_number": level.LevelNumber,
		"approver_id":  me,
		"action":       ActionApproved,
		"comments":     comments,
	}); err != nil {
		return ApprovalRequest{}, err
	}

	var approvals int
	err = tx.QueryRow(ctx, `
		SELECT count(DISTINCT approver_id) FROM approval_records
		WHERE request_id = $1 AND level_number = $2 AND action = $3`,
		id, level.LevelNumber, ActionApproved).Scan(&approvals)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to count approvals: %w", err)
	}

	requests := s.requests.With(tx)
	var advanced *ApprovalLevel
	finalised := false
	if LevelComplete(wf.ApprovalType, approvals, len(level.ApproverIDs)) {
		now := nowUTC()
		if next, ok := nextLevel(wf.Levels, level.LevelNumber); ok {
			req, err = requests.Update(ctx, id, map[string]any{
				"current_level": next.LevelNumber,
				"due_date":      next.dueFrom(now),
			})
			advanced = &next
		} else {
			req, err = requests.Update(ctx, id, map[string]any{
				"status":        RequestApproved,
				"current_level": nil,
				"due_date":      nil,
				"approved_at":   now,
				"approved_by":   me,
			})
			finalised = true
		}
		if err != nil {
			return ApprovalRequest{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.ApprovalDecisions.WithLabelValues("approve").Inc()
	s.audit.Record(ctx, "approval_request", id, "approve", map[string]any{"level": level.LevelNumber, "comments": comments})
	switch {
	case finalised:
		s.log.Info().Str("request", req.RequestNumber).Msg("approval request approved")
		s.notifications.Notify(ctx, NotificationInput{
			UserIDs: []uuid.UUID{req.RequestedBy},
			Title:   "Approval granted",
			Message: fmt.Sprintf("%s %s was approved", req.DocumentType, documentLabel(req)),
			Type:    "approval",
			Link:    "/approval-workflow/requests/" + req.ID.String(),
		})
	case advanced != nil:
		s.log.Info().Str("request", req.RequestNumber).Int("level", advanced.LevelNumber).Msg("approval request advanced")
		s.notifyLevel(ctx, req, *advanced)
	}
	return s.GetRequest(ctx, id)
}

func (s *approvalService) Reject(ctx context.Context, id uuid.UUID, reason string) (ApprovalRequest, error) {
	me, err := requireActor(ctx)
	if err != nil {
		return ApprovalRequest{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ApprovalRequest{}, validationf("reason is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	req, _, level, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if !level.HasApprover(me) {
		return ApprovalRequest{}, forbiddenf("you are not an approver for level %d of request %s", level.LevelNumber, req.RequestNumber)
	}
	if _, err := s.records.With(tx).Insert(ctx, map[string]any{
		"request_id":   id,
		"level_number": level.LevelNumber,
		"approver_id":  me,
		"action":       ActionRejected,
		"comments":     reason,
	}); err != nil {
		return ApprovalRequest{}, err
	}
	req, err = s.requests.With(tx).Update(ctx, id, map[string]any{
		"status":           RequestRejected,
		"current_level":    nil,
		"due_date":         nil,
		"rejected_at":      nowUTC(),
		"rejected_by":      me,
		"rejection_reason": reason,
	})
	if err != nil {
		return ApprovalRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.ApprovalDecisions.WithLabelValues("reject").Inc()
	s.log.Info().Str("request", req.RequestNumber).Msg("approval request rejected")
	s.audit.Record(ctx, "approval_request", id, "reject", map[string]any{"level": level.LevelNumber, "reason": reason})
	s.notifications.Notify(ctx, NotificationInput{
		UserIDs: []uuid.UUID{req.RequestedBy},
		Title:   "Approval rejected",
		Message: fmt.Sprintf("%s %s was rejected: %s", req.DocumentType, documentLabel(req), reason),
		Type:    "approval",
		Link:    "/approval-workflow/requests/" + req.ID.String(),
	})
	return s.GetRequest(ctx, id)
}

func (s *approvalService) Cancel(ctx context.Context, id uuid.UUID) (ApprovalRequest, error) {
	me, err := requireActor(ctx)
	if err != nil {
		return ApprovalRequest{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	requests := s.requests.With(tx)
	req, err := requests.GetForUpdate(ctx, id)
	if err != nil {
		return ApprovalRequest{}, err
	}
	if req.Status != RequestPending {
		return ApprovalRequest{}, businessf("approval request %s is %s; only %s requests can be cancelled", req.RequestNumber, req.Status, RequestPending)
	}
	if req.RequestedBy != me {
		return ApprovalRequest{}, forbiddenf("only the requester can cancel request %s", req.RequestNumber)
	}
	req, err = requests.Update(ctx, id, map[string]any{
		"status":        RequestCancelled,
		"current_level": nil,
		"due_date":      nil,
	})
	if err != nil {
		return ApprovalRequest{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ApprovalRequest{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.ApprovalDecisions.WithLabelValues("cancel").Inc()
	s.audit.Record(ctx, "approval_request", id, "cancel", nil)
	return req, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func requireActor(ctx context.Context) (uuid.UUID, error) {
	id := ActorFrom(ctx).ID
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("no authenticated user: %w", ErrUnauthorized)
	}
	return id, nil
}

func documentLabel(r ApprovalRequest) string {
	if r.DocumentNumber != "" {
		return r.DocumentNumber
	}
	return r.DocumentID
}

func (s *approvalService) loadLevels(ctx context.Context, q Querier, workflowID uuid.UUID) ([]ApprovalLevel, error) {
	return s.levels.With(q).All(ctx, ListParams{}.With("workflow_id", workflowID))
}

func (s *approvalService) workflowWithLevels(ctx context.Context, q Querier, id uuid.UUID) (ApprovalWorkflow, error) {
	wf, err := s.workflows.With(q).Get(ctx, id)
	if err != nil {
		return ApprovalWorkflow{}, err
	}
	wf.Levels, err = s.loadLevels(ctx, q, id)
	if err != nil {
		return ApprovalWorkflow{}, err
	}
	return wf, nil
}

// matchWorkflow picks the oldest active workflow for docType whose band covers amount.
func (s *approvalService) matchWorkflow(ctx context.Context, q Querier, docType string, amount decimal.Decimal) (ApprovalWorkflow, error) {
	candidates, err := s.workflows.With(q).All(ctx, ListParams{}.With("document_type", docType).With("status", "Active"))
	if err != nil {
		return ApprovalWorkflow{}, err
	}
	for _, wf := range candidates {
		if !wf.Covers(amount) {
			continue
		}
		wf.Levels, err = s.loadLevels(ctx, q, wf.ID)
		if err != nil {
			return ApprovalWorkflow{}, err
		}
		return wf, nil
	}
	return ApprovalWorkflow{}, businessf("no active approval workflow for %s covers amount %s", docType, amount.StringFixed(2))
}

// lockPending locks a Pending request and resolves its workflow and current level.
func (s *approvalService) lockPending(ctx context.Context, tx pgx.Tx, id uuid.UUID) (ApprovalRequest, ApprovalWorkflow, ApprovalLevel, error) {
	req, err := s.requests.With(tx).GetForUpdate(ctx, id)
	if err != nil {
		return ApprovalRequest{}, ApprovalWorkflow{}, ApprovalLevel{}, err
	}
	if req.Status != RequestPending || req.CurrentLevel == nil {
		return ApprovalRequest{}, ApprovalWorkflow{}, ApprovalLevel{},
			businessf("approval request %s is %s, not %s", req.RequestNumber, req.Status, RequestPending)
	}
	wf, err := s.workflowWithLevels(ctx, tx, req.WorkflowID)
	if err != nil {
		return ApprovalRequest{}, ApprovalWorkflow{}, ApprovalLevel{}, err
	}
	level, ok := levelByNumber(wf.Levels, *req.CurrentLevel)
	if !ok {
		return ApprovalRequest{}, ApprovalWorkflow{}, ApprovalLevel{},
			businessf("approval request %s points at missing level %d", req.RequestNumber, *req.CurrentLevel)
	}
	return req, wf, level, nil
}

func (s *approvalService) notifyLevel(ctx context.Context, req ApprovalRequest, level ApprovalLevel) {
	s.notifications.Notify(ctx, NotificationInput{
		UserIDs: level.ApproverIDs,
		Title:   "Approval required",
		Message: fmt.Sprintf("%s %s (%s %s) awaits your approval at %s",
			req.DocumentType, documentLabel(req), req.Amount.StringFixed(2), req.Currency, level.Name),
		Type: "approval",
		Link: "/approval-workflow/requests/" + req.ID.String(),
	})
}
