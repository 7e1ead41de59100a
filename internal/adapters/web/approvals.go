package web

import (
	"context"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type approveBody struct {
	Comments string `json:"comments"`
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) approvalRoutes(r chi.Router) {
	a := h.svc.Approvals

	// Workflow definitions follow the module permission; request actions are
	// authorised per request by the service.
	r.Route("/workflows", func(r chi.Router) {
		r.Use(RequirePermission("approval-workflow"))
		mountResource(r, h, a.ListWorkflows, a.CreateWorkflow, a.GetWorkflow)
	})
	r.Get("/pending", listHandler(h, a.Pending))
	r.Route("/requests", func(r chi.Router) {
		mountResource(r, h, a.ListRequests, a.Submit, a.GetRequest)
		r.Post("/{id}/approve", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in approveBody) (core.ApprovalRequest, error) {
			return a.Approve(ctx, id, in.Comments)
		}))
		r.Post("/{id}/reject", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in rejectBody) (core.ApprovalRequest, error) {
			return a.Reject(ctx, id, in.Reason)
		}))
		r.Post("/{id}/cancel", actionHandler(h, a.Cancel))
	})
}
