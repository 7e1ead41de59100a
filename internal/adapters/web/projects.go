package web

import (
	"context"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) projectRoutes(r chi.Router) {
	p := h.svc.Projects

	r.Route("/projects", func(r chi.Router) {
		mountResource(r, h, p.ListProjects, p.CreateProject, p.GetProject)
		r.Post("/{id}/status", bodyActionHandler(h, func(ctx context.Context, id uuid.UUID, in statusBody) (core.Project, error) {
			return p.SetProjectStatus(ctx, id, in.Status)
		}))
	})
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", listHandler(h, p.ListTasks))
		r.Post("/", createHandler(h, p.CreateTask))
		r.Post("/{id}/complete", actionHandler(h, p.CompleteTask))
	})
	r.Route("/milestones", func(r chi.Router) {
		r.Get("/", listHandler(h, p.ListMilestones))
		r.Post("/", createHandler(h, p.CreateMilestone))
		r.Post("/{id}/complete", actionHandler(h, p.CompleteMilestone))
	})
	r.Route("/timesheets", func(r chi.Router) {
		r.Get("/", listHandler(h, p.ListTimesheets))
		r.Post("/", createHandler(h, p.CreateTimesheet))
		r.Post("/{id}/approve", actionHandler(h, p.ApproveTimesheet))
	})
}

func (h *Handler) pricingRoutes(r chi.Router) {
	p := h.svc.Pricing
	r.Route("/price-books", func(r chi.Router) {
		mountResource(r, h, p.ListPriceBooks, p.CreatePriceBook, p.GetPriceBook)
	})
	r.Route("/discounts", func(r chi.Router) {
		mountResource(r, h, p.ListDiscounts, p.CreateDiscount, p.GetDiscount)
	})
	r.Route("/promotions", func(r chi.Router) {
		mountResource(r, h, p.ListPromotions, p.CreatePromotion, p.GetPromotion)
	})
}

func (h *Handler) sourcingRoutes(r chi.Router) {
	s := h.svc.Sourcing
	r.Route("/events", func(r chi.Router) {
		mountResource(r, h, s.ListEvents, s.CreateEvent, s.GetEvent)
		r.Post("/{id}/publish", actionHandler(h, s.PublishEvent))
	})
	r.Route("/bids", func(r chi.Router) {
		r.Get("/", listHandler(h, s.ListBids))
		r.Post("/", createHandler(h, s.PlaceBid))
		r.Post("/{id}/accept", actionHandler(h, s.AcceptBid))
	})
}

func (h *Handler) crmRoutes(r chi.Router) {
	c := h.svc.CRM
	r.Route("/leads", func(r chi.Router) {
		mountResource(r, h, c.ListLeads, c.CreateLead, c.GetLead)
	})
	r.Route("/opportunities", func(r chi.Router) {
		mountResource(r, h, c.ListOpportunities, c.CreateOpportunity, c.GetOpportunity)
	})
}
