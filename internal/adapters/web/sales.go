package web

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) salesRoutes(r chi.Router) {
	sales := h.svc.Sales

	r.Route("/customers", func(r chi.Router) {
		mountResource(r, h, sales.ListCustomers, sales.CreateCustomer, sales.GetCustomer)
	})
	r.Route("/orders", func(r chi.Router) {
		mountResource(r, h, sales.ListOrders, sales.CreateOrder, sales.GetOrder)
		r.Post("/{id}/confirm", actionHandler(h, sales.ConfirmOrder))
		r.Post("/{id}/cancel", actionHandler(h, sales.CancelOrder))
	})
	r.Route("/invoices", func(r chi.Router) {
		mountResource(r, h, sales.ListInvoices, sales.CreateInvoice, sales.GetInvoice)
		r.Post("/{id}/pay", bodyActionHandler(h, sales.PayInvoice))
	})
	r.Route("/quotations", func(r chi.Router) {
		mountResource(r, h, sales.ListQuotations, sales.CreateQuotation, sales.GetQuotation)
		r.Post("/{id}/send", actionHandler(h, sales.SendQuotation))
		r.Post("/{id}/accept", actionHandler(h, sales.AcceptQuotation))
		r.Post("/{id}/reject", actionHandler(h, sales.RejectQuotation))
		r.Post("/{id}/convert", createdActionHandler(h, sales.ConvertQuotation))
	})
}

func (h *Handler) purchasingRoutes(r chi.Router) {
	r.Route("/vendors", func(r chi.Router) {
		mountResource(r, h, h.svc.Vendors.ListVendors, h.svc.Vendors.CreateVendor, h.svc.Vendors.GetVendor)
	})
	po := h.svc.Purchasing
	r.Route("/orders", func(r chi.Router) {
		mountResource(r, h, po.ListOrders, po.CreateOrder, po.GetOrder)
		r.Post("/{id}/approve", actionHandler(h, po.ApproveOrder))
		r.Post("/{id}/receive", bodyActionHandler(h, po.ReceiveOrder))
		r.Post("/{id}/cancel", actionHandler(h, po.CancelOrder))
	})
}
