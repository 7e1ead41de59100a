package web

import (
	"net/http"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (h *Handler) hrRoutes(r chi.Router) {
	hr := h.svc.HR

	r.Route("/employees", func(r chi.Router) {
		mountResource(r, h, hr.ListEmployees, hr.CreateEmployee, hr.GetEmployee)
	})
	r.Route("/attendance", func(r chi.Router) {
		r.Get("/", listHandler(h, hr.ListAttendance))
		r.Post("/check-in", h.attendance(hr.CheckIn))
		r.Post("/check-out", h.attendance(hr.CheckOut))
	})
	r.Route("/leave-requests", func(r chi.Router) {
		mountResource(r, h, hr.ListLeave, hr.CreateLeave, hr.GetLeave)
		r.Post("/{id}/approve", actionHandler(h, hr.ApproveLeave))
		r.Post("/{id}/reject", actionHandler(h, hr.RejectLeave))
	})
	r.Route("/payroll", func(r chi.Router) {
		mountResource(r, h, hr.ListPayroll, hr.CreatePayroll, hr.GetPayroll)
	})
}

// attendance serves check-in and check-out, which both take {employee_id}.
func (h *Handler) attendance(record idFunc[core.Attendance]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EmployeeID uuid.UUID `json:"employee_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.EmployeeID == uuid.Nil {
			writeError(w, r, "employee_id is required", "VALIDATION_ERROR", http.StatusBadRequest)
			return
		}
		rec, err := record(r.Context(), req.EmployeeID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}
