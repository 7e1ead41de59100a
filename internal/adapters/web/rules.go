package web

import (
	"net/http"

	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ruleRoutes(r chi.Router) {
	rules := h.svc.Rules

	r.Route("/rules", func(r chi.Router) {
		mountResource(r, h, rules.ListRules, rules.CreateRule, rules.GetRule)
		r.Delete("/{id}", h.deleteRule)
	})
	r.Route("/rulesets", func(r chi.Router) {
		r.Get("/", listHandler(h, rules.ListRulesets))
		r.Post("/", createHandler(h, rules.CreateRuleset))
	})
	r.Post("/execute", h.executeRules)
	r.Get("/executions", listHandler(h, rules.ListExecutions))
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Rules.DeleteRule(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// executeRules handles POST /rules/execute and returns one result per
// evaluated rule.
func (h *Handler) executeRules(w http.ResponseWriter, r *http.Request) {
	var in core.ExecuteRulesInput
	if !decodeJSON(w, r, &in) {
		return
	}
	results, err := h.svc.Rules.Execute(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if results == nil {
		results = []core.RuleExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "evaluated": len(results)})
}
