package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"erp-server/internal/ai"
	"erp-server/internal/core"
	"erp-server/internal/spreadsheet"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) financeRoutes(r chi.Router) {
	ledger := h.svc.Ledger

	r.Route("/accounts", func(r chi.Router) {
		mountResource(r, h, ledger.ListAccounts, ledger.CreateAccount, ledger.GetAccount)
		r.Put("/{id}", bodyActionHandler(h, ledger.UpdateAccount))
		r.Delete("/{id}", h.deleteAccount)
		r.Get("/{id}/statement", h.accountStatement)
	})

	r.Route("/journal-entries", func(r chi.Router) {
		mountResource(r, h, ledger.ListEntries, ledger.CreateEntry, ledger.GetEntry)
		r.Post("/validate", h.validateEntry)
		r.Post("/suggest", h.suggestEntry)
		r.Post("/{id}/post", actionHandler(h, ledger.PostEntry))
		r.Post("/{id}/reverse", actionHandler(h, ledger.ReverseEntry))
	})

	r.Route("/fiscal-years", func(r chi.Router) {
		mountResource(r, h, ledger.ListFiscalYears, ledger.CreateFiscalYear, ledger.GetFiscalYear)
		r.Post("/{id}/close", actionHandler(h, ledger.CloseFiscalYear))
	})

	r.Route("/exchange-rates", func(r chi.Router) {
		r.Get("/", listHandler(h, ledger.ListExchangeRates))
		r.Post("/", createHandler(h, ledger.CreateExchangeRate))
		r.Get("/rate", h.rateOn)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/profit-and-loss", h.profitAndLoss)
	})

	reval := h.svc.Revaluations
	r.Route("/currency-revaluations", func(r chi.Router) {
		r.Get("/", listHandler(h, reval.List))
		r.Post("/", createHandler(h, reval.Create))
		r.Post("/preview", h.previewRevaluation)
		r.Get("/{id}", getHandler(h, reval.Get))
		r.Get("/{id}/lines", getHandler(h, reval.Lines))
		r.Post("/{id}/post", bodyActionHandler(h, reval.Post))
		r.Post("/{id}/reverse", actionHandler(h, reval.Reverse))
	})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Ledger.DeleteAccount(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateEntry handles POST /finance/journal-entries/validate. It always
// answers 200; the body says whether the entry would be accepted.
func (h *Handler) validateEntry(w http.ResponseWriter, r *http.Request) {
	var in core.JournalEntryInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.svc.Ledger.ValidateEntry(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// suggestEntry handles POST /finance/journal-entries/suggest. The draft is
// returned to the caller and never stored.
func (h *Handler) suggestEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Narration string `json:"narration"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Narration) == "" {
		writeError(w, r, "narration is required", "VALIDATION_ERROR", http.StatusBadRequest)
		return
	}
	if h.svc.Assistant == nil {
		h.fail(w, r, ai.ErrUnavailable)
		return
	}
	accounts, err := h.activeAccounts(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.svc.Assistant.Suggest(r.Context(), req.Narration, accounts)
	if err != nil {
		if !errors.Is(err, ai.ErrUnavailable) {
			h.log.Warn().Err(err).Str("request_id", requestIDFromContext(r.Context())).Msg("assistant suggestion failed")
			writeError(w, r, "assistant could not produce a valid entry: "+err.Error(), "BUSINESS_RULE", http.StatusUnprocessableEntity)
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// activeAccounts pages through the whole chart of accounts.
func (h *Handler) activeAccounts(r *http.Request) ([]core.Account, error) {
	var all []core.Account
	p := core.ListParams{Page: 1, PerPage: core.MaxPerPage}
	for {
		page, err := h.svc.Ledger.ListAccounts(r.Context(), p)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if p.Page >= page.TotalPages {
			return all, nil
		}
		p.Page++
	}
}

// rateOn handles GET /finance/exchange-rates/rate?from=EUR&to=USD&date=2026-01-31.
func (h *Handler) rateOn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := time.Now().UTC()
	if s := q.Get("date"); s != "" {
		d, err := core.ParseDate(s)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		date = d
	}
	rate, err := h.svc.Ledger.RateOn(r.Context(), q.Get("from"), q.Get("to"), date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from_currency": strings.ToUpper(q.Get("from")),
		"to_currency":   strings.ToUpper(q.Get("to")),
		"date":          date.Format(time.DateOnly),
		"rate":          rate,
	})
}

func (h *Handler) previewRevaluation(w http.ResponseWriter, r *http.Request) {
	var in core.RevaluationPreviewInput
	if !decodeJSON(w, r, &in) {
		return
	}
	preview, err := h.svc.Revaluations.Preview(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &d, nil
}

func wantsXLSX(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "xlsx")
}

// writeWorkbook streams an xlsx attachment produced by write.
func (h *Handler) writeWorkbook(w http.ResponseWriter, r *http.Request, filename string, write func(http.ResponseWriter) error) {
	w.Header().Set("Content-Type", spreadsheet.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := write(w); err != nil {
		h.log.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Msg("write workbook")
	}
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tb, err := h.svc.Reports.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsXLSX(r) {
		h.writeWorkbook(w, r, "trial-balance-"+tb.AsOfDate+".xlsx", func(w http.ResponseWriter) error {
			return spreadsheet.WriteTrialBalance(w, tb)
		})
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bs, err := h.svc.Reports.BalanceSheet(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsXLSX(r) {
		h.writeWorkbook(w, r, "balance-sheet-"+bs.AsOfDate+".xlsx", func(w http.ResponseWriter) error {
			return spreadsheet.WriteBalanceSheet(w, bs)
		})
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (h *Handler) reportPeriod(r *http.Request) (core.ReportPeriod, error) {
	from, err := queryDate(r, "start_date")
	if err != nil {
		return core.ReportPeriod{}, err
	}
	to, err := queryDate(r, "end_date")
	if err != nil {
		return core.ReportPeriod{}, err
	}
	return core.ReportPeriod{From: from, To: to}, nil
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	period, err := h.reportPeriod(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pl, err := h.svc.Reports.ProfitAndLoss(r.Context(), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if wantsXLSX(r) {
		h.writeWorkbook(w, r, "profit-and-loss.xlsx", func(w http.ResponseWriter) error {
			return spreadsheet.WriteProfitAndLoss(w, pl)
		})
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

// accountStatement handles GET /finance/accounts/{id}/statement.
func (h *Handler) accountStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	period, err := h.reportPeriod(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lines, err := h.svc.Reports.AccountStatement(r.Context(), id, period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if lines == nil {
		lines = []core.StatementLine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"account_id": id, "lines": lines})
}
