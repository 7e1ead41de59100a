package web

import (
	"context"
	"net/http"
	"time"

	"erp-server/internal/ai"
	"erp-server/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func init() {
	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services is everything the HTTP layer calls into.
type Services struct {
	DB Pinger

	Users         core.UserService
	Audit         core.AuditService
	Notifications core.NotificationService

	Ledger       core.LedgerService
	Reports      core.ReportingService
	Revaluations core.RevaluationService
	Assistant    ai.Suggester

	Inventory   core.InventoryService
	Sales       core.SalesService
	Credit      core.CreditService
	Vendors     core.VendorService
	Purchasing  core.PurchaseOrderService
	HR          core.HRService
	ServiceDesk core.ServiceDeskService
	Assets      core.AssetService
	Compliance  core.ComplianceService
	Projects    core.ProjectService
	Pricing     core.PricingService
	Sourcing    core.SourcingService
	CRM         core.CRMService
	Settings    core.SettingsService
	Rules       core.RuleEngine
	Approvals   core.ApprovalService
}

// Options configures the router.
type Options struct {
	AllowedOrigins string
	BodyLimit      int64
	UploadLimit    int64
	JWTSecret      string
	TokenTTL       time.Duration
	Version        string
	Metrics        bool
	Log            zerolog.Logger
}

// Handler holds the services and settings shared by every route.
type Handler struct {
	svc       Services
	log       zerolog.Logger
	jwtSecret []byte
	tokenTTL  time.Duration
	version   string
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc Services, opts Options) http.Handler {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 1 << 20
	}
	if opts.UploadLimit <= 0 {
		opts.UploadLimit = 10 << 20
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	h := &Handler{
		svc:       svc,
		log:       opts.Log,
		jwtSecret: []byte(opts.JWTSecret),
		tokenTTL:  opts.TokenTTL,
		version:   opts.Version,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Metrics)
	r.Use(Recoverer(opts.Log))
	r.Use(CORS(opts.AllowedOrigins))

	r.Get("/health", h.health)
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Route("/auth", func(r chi.Router) { h.authRoutes(r, opts.BodyLimit) })

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Route("/auth", func(r chi.Router) { h.authRoutes(r, opts.BodyLimit) })

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			// Uploads carry their own, larger limit.
			r.With(RequirePermission("inventory"), RequestBodyLimit(opts.UploadLimit)).
				Post("/inventory/products/import", h.importProducts)

			r.Group(func(r chi.Router) {
				r.Use(RequestBodyLimit(opts.BodyLimit))

				module := func(name string, routes func(chi.Router)) {
					r.Route("/"+name, func(r chi.Router) {
						r.Use(RequirePermission(name))
						routes(r)
					})
				}
				module("finance", h.financeRoutes)
				module("inventory", h.inventoryRoutes)
				module("sales", h.salesRoutes)
				module("purchasing", h.purchasingRoutes)
				module("hr", h.hrRoutes)
				module("service", h.serviceRoutes)
				module("assets", h.assetRoutes)
				module("compliance", h.complianceRoutes)
				module("projects", h.projectRoutes)
				module("pricing", h.pricingRoutes)
				module("sourcing", h.sourcingRoutes)
				module("crm", h.crmRoutes)
				module("config", h.configRoutes)
				module("rules", h.ruleRoutes)
				module("credit", h.creditRoutes)
				// Approvers act under their own role; the service checks they
				// belong to the request's current level.
				r.Route("/approval-workflow", h.approvalRoutes)

				r.Route("/notifications", h.notificationRoutes)
				r.With(RequirePermission("audit")).Get("/audit-logs", listHandler(h, h.svc.Audit.List))
			})
		})
	})
	return r
}

func (h *Handler) authRoutes(r chi.Router, bodyLimit int64) {
	r.Use(RequestBodyLimit(bodyLimit))
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.With(h.RequireAuth).Get("/me", h.me)
}

// health returns service status, database reachability and the build version.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status   string `json:"status"`
		Database string `json:"database"`
		Version  string `json:"version"`
	}
	resp := response{Status: "ok", Database: "ok", Version: h.version}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.svc.DB == nil || h.svc.DB.Ping(ctx) != nil {
		resp.Status = "degraded"
		resp.Database = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
