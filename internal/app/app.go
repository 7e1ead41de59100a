// Package app wires the core services together. It is the single place that
// knows every constructor and the order dependencies must be built in.
package app

import (
	"erp-server/internal/adapters/web"
	"erp-server/internal/ai"
	"erp-server/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Deps are the optional collaborators of the services. Both may be nil.
type Deps struct {
	Publisher core.NotificationPublisher
	Assistant ai.Suggester
}

// App holds one instance of every service.
type App struct {
	Pool *pgxpool.Pool

	Users         core.UserService
	Audit         core.AuditService
	Notifications core.NotificationService

	Ledger       core.LedgerService
	Reports      core.ReportingService
	Revaluations core.RevaluationService
	Assistant    ai.Suggester

	Inventory   core.InventoryService
	Credit      core.CreditService
	Sales       core.SalesService
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

// New builds every service over pool. Each service logs with its own
// component field.
func New(pool *pgxpool.Pool, deps Deps, log zerolog.Logger) *App {
	component := func(name string) zerolog.Logger {
		return log.With().Str("component", name).Logger()
	}

	audit := core.NewAuditService(pool, component("audit"))
	notifications := core.NewNotificationService(pool, deps.Publisher, component("notifications"))
	credit := core.NewCreditService(pool, audit, notifications, component("credit"))

	return &App{
		Pool:          pool,
		Users:         core.NewUserService(pool),
		Audit:         audit,
		Notifications: notifications,

		Ledger:       core.NewLedgerService(pool, audit, component("ledger")),
		Reports:      core.NewReportingService(pool),
		Revaluations: core.NewRevaluationService(pool, audit, component("revaluation")),
		Assistant:    deps.Assistant,

		Inventory:   core.NewInventoryService(pool, audit, component("inventory")),
		Credit:      credit,
		Sales:       core.NewSalesService(pool, credit, audit, component("sales")),
		Vendors:     core.NewVendorService(pool, audit),
		Purchasing:  core.NewPurchaseOrderService(pool, audit, component("purchasing")),
		HR:          core.NewHRService(pool, audit, component("hr")),
		ServiceDesk: core.NewServiceDeskService(pool, audit, component("service")),
		Assets:      core.NewAssetService(pool, audit, component("assets")),
		Compliance:  core.NewComplianceService(pool, audit, component("compliance")),
		Projects:    core.NewProjectService(pool, audit, component("projects")),
		Pricing:     core.NewPricingService(pool, audit),
		Sourcing:    core.NewSourcingService(pool, audit, component("sourcing")),
		CRM:         core.NewCRMService(pool, audit),
		Settings:    core.NewSettingsService(pool, audit),
		Rules:       core.NewRuleEngine(pool, audit, component("rules")),
		Approvals:   core.NewApprovalService(pool, audit, notifications, component("approvals")),
	}
}

// WebServices exposes the services to the HTTP layer.
func (a *App) WebServices() web.Services {
	return web.Services{
		DB:            a.Pool,
		Users:         a.Users,
		Audit:         a.Audit,
		Notifications: a.Notifications,
		Ledger:        a.Ledger,
		Reports:       a.Reports,
		Revaluations:  a.Revaluations,
		Assistant:     a.Assistant,
		Inventory:     a.Inventory,
		Sales:         a.Sales,
		Credit:        a.Credit,
		Vendors:       a.Vendors,
		Purchasing:    a.Purchasing,
		HR:            a.HR,
		ServiceDesk:   a.ServiceDesk,
		Assets:        a.Assets,
		Compliance:    a.Compliance,
		Projects:      a.Projects,
		Pricing:       a.Pricing,
		Sourcing:      a.Sourcing,
		CRM:           a.CRM,
		Settings:      a.Settings,
		Rules:         a.Rules,
		Approvals:     a.Approvals,
	}
}
