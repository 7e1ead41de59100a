package core_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"erp-server/internal/core"
	"erp-server/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test to protect live database")
	}

	ctx := context.Background()
	if err := db.MigrateUp(ctx, dbURL); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE
			users, document_sequences, audit_logs, notifications,
			accounts, journal_entries, journal_lines, fiscal_years, exchange_rates,
			currency_revaluations, currency_revaluation_lines,
			products, warehouses, stock_levels, stock_movements,
			customers, quotations, quotation_lines, sales_orders, sales_order_lines, invoices,
			vendors, purchase_orders, purchase_order_lines,
			employees, attendance, leave_requests, payroll_runs,
			tickets, kb_articles, it_assets, software_licenses,
			data_subjects, consents, dsar_requests, data_breaches,
			projects, project_tasks, project_milestones, timesheets,
			sourcing_events, bids, business_rules, rulesets, rule_executions,
			credit_profiles, credit_transactions, credit_holds, credit_limit_changes, credit_alerts,
			approval_workflows, approval_levels, approval_requests, approval_records
		CASCADE`)
	if err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}
	return pool
}

type services struct {
	audit    core.AuditService
	notif    core.NotificationService
	users    core.UserService
	ledger   core.LedgerService
	reports  core.ReportingService
	reval    core.RevaluationService
	stock    core.InventoryService
	credit   core.CreditService
	sales    core.SalesService
	vendors  core.VendorService
	purchase core.PurchaseOrderService
	hr       core.HRService
	desk     core.ServiceDeskService
	assets   core.AssetService
	privacy  core.ComplianceService
	projects core.ProjectService
	sourcing core.SourcingService
	rules    core.RuleEngine
	approve  core.ApprovalService
}

func newServices(pool *pgxpool.Pool) services {
	log := zerolog.Nop()
	audit := core.NewAuditService(pool, log)
	notif := core.NewNotificationService(pool, nil, log)
	credit := core.NewCreditService(pool, audit, notif, log)
	return services{
		audit:    audit,
		notif:    notif,
		users:    core.NewUserService(pool),
		ledger:   core.NewLedgerService(pool, audit, log),
		reports:  core.NewReportingService(pool),
		reval:    core.NewRevaluationService(pool, audit, log),
		stock:    core.NewInventoryService(pool, audit, log),
		credit:   credit,
		sales:    core.NewSalesService(pool, credit, audit, log),
		vendors:  core.NewVendorService(pool, audit),
		purchase: core.NewPurchaseOrderService(pool, audit, log),
		hr:       core.NewHRService(pool, audit, log),
		desk:     core.NewServiceDeskService(pool, audit, log),
		assets:   core.NewAssetService(pool, audit, log),
		privacy:  core.NewComplianceService(pool, audit, log),
		projects: core.NewProjectService(pool, audit, log),
		sourcing: core.NewSourcingService(pool, audit, log),
		rules:    core.NewRuleEngine(pool, audit, log),
		approve:  core.NewApprovalService(pool, audit, notif, log),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func seedAccounts(t *testing.T, ctx context.Context, ledger core.LedgerService) {
	t.Helper()
	for _, a := range []core.AccountInput{
		{Code: "1000", Name: "Cash", AccountType: core.AccountAsset},
		{Code: "4000", Name: "Sales Revenue", AccountType: core.AccountRevenue},
	} {
		if _, err := ledger.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount %s: %v", a.Code, err)
		}
	}
}

func cashSale(date, amount string) core.JournalEntryInput {
	return core.JournalEntryInput{
		Date:        date,
		Description: "Cash sale",
		Lines: []core.JournalLineInput{
			{AccountCode: "1000", Debit: dec(amount)},
			{AccountCode: "4000", Credit: dec(amount)},
		},
	}
}

func TestLedger_PostAndReverse(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()
	seedAccounts(t, ctx, svc.ledger)

	je, err := svc.ledger.CreateEntry(ctx, cashSale("2026-03-10", "150.00"))
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if je.Status != core.EntryDraft || je.EntryNumber != "JE-2026-00001" {
		t.Errorf("new entry = %s %s", je.EntryNumber, je.Status)
	}

	posted, err := svc.ledger.PostEntry(ctx, je.ID)
	if err != nil {
		t.Fatalf("PostEntry failed: %v", err)
	}
	if posted.Status != core.EntryPosted || posted.PostedAt == nil {
		t.Errorf("posted entry = %+v", posted)
	}
	// Posting twice is a no-op.
	if again, err := svc.ledger.PostEntry(ctx, je.ID); err != nil || again.Status != core.EntryPosted {
		t.Errorf("second post = %v, %v", again.Status, err)
	}

	tb, err := svc.reports.TrialBalance(ctx, nil)
	if err != nil {
		t.Fatalf("TrialBalance failed: %v", err)
	}
	if !tb.TotalDebits.Equal(dec("150")) || !tb.TotalCredits.Equal(dec("150")) {
		t.Errorf("trial balance after post = %s / %s", tb.TotalDebits, tb.TotalCredits)
	}

	reversal, err := svc.ledger.ReverseEntry(ctx, je.ID)
	if err != nil {
		t.Fatalf("ReverseEntry failed: %v", err)
	}
	if reversal.ReversalOf == nil || *reversal.ReversalOf != je.ID || reversal.Status != core.EntryPosted {
		t.Errorf("reversal = %+v", reversal)
	}
	orig, err := svc.ledger.GetEntry(ctx, je.ID)
	if err != nil {
		t.Fatal(err)
	}
	if orig.Status != core.EntryReversed {
		t.Errorf("original status = %s", orig.Status)
	}
	if _, err := svc.ledger.ReverseEntry(ctx, je.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("second reversal err = %v, want ErrBusinessRule", err)
	}

	tb, err = svc.reports.TrialBalance(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tb.Accounts) != 0 {
		t.Errorf("trial balance after reversal has %d non-zero accounts", len(tb.Accounts))
	}
}

func TestLedger_RejectsInvalidEntries(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()
	seedAccounts(t, ctx, svc.ledger)

	unbalanced := cashSale("2026-03-10", "100")
	unbalanced.Lines[1].Credit = dec("90")
	if _, err := svc.ledger.CreateEntry(ctx, unbalanced); !errors.Is(err, core.ErrValidation) {
		t.Errorf("unbalanced err = %v, want ErrValidation", err)
	}

	unknown := cashSale("2026-03-10", "100")
	unknown.Lines[0].AccountCode = "9999"
	if _, err := svc.ledger.CreateEntry(ctx, unknown); err == nil {
		t.Error("expected an error for an unknown account")
	}

	// A rejected entry does not consume a number.
	je, err := svc.ledger.CreateEntry(ctx, cashSale("2026-03-10", "100"))
	if err != nil {
		t.Fatal(err)
	}
	if je.EntryNumber != "JE-2026-00001" {
		t.Errorf("entry number = %s, want JE-2026-00001", je.EntryNumber)
	}
}

func TestLedger_ClosedFiscalYearBlocksPosting(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()
	seedAccounts(t, ctx, svc.ledger)

	fy, err := svc.ledger.CreateFiscalYear(ctx, core.FiscalYearInput{Name: "FY2025", StartDate: "2025-01-01", EndDate: "2025-12-31"})
	if err != nil {
		t.Fatalf("CreateFiscalYear failed: %v", err)
	}

	draft, err := svc.ledger.CreateEntry(ctx, cashSale("2025-06-01", "10"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ledger.CloseFiscalYear(ctx, fy.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("closing with a draft inside: err = %v, want ErrBusinessRule", err)
	}
	if _, err := svc.ledger.PostEntry(ctx, draft.ID); err != nil {
		t.Fatal(err)
	}
	closed, err := svc.ledger.CloseFiscalYear(ctx, fy.ID)
	if err != nil {
		t.Fatalf("CloseFiscalYear failed: %v", err)
	}
	if closed.Status != core.FiscalClosed {
		t.Errorf("status = %s", closed.Status)
	}

	late, err := svc.ledger.CreateEntry(ctx, cashSale("2025-11-15", "10"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ledger.PostEntry(ctx, late.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("posting into a closed year: err = %v, want ErrBusinessRule", err)
	}
}

func TestInventory_StockMovements(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	p, err := svc.stock.CreateProduct(ctx, core.ProductInput{SKU: "WIDGET-1", Name: "Widget", Unit: "pcs", UnitPrice: ptr(dec("25"))})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if _, err := svc.stock.CreateProduct(ctx, core.ProductInput{SKU: "WIDGET-1", Name: "Dup", Unit: "pcs"}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate sku err = %v, want ErrConflict", err)
	}
	wh, err := svc.stock.CreateWarehouse(ctx, core.WarehouseInput{Code: "MAIN", Name: "Main"})
	if err != nil {
		t.Fatalf("CreateWarehouse failed: %v", err)
	}

	move := func(kind, qty string) error {
		_, err := svc.stock.RecordMovement(ctx, core.StockMovementInput{
			ProductID: p.ID, WarehouseID: wh.ID, MovementType: kind, Quantity: dec(qty),
		})
		return err
	}
	if err := move(core.MovementReceipt, "10"); err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if err := move(core.MovementIssue, "4"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := move(core.MovementIssue, "10"); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("over-issue err = %v, want ErrBusinessRule", err)
	}

	ps, err := svc.stock.ProductStock(ctx, p.ID)
	if err != nil {
		t.Fatalf("ProductStock failed: %v", err)
	}
	if !ps.Total.Equal(dec("6")) {
		t.Errorf("stock total = %s, want 6", ps.Total)
	}
}

func TestSales_CreditLimitBlocksConfirmation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	p, err := svc.stock.CreateProduct(ctx, core.ProductInput{SKU: "SVC-1", Name: "Service", Unit: "h", UnitPrice: ptr(dec("80"))})
	if err != nil {
		t.Fatal(err)
	}
	cust, err := svc.sales.CreateCustomer(ctx, core.CustomerInput{Code: "C001", Name: "Acme", CreditLimit: ptr(dec("100"))})
	if err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	small, err := svc.sales.CreateOrder(ctx, core.SalesOrderInput{
		CustomerID: cust.ID, OrderDate: "2026-04-01",
		Lines: []core.LineItemInput{{ProductID: p.ID, Quantity: dec("1")}},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if _, err := svc.sales.ConfirmOrder(ctx, small.ID); err != nil {
		t.Fatalf("confirming an order within the limit: %v", err)
	}

	big, err := svc.sales.CreateOrder(ctx, core.SalesOrderInput{
		CustomerID: cust.ID, OrderDate: "2026-04-02",
		Lines: []core.LineItemInput{{ProductID: p.ID, Quantity: dec("2")}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.sales.ConfirmOrder(ctx, big.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("over-limit confirm err = %v, want ErrBusinessRule", err)
	}

	prof, err := svc.credit.GetProfile(ctx, cust.ID)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if !prof.CreditUsed.Equal(dec("80")) || !prof.AvailableCredit.Equal(dec("20")) {
		t.Errorf("profile used %s available %s", prof.CreditUsed, prof.AvailableCredit)
	}

	check, err := svc.credit.Check(ctx, core.CreditCheckInput{CustomerID: cust.ID, OrderAmount: dec("50")})
	if err != nil {
		t.Fatal(err)
	}
	if check.Result != core.CreditBlocked {
		t.Errorf("check result = %s, want Blocked", check.Result)
	}
}

func TestApproval_TwoLevelWorkflow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	register := func(name string) context.Context {
		u, err := svc.users.Register(ctx, core.RegisterInput{Username: name, Email: name + "@example.com", Password: "passw0rd-" + name})
		if err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
		return core.WithActor(ctx, core.Actor{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	requester, manager, director := register("req"), register("manager"), register("director")

	_, err := svc.approve.CreateWorkflow(ctx, core.ApprovalWorkflowInput{
		Code: "PO-SPEND", Name: "Purchase spend", DocumentType: "purchase_order",
		ApprovalType: core.ApproveAny,
		Levels: []core.ApprovalLevelInput{
			{Name: "Manager", ApproverIDs: []uuid.UUID{core.ActorFrom(manager).ID}, DueHours: ptr(24)},
			{Name: "Director", ApproverIDs: []uuid.UUID{core.ActorFrom(director).ID}},
		},
	})
	if err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	req, err := svc.approve.Submit(requester, core.SubmitApprovalInput{
		DocumentType: "purchase_order", DocumentID: "po-1", DocumentNumber: "PO-2026-00001",
		Amount: dec("5000"), Currency: "USD",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if req.Status != core.RequestPending || req.CurrentLevel == nil || *req.CurrentLevel != 1 {
		t.Fatalf("submitted request = %+v", req)
	}

	if _, err := svc.approve.Approve(director, req.ID, "too early"); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("director at level 1: err = %v, want ErrForbidden", err)
	}
	req, err = svc.approve.Approve(manager, req.ID, "ok")
	if err != nil {
		t.Fatalf("manager approve failed: %v", err)
	}
	if req.Status != core.RequestPending || *req.CurrentLevel != 2 {
		t.Errorf("after level 1: status %s level %v", req.Status, *req.CurrentLevel)
	}

	pending, err := svc.approve.Pending(director, core.ListParams{}.Normalize())
	if err != nil {
		t.Fatal(err)
	}
	if pending.Total != 1 {
		t.Errorf("director pending = %d, want 1", pending.Total)
	}

	req, err = svc.approve.Approve(director, req.ID, "")
	if err != nil {
		t.Fatalf("director approve failed: %v", err)
	}
	if req.Status != core.RequestApproved {
		t.Errorf("final status = %s", req.Status)
	}
	if _, err := svc.approve.Cancel(requester, req.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("cancelling an approved request: err = %v, want ErrBusinessRule", err)
	}

	unread, err := svc.notif.UnreadCount(ctx, core.ActorFrom(requester).ID)
	if err != nil {
		t.Fatal(err)
	}
	if unread == 0 {
		t.Error("requester was not notified of the decision")
	}
}

func TestDocumentNumbers_ArePerYear(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	next := func(date time.Time) string {
		tx, err := pool.Begin(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer tx.Rollback(ctx)
		n, err := core.NextDocumentNumber(ctx, tx, core.DocInvoice, date)
		if err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(ctx); err != nil {
			t.Fatal(err)
		}
		return n
	}
	d2026 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if n := next(d2026); n != "INV-2026-00001" {
		t.Errorf("first = %s", n)
	}
	if n := next(d2026); n != "INV-2026-00002" {
		t.Errorf("second = %s", n)
	}
	if n := next(d2026.AddDate(1, 0, 0)); n != "INV-2027-00001" {
		t.Errorf("new year = %s", n)
	}

	// A rolled-back transaction releases its number.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := core.NextDocumentNumber(ctx, tx, core.DocInvoice, d2026); err != nil {
		t.Fatal(err)
	}
	_ = tx.Rollback(ctx)
	if n := next(d2026); n != "INV-2026-00003" {
		t.Errorf("after rollback = %s, want INV-2026-00003", n)
	}
}
