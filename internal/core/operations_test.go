package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"erp-server/internal/core"

	"github.com/google/uuid"
)

func TestPurchasing_ApproveIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	v, err := svc.vendors.CreateVendor(ctx, core.VendorInput{Code: "V001", Name: "Parts Co"})
	if err != nil {
		t.Fatalf("CreateVendor failed: %v", err)
	}
	p, err := svc.stock.CreateProduct(ctx, core.ProductInput{SKU: "BOLT-1", Name: "Bolt", Unit: "pcs"})
	if err != nil {
		t.Fatal(err)
	}
	wh, err := svc.stock.CreateWarehouse(ctx, core.WarehouseInput{Code: "MAIN", Name: "Main"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.purchase.CreateOrder(ctx, core.PurchaseOrderInput{
		VendorID: v.ID, OrderDate: "2026-05-01",
		Lines: []core.LineItemInput{{ProductID: p.ID, Quantity: dec("5")}},
	}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("line without unit price: err = %v, want ErrValidation", err)
	}

	po, err := svc.purchase.CreateOrder(ctx, core.PurchaseOrderInput{
		VendorID: v.ID, OrderDate: "2026-05-01",
		Lines: []core.LineItemInput{{ProductID: p.ID, Quantity: dec("5"), UnitPrice: ptr(dec("2.50"))}},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if po.PONumber != "PO-2026-00001" || !po.Total.Equal(dec("12.50")) {
		t.Errorf("new order = %s total %s", po.PONumber, po.Total)
	}

	first, err := svc.purchase.ApproveOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("ApproveOrder failed: %v", err)
	}
	if first.Status != core.POApproved || first.ApprovedAt == nil {
		t.Fatalf("approved order = %+v", first)
	}
	second, err := svc.purchase.ApproveOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if second.Status != core.POApproved || !second.ApprovedAt.Equal(*first.ApprovedAt) {
		t.Errorf("second approve changed the order: %v -> %v", first.ApprovedAt, second.ApprovedAt)
	}
	if _, err := svc.purchase.CancelOrder(ctx, po.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("cancelling an approved order: err = %v, want ErrBusinessRule", err)
	}

	received, err := svc.purchase.ReceiveOrder(ctx, po.ID, core.ReceiveInput{WarehouseID: wh.ID})
	if err != nil {
		t.Fatalf("ReceiveOrder failed: %v", err)
	}
	if received.Status != core.POReceived {
		t.Errorf("status = %s", received.Status)
	}
	if _, err := svc.purchase.ApproveOrder(ctx, po.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("approving a received order: err = %v, want ErrBusinessRule", err)
	}
	ps, err := svc.stock.ProductStock(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ps.Total.Equal(dec("5")) {
		t.Errorf("stock after receipt = %s, want 5", ps.Total)
	}
}

func TestSales_PaymentsAndCancellation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	p, err := svc.stock.CreateProduct(ctx, core.ProductInput{SKU: "SVC-1", Name: "Service", Unit: "h", UnitPrice: ptr(dec("100"))})
	if err != nil {
		t.Fatal(err)
	}
	cust, err := svc.sales.CreateCustomer(ctx, core.CustomerInput{Code: "C001", Name: "Acme", CreditLimit: ptr(dec("1000"))})
	if err != nil {
		t.Fatal(err)
	}
	order := func(qty string) core.SalesOrder {
		t.Helper()
		o, err := svc.sales.CreateOrder(ctx, core.SalesOrderInput{
			CustomerID: cust.ID, OrderDate: "2026-04-01",
			Lines: []core.LineItemInput{{ProductID: p.ID, Quantity: dec(qty)}},
		})
		if err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
		if _, err := svc.sales.ConfirmOrder(ctx, o.ID); err != nil {
			t.Fatalf("ConfirmOrder failed: %v", err)
		}
		return o
	}
	pending := func() string {
		t.Helper()
		prof, err := svc.credit.GetProfile(ctx, cust.ID)
		if err != nil {
			t.Fatal(err)
		}
		return prof.PendingOrders.StringFixed(2)
	}

	kept := order("3")
	dropped := order("1")
	if got := pending(); got != "400.00" {
		t.Errorf("pending after two confirmations = %s, want 400.00", got)
	}
	cancelled, err := svc.sales.CancelOrder(ctx, dropped.ID)
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if cancelled.Status != core.OrderCancelled {
		t.Errorf("status = %s", cancelled.Status)
	}
	if got := pending(); got != "300.00" {
		t.Errorf("pending after cancelling a confirmed order = %s, want 300.00", got)
	}
	if _, err := svc.sales.CancelOrder(ctx, dropped.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("second cancel: err = %v, want ErrBusinessRule", err)
	}
	if got := pending(); got != "300.00" {
		t.Errorf("a refused cancel changed pending to %s", got)
	}

	inv, err := svc.sales.CreateInvoice(ctx, core.InvoiceInput{OrderID: kept.ID, InvoiceDate: "2026-04-05"})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if inv.Status != core.InvoiceOpen || !inv.Total.Equal(dec("300")) {
		t.Fatalf("invoice = %s total %s", inv.Status, inv.Total)
	}
	if _, err := svc.sales.CancelOrder(ctx, kept.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("cancelling an invoiced order: err = %v, want ErrBusinessRule", err)
	}

	if _, err := svc.sales.PayInvoice(ctx, inv.ID, core.PaymentInput{Amount: dec("300.01")}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("overpayment: err = %v, want ErrValidation", err)
	}
	inv, err = svc.sales.PayInvoice(ctx, inv.ID, core.PaymentInput{Amount: dec("100")})
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if inv.Status != core.InvoicePartiallyPaid || !inv.AmountPaid.Equal(dec("100")) {
		t.Errorf("after partial payment = %s paid %s", inv.Status, inv.AmountPaid)
	}
	inv, err = svc.sales.PayInvoice(ctx, inv.ID, core.PaymentInput{Amount: dec("200")})
	if err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if inv.Status != core.InvoicePaid || !inv.AmountPaid.Equal(dec("300")) {
		t.Errorf("after full payment = %s paid %s", inv.Status, inv.AmountPaid)
	}
	if _, err := svc.sales.PayInvoice(ctx, inv.ID, core.PaymentInput{Amount: dec("1")}); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("paying a paid invoice: err = %v, want ErrBusinessRule", err)
	}

	prof, err := svc.credit.GetProfile(ctx, cust.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !prof.CreditUsed.IsZero() || !prof.PendingOrders.IsZero() {
		t.Errorf("profile after settlement: used %s pending %s", prof.CreditUsed, prof.PendingOrders)
	}
}

func TestSales_QuotationTransitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	p, err := svc.stock.CreateProduct(ctx, core.ProductInput{SKU: "KIT-1", Name: "Kit", Unit: "pcs", UnitPrice: ptr(dec("40"))})
	if err != nil {
		t.Fatal(err)
	}
	cust, err := svc.sales.CreateCustomer(ctx, core.CustomerInput{Code: "C002", Name: "Globex"})
	if err != nil {
		t.Fatal(err)
	}
	q, err := svc.sales.CreateQuotation(ctx, core.QuotationInput{
		CustomerID: cust.ID, QuotationDate: "2026-04-01",
		Lines: []core.LineItemInput{{ProductID: p.ID, Quantity: dec("2")}},
	})
	if err != nil {
		t.Fatalf("CreateQuotation failed: %v", err)
	}
	if q.Status != core.QuoteDraft || !q.Total.Equal(dec("80")) {
		t.Fatalf("quotation = %s total %s", q.Status, q.Total)
	}

	illegal := []struct {
		name string
		move func(context.Context, uuid.UUID) (core.Quotation, error)
	}{
		{"accept a draft", svc.sales.AcceptQuotation},
		{"reject a draft", svc.sales.RejectQuotation},
	}
	for _, tt := range illegal {
		if _, err := tt.move(ctx, q.ID); !errors.Is(err, core.ErrBusinessRule) {
			t.Errorf("%s: err = %v, want ErrBusinessRule", tt.name, err)
		}
	}
	if _, err := svc.sales.ConvertQuotation(ctx, q.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("converting a draft: err = %v, want ErrBusinessRule", err)
	}

	if _, err := svc.sales.SendQuotation(ctx, q.ID); err != nil {
		t.Fatalf("SendQuotation failed: %v", err)
	}
	if _, err := svc.sales.SendQuotation(ctx, q.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("sending twice: err = %v, want ErrBusinessRule", err)
	}
	if _, err := svc.sales.AcceptQuotation(ctx, q.ID); err != nil {
		t.Fatalf("AcceptQuotation failed: %v", err)
	}
	o, err := svc.sales.ConvertQuotation(ctx, q.ID)
	if err != nil {
		t.Fatalf("ConvertQuotation failed: %v", err)
	}
	if o.Status != core.OrderDraft || o.QuotationID == nil || *o.QuotationID != q.ID || !o.Total.Equal(dec("80")) {
		t.Errorf("converted order = %+v", o)
	}
	if _, err := svc.sales.RejectQuotation(ctx, q.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("rejecting a converted quotation: err = %v, want ErrBusinessRule", err)
	}
	got, err := svc.sales.GetQuotation(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.QuoteConverted || got.ConvertedOrderID == nil || *got.ConvertedOrderID != o.ID {
		t.Errorf("quotation after conversion = %s %v", got.Status, got.ConvertedOrderID)
	}
}

func TestServiceDesk_TicketLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	tk, err := svc.desk.CreateTicket(ctx, core.TicketInput{Subject: "Printer jammed"})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if tk.Status != core.TicketOpen || tk.Priority != "Medium" || tk.TicketNumber == "" {
		t.Errorf("new ticket = %+v", tk)
	}

	if _, err := svc.desk.SetTicketStatus(ctx, tk.ID, "Done"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("unknown status: err = %v, want ErrValidation", err)
	}
	if _, err := svc.desk.SetTicketStatus(ctx, tk.ID, core.TicketResolved); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("resolving an open ticket: err = %v, want ErrBusinessRule", err)
	}
	if _, err := svc.desk.SetTicketStatus(ctx, tk.ID, core.TicketInProgress); err != nil {
		t.Fatal(err)
	}
	resolved, err := svc.desk.SetTicketStatus(ctx, tk.ID, core.TicketResolved)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved ticket has no resolved_at")
	}

	reopened, err := svc.desk.SetTicketStatus(ctx, tk.ID, core.TicketOpen)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Status != core.TicketOpen || reopened.ResolvedAt != nil {
		t.Errorf("reopened ticket = %s resolved_at %v", reopened.Status, reopened.ResolvedAt)
	}
	if _, err := svc.desk.SetTicketStatus(ctx, tk.ID, core.TicketClosed); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("closing an open ticket: err = %v, want ErrBusinessRule", err)
	}
}

func TestAssets_StatusRulesAndSeats(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	assignee := uuid.New()
	a, err := svc.assets.CreateAsset(ctx, core.ITAssetInput{AssetTag: "LT-001", Name: "ThinkPad", AssetType: "Laptop", PurchaseCost: dec("1200")})
	if err != nil {
		t.Fatalf("CreateAsset failed: %v", err)
	}
	if a.Status != core.AssetAvailable {
		t.Errorf("new asset status = %s", a.Status)
	}

	if _, err := svc.assets.SetAssetStatus(ctx, a.ID, core.AssetStatusInput{Status: core.AssetInUse}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("InUse without assignee: err = %v, want ErrValidation", err)
	}
	inUse, err := svc.assets.SetAssetStatus(ctx, a.ID, core.AssetStatusInput{Status: core.AssetInUse, AssignedTo: &assignee})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if inUse.AssignedTo == nil || *inUse.AssignedTo != assignee {
		t.Errorf("assigned_to = %v", inUse.AssignedTo)
	}
	retired, err := svc.assets.SetAssetStatus(ctx, a.ID, core.AssetStatusInput{Status: core.AssetRetired})
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if retired.AssignedTo != nil {
		t.Errorf("retired asset still assigned to %v", *retired.AssignedTo)
	}
	if _, err := svc.assets.SetAssetStatus(ctx, a.ID, core.AssetStatusInput{Status: core.AssetAvailable}); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("reviving a retired asset: err = %v, want ErrBusinessRule", err)
	}

	lic, err := svc.assets.CreateLicense(ctx, core.SoftwareLicenseInput{Name: "Office", SeatsTotal: 2})
	if err != nil {
		t.Fatalf("CreateLicense failed: %v", err)
	}
	for i := 1; i <= 2; i++ {
		l, err := svc.assets.UseSeat(ctx, lic.ID)
		if err != nil {
			t.Fatalf("seat %d: %v", i, err)
		}
		if l.SeatsUsed != i {
			t.Errorf("seats_used = %d, want %d", l.SeatsUsed, i)
		}
	}
	if _, err := svc.assets.UseSeat(ctx, lic.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("seat beyond total: err = %v, want ErrBusinessRule", err)
	}
	got, err := svc.assets.GetLicense(ctx, lic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SeatsUsed != 2 {
		t.Errorf("seats_used after refusal = %d", got.SeatsUsed)
	}
}

func TestCompliance_DSARCompletesOnce(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	subj, err := svc.privacy.CreateSubject(ctx, core.DataSubjectInput{Email: "jane@example.com", FirstName: "Jane"})
	if err != nil {
		t.Fatalf("CreateSubject failed: %v", err)
	}
	d, err := svc.privacy.CreateDSAR(ctx, core.DSARInput{DataSubjectID: subj.ID, RequestType: "Access", ReceivedDate: "2026-06-01"})
	if err != nil {
		t.Fatalf("CreateDSAR failed: %v", err)
	}
	if d.DueDate.Format("2006-01-02") != "2026-07-01" {
		t.Errorf("due date = %s, want 2026-07-01", d.DueDate.Format("2006-01-02"))
	}

	done, err := svc.privacy.CompleteDSAR(ctx, d.ID, "export sent")
	if err != nil {
		t.Fatalf("CompleteDSAR failed: %v", err)
	}
	if done.Status != core.DSARCompleted || done.CompletedAt == nil || done.Response != "export sent" {
		t.Errorf("completed DSAR = %+v", done)
	}
	if _, err := svc.privacy.CompleteDSAR(ctx, d.ID, "again"); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("second completion: err = %v, want ErrBusinessRule", err)
	}
}

func TestProjects_TimesheetHoursAndTerminalStatus(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	pr, err := svc.projects.CreateProject(ctx, core.ProjectInput{Code: "PRJ-1", Name: "Migration"})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	emp, err := svc.hr.CreateEmployee(ctx, core.EmployeeInput{EmployeeNumber: "E001", FirstName: "Sam", LastName: "Lee", Email: "sam@example.com"})
	if err != nil {
		t.Fatalf("CreateEmployee failed: %v", err)
	}

	tests := []struct {
		hours string
		ok    bool
	}{
		{"0", false},
		{"-2", false},
		{"24.5", false},
		{"24", true},
		{"7.5", true},
	}
	for _, tt := range tests {
		t.Run(tt.hours, func(t *testing.T) {
			_, err := svc.projects.CreateTimesheet(ctx, core.TimesheetInput{
				ProjectID: pr.ID, EmployeeID: emp.ID, WorkDate: "2026-06-02", Hours: dec(tt.hours),
			})
			if tt.ok && err != nil {
				t.Errorf("hours %s: %v", tt.hours, err)
			}
			if !tt.ok && !errors.Is(err, core.ErrValidation) {
				t.Errorf("hours %s: err = %v, want ErrValidation", tt.hours, err)
			}
		})
	}
	sheets, err := svc.projects.ListTimesheets(ctx, core.ListParams{}.Normalize())
	if err != nil {
		t.Fatal(err)
	}
	if sheets.Total != 2 {
		t.Errorf("stored timesheets = %d, want 2", sheets.Total)
	}

	if _, err := svc.projects.SetProjectStatus(ctx, pr.ID, core.ProjectCompleted); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.projects.SetProjectStatus(ctx, pr.ID, core.ProjectActive); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("reopening a completed project: err = %v, want ErrBusinessRule", err)
	}
}

func TestSourcing_AcceptBidAwardsEvent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	ev, err := svc.sourcing.CreateEvent(ctx, core.SourcingEventInput{Title: "Office chairs", EventType: "RFQ"})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	var bids []core.Bid
	for i, amount := range []string{"900", "850", "990"} {
		v, err := svc.vendors.CreateVendor(ctx, core.VendorInput{Code: fmt.Sprintf("V%03d", i+1), Name: "Vendor " + amount})
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			if _, err := svc.sourcing.PlaceBid(ctx, core.BidInput{EventID: ev.ID, VendorID: v.ID, Amount: dec(amount)}); !errors.Is(err, core.ErrBusinessRule) {
				t.Errorf("bid on a draft event: err = %v, want ErrBusinessRule", err)
			}
			if _, err := svc.sourcing.PublishEvent(ctx, ev.ID); err != nil {
				t.Fatalf("PublishEvent failed: %v", err)
			}
		}
		b, err := svc.sourcing.PlaceBid(ctx, core.BidInput{EventID: ev.ID, VendorID: v.ID, Amount: dec(amount)})
		if err != nil {
			t.Fatalf("PlaceBid %s: %v", amount, err)
		}
		bids = append(bids, b)
	}

	winner := bids[1]
	accepted, err := svc.sourcing.AcceptBid(ctx, winner.ID)
	if err != nil {
		t.Fatalf("AcceptBid failed: %v", err)
	}
	if accepted.Status != core.BidAccepted {
		t.Errorf("accepted bid status = %s", accepted.Status)
	}
	awarded, err := svc.sourcing.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if awarded.Status != core.EventAwarded || awarded.AwardedBidID == nil || *awarded.AwardedBidID != winner.ID {
		t.Errorf("event after award = %s %v", awarded.Status, awarded.AwardedBidID)
	}

	page, err := svc.sourcing.ListBids(ctx, core.ListParams{}.With("event_id", ev.ID).Normalize())
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range page.Items {
		want := core.BidRejected
		if b.ID == winner.ID {
			want = core.BidAccepted
		}
		if b.Status != want {
			t.Errorf("bid %s status = %s, want %s", b.Amount, b.Status, want)
		}
	}

	// A second award fails as a whole and leaves the first one in place.
	if _, err := svc.sourcing.AcceptBid(ctx, bids[0].ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("second award: err = %v, want ErrBusinessRule", err)
	}
	again, err := svc.sourcing.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if *again.AwardedBidID != winner.ID {
		t.Errorf("award moved to %v", *again.AwardedBidID)
	}
	if _, err := svc.sourcing.PlaceBid(ctx, core.BidInput{EventID: ev.ID, VendorID: bids[0].VendorID, Amount: dec("1")}); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("bid after award: err = %v, want ErrBusinessRule", err)
	}
}

type revaluationAccounts struct {
	euroBank, gain, loss uuid.UUID
}

// seedForeignBalance books 1000 EUR into a EUR bank account at 1.10 and
// records the given later EUR→USD rates.
func seedForeignBalance(t *testing.T, ctx context.Context, svc services, laterRates map[string]string) revaluationAccounts {
	t.Helper()
	var accts revaluationAccounts
	for _, a := range []struct {
		in  core.AccountInput
		dst *uuid.UUID
	}{
		{core.AccountInput{Code: "1100", Name: "Euro Bank", AccountType: core.AccountAsset, Currency: "EUR"}, &accts.euroBank},
		{core.AccountInput{Code: "3000", Name: "Owner Equity", AccountType: core.AccountEquity}, nil},
		{core.AccountInput{Code: "7000", Name: "FX Gain", AccountType: core.AccountRevenue}, &accts.gain},
		{core.AccountInput{Code: "7100", Name: "FX Loss", AccountType: core.AccountExpense}, &accts.loss},
	} {
		created, err := svc.ledger.CreateAccount(ctx, a.in)
		if err != nil {
			t.Fatalf("CreateAccount %s: %v", a.in.Code, err)
		}
		if a.dst != nil {
			*a.dst = created.ID
		}
	}
	rates := map[string]string{"2026-01-01": "1.10"}
	for d, r := range laterRates {
		rates[d] = r
	}
	for date, rate := range rates {
		_, err := svc.ledger.CreateExchangeRate(ctx, core.ExchangeRateInput{FromCurrency: "EUR", ToCurrency: "USD", Rate: dec(rate), EffectiveDate: date})
		if err != nil {
			t.Fatalf("CreateExchangeRate %s: %v", date, err)
		}
	}
	je, err := svc.ledger.CreateEntry(ctx, core.JournalEntryInput{
		Date: "2026-02-01", Description: "Capital in EUR",
		Lines: []core.JournalLineInput{
			{AccountCode: "1100", Debit: dec("1000")},
			{AccountCode: "3000", Credit: dec("1000")},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ledger.PostEntry(ctx, je.ID); err != nil {
		t.Fatal(err)
	}
	return accts
}

func TestRevaluation_PostAndReverseLinkEntries(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()
	accts := seedForeignBalance(t, ctx, svc, map[string]string{"2026-03-31": "1.20"})

	rev, err := svc.reval.Create(ctx, core.RevaluationInput{
		RevaluationDate: "2026-03-31", PeriodStart: "2026-03-01", PeriodEnd: "2026-03-31",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rev.Status != core.RevaluationDraft || !rev.NetUnrealized.Equal(dec("100")) || len(rev.Lines) != 1 {
		t.Fatalf("revaluation = %s net %s lines %d", rev.Status, rev.NetUnrealized, len(rev.Lines))
	}

	if _, err := svc.reval.Post(ctx, rev.ID, core.RevaluationPostInput{}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("post without gain/loss accounts: err = %v, want ErrValidation", err)
	}
	posted, err := svc.reval.Post(ctx, rev.ID, core.RevaluationPostInput{GainAccountID: &accts.gain, LossAccountID: &accts.loss})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if posted.Status != core.RevaluationPosted || posted.JournalEntryID == nil || posted.PostedAt == nil {
		t.Fatalf("posted revaluation = %+v", posted)
	}
	entry, err := svc.ledger.GetEntry(ctx, *posted.JournalEntryID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != core.EntryPosted || len(entry.Lines) != 2 {
		t.Errorf("revaluation entry = %s with %d lines", entry.Status, len(entry.Lines))
	}
	if _, err := svc.reval.Post(ctx, rev.ID, core.RevaluationPostInput{}); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("posting twice: err = %v, want ErrBusinessRule", err)
	}

	reversed, err := svc.reval.Reverse(ctx, rev.ID)
	if err != nil {
		t.Fatalf("Reverse failed: %v", err)
	}
	if reversed.Status != core.RevaluationReversed || reversed.ReversalEntryID == nil {
		t.Fatalf("reversed revaluation = %+v", reversed)
	}
	reversal, err := svc.ledger.GetEntry(ctx, *reversed.ReversalEntryID)
	if err != nil {
		t.Fatal(err)
	}
	if reversal.ReversalOf == nil || *reversal.ReversalOf != *posted.JournalEntryID {
		t.Errorf("reversal entry points at %v", reversal.ReversalOf)
	}
	orig, err := svc.ledger.GetEntry(ctx, *posted.JournalEntryID)
	if err != nil {
		t.Fatal(err)
	}
	if orig.Status != core.EntryReversed {
		t.Errorf("revaluation entry status after reverse = %s", orig.Status)
	}
	if _, err := svc.reval.Reverse(ctx, rev.ID); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("reversing twice: err = %v, want ErrBusinessRule", err)
	}
}

func TestRevaluation_ZeroNetCannotPost(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()
	accts := seedForeignBalance(t, ctx, svc, nil)

	rev, err := svc.reval.Create(ctx, core.RevaluationInput{
		RevaluationDate: "2026-03-31", PeriodStart: "2026-03-01", PeriodEnd: "2026-03-31",
		GainAccountID: &accts.gain, LossAccountID: &accts.loss,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !rev.NetUnrealized.IsZero() {
		t.Fatalf("net = %s, want 0", rev.NetUnrealized)
	}
	if _, err := svc.reval.Post(ctx, rev.ID, core.RevaluationPostInput{}); !errors.Is(err, core.ErrBusinessRule) {
		t.Errorf("posting a zero revaluation: err = %v, want ErrBusinessRule", err)
	}
	got, err := svc.reval.Get(ctx, rev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != core.RevaluationDraft || got.JournalEntryID != nil {
		t.Errorf("refused post left %s with entry %v", got.Status, got.JournalEntryID)
	}
}

func TestRules_ExecutePersistsExecutions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newServices(pool)
	ctx := context.Background()

	big, err := svc.rules.CreateRule(ctx, core.BusinessRuleInput{
		Name: "Large order", Code: "LARGE", EntityType: "sales_order", Priority: 10,
		Conditions: json.RawMessage(`{"field":"total","operator":"greaterThan","value":1000}`),
		Actions:    json.RawMessage(`[{"type":"require_approval"}]`),
	})
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	vip, err := svc.rules.CreateRule(ctx, core.BusinessRuleInput{
		Name: "VIP customer", Code: "VIP", EntityType: "sales_order", Priority: 1,
		Conditions: json.RawMessage(`{"field":"customer.tier","operator":"equals","value":"gold"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.rules.CreateRule(ctx, core.BusinessRuleInput{Name: "Other", Code: "OTHER", EntityType: "invoice"}); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.rules.Execute(ctx, core.ExecuteRulesInput{EntityType: "sales_order", Context: json.RawMessage(`{"total":`)}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("invalid context: err = %v, want ErrValidation", err)
	}

	runs, err := svc.rules.Execute(ctx, core.ExecuteRulesInput{
		EntityType: "sales_order", EntityID: "SO-2026-00001",
		Context: json.RawMessage(`{"total":1500,"customer":{"tier":"silver"}}`),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("executions = %d, want 2", len(runs))
	}
	if runs[0].RuleID != big.ID || !runs[0].Matched || runs[1].RuleID != vip.ID || runs[1].Matched {
		t.Errorf("executions = %+v", runs)
	}

	stored, err := svc.rules.ListExecutions(ctx, core.ListParams{}.With("entity_id", "SO-2026-00001").Normalize())
	if err != nil {
		t.Fatal(err)
	}
	if stored.Total != 2 {
		t.Errorf("stored executions = %d, want 2", stored.Total)
	}
	forBig, err := svc.rules.ListExecutions(ctx, core.ListParams{}.With("rule_id", big.ID).Normalize())
	if err != nil {
		t.Fatal(err)
	}
	if forBig.Total != 1 || !forBig.Items[0].Matched {
		t.Errorf("executions for %s = %+v", big.Code, forBig.Items)
	}
}
