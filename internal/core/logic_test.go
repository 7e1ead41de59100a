package core

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role, module, action string
		want                 bool
	}{
		{RoleAdmin, "config", "write", true},
		{RoleFinance, "finance", "write", true},
		{RoleFinance, "sales", "read", true},
		{RoleFinance, "sales", "write", false},
		{RoleWarehouse, "purchasing", "write", true},
		{RoleWarehouse, "finance", "read", false},
		{RoleSales, "credit", "read", true},
		{RoleSales, "credit", "write", false},
		{RoleHR, "hr", "write", true},
		{RoleUser, "inventory", "read", true},
		{RoleUser, "inventory", "write", false},
		{"Auditor", "finance", "read", true},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.module, tt.action); got != tt.want {
			t.Errorf("HasPermission(%s, %s, %s) = %v, want %v", tt.role, tt.module, tt.action, got, tt.want)
		}
	}
}

func TestCheckPassword(t *testing.T) {
	tests := []struct {
		pw string
		ok bool
	}{
		{"short1", false},
		{"onlyletters", false},
		{"1234567890", false},
		{"correct-horse1", true},
	}
	for _, tt := range tests {
		err := checkPassword(tt.pw)
		if (err == nil) != tt.ok {
			t.Errorf("checkPassword(%q) = %v", tt.pw, err)
		}
		if err != nil && !errors.Is(err, ErrValidation) {
			t.Errorf("checkPassword(%q) error is not a validation error", tt.pw)
		}
	}
}

func TestApprovalLevels(t *testing.T) {
	levels := []ApprovalLevel{{LevelNumber: 3}, {LevelNumber: 1}, {LevelNumber: 2}}

	next, ok := nextLevel(levels, 0)
	if !ok || next.LevelNumber != 1 {
		t.Errorf("nextLevel(0) = %d, %v", next.LevelNumber, ok)
	}
	next, ok = nextLevel(levels, 1)
	if !ok || next.LevelNumber != 2 {
		t.Errorf("nextLevel(1) = %d, %v", next.LevelNumber, ok)
	}
	if _, ok := nextLevel(levels, 3); ok {
		t.Error("nextLevel past the last level should report false")
	}

	tests := []struct {
		kind                 string
		approvals, approvers int
		want                 bool
	}{
		{ApproveAny, 1, 3, true},
		{ApproveAny, 0, 3, false},
		{ApproveSequential, 1, 2, true},
		{ApproveAll, 2, 3, false},
		{ApproveAll, 3, 3, true},
	}
	for _, tt := range tests {
		if got := LevelComplete(tt.kind, tt.approvals, tt.approvers); got != tt.want {
			t.Errorf("LevelComplete(%s, %d, %d) = %v", tt.kind, tt.approvals, tt.approvers, got)
		}
	}

	approver := uuid.New()
	l := ApprovalLevel{ApproverIDs: []uuid.UUID{uuid.New(), approver}}
	if !l.HasApprover(approver) || l.HasApprover(uuid.New()) {
		t.Error("HasApprover mismatch")
	}
}

func TestLeaveDaysAndHours(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := LeaveDays(start, start); got != 1 {
		t.Errorf("same-day leave = %d days", got)
	}
	if got := LeaveDays(start, start.AddDate(0, 0, 4)); got != 5 {
		t.Errorf("Mon-Fri leave = %d days", got)
	}

	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := in.Add(8*time.Hour + 20*time.Minute)
	if got := HoursWorked(in, out); !got.Equal(decimal.RequireFromString("8.33")) {
		t.Errorf("HoursWorked = %s", got)
	}
}

func TestValidateDiscount(t *testing.T) {
	tests := []struct {
		kind  string
		value string
		ok    bool
	}{
		{DiscountPercentage, "10", true},
		{DiscountPercentage, "100", true},
		{DiscountPercentage, "100.01", false},
		{DiscountPercentage, "0", false},
		{DiscountFixed, "250", true},
		{DiscountFixed, "-5", false},
		{"BOGO", "1", false},
	}
	for _, tt := range tests {
		err := ValidateDiscount(tt.kind, decimal.RequireFromString(tt.value))
		if (err == nil) != tt.ok {
			t.Errorf("ValidateDiscount(%s, %s) = %v", tt.kind, tt.value, err)
		}
	}
}

func TestInvoiceStatus(t *testing.T) {
	d := decimal.NewFromInt
	if s := InvoiceStatus(d(100), d(0)); s != InvoiceOpen {
		t.Errorf("unpaid = %s", s)
	}
	if s := InvoiceStatus(d(100), d(40)); s != InvoicePartiallyPaid {
		t.Errorf("partial = %s", s)
	}
	if s := InvoiceStatus(d(100), d(100)); s != InvoicePaid {
		t.Errorf("paid = %s", s)
	}
}

func TestListParamsAndPage(t *testing.T) {
	p := ListParams{Page: 0, PerPage: 500}.Normalize()
	if p.Page != 1 || p.PerPage != MaxPerPage {
		t.Errorf("Normalize = %+v", p)
	}
	if p := (ListParams{PerPage: -1}).Normalize(); p.PerPage != DefaultPerPage {
		t.Errorf("default per page = %d", p.PerPage)
	}
	if off := (ListParams{Page: 3, PerPage: 20}).Offset(); off != 40 {
		t.Errorf("Offset = %d", off)
	}

	base := ListParams{Page: 1, PerPage: 10}
	a := base.With("status", "Open")
	b := a.With("customer_id", 7)
	if len(base.Where) != 0 || len(a.Where) != 1 || len(b.Where) != 2 {
		t.Errorf("With must not alias: %d %d %d", len(base.Where), len(a.Where), len(b.Where))
	}

	page := NewPage[int](nil, 21, base)
	if page.TotalPages != 3 || page.Items == nil {
		t.Errorf("NewPage = %+v", page)
	}
	if empty := NewPage[int](nil, 0, base); empty.TotalPages != 0 {
		t.Errorf("empty TotalPages = %d", empty.TotalPages)
	}

	mapped := MapPage(NewPage([]int{1, 2}, 2, base), func(i int) string { return string(rune('a' + i)) })
	if mapped.Items[1] != "c" || mapped.Total != 2 {
		t.Errorf("MapPage = %+v", mapped)
	}
}

func TestFormatDocumentNumber(t *testing.T) {
	if got := FormatDocumentNumber("JE", 2026, 42); got != "JE-2026-00042" {
		t.Errorf("FormatDocumentNumber = %s", got)
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2026-02-30"); !errors.Is(err, ErrValidation) {
		t.Errorf("invalid date err = %v", err)
	}
	d, err := ParseDate("2026-02-28")
	if err != nil || d.Day() != 28 {
		t.Errorf("ParseDate = %v, %v", d, err)
	}
}

func TestReportBuilders(t *testing.T) {
	d := decimal.RequireFromString
	balances := []AccountBalance{
		{AccountCode: "1000", AccountType: AccountAsset, Balance: d("1500")},
		{AccountCode: "2000", AccountType: AccountLiability, Balance: d("-400")},
		{AccountCode: "3000", AccountType: AccountEquity, Balance: d("-1000")},
		{AccountCode: "4000", AccountType: AccountRevenue, Balance: d("-300")},
		{AccountCode: "5000", AccountType: AccountExpense, Balance: d("200")},
		{AccountCode: "5100", AccountType: AccountExpense, Balance: d("0")},
	}

	tb := BuildTrialBalance(balances, "2026-03-31")
	if len(tb.Accounts) != 5 {
		t.Errorf("zero balances must be skipped, got %d lines", len(tb.Accounts))
	}
	if !tb.TotalDebits.Equal(d("1700")) || !tb.TotalCredits.Equal(d("1700")) {
		t.Errorf("trial balance totals %s / %s", tb.TotalDebits, tb.TotalCredits)
	}

	bs := BuildBalanceSheet(balances, "2026-03-31")
	if !bs.TotalAssets.Equal(d("1500")) || !bs.TotalLiabilities.Equal(d("400")) || !bs.TotalEquity.Equal(d("1000")) {
		t.Errorf("balance sheet %s / %s / %s", bs.TotalAssets, bs.TotalLiabilities, bs.TotalEquity)
	}

	pl := BuildProfitAndLoss(balances)
	if !pl.TotalRevenue.Equal(d("300")) || !pl.TotalExpenses.Equal(d("200")) || !pl.NetIncome.Equal(d("100")) {
		t.Errorf("P&L %s - %s = %s", pl.TotalRevenue, pl.TotalExpenses, pl.NetIncome)
	}
}

func TestRevalueAndSummarize(t *testing.T) {
	d := decimal.RequireFromString
	gain := RevalueLine(RevaluationLine{Currency: "EUR", OriginalBalance: d("1000")}, d("1.10"), d("1.15"))
	if !gain.UnrealizedGain.Equal(d("50")) || !gain.UnrealizedLoss.IsZero() {
		t.Errorf("gain line = %+v", gain)
	}
	loss := RevalueLine(RevaluationLine{Currency: "GBP", OriginalBalance: d("200")}, d("1.30"), d("1.25"))
	if !loss.UnrealizedLoss.Equal(d("10")) || !loss.UnrealizedGain.IsZero() {
		t.Errorf("loss line = %+v", loss)
	}

	p := SummarizeRevaluation([]RevaluationLine{loss, gain})
	if !p.NetUnrealized.Equal(d("40")) {
		t.Errorf("NetUnrealized = %s", p.NetUnrealized)
	}
	if len(p.Summaries) != 2 || p.Summaries[0].Currency != "EUR" {
		t.Errorf("summaries must be sorted by currency: %+v", p.Summaries)
	}
	if empty := SummarizeRevaluation(nil); empty.Lines == nil || len(empty.Summaries) != 0 {
		t.Errorf("empty preview = %+v", empty)
	}
}

func TestCheckTimesheetHours(t *testing.T) {
	tests := []struct {
		hours string
		ok    bool
	}{
		{"0", false},
		{"-1", false},
		{"0.25", true},
		{"8", true},
		{"24", true},
		{"24.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.hours, func(t *testing.T) {
			err := checkTimesheetHours(decimal.RequireFromString(tt.hours))
			if (err == nil) != tt.ok {
				t.Fatalf("checkTimesheetHours(%s) = %v, want ok=%v", tt.hours, err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestAssetAssignee(t *testing.T) {
	user := uuid.New()
	nilID := uuid.Nil
	tests := []struct {
		name string
		in   AssetStatusInput
		want *uuid.UUID
		ok   bool
	}{
		{"in use with assignee", AssetStatusInput{Status: AssetInUse, AssignedTo: &user}, &user, true},
		{"in use without assignee", AssetStatusInput{Status: AssetInUse}, nil, false},
		{"in use with nil uuid", AssetStatusInput{Status: AssetInUse, AssignedTo: &nilID}, nil, false},
		{"maintenance clears assignee", AssetStatusInput{Status: AssetMaintenance, AssignedTo: &user}, nil, true},
		{"retired", AssetStatusInput{Status: AssetRetired}, nil, true},
		{"unknown status", AssetStatusInput{Status: "Lost"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := assetAssignee(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("assignee = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTicketTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{TicketOpen, TicketInProgress, true},
		{TicketInProgress, TicketResolved, true},
		{TicketResolved, TicketClosed, true},
		{TicketResolved, TicketOpen, true},
		{TicketClosed, TicketOpen, true},
		{TicketOpen, TicketResolved, false},
		{TicketOpen, TicketClosed, false},
		{TicketClosed, TicketInProgress, false},
	}
	for _, tt := range tests {
		if got := slices.Contains(ticketTransitions[tt.to], tt.from); got != tt.ok {
			t.Errorf("%s -> %s allowed = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestBuildRevaluationEntry(t *testing.T) {
	d := decimal.RequireFromString
	gain, loss := uuid.New(), uuid.New()
	eur, gbp := uuid.New(), uuid.New()
	rev := CurrencyRevaluation{
		RevaluationNumber: "REV-2026-00001",
		RevaluationDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		BaseCurrency:      "USD",
		GainAccountID:     &gain,
		LossAccountID:     &loss,
	}
	lines := []RevaluationLine{
		{AccountID: eur, Currency: "EUR", UnrealizedGain: d("100"), UnrealizedLoss: decimal.Zero},
		{AccountID: gbp, Currency: "GBP", UnrealizedGain: decimal.Zero, UnrealizedLoss: d("40")},
	}
	je := BuildRevaluationEntry(rev, lines)
	if len(je.Lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(je.Lines))
	}
	if v := ValidateJournalLines(je.Lines); !v.Valid {
		t.Errorf("revaluation entry invalid: %v", v.Errors)
	}
	if *je.Lines[0].AccountID != eur || !je.Lines[0].Debit.Equal(d("100")) || *je.Lines[1].AccountID != gain {
		t.Errorf("gain lines = %+v", je.Lines[:2])
	}
	if *je.Lines[2].AccountID != loss || *je.Lines[3].AccountID != gbp || !je.Lines[3].Credit.Equal(d("40")) {
		t.Errorf("loss lines = %+v", je.Lines[2:])
	}

	flat := []RevaluationLine{{AccountID: eur, Currency: "EUR", UnrealizedGain: decimal.Zero, UnrealizedLoss: decimal.Zero}}
	if je := BuildRevaluationEntry(rev, flat); len(je.Lines) != 0 {
		t.Errorf("zero-change revaluation produced %d lines", len(je.Lines))
	}
}
