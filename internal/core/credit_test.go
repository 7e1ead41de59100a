package core_test

import (
	"strings"
	"testing"

	"erp-server/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestRiskLevel(t *testing.T) {
	d := decimal.NewFromInt
	tests := []struct {
		name                              string
		used, limit, overdue, outstanding int64
		want                              string
	}{
		{"idle", 0, 1000, 0, 0, core.RiskLow},
		{"sixty percent is still low", 600, 1000, 0, 0, core.RiskLow},
		{"utilisation medium", 700, 1000, 0, 0, core.RiskMedium},
		{"utilisation high", 900, 1000, 0, 0, core.RiskHigh},
		{"utilisation critical", 960, 1000, 0, 0, core.RiskCritical},
		{"overdue medium", 100, 1000, 20, 100, core.RiskMedium},
		{"overdue high", 100, 1000, 40, 100, core.RiskHigh},
		{"overdue critical", 100, 1000, 60, 100, core.RiskCritical},
		{"zero limit", 500, 0, 0, 0, core.RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := core.RiskLevel(d(tt.used), d(tt.limit), d(tt.overdue), d(tt.outstanding))
			if got != tt.want {
				t.Errorf("RiskLevel = %s, want %s", got, tt.want)
			}
		})
	}
}

func profile(limit, used, overdue int64) core.CreditProfile {
	return core.CreditProfile{
		CustomerID:           uuid.New(),
		CreditLimit:          decimal.NewFromInt(limit),
		CreditUsed:           decimal.NewFromInt(used),
		AvailableCredit:      decimal.NewFromInt(limit - used),
		OverdueAmount:        decimal.NewFromInt(overdue),
		HoldThresholdPercent: 80,
	}
}

func TestEvaluateCredit(t *testing.T) {
	hold := &core.CreditHold{ID: uuid.New(), Reason: "disputed invoices"}
	tests := []struct {
		name       string
		profile    core.CreditProfile
		hold       *core.CreditHold
		amount     int64
		want       string
		reason     string
		warning    string
		projection string
	}{
		{name: "within limit", profile: profile(1000, 0, 0), amount: 100, want: core.CreditApproved, projection: "900"},
		{name: "active hold", profile: profile(1000, 0, 0), hold: hold, amount: 1, want: core.CreditBlocked,
			reason: "Customer is on credit hold: disputed invoices"},
		{name: "over available", profile: profile(1000, 950, 0), amount: 100, want: core.CreditBlocked,
			reason: "Order exceeds available credit by $50.00", projection: "-50"},
		{name: "past threshold", profile: profile(1000, 700, 0), amount: 200, want: core.CreditWarning,
			warning: "Order will utilize 90.0% of credit limit"},
		{name: "heavy overdue", profile: profile(1000, 0, 300), amount: 10, want: core.CreditWarning,
			warning: "Customer has $300.00 in overdue invoices"},
		{name: "light overdue only warns", profile: profile(1000, 0, 100), amount: 10, want: core.CreditApproved,
			warning: "Customer has $100.00 in overdue invoices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := core.EvaluateCredit(tt.profile, tt.hold, decimal.NewFromInt(tt.amount))
			if res.Result != tt.want {
				t.Fatalf("Result = %s, want %s (reason %q)", res.Result, tt.want, res.Reason)
			}
			if tt.reason != "" && res.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.reason)
			}
			if tt.warning != "" && !strings.Contains(strings.Join(res.Warnings, "|"), tt.warning) {
				t.Errorf("Warnings = %v, want %q", res.Warnings, tt.warning)
			}
			if tt.projection != "" && !res.ProjectedAvailable.Equal(decimal.RequireFromString(tt.projection)) {
				t.Errorf("ProjectedAvailable = %s, want %s", res.ProjectedAvailable, tt.projection)
			}
			if tt.hold != nil && (res.HoldID == nil || *res.HoldID != tt.hold.ID) {
				t.Errorf("HoldID not set from the active hold")
			}
		})
	}
}
