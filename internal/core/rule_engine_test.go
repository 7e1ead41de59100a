package core_test

import (
	"testing"

	"erp-server/internal/core"
)

func TestEvaluateConditions(t *testing.T) {
	doc := []byte(`{"total": 1500.50, "customer": {"tier": "gold", "name": "Acme Corp"}, "tags": ["a","b"], "rush": true}`)

	tests := []struct {
		name       string
		conditions string
		want       bool
	}{
		{"empty matches", ``, true},
		{"empty object matches", `{}`, true},
		{"equals string", `{"field":"customer.tier","operator":"equals","value":"gold"}`, true},
		{"equals number", `{"field":"total","operator":"equals","value":1500.5}`, true},
		{"equals bool", `{"field":"rush","operator":"equals","value":true}`, true},
		{"equals array", `{"field":"tags","operator":"equals","value":["a","b"]}`, true},
		{"type mismatch", `{"field":"total","operator":"equals","value":"1500.50"}`, false},
		{"notEquals", `{"field":"customer.tier","operator":"notEquals","value":"silver"}`, true},
		{"contains", `{"field":"customer.name","operator":"contains","value":"Acme"}`, true},
		{"greaterThan", `{"field":"total","operator":"greaterThan","value":1000}`, true},
		{"lessThan", `{"field":"total","operator":"lessThan","value":1000}`, false},
		{"missing field", `{"field":"discount","operator":"equals","value":0}`, false},
		{"unknown operator", `{"field":"total","operator":"between","value":1}`, false},
		{"and", `{"and":[{"field":"total","operator":"greaterThan","value":1000},{"field":"customer.tier","operator":"equals","value":"gold"}]}`, true},
		{"and fails", `{"and":[{"field":"total","operator":"greaterThan","value":1000},{"field":"customer.tier","operator":"equals","value":"bronze"}]}`, false},
		{"or", `{"or":[{"field":"total","operator":"lessThan","value":10},{"field":"rush","operator":"equals","value":true}]}`, true},
		{"nested", `{"or":[{"and":[{"field":"rush","operator":"equals","value":false}]},{"field":"customer.tier","operator":"equals","value":"gold"}]}`, true},
		{"invalid json", `{"field":`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := core.EvaluateConditions([]byte(tt.conditions), doc); got != tt.want {
				t.Errorf("EvaluateConditions(%s) = %v, want %v", tt.conditions, got, tt.want)
			}
		})
	}
}
