package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"erp-server/internal/core"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantClar  bool
		wantLines int
	}{
		{
			name: "balanced proposal",
			content: `{"is_clarification_request":false,"proposal":{"description":"Office rent","date":"2026-03-01",
				"confidence":0.9,"reasoning":"rent","lines":[
				{"account_code":"6100","is_debit":true,"amount":"1200.00","memo":""},
				{"account_code":"1000","is_debit":false,"amount":"1200.00","memo":""}]}}`,
			wantLines: 2,
		},
		{
			name: "unbalanced proposal",
			content: `{"is_clarification_request":false,"proposal":{"description":"x","date":"2026-03-01",
				"confidence":0.5,"reasoning":"","lines":[
				{"account_code":"6100","is_debit":true,"amount":"100.00","memo":""},
				{"account_code":"1000","is_debit":false,"amount":"90.00","memo":""}]}}`,
			wantErr: true,
		},
		{
			name:     "clarification",
			content:  `{"is_clarification_request":true,"clarification":{"message":"How much was paid?"}}`,
			wantClar: true,
		},
		{
			name:    "clarification without message",
			content: `{"is_clarification_request":true,"clarification":{"message":" "}}`,
			wantErr: true,
		},
		{name: "empty", content: "", wantErr: true},
		{name: "not json", content: "sure, here you go", wantErr: true},
		{name: "neither", content: `{"is_clarification_request":false}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.IsClarificationRequest != tt.wantClar {
				t.Errorf("IsClarificationRequest = %v, want %v", got.IsClarificationRequest, tt.wantClar)
			}
			if !tt.wantClar && len(got.Proposal.Lines) != tt.wantLines {
				t.Errorf("lines = %d, want %d", len(got.Proposal.Lines), tt.wantLines)
			}
		})
	}
}

func TestBuildPromptListsChart(t *testing.T) {
	accounts := []core.Account{
		{Code: "1000", Name: "Cash", AccountType: core.AccountAsset, Currency: "USD"},
		{Code: "4000", Name: "Sales", AccountType: core.AccountRevenue, Currency: "USD"},
	}
	prompt := buildPrompt("Sold goods for cash", accounts, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC))
	for _, want := range []string{"1000  Cash", "4000  Sales", "Today is 2026-05-04", "Event: Sold goods for cash"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestResponseSchemaIsClosed(t *testing.T) {
	schema, err := responseSchema()
	if err != nil {
		t.Fatalf("responseSchema: %v", err)
	}
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	if _, ok := schema["properties"].(map[string]any)["proposal"]; !ok {
		t.Error("schema has no proposal property")
	}
}

func TestNilAgentIsUnavailable(t *testing.T) {
	a := NewAgent("", "")
	if a != nil {
		t.Fatal("NewAgent with empty key should return nil")
	}
	_, err := a.Suggest(context.Background(), "anything", nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
