// Package ai drafts journal entries from plain-language narrations using the
// OpenAI Responses API with a schema reflected from core.AgentResponse.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"erp-server/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// ErrUnavailable is returned when no API key is configured.
var ErrUnavailable = errors.New("assistant is not configured")

// Suggester turns a narration into a draft journal entry.
type Suggester interface {
	Suggest(ctx context.Context, narration string, accounts []core.Account) (core.AgentResponse, error)
}

type Agent struct {
	client *openai.Client
	model  string
}

// NewAgent returns nil when apiKey is empty so callers can report the
// assistant as unavailable.
func NewAgent(apiKey, model string) *Agent {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = shared.ChatModelGPT4o
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client, model: model}
}

func (a *Agent) Suggest(ctx context.Context, narration string, accounts []core.Account) (core.AgentResponse, error) {
	if a == nil || a.client == nil {
		return core.AgentResponse{}, ErrUnavailable
	}
	schema, err := responseSchema()
	if err != nil {
		return core.AgentResponse{}, err
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(a.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(buildPrompt(narration, accounts, time.Now().UTC())),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "journal_entry_suggestion",
					Strict:      param.NewOpt(true),
					Schema:      schema,
					Description: param.NewOpt("A balanced double-entry journal draft, or a clarification request"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return core.AgentResponse{}, fmt.Errorf("openai responses error: %w", err)
	}
	return ParseResponse(resp.OutputText())
}

// ParseResponse decodes and validates model output.
func ParseResponse(content string) (core.AgentResponse, error) {
	if strings.TrimSpace(content) == "" {
		return core.AgentResponse{}, fmt.Errorf("empty response content")
	}
	var out core.AgentResponse
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return core.AgentResponse{}, fmt.Errorf("failed to parse completion: %w", err)
	}
	if out.IsClarificationRequest {
		if out.Clarification == nil || strings.TrimSpace(out.Clarification.Message) == "" {
			return core.AgentResponse{}, fmt.Errorf("clarification request without a message")
		}
		out.Proposal = nil
		return out, nil
	}
	if out.Proposal == nil {
		return core.AgentResponse{}, fmt.Errorf("response carries neither a proposal nor a clarification")
	}
	out.Proposal.Normalize()
	if err := out.Proposal.Validate(); err != nil {
		return core.AgentResponse{}, fmt.Errorf("proposal validation failed: %w", err)
	}
	return out, nil
}

func buildPrompt(narration string, accounts []core.Account, today time.Time) string {
	var chart strings.Builder
	for _, acc := range accounts {
		fmt.Fprintf(&chart, "%s  %s  (%s, %s)\n", acc.Code, acc.Name, acc.AccountType, acc.Currency)
	}
	return fmt.Sprintf(`You are an expert accountant.
Interpret the business event below and propose a double-entry journal entry.
Rules:
1. Use ONLY account codes from the chart of accounts.
2. Total debits MUST equal total credits.
3. Amounts are positive decimal strings with two places (e.g. "100.00").
4. Provide a confidence score between 0.0 and 1.0 and explain your reasoning.
5. If the amount or the accounts cannot be determined, ask for clarification instead.

Today is %s.

Chart of Accounts:
%s
Event: %s`, today.Format("2006-01-02"), chart.String(), narration)
}

func responseSchema() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	raw, err := json.Marshal(reflector.Reflect(&core.AgentResponse{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schema, nil
}
