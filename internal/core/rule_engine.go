package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

type BusinessRule struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Code        string          `db:"code" json:"code"`
	Description string          `db:"description" json:"description"`
	RuleType    string          `db:"rule_type" json:"rule_type"`
	EntityType  string          `db:"entity_type" json:"entity_type"`
	Status      string          `db:"status" json:"status"`
	Priority    int             `db:"priority" json:"priority"`
	Conditions  json.RawMessage `db:"conditions" json:"conditions"`
	Actions     json.RawMessage `db:"actions" json:"actions"`
	ElseActions json.RawMessage `db:"else_actions" json:"else_actions"`
	CreatedBy   *uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

type BusinessRuleInput struct {
	Name        string          `json:"name"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	RuleType    string          `json:"rule_type"`
	EntityType  string          `json:"entity_type"`
	Priority    int             `json:"priority"`
	Conditions  json.RawMessage `json:"conditions"`
	Actions     json.RawMessage `json:"actions"`
	ElseActions json.RawMessage `json:"else_actions"`
}

type Ruleset struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Code          string    `db:"code" json:"code"`
	Description   string    `db:"description" json:"description"`
	EntityType    string    `db:"entity_type" json:"entity_type"`
	Status        string    `db:"status" json:"status"`
	ExecutionMode string    `db:"execution_mode" json:"execution_mode"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type RulesetInput struct {
	Name          string `json:"name"`
	Code          string `json:"code"`
	Description   string `json:"description"`
	EntityType    string `json:"entity_type"`
	ExecutionMode string `json:"execution_mode"`
}

type RuleExecution struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	RuleID          uuid.UUID       `db:"rule_id" json:"rule_id"`
	EntityType      string          `db:"entity_type" json:"entity_type"`
	EntityID        string          `db:"entity_id" json:"entity_id"`
	Matched         bool            `db:"matched" json:"matched"`
	ActionsExecuted json.RawMessage `db:"actions_executed" json:"actions_executed"`
	ExecutionTimeMs int             `db:"execution_time_ms" json:"execution_time_ms"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type ExecuteRulesInput struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Context    json.RawMessage `json:"context"`
}

// RuleEngine stores business rules and evaluates them against JSON documents.
type RuleEngine interface {
	ListRules(ctx context.Context, p ListParams) (Page[BusinessRule], error)
	CreateRule(ctx context.Context, in BusinessRuleInput) (BusinessRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (BusinessRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error

	ListRulesets(ctx context.Context, p ListParams) (Page[Ruleset], error)
	CreateRuleset(ctx context.Context, in RulesetInput) (Ruleset, error)

	// Execute evaluates every active rule for the entity type, highest priority
	// first, and persists one execution row per rule.
	Execute(ctx context.Context, in ExecuteRulesInput) ([]RuleExecution, error)
	ListExecutions(ctx context.Context, p ListParams) (Page[RuleExecution], error)
}

type ruleEngine struct {
	pool       *pgxpool.Pool
	rules      *Resource[BusinessRule]
	rulesets   *Resource[Ruleset]
	executions *Resource[RuleExecution]
	audit      AuditService
	log        zerolog.Logger
}

func NewRuleEngine(pool *pgxpool.Pool, audit AuditService, log zerolog.Logger) RuleEngine {
	return &ruleEngine{
		pool: pool,
		rules: NewResource[BusinessRule](pool, ResourceSpec{
			Table: "business_rules", Entity: "rule",
			Filters: map[string]string{"entity_type": "entity_type", "status": "status", "rule_type": "rule_type"},
			Search:  []string{"code", "name"},
			OrderBy: "priority DESC, created_at",
			Touch:   true,
		}),
		rulesets: NewResource[Ruleset](pool, ResourceSpec{
			Table: "rulesets", Entity: "ruleset",
			Filters: map[string]string{"entity_type": "entity_type", "status": "status"},
			Search:  []string{"code", "name"},
			OrderBy: "code",
		}),
		executions: NewResource[RuleExecution](pool, ResourceSpec{
			Table: "rule_executions", Entity: "rule execution",
			Filters: map[string]string{"rule_id": "rule_id", "entity_type": "entity_type", "entity_id": "entity_id"},
		}),
		audit: audit,
		log:   log,
	}
}

func (e *ruleEngine) ListRules(ctx context.Context, p ListParams) (Page[BusinessRule], error) {
	return e.rules.List(ctx, p)
}

func (e *ruleEngine) GetRule(ctx context.Context, id uuid.UUID) (BusinessRule, error) {
	return e.rules.Get(ctx, id)
}

func (e *ruleEngine) CreateRule(ctx context.Context, in BusinessRuleInput) (BusinessRule, error) {
	if err := requireFields("name", in.Name, "code", in.Code, "entity_type", in.EntityType); err != nil {
		return BusinessRule{}, err
	}
	conditions, err := jsonOr(in.Conditions, "{}", "conditions")
	if err != nil {
		return BusinessRule{}, err
	}
	actions, err := jsonOr(in.Actions, "[]", "actions")
	if err != nil {
		return BusinessRule{}, err
	}
	values := map[string]any{
		"name":        strings.TrimSpace(in.Name),
		"code":        strings.TrimSpace(in.Code),
		"description": in.Description,
		"entity_type": in.EntityType,
		"priority":    in.Priority,
		"conditions":  conditions,
		"actions":     actions,
		"created_by":  actorID(ctx),
	}
	if in.RuleType != "" {
		values["rule_type"] = in.RuleType
	}
	if len(bytes.TrimSpace(in.ElseActions)) > 0 {
		elseActions, err := jsonOr(in.ElseActions, "null", "else_actions")
		if err != nil {
			return BusinessRule{}, err
		}
		values["else_actions"] = elseActions
	}
	r, err := e.rules.Insert(ctx, values)
	if err != nil {
		return BusinessRule{}, err
	}
	e.audit.Record(ctx, "business_rule", r.ID, "create", map[string]any{"code": r.Code, "entity_type": r.EntityType})
	return r, nil
}

func (e *ruleEngine) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := e.rules.Delete(ctx, id); err != nil {
		return err
	}
	e.audit.Record(ctx, "business_rule", id, "delete", nil)
	return nil
}

func (e *ruleEngine) ListRulesets(ctx context.Context, p ListParams) (Page[Ruleset], error) {
	return e.rulesets.List(ctx, p)
}

func (e *ruleEngine) CreateRuleset(ctx context.Context, in RulesetInput) (Ruleset, error) {
	if err := requireFields("name", in.Name, "code", in.Code, "entity_type", in.EntityType); err != nil {
		return Ruleset{}, err
	}
	values := map[string]any{
		"name":        strings.TrimSpace(in.Name),
		"code":        strings.TrimSpace(in.Code),
		"description": in.Description,
		"entity_type": in.EntityType,
	}
	if in.ExecutionMode != "" {
		if err := oneOf("execution_mode", in.ExecutionMode, "Sequential", "Parallel", "FirstMatch"); err != nil {
			return Ruleset{}, err
		}
		values["execution_mode"] = in.ExecutionMode
	}
	rs, err := e.rulesets.Insert(ctx, values)
	if err != nil {
		return Ruleset{}, err
	}
	e.audit.Record(ctx, "ruleset", rs.ID, "create", map[string]any{"code": rs.Code})
	return rs, nil
}

func (e *ruleEngine) ListExecutions(ctx context.Context, p ListParams) (Page[RuleExecution], error) {
	return e.executions.List(ctx, p)
}

func (e *ruleEngine) Execute(ctx context.Context, in ExecuteRulesInput) ([]RuleExecution, error) {
	if err := requireFields("entity_type", in.EntityType); err != nil {
		return nil, err
	}
	doc := bytes.TrimSpace(in.Context)
	if len(doc) == 0 {
		doc = []byte("{}")
	}
	if !gjson.ValidBytes(doc) {
		return nil, validationf("context must be valid JSON")
	}

	rules, err := e.rules.All(ctx, ListParams{}.With("entity_type", in.EntityType).With("status", "Active"))
	if err != nil {
		return nil, err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	executions := e.executions.With(tx)
	out := make([]RuleExecution, 0, len(rules))
	for _, r := range rules {
		start := time.Now()
		matched := EvaluateConditions(r.Conditions, doc)
		actions := r.Actions
		if !matched {
			actions = r.ElseActions
		}
		if len(actions) == 0 || string(actions) == "null" {
			actions = json.RawMessage("[]")
		}
		ex, err := executions.Insert(ctx, map[string]any{
			"rule_id":           r.ID,
			"entity_type":       in.EntityType,
			"entity_id":         in.EntityID,
			"matched":           matched,
			"actions_executed":  actions,
			"execution_time_ms": int(time.Since(start).Milliseconds()),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	e.log.Info().Str("entity_type", in.EntityType).Str("entity_id", in.EntityID).
		Int("rules", len(out)).Msg("rules executed")
	return out, nil
}

// jsonOr validates raw as JSON, substituting def when raw is empty.
func jsonOr(raw json.RawMessage, def, field string) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return json.RawMessage(def), nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, validationf("%s must be valid JSON", field)
	}
	return raw, nil
}

// EvaluateConditions reports whether doc satisfies a condition tree. An empty
// tree matches everything.
func EvaluateConditions(conditions, doc []byte) bool {
	c := bytes.TrimSpace(conditions)
	if len(c) == 0 || string(c) == "{}" || string(c) == "null" {
		return true
	}
	if !gjson.ValidBytes(c) {
		return false
	}
	return evalCondition(gjson.ParseBytes(c), doc)
}

func evalCondition(cond gjson.Result, doc []byte) bool {
	if !cond.IsObject() {
		return false
	}
	field, op, want := cond.Get("field"), cond.Get("operator"), cond.Get("value")
	if field.Exists() && op.Exists() && want.Exists() {
		got := gjson.GetBytes(doc, field.String())
		if !got.Exists() {
			return false
		}
		return compare(op.String(), got, want)
	}
	if and := cond.Get("and"); and.IsArray() {
		for _, c := range and.Array() {
			if !evalCondition(c, doc) {
				return false
			}
		}
		return true
	}
	if or := cond.Get("or"); or.IsArray() {
		for _, c := range or.Array() {
			if evalCondition(c, doc) {
				return true
			}
		}
		return false
	}
	return false
}

func compare(op string, got, want gjson.Result) bool {
	switch op {
	case "equals":
		return jsonEqual(got, want)
	case "notEquals":
		return !jsonEqual(got, want)
	case "contains":
		return got.Type == gjson.String && want.Type == gjson.String && strings.Contains(got.Str, want.Str)
	case "greaterThan", "lessThan":
		a, aok := numberOf(got)
		b, bok := numberOf(want)
		if !aok || !bok {
			return false
		}
		if op == "greaterThan" {
			return a.GreaterThan(b)
		}
		return a.LessThan(b)
	}
	return false
}

func jsonEqual(a, b gjson.Result) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case gjson.Number:
		x, _ := numberOf(a)
		y, _ := numberOf(b)
		return x.Equal(y)
	case gjson.String:
		return a.Str == b.Str
	case gjson.JSON:
		var x, y any
		if json.Unmarshal([]byte(a.Raw), &x) != nil || json.Unmarshal([]byte(b.Raw), &y) != nil {
			return false
		}
		xb, _ := json.Marshal(x)
		yb, _ := json.Marshal(y)
		return bytes.Equal(xb, yb)
	default:
		return true
	}
}

func numberOf(r gjson.Result) (decimal.Decimal, bool) {
	if r.Type != gjson.Number {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(r.Raw)
	if err != nil {
		return decimal.NewFromFloat(r.Num), true
	}
	return d, true
}
