package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SystemConfig struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Key         string    `db:"key" json:"key"`
	Value       string    `db:"value" json:"value"`
	Category    string    `db:"category" json:"category"`
	Description string    `db:"description" json:"description"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

type SystemConfigInput struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type CompanySettings struct {
	ID                   int       `db:"id" json:"-"`
	CompanyName          string    `db:"company_name" json:"company_name"`
	LegalName            string    `db:"legal_name" json:"legal_name"`
	TaxID                string    `db:"tax_id" json:"tax_id"`
	BaseCurrency         string    `db:"base_currency" json:"base_currency"`
	FiscalYearStartMonth int       `db:"fiscal_year_start_month" json:"fiscal_year_start_month"`
	Address              string    `db:"address" json:"address"`
	Email                string    `db:"email" json:"email"`
	Phone                string    `db:"phone" json:"phone"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// CompanySettingsInput is a partial update; nil fields keep their value.
type CompanySettingsInput struct {
	CompanyName          *string `json:"company_name"`
	LegalName            *string `json:"legal_name"`
	TaxID                *string `json:"tax_id"`
	BaseCurrency         *string `json:"base_currency"`
	FiscalYearStartMonth *int    `json:"fiscal_year_start_month"`
	Address              *string `json:"address"`
	Email                *string `json:"email"`
	Phone                *string `json:"phone"`
}

type AuditSettings struct {
	ID            int       `db:"id" json:"-"`
	Enabled       bool      `db:"enabled" json:"enabled"`
	RetentionDays int       `db:"retention_days" json:"retention_days"`
	LogReads      bool      `db:"log_reads" json:"log_reads"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

type AuditSettingsInput struct {
	Enabled       *bool `json:"enabled"`
	RetentionDays *int  `json:"retention_days"`
	LogReads      *bool `json:"log_reads"`
}

// SettingsService holds key/value system configuration and the two
// single-row settings tables.
type SettingsService interface {
	ListConfigs(ctx context.Context, p ListParams) (Page[SystemConfig], error)
	PutConfig(ctx context.Context, in SystemConfigInput) (SystemConfig, error)

	CompanySettings(ctx context.Context) (CompanySettings, error)
	UpdateCompanySettings(ctx context.Context, in CompanySettingsInput) (CompanySettings, error)
	AuditSettings(ctx context.Context) (AuditSettings, error)
	UpdateAuditSettings(ctx context.Context, in AuditSettingsInput) (AuditSettings, error)
}

type settingsService struct {
	pool    *pgxpool.Pool
	configs *Resource[SystemConfig]
	audit   AuditService
}

func NewSettingsService(pool *pgxpool.Pool, audit AuditService) SettingsService {
	return &settingsService{
		pool: pool,
		configs: NewResource[SystemConfig](pool, ResourceSpec{
			Table: "system_configs", Entity: "config",
			Filters: map[string]string{"category": "category"},
			Search:  []string{"key", "description"},
			OrderBy: "category, key",
		}),
		audit: audit,
	}
}

func (s *settingsService) ListConfigs(ctx context.Context, p ListParams) (Page[SystemConfig], error) {
	return s.configs.List(ctx, p)
}

func (s *settingsService) PutConfig(ctx context.Context, in SystemConfigInput) (SystemConfig, error) {
	key := strings.TrimSpace(in.Key)
	if key == "" {
		return SystemConfig{}, validationf("key is required")
	}
	if in.Category == "" {
		in.Category = "general"
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		INSERT INTO system_configs (key, value, category, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, category = EXCLUDED.category,
		    description = EXCLUDED.description, updated_at = now()
		RETURNING %s`, s.configs.selectList()),
		key, in.Value, in.Category, in.Description)
	if err != nil {
		return SystemConfig{}, mapDBError(err, "config")
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[SystemConfig])
	if err != nil {
		return SystemConfig{}, mapDBError(err, "config")
	}
	s.audit.Record(ctx, "system_config", c.ID, "upsert", map[string]any{"key": c.Key, "value": c.Value})
	return c, nil
}

func (s *settingsService) CompanySettings(ctx context.Context) (CompanySettings, error) {
	return singleton[CompanySettings](ctx, s.pool, "company_settings", nil)
}

func (s *settingsService) UpdateCompanySettings(ctx context.Context, in CompanySettingsInput) (CompanySettings, error) {
	values := map[string]any{}
	setString := func(col string, v *string) {
		if v != nil {
			values[col] = strings.TrimSpace(*v)
		}
	}
	setString("company_name", in.CompanyName)
	setString("legal_name", in.LegalName)
	setString("tax_id", in.TaxID)
	setString("address", in.Address)
	setString("email", in.Email)
	setString("phone", in.Phone)
	if in.BaseCurrency != nil {
		c := strings.ToUpper(strings.TrimSpace(*in.BaseCurrency))
		if len(c) != 3 {
			return CompanySettings{}, validationf("base_currency must be a 3-letter code")
		}
		values["base_currency"] = c
	}
	if m := in.FiscalYearStartMonth; m != nil {
		if *m < 1 || *m > 12 {
			return CompanySettings{}, validationf("fiscal_year_start_month must be between 1 and 12")
		}
		values["fiscal_year_start_month"] = *m
	}
	cs, err := singleton[CompanySettings](ctx, s.pool, "company_settings", values)
	if err != nil {
		return CompanySettings{}, err
	}
	s.audit.Record(ctx, "company_settings", 1, "update", values)
	return cs, nil
}

func (s *settingsService) AuditSettings(ctx context.Context) (AuditSettings, error) {
	return singleton[AuditSettings](ctx, s.pool, "audit_settings", nil)
}

func (s *settingsService) UpdateAuditSettings(ctx context.Context, in AuditSettingsInput) (AuditSettings, error) {
	values := map[string]any{}
	if in.Enabled != nil {
		values["enabled"] = *in.Enabled
	}
	if in.LogReads != nil {
		values["log_reads"] = *in.LogReads
	}
	if in.RetentionDays != nil {
		if *in.RetentionDays <= 0 {
			return AuditSettings{}, validationf("retention_days must be greater than zero")
		}
		values["retention_days"] = *in.RetentionDays
	}
	as, err := singleton[AuditSettings](ctx, s.pool, "audit_settings", values)
	if err != nil {
		return AuditSettings{}, err
	}
	s.audit.Record(ctx, "audit_settings", 1, "update", values)
	return as, nil
}

// singleton creates the id=1 row of table on first use, applies values, and
// returns the row.
func singleton[T any](ctx context.Context, pool *pgxpool.Pool, table string, values map[string]any) (T, error) {
	var zero T
	if _, err := pool.Exec(ctx, fmt.Sprintf("INSERT INTO %s (id) VALUES (1) ON CONFLICT (id) DO NOTHING", table)); err != nil {
		return zero, fmt.Errorf("failed to initialise %s: %w", table, err)
	}
	cols := strings.Join(columnsOf[T](), ", ")
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = 1", cols, table)
	var args []any
	if len(values) > 0 {
		names, vals := sortedValues(values)
		sets := make([]string, len(names))
		for i, c := range names {
			sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
		}
		sql = fmt.Sprintf("UPDATE %s SET %s, updated_at = now() WHERE id = 1 RETURNING %s",
			table, strings.Join(sets, ", "), cols)
		args = vals
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return zero, mapDBError(err, table)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, mapDBError(err, table)
	}
	return item, nil
}
