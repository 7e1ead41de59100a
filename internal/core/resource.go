package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ResourceSpec describes how a table is exposed as a paginated resource.
type ResourceSpec struct {
	Table  string
	Entity string // human name used in error messages

	// Filters maps query parameter names to columns for equality filtering.
	Filters map[string]string
	// Search lists columns matched case-insensitively by ListParams.Search.
	Search []string
	// Scope is a fixed SQL predicate applied to list queries, e.g. "status <> 'Deleted'".
	Scope string
	// OrderBy defaults to "created_at DESC".
	OrderBy string
	// SoftDelete, when set, names the status value Delete writes instead of removing the row.
	SoftDelete string
	// Touch sets updated_at = now() on every Update.
	Touch bool
}

// Resource is the generic paginated CRUD accessor for one table. T is a struct
// whose db tags name the table's columns; every tagged field is selected.
type Resource[T any] struct {
	q    Querier
	spec ResourceSpec
	cols []string
}

func NewResource[T any](q Querier, spec ResourceSpec) *Resource[T] {
	if spec.OrderBy == "" {
		spec.OrderBy = "created_at DESC"
	}
	if spec.Entity == "" {
		spec.Entity = strings.TrimSuffix(spec.Table, "s")
	}
	return &Resource[T]{q: q, spec: spec, cols: columnsOf[T]()}
}

// With returns a copy bound to q, typically a transaction.
func (r *Resource[T]) With(q Querier) *Resource[T] {
	c := *r
	c.q = q
	return &c
}

func (r *Resource[T]) Spec() ResourceSpec { return r.spec }

func (r *Resource[T]) selectList() string {
	return strings.Join(r.cols, ", ")
}

// List returns one page of rows matching p.
func (r *Resource[T]) List(ctx context.Context, p ListParams) (Page[T], error) {
	p = p.Normalize()
	where, args := r.whereClause(p)

	var total int64
	countSQL := fmt.Sprintf("SELECT count(*) FROM %s%s", r.spec.Table, where)
	if err := r.q.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return Page[T]{}, fmt.Errorf("count %s: %w", r.spec.Table, err)
	}

	listSQL := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s LIMIT $%d OFFSET $%d",
		r.selectList(), r.spec.Table, where, r.spec.OrderBy, len(args)+1, len(args)+2)
	rows, err := r.q.Query(ctx, listSQL, append(args, p.PerPage, p.Offset())...)
	if err != nil {
		return Page[T]{}, fmt.Errorf("list %s: %w", r.spec.Table, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return Page[T]{}, fmt.Errorf("scan %s: %w", r.spec.Table, err)
	}
	return NewPage(items, total, p), nil
}

// All returns every row matching p without paging. Used for small reference sets.
func (r *Resource[T]) All(ctx context.Context, p ListParams) ([]T, error) {
	where, args := r.whereClause(p)
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", r.selectList(), r.spec.Table, where, r.spec.OrderBy)
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.spec.Table, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.spec.Table, err)
	}
	return items, nil
}

func (r *Resource[T]) whereClause(p ListParams) (string, []any) {
	var conds []string
	var args []any

	if r.spec.Scope != "" {
		conds = append(conds, r.spec.Scope)
	}

	// Deterministic order keeps generated SQL stable for the statement cache.
	names := make([]string, 0, len(p.Filters))
	for name := range p.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		col, ok := r.spec.Filters[name]
		value := p.Filters[name]
		if !ok || value == "" {
			continue
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s::text = $%d", col, len(args)))
	}

	for _, c := range p.Where {
		args = append(args, c.Value)
		conds = append(conds, fmt.Sprintf("%s = $%d", c.Column, len(args)))
	}

	if s := strings.TrimSpace(p.Search); s != "" && len(r.spec.Search) > 0 {
		args = append(args, "%"+escapeLike(s)+"%")
		ors := make([]string, len(r.spec.Search))
		for i, col := range r.spec.Search {
			ors[i] = fmt.Sprintf("%s ILIKE $%d", col, len(args))
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Get returns the row with the given id.
func (r *Resource[T]) Get(ctx context.Context, id uuid.UUID) (T, error) {
	return r.GetBy(ctx, "id", id)
}

// GetBy returns the single row where column equals value.
func (r *Resource[T]) GetBy(ctx context.Context, column string, value any) (T, error) {
	var zero T
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", r.selectList(), r.spec.Table, column)
	rows, err := r.q.Query(ctx, sql, value)
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", r.spec.Entity, err)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	return item, nil
}

// GetForUpdate locks the row inside the caller's transaction.
func (r *Resource[T]) GetForUpdate(ctx context.Context, id uuid.UUID) (T, error) {
	return r.LockBy(ctx, "id", id)
}

// LockBy selects the single row where column equals value with FOR UPDATE.
func (r *Resource[T]) LockBy(ctx context.Context, column string, value any) (T, error) {
	var zero T
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 FOR UPDATE", r.selectList(), r.spec.Table, column)
	rows, err := r.q.Query(ctx, sql, value)
	if err != nil {
		return zero, fmt.Errorf("lock %s: %w", r.spec.Entity, err)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	return item, nil
}

// Insert writes a row from column values and returns it as stored.
func (r *Resource[T]) Insert(ctx context.Context, values map[string]any) (T, error) {
	var zero T
	cols, args := sortedValues(values)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.spec.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), r.selectList())
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	return item, nil
}

// Update sets the given columns on the row with id and returns the new row.
func (r *Resource[T]) Update(ctx context.Context, id uuid.UUID, values map[string]any) (T, error) {
	var zero T
	cols, args := sortedValues(values)
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
	}
	if r.spec.Touch {
		sets = append(sets, "updated_at = now()")
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		r.spec.Table, strings.Join(sets, ", "), len(args), r.selectList())
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	return item, nil
}

// Delete removes the row, or marks it with the SoftDelete status when configured.
func (r *Resource[T]) Delete(ctx context.Context, id uuid.UUID) error {
	var tag pgconn.CommandTag
	var err error
	if r.spec.SoftDelete != "" {
		set := "status = $1"
		if r.spec.Touch {
			set += ", updated_at = now()"
		}
		tag, err = r.q.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE id = $2 AND status <> $1", r.spec.Table, set), r.spec.SoftDelete, id)
	} else {
		tag, err = r.q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.spec.Table), id)
	}
	if err != nil {
		return mapDBError(err, r.spec.Entity)
	}
	if tag.RowsAffected() == 0 {
		return notFoundf("%s not found", r.spec.Entity)
	}
	return nil
}

// Transition moves a row from one of the allowed statuses to next in a single
// conditional UPDATE. extra carries additional columns to set in the same statement.
func (r *Resource[T]) Transition(ctx context.Context, id uuid.UUID, from []string, next string, extra map[string]any) (T, error) {
	var zero T
	values := map[string]any{"status": next}
	for k, v := range extra {
		values[k] = v
	}
	cols, args := sortedValues(values)
	sets := make([]string, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
	}
	if r.spec.Touch {
		sets = append(sets, "updated_at = now()")
	}
	args = append(args, id, from)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND status = ANY($%d) RETURNING %s",
		r.spec.Table, strings.Join(sets, ", "), len(args)-1, len(args), r.selectList())
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	item, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return zero, mapDBError(err, r.spec.Entity)
	}

	var current string
	err = r.q.QueryRow(ctx, fmt.Sprintf("SELECT status FROM %s WHERE id = $1", r.spec.Table), id).Scan(&current)
	if err != nil {
		return zero, mapDBError(err, r.spec.Entity)
	}
	return zero, businessf("%s %s cannot move to %s: status is %s (must be %s)",
		r.spec.Entity, id, next, current, strings.Join(from, " or "))
}

func sortedValues(values map[string]any) ([]string, []any) {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = values[c]
	}
	return cols, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var columnCache sync.Map // reflect.Type -> []string

// columnsOf lists the column names of T in field order, following the same
// matching rules pgx.RowToStructByName applies.
func columnsOf[T any]() []string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]string)
	}
	var cols []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, name)
	}
	columnCache.Store(t, cols)
	return cols
}
