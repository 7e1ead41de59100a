package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes. Services wrap these with fmt.Errorf("...: %w", ErrX) so adapters
// can map them to transport status codes with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBusinessRule = errors.New("business rule violated")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// classError pairs a class sentinel with a human message. Error() returns only the
// message so it can be shown to API callers verbatim.
type classError struct {
	class error
	msg   string
}

func (e *classError) Error() string { return e.msg }
func (e *classError) Unwrap() error { return e.class }

func validationf(format string, args ...any) error {
	return &classError{class: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...any) error {
	return &classError{class: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &classError{class: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func businessf(format string, args ...any) error {
	return &classError{class: ErrBusinessRule, msg: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) error {
	return &classError{class: ErrForbidden, msg: fmt.Sprintf(format, args...)}
}

// mapDBError translates driver errors into the error classes above. entity names
// the record kind for the message, e.g. "account".
func mapDBError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFoundf("%s not found", entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return conflictf("%s already exists (%s)", entity, pgErr.ConstraintName)
		case "23503":
			return validationf("%s references a record that does not exist (%s)", entity, pgErr.ConstraintName)
		case "23514", "23502", "22P02":
			return validationf("invalid %s: %s", entity, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", entity, err)
}
