package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var (
	hundred     = decimal.NewFromInt(100)
	balanceTol  = decimal.NewFromFloat(0.01)
	defaultBase = "USD"
)

func nowUTC() time.Time { return time.Now().UTC() }

func todayUTC() time.Time {
	n := nowUTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns the UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, validationf("invalid date %q: use YYYY-MM-DD", s)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// dateOrToday parses s, or returns today's date when s is empty.
func dateOrToday(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return todayUTC(), nil
	}
	return ParseDate(s)
}

// optionalDate parses s into a nullable column value.
func optionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// requireFields returns a validation error naming the first empty field.
// pairs alternates field name and value.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return validationf("%s is required", pairs[i])
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	if containsString(allowed, value) {
		return nil
	}
	return validationf("invalid %s %q: must be one of %s", field, value, strings.Join(allowed, ", "))
}

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
