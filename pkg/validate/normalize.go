// Package validate holds the input normalisers used by the commerce services.
// Every normaliser returns a Result so callers can collect all field errors
// before failing.
package validate

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Result is the outcome of normalising one field. Err is empty on success.
type Result[T any] struct {
	Value T
	Err   string
}

// OK reports whether normalisation succeeded.
func (r Result[T]) OK() bool {
	return r.Err == ""
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func fail[T any](msg string) Result[T] {
	return Result[T]{Err: msg}
}

// Trim strips surrounding whitespace; required rejects an empty result.
func Trim(raw string, required bool) Result[string] {
	v := strings.TrimSpace(raw)
	if required && v == "" {
		return fail[string]("is required")
	}
	return ok(v)
}

// OptionalTrim trims a nullable string, collapsing blanks to nil.
func OptionalTrim(raw *string) Result[*string] {
	if raw == nil {
		return ok[*string](nil)
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return ok[*string](nil)
	}
	return ok(&v)
}

// Money rounds to 2 decimals and converts to integer cents. Negative amounts fail.
func Money(value decimal.Decimal) Result[int64] {
	if value.IsNegative() {
		return fail[int64]("must not be negative")
	}
	return ok(Cents(value))
}

// ParseMoney parses a textual amount before applying Money.
func ParseMoney(raw string) Result[int64] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fail[int64]("is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fail[int64]("must be a number")
	}
	return Money(d)
}

// PositiveInt accepts values strictly greater than zero.
func PositiveInt(v int) Result[int] {
	if v <= 0 {
		return fail[int]("must be greater than 0")
	}
	return ok(v)
}

// NonNegativeInt accepts zero and positive values.
func NonNegativeInt(v int) Result[int] {
	if v < 0 {
		return fail[int]("must not be negative")
	}
	return ok(v)
}

var dateLayouts = []string{time.DateOnly, time.RFC3339, time.RFC3339Nano}

// Date parses YYYY-MM-DD or RFC 3339 into a UTC time.
func Date(raw string) Result[time.Time] {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fail[time.Time]("is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return ok(t.UTC())
		}
	}
	return fail[time.Time]("must be a date (YYYY-MM-DD)")
}

// Cents converts an amount in major units to cents, rounding half away from zero.
func Cents(value decimal.Decimal) int64 {
	return value.Round(2).Shift(2).IntPart()
}

// FromCents converts cents back into major units.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
