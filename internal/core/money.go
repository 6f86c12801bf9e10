// Package core provides money parsing and handling utilities.
//
// This file contains the Amount type used for transaction amounts and budgets.
// Amounts are exact decimals in memory and plain JSON numbers on the wire.
package core

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a signed currency value. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// NewAmount builds an Amount from a float, rounded to cents.
func NewAmount(f float64) Amount {
	return Amount{d: decimal.NewFromFloat(f).Round(2)}
}

// AmountFromCents builds an Amount from an integer number of cents.
func AmountFromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -2)}
}

func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount{d: d}
}

// ParseAmount parses user or sheet input into an Amount.
//
// It accepts an optional sign, a leading "$", thousands separators and
// surrounding whitespace. Parenthesised values are negative, as spreadsheets
// display them.
//
// Examples:
//
//	ParseAmount("42.50")     -> 42.5, nil
//	ParseAmount("$1,200.00") -> 1200, nil
//	ParseAmount("(12.30)")   -> -12.3, nil
//	ParseAmount("")          -> 0, ErrMissingAmount
//	ParseAmount("abc")       -> 0, ErrInvalidAmount
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, ErrMissingAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	switch {
	case strings.HasPrefix(s, "-"):
		neg = !neg
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return Amount{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	if neg {
		d = d.Neg()
	}
	return Amount{d: d}, nil
}

// CoerceBudget turns raw budget input into a non-negative amount.
// Empty, invalid and negative input all become zero.
func CoerceBudget(raw string) Amount {
	a, err := ParseAmount(raw)
	if err != nil || a.IsNegative() {
		return Amount{}
	}
	return a
}

// NonNegative clamps a to zero from below.
func (a Amount) NonNegative() Amount {
	if a.IsNegative() {
		return Amount{}
	}
	return a
}

func (a Amount) Decimal() decimal.Decimal { return a.d }

// Float64 returns the value for charting. Use Add and Sub for arithmetic.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Abs() Amount         { return Amount{d: a.d.Abs()} }
func (a Amount) Cmp(b Amount) int    { return a.d.Cmp(b.d) }
func (a Amount) IsZero() bool        { return a.d.IsZero() }
func (a Amount) IsNegative() bool    { return a.d.IsNegative() }
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

// String renders the plain number, e.g. "42.5".
func (a Amount) String() string { return a.d.String() }

// StringFixed renders with exactly two decimals, e.g. "42.50".
func (a Amount) StringFixed() string { return a.d.StringFixed(2) }

// MarshalJSON writes a bare JSON number, never a quoted string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalJSON accepts numbers and numeric strings, including
// currency-formatted ones. Anything unreadable loads as zero so that one bad
// cell cannot fail a whole document load.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Amount{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = Amount{}
			return nil
		}
		parsed, err := ParseAmount(s)
		if err != nil {
			parsed = Amount{}
		}
		*a = parsed
		return nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		*a = Amount{}
		return nil
	}
	*a = Amount{d: d}
	return nil
}
