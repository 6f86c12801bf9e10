package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  error
	}{
		{"42.50", "42.50", nil},
		{" 7 ", "7.00", nil},
		{"-15.25", "-15.25", nil},
		{"+3", "3.00", nil},
		{"$1,200.50", "1200.50", nil},
		{"-$80", "-80.00", nil},
		{"(12.30)", "-12.30", nil},
		{"0", "0.00", nil},
		{"", "0.00", ErrMissingAmount},
		{"   ", "0.00", ErrMissingAmount},
		{"abc", "0.00", ErrInvalidAmount},
		{"--5", "0.00", ErrInvalidAmount},
		{"1.2.3", "0.00", ErrInvalidAmount},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !errors.Is(err, tc.err) {
			t.Fatalf("ParseAmount(%q) err = %v, want %v", tc.in, err, tc.err)
		}
		if got.StringFixed() != tc.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got.StringFixed(), tc.want)
		}
	}
}

func TestCoerceBudget(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1200", "1200.00"},
		{"$950.10", "950.10"},
		{"-5", "0.00"},
		{"", "0.00"},
		{"lots", "0.00"},
	}
	for _, tc := range cases {
		if got := CoerceBudget(tc.in).StringFixed(); got != tc.want {
			t.Fatalf("CoerceBudget(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestAmountJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`42.5`, "42.50"},
		{`-3`, "-3.00"},
		{`"$1,200.50"`, "1200.50"},
		{`"12"`, "12.00"},
		{`"oops"`, "0.00"},
		{`null`, "0.00"},
	}
	for _, tc := range cases {
		var a Amount
		if err := json.Unmarshal([]byte(tc.in), &a); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if a.StringFixed() != tc.want {
			t.Fatalf("unmarshal %s = %s, want %s", tc.in, a.StringFixed(), tc.want)
		}
	}

	out, err := json.Marshal(struct {
		A Amount `json:"amount"`
	}{AmountFromCents(-4250)})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"amount":-42.5}` {
		t.Fatalf("marshal = %s", out)
	}
}

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(0.1)
	b := NewAmount(0.2)
	if !a.Add(b).Equal(AmountFromCents(30)) {
		t.Fatalf("0.1 + 0.2 = %s", a.Add(b))
	}
	if got := AmountFromCents(-500).Abs().StringFixed(); got != "5.00" {
		t.Fatalf("Abs = %s", got)
	}
	if !AmountFromCents(-1).NonNegative().IsZero() {
		t.Fatal("NonNegative should clamp negatives to zero")
	}
	if AmountFromCents(100).Sub(AmountFromCents(250)).Cmp(Amount{}) >= 0 {
		t.Fatal("expected a negative difference")
	}
}
