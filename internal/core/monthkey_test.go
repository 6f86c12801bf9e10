package core

import (
	"testing"
	"time"
)

func TestParseMonthKey(t *testing.T) {
	n := NewDateNormalizer(time.UTC)
	cases := []struct {
		in   string
		want MonthKey
	}{
		{"2025-03", MonthKey{"March", 2025}},
		{"2025-3", MonthKey{"March", 2025}},
		{"2025-12", MonthKey{"December", 2025}},
		{"2025-13", MonthKey{"December", 2025}},
		{"2025-0", MonthKey{"January", 2025}},
		{"March '25", MonthKey{"March", 2025}},
		{"march 2025", MonthKey{"March", 2025}},
		{"DECEMBER '99", MonthKey{"December", 2099}},
		{"Sept 2025", MonthKey{"September", 2025}},
		{"Mar '25", MonthKey{"March", 2025}},
		{"dec 2024", MonthKey{"December", 2024}},
		{"Ju 2025", MonthKey{}},
		{"Marchy 2025", MonthKey{}},
		{"Smarch '25", MonthKey{}},
		{"03/15/2025", MonthKey{"March", 2025}},
		{"2024-02-29", MonthKey{"February", 2024}},
		{"", MonthKey{}},
		{"whenever", MonthKey{}},
	}
	for _, tc := range cases {
		if got := n.ParseMonthKey(tc.in); got != tc.want {
			t.Fatalf("ParseMonthKey(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestAbbreviatedMonthMatchesFullName(t *testing.T) {
	n := NewDateNormalizer(time.UTC)
	full := n.ParseMonthKey("2025-03")
	for _, in := range []string{"Mar '25", "MAR 2025", "marc 2025", "March '25"} {
		got := n.ParseMonthKey(in)
		if got != full {
			t.Fatalf("ParseMonthKey(%q) = %+v, want %+v", in, got, full)
		}
		if ym, ok := got.YearMonth(); !ok || ym != (YearMonth{2025, time.March}) {
			t.Fatalf("%q does not resolve to a calendar month: %+v, %v", in, ym, ok)
		}
	}
}

func TestMonthKeyYearMonth(t *testing.T) {
	cases := []struct {
		key  MonthKey
		want YearMonth
		ok   bool
	}{
		{MonthKey{"March", 2025}, YearMonth{2025, time.March}, true},
		{MonthKey{"march", 2025}, YearMonth{2025, time.March}, true},
		{MonthKey{"Sept", 2025}, YearMonth{}, false},
		{MonthKey{}, YearMonth{}, false},
	}
	for _, tc := range cases {
		got, ok := tc.key.YearMonth()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%+v.YearMonth() = %+v, %v", tc.key, got, ok)
		}
	}
}

func TestYearMonthRoundTrip(t *testing.T) {
	n := NewDateNormalizer(time.UTC)
	for m := time.January; m <= time.December; m++ {
		ym := YearMonth{Year: 2025, Month: m}
		got, ok := n.ParseYearMonth(ym.String())
		if !ok || got != ym {
			t.Fatalf("ParseYearMonth(%q) = %+v, %v", ym.String(), got, ok)
		}
		if ym.Key().String() != MonthName(m)+" 2025" {
			t.Fatalf("Key() = %q", ym.Key().String())
		}
	}
	if (YearMonth{}).String() != "" || !(YearMonth{}).Key().IsZero() {
		t.Fatal("zero YearMonth should render empty")
	}
}
