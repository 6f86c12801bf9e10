package core

import (
	"testing"
	"time"
)

var est = time.FixedZone("EST", -5*60*60)

func TestNormalize(t *testing.T) {
	n := NewDateNormalizer(est)
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"03/10/2025", "03/10/2025"},
		{"3/9/2025", "03/09/2025"},
		{"2025-03-10", "03/10/2025"},
		{" 2025-01-31 ", "01/31/2025"},
		{"2025-03-10T02:00:00Z", "03/09/2025"},
		{"2025-03-10T12:00:00-05:00", "03/10/2025"},
		{"2025-03-10T23:30:00", "03/10/2025"},
		{"March 10, 2025", "03/10/2025"},
		{"Mar 10 2025", "03/10/2025"},
		{"10 March 2025", "03/10/2025"},
		{"2025/03/10", "03/10/2025"},
		{"Mon Mar 10 2025 00:00:00 GMT-0500 (Eastern Standard Time)", "03/10/2025"},
		{"not a date", "not a date"},
		{"13/45/2025", "13/45/2025"},
		{"2025-02-30", "2025-02-30"},
	}
	for _, tc := range cases {
		if got := n.Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "03/10/2025", "3/1/2025", "2025-12-31", "2025-03-10T02:00:00Z",
		"2025-03-10T23:30:00", "March 10, 2025", "2025/3/1", "garbage", " padded ",
		"02/29/2024", "02/29/2025",
	}
	for _, loc := range []*time.Location{time.UTC, est, time.FixedZone("JST", 9*60*60)} {
		n := NewDateNormalizer(loc)
		for _, in := range inputs {
			once := n.Normalize(in)
			if twice := n.Normalize(once); twice != once {
				t.Fatalf("%s: Normalize not idempotent for %q: %q then %q", loc, in, once, twice)
			}
		}
	}
}

func TestISODateIsLexical(t *testing.T) {
	// A date-only string must not shift a day in zones west or east of UTC.
	for _, loc := range []*time.Location{est, time.FixedZone("far-east", 14*60*60), time.FixedZone("far-west", -12*60*60)} {
		n := NewDateNormalizer(loc)
		if got := n.Normalize("2025-01-01"); got != "01/01/2025" {
			t.Fatalf("%s: got %q", loc, got)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	n := NewDateNormalizer(time.UTC)
	cases := []struct {
		in   string
		want Strategy
		ok   bool
	}{
		{"03/10/2025", StrategyCanonical, true},
		{"2025-03-10", StrategyISODate, true},
		{"2025-03-10T10:00:00Z", StrategyISOTime, true},
		{"March 10, 2025", StrategyGeneric, true},
		{"nope", StrategyNone, false},
		{"", StrategyNone, false},
	}
	for _, tc := range cases {
		res := n.Parse(tc.in)
		if res.Matched != tc.ok || res.Strategy != tc.want {
			t.Fatalf("Parse(%q) = %+v, want strategy %q matched %v", tc.in, res, tc.want, tc.ok)
		}
		if !res.Matched && !res.Time.IsZero() {
			t.Fatalf("Parse(%q) unmatched result carries a time", tc.in)
		}
	}
}

func TestParseCanonical(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"03/10/2025", true},
		{" 12/31/2024 ", true},
		{"3/10/2025", false},
		{"2025-03-10", false},
		{"02/30/2025", false},
		{"", false},
	}
	for _, tc := range cases {
		got, ok := ParseCanonical(tc.in)
		if ok != tc.ok {
			t.Fatalf("ParseCanonical(%q) ok=%v, want %v", tc.in, ok, tc.ok)
		}
		if ok && got.Location() != time.UTC {
			t.Fatalf("ParseCanonical(%q) not in UTC", tc.in)
		}
	}
}

func TestDaysIn(t *testing.T) {
	cases := []struct {
		y    int
		m    time.Month
		want int
	}{
		{2025, time.January, 31},
		{2025, time.February, 28},
		{2024, time.February, 29},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2025, time.April, 30},
		{2025, time.December, 31},
	}
	for _, tc := range cases {
		if got := DaysIn(tc.y, tc.m); got != tc.want {
			t.Fatalf("DaysIn(%d, %s) = %d, want %d", tc.y, tc.m, got, tc.want)
		}
	}
}
