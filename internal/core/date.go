package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CanonicalLayout is the stored date form, MM/DD/YYYY.
const CanonicalLayout = "01/02/2006"

var monthNames = [12]string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// MonthName returns the English name for m, or "" when out of range.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

// Strategy names the rule that recognised a date string.
type Strategy string

const (
	StrategyNone      Strategy = ""
	StrategyCanonical Strategy = "canonical"
	StrategyISODate   Strategy = "iso-date"
	StrategyISOTime   Strategy = "iso-datetime"
	StrategyGeneric   Strategy = "generic"
)

// DateResult is the outcome of parsing one date string. When Matched is
// false Time is the zero value.
type DateResult struct {
	Time     time.Time
	Matched  bool
	Strategy Strategy
}

var (
	canonicalRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	strictRe     = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
	isoDateRe    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	jsZoneNameRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
)

var isoTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

var genericLayouts = []string{
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Mon Jan 2 2006",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon Jan 02 2006 15:04:05",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"2006/01/02",
	"2006/1/2",
	"January 2006",
	"Jan 2006",
	"01-02-2006",
	"1/2/06",
}

// DateNormalizer converts heterogeneous date strings into MM/DD/YYYY using
// calendar fields in its location. It holds no mutable state.
type DateNormalizer struct {
	loc *time.Location
}

// NewDateNormalizer returns a normalizer for loc, or time.Local when nil.
func NewDateNormalizer(loc *time.Location) *DateNormalizer {
	if loc == nil {
		loc = time.Local
	}
	return &DateNormalizer{loc: loc}
}

func (n *DateNormalizer) Location() *time.Location { return n.loc }

// Normalize returns the canonical form of s. Empty input gives "" and
// unrecognised input is returned unchanged.
func (n *DateNormalizer) Normalize(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	res := n.Parse(trimmed)
	if !res.Matched {
		return s
	}
	return FormatDate(res.Time)
}

// FormatDate renders the calendar fields of t as MM/DD/YYYY without any
// zone conversion.
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%02d/%02d/%04d", int(t.Month()), t.Day(), t.Year())
}

// FormatDate renders t in the normalizer's location.
func (n *DateNormalizer) FormatDate(t time.Time) string {
	return FormatDate(t.In(n.loc))
}

// Parse runs the strategies in order and reports the first match. The
// returned time carries the calendar date in the normalizer's location.
func (n *DateNormalizer) Parse(s string) DateResult {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateResult{}
	}
	if y, m, d, ok := splitCanonical(canonicalRe, s); ok {
		return n.civil(y, m, d, StrategyCanonical)
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if validCivil(y, mo, d) {
			return n.civil(y, mo, d, StrategyISODate)
		}
		return DateResult{}
	}
	if t, ok := n.parseLayouts(isoTimeLayouts, s); ok {
		return DateResult{Time: t, Matched: true, Strategy: StrategyISOTime}
	}
	generic := jsZoneNameRe.ReplaceAllString(s, "")
	if t, ok := n.parseLayouts(genericLayouts, generic); ok {
		return DateResult{Time: t, Matched: true, Strategy: StrategyGeneric}
	}
	return DateResult{}
}

func (n *DateNormalizer) civil(y, m, d int, s Strategy) DateResult {
	return DateResult{
		Time:     time.Date(y, time.Month(m), d, 0, 0, 0, 0, n.loc),
		Matched:  true,
		Strategy: s,
	}
}

// parseLayouts tries each layout. Layouts with a zone are converted to the
// normalizer's location; zoneless ones are read as local wall time.
func (n *DateNormalizer) parseLayouts(layouts []string, s string) (time.Time, bool) {
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, n.loc)
		if err == nil {
			return t.In(n.loc), true
		}
	}
	return time.Time{}, false
}

// ParseCanonical parses a strict MM/DD/YYYY string lexically. The result is
// midnight UTC of that calendar day, so comparisons never depend on a zone.
func ParseCanonical(s string) (time.Time, bool) {
	y, m, d, ok := splitCanonical(strictRe, strings.TrimSpace(s))
	if !ok {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}

func splitCanonical(re *regexp.Regexp, s string) (y, m, d int, ok bool) {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return 0, 0, 0, false
	}
	m, _ = strconv.Atoi(match[1])
	d, _ = strconv.Atoi(match[2])
	y, _ = strconv.Atoi(match[3])
	if !validCivil(y, m, d) {
		return 0, 0, 0, false
	}
	return y, m, d, true
}

func validCivil(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= DaysIn(y, time.Month(m))
}

// DaysIn returns the number of days in month m of year y.
func DaysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

var defaultNormalizer = NewDateNormalizer(nil)

// NormalizeDate normalizes s in the local zone.
func NormalizeDate(s string) string { return defaultNormalizer.Normalize(s) }
