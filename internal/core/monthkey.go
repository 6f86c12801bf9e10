package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// MonthKey identifies a budget entry: an English month name and a year.
type MonthKey struct {
	Month string
	Year  int
}

func (k MonthKey) IsZero() bool { return k.Month == "" || k.Year == 0 }

func (k MonthKey) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s %d", k.Month, k.Year)
}

// YearMonth converts the key into a calendar month. It fails for month words
// outside the English month table.
func (k MonthKey) YearMonth() (YearMonth, bool) {
	if k.IsZero() {
		return YearMonth{}, false
	}
	for i, name := range monthNames {
		if strings.EqualFold(name, k.Month) {
			return YearMonth{Year: k.Year, Month: time.Month(i + 1)}, true
		}
	}
	return YearMonth{}, false
}

// YearMonth is a calendar month. The zero value means "no month".
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym YearMonth) IsZero() bool { return ym.Year == 0 || ym.Month == 0 }

// String renders the month as YYYY-MM.
func (ym YearMonth) String() string {
	if ym.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Key returns the budget key for the month.
func (ym YearMonth) Key() MonthKey {
	if ym.IsZero() {
		return MonthKey{}
	}
	return MonthKey{Month: MonthName(ym.Month), Year: ym.Year}
}

var (
	legacyMonthRe  = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	displayMonthRe = regexp.MustCompile(`^([A-Za-z]+)\s+'?(\d{2,4})$`)
)

// ParseMonthKey resolves a month selector value. Recognised forms, in order:
// "YYYY-M" or "YYYY-MM", "<Month> 'YY" or "<Month> YYYY", then anything the
// date strategies can parse. The month word may be abbreviated ("Mar",
// "Sept") and always resolves to the full name. Everything else yields the
// zero key.
func (n *DateNormalizer) ParseMonthKey(value string) MonthKey {
	s := strings.TrimSpace(value)
	if s == "" {
		return MonthKey{}
	}
	if m := legacyMonthRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		idx := min(max(mo-1, 0), 11)
		return MonthKey{Month: monthNames[idx], Year: y}
	}
	if m := displayMonthRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[2])
		if y < 100 {
			y += 2000
		}
		mo, ok := lookupMonthWord(m[1])
		if !ok {
			return MonthKey{}
		}
		return MonthKey{Month: MonthName(mo), Year: y}
	}
	if res := n.Parse(s); res.Matched {
		t := res.Time.In(n.loc)
		return MonthKey{Month: MonthName(t.Month()), Year: t.Year()}
	}
	return MonthKey{}
}

// lookupMonthWord matches a full English month name or an unambiguous
// prefix of at least three letters, ignoring case.
func lookupMonthWord(word string) (time.Month, bool) {
	fold := cases.Fold()
	w := fold.String(word)
	if len(w) < 3 {
		return 0, false
	}
	var found time.Month
	for i, name := range monthNames {
		if !strings.HasPrefix(fold.String(name), w) {
			continue
		}
		if found != 0 {
			return 0, false
		}
		found = time.Month(i + 1)
	}
	return found, found != 0
}

// ParseYearMonth resolves a month selector into a calendar month. It accepts
// the same forms as ParseMonthKey.
func (n *DateNormalizer) ParseYearMonth(value string) (YearMonth, bool) {
	return n.ParseMonthKey(value).YearMonth()
}

// ParseMonthKey resolves value in the local zone.
func ParseMonthKey(value string) MonthKey { return defaultNormalizer.ParseMonthKey(value) }
