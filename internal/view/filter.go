// Package view derives what a reader sees from the transaction list: the
// filtered and sorted visible set, the per-category breakdown and the
// budget header.
package view

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
)

// Filter selects the visible set. A zero Month passes every month. An empty
// list, or one containing core.AllFilter, passes every account or category.
type Filter struct {
	Month      core.YearMonth
	Accounts   []string
	Categories []string
}

var strictDateRe = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)

// Visible returns the transactions that pass f, in input order. Transactions
// without a date are never visible. When dates is nil the local zone is used
// for dates that are not MM/DD/YYYY.
func Visible(txs []core.Transaction, f Filter, dates *core.DateNormalizer) []core.Transaction {
	if dates == nil {
		dates = core.NewDateNormalizer(nil)
	}
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.matches(tx, dates) {
			out = append(out, tx)
		}
	}
	return out
}

func (f Filter) matches(tx core.Transaction, dates *core.DateNormalizer) bool {
	if strings.TrimSpace(tx.Date) == "" {
		return false
	}
	if !f.Month.IsZero() {
		ym, ok := monthOf(tx.Date, dates)
		if !ok || ym != f.Month {
			return false
		}
	}
	return passes(f.Accounts, core.AccountOrDefault(tx.Account)) &&
		passes(f.Categories, core.CategoryOrDefault(tx.Category))
}

// monthOf reads the month lexically from MM/DD/YYYY and falls back to the
// generic date strategies.
func monthOf(date string, dates *core.DateNormalizer) (core.YearMonth, bool) {
	s := strings.TrimSpace(date)
	if m := strictDateRe.FindStringSubmatch(s); m != nil {
		mo, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[3])
		return core.YearMonth{Year: y, Month: time.Month(mo)}, true
	}
	res := dates.Parse(s)
	if !res.Matched {
		return core.YearMonth{}, false
	}
	return core.YearMonth{Year: res.Time.Year(), Month: res.Time.Month()}, true
}

func passes(filter []string, v string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		f = strings.TrimSpace(f)
		if f == core.AllFilter || strings.EqualFold(f, v) {
			return true
		}
	}
	return false
}

// Sort orders txs newest first in place. Dates that are not MM/DD/YYYY sort
// as the oldest possible value. Equal dates keep their relative order.
func Sort(txs []core.Transaction) {
	keys := make(map[string]int64, len(txs))
	key := func(d string) int64 {
		if k, ok := keys[d]; ok {
			return k
		}
		var k int64
		if t, ok := core.ParseCanonical(d); ok {
			k = t.Unix()
		}
		keys[d] = k
		return k
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return key(txs[i].Date) > key(txs[j].Date)
	})
}
