// Package ledger holds the in-memory transaction list and budget entries.
//
// A Ledger is not safe for concurrent use. The tracker service owns one and
// serializes every access behind its own lock.
package ledger

import (
	"strings"

	"tally/internal/core"
)

type Ledger struct {
	dates   *core.DateNormalizer
	txs     []core.Transaction
	budgets []core.BudgetEntry

	// groups maps a group id to its members' offsets from the end of the
	// list, ascending. Prepend leaves existing offsets valid, so the index
	// is extended in place. Nil means stale; it is rebuilt on the next lookup.
	groups map[core.ID][]int
}

// New returns an empty ledger that normalizes dates with dates, or with the
// local zone when nil.
func New(dates *core.DateNormalizer) *Ledger {
	if dates == nil {
		dates = core.NewDateNormalizer(nil)
	}
	return &Ledger{dates: dates}
}

func (l *Ledger) Dates() *core.DateNormalizer { return l.dates }

// Load replaces all state with doc. Dates are normalized and missing
// accounts and categories take their defaults. Nothing is rejected.
func (l *Ledger) Load(doc core.Document) {
	l.groups = nil
	l.txs = make([]core.Transaction, 0, len(doc.Transactions))
	for _, tx := range doc.Transactions {
		tx = tx.WithDefaults()
		tx.Date = l.dates.Normalize(tx.Date)
		l.txs = append(l.txs, tx)
	}
	l.budgets = make([]core.BudgetEntry, 0, len(doc.Budgets))
	for _, b := range doc.Budgets {
		b.Budget = b.Budget.NonNegative()
		l.budgets = append(l.budgets, b)
	}
}

// Document snapshots the full state in list order.
func (l *Ledger) Document() core.Document {
	return core.Document{
		Budgets:      append([]core.BudgetEntry{}, l.budgets...),
		Transactions: append([]core.Transaction{}, l.txs...),
	}
}

func (l *Ledger) Len() int { return len(l.txs) }

func (l *Ledger) At(i int) core.Transaction { return l.txs[i] }

// Transactions returns a copy of the list.
func (l *Ledger) Transactions() []core.Transaction {
	return append([]core.Transaction{}, l.txs...)
}

// IndexOf returns the position of the first transaction with id, or -1.
func (l *Ledger) IndexOf(id core.ID) int {
	for i, tx := range l.txs {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

// Prepend inserts txs at the front, keeping their relative order.
func (l *Ledger) Prepend(txs ...core.Transaction) {
	if len(txs) == 0 {
		return
	}
	out := make([]core.Transaction, 0, len(txs)+len(l.txs))
	out = append(out, txs...)
	l.txs = append(out, l.txs...)
	if l.groups == nil {
		return
	}
	for j := len(txs) - 1; j >= 0; j-- {
		if gid := txs[j].GroupID; !gid.IsZero() {
			l.groups[gid] = append(l.groups[gid], l.offset(j))
		}
	}
}

// offset converts a list position to its distance from the end.
func (l *Ledger) offset(i int) int { return len(l.txs) - 1 - i }

func (l *Ledger) index() map[core.ID][]int {
	if l.groups == nil {
		l.groups = make(map[core.ID][]int)
		for i := len(l.txs) - 1; i >= 0; i-- {
			if gid := l.txs[i].GroupID; !gid.IsZero() {
				l.groups[gid] = append(l.groups[gid], l.offset(i))
			}
		}
	}
	return l.groups
}

// Replace overwrites the transaction at i.
func (l *Ledger) Replace(i int, tx core.Transaction) {
	if l.txs[i].GroupID != tx.GroupID {
		l.groups = nil
	}
	l.txs[i] = tx
}

// Delete removes and returns the transaction at i.
func (l *Ledger) Delete(i int) core.Transaction {
	tx := l.txs[i]
	l.groups = nil
	l.txs = append(l.txs[:i], l.txs[i+1:]...)
	return tx
}

// RemoveFromGroup drops the members of series gid for which drop returns
// true and reports how many were removed. Only members are inspected.
// Survivors keep their order.
func (l *Ledger) RemoveFromGroup(gid core.ID, drop func(core.Transaction) bool) int {
	if gid.IsZero() {
		return 0
	}
	doomed := make(map[int]struct{})
	for _, off := range l.index()[gid] {
		i := len(l.txs) - 1 - off
		if drop(l.txs[i]) {
			doomed[i] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return 0
	}
	kept := l.txs[:0]
	for i, tx := range l.txs {
		if _, ok := doomed[i]; !ok {
			kept = append(kept, tx)
		}
	}
	clear(l.txs[len(kept):])
	l.txs = kept
	l.groups = nil
	return len(doomed)
}

// Group returns the members of series gid in list order.
func (l *Ledger) Group(gid core.ID) []core.Transaction {
	if gid.IsZero() {
		return nil
	}
	offs := l.index()[gid]
	if len(offs) == 0 {
		return nil
	}
	out := make([]core.Transaction, 0, len(offs))
	for j := len(offs) - 1; j >= 0; j-- {
		out = append(out, l.txs[len(l.txs)-1-offs[j]])
	}
	return out
}

// SeriesIDs lists the distinct group ids carried by recurring transactions,
// in order of first appearance.
func (l *Ledger) SeriesIDs() []core.ID {
	seen := make(map[core.ID]struct{})
	var out []core.ID
	for _, tx := range l.txs {
		if !tx.InSeries() {
			continue
		}
		if _, ok := seen[tx.GroupID]; ok {
			continue
		}
		seen[tx.GroupID] = struct{}{}
		out = append(out, tx.GroupID)
	}
	return out
}

// Budgets returns a copy of the budget entries.
func (l *Ledger) Budgets() []core.BudgetEntry {
	return append([]core.BudgetEntry{}, l.budgets...)
}

// Budget looks up the entry for a month selector value.
func (l *Ledger) Budget(value string) (core.BudgetEntry, bool) {
	return l.BudgetFor(l.dates.ParseMonthKey(value))
}

// BudgetFor looks up the entry for a resolved key.
func (l *Ledger) BudgetFor(key core.MonthKey) (core.BudgetEntry, bool) {
	if key.IsZero() {
		return core.BudgetEntry{}, false
	}
	for _, b := range l.budgets {
		if b.Matches(key) {
			return b, true
		}
	}
	return core.BudgetEntry{}, false
}

// UpsertBudget sets the budget for a month selector value. A value that
// resolves to no month changes nothing and reports false. Negative amounts
// are stored as zero.
func (l *Ledger) UpsertBudget(value string, amount core.Amount) (core.BudgetEntry, bool) {
	key := l.dates.ParseMonthKey(value)
	if key.IsZero() {
		return core.BudgetEntry{}, false
	}
	entry := core.BudgetEntry{Month: key.Month, Year: key.Year, Budget: amount.NonNegative()}
	for i, b := range l.budgets {
		if b.Matches(key) {
			l.budgets[i] = entry
			return entry, true
		}
	}
	l.budgets = append(l.budgets, entry)
	return entry, true
}

// Accounts lists the distinct accounts present in the list, in order of
// first appearance.
func (l *Ledger) Accounts() []string {
	return distinct(l.txs, func(tx core.Transaction) string { return tx.Account })
}

// Categories lists the distinct categories present in the list.
func (l *Ledger) Categories() []string {
	return distinct(l.txs, func(tx core.Transaction) string { return tx.Category })
}

func distinct(txs []core.Transaction, field func(core.Transaction) string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tx := range txs {
		v := strings.TrimSpace(field(tx))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
