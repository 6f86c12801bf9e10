package view

import (
	"fmt"

	"tally/internal/core"
)

// State classifies the budget line of the header.
type State string

const (
	StateGood  State = "good"
	StateBad   State = "bad"
	StateMuted State = "muted"
)

const noBudgetText = "Available budget: —"

// Header is the summary shown above the visible set.
type Header struct {
	Total      core.Amount  `json:"total"`
	TotalText  string       `json:"totalText"`
	Count      int          `json:"count"`
	CountText  string       `json:"countText"`
	Budget     *core.Amount `json:"budget,omitempty"`
	Remaining  *core.Amount `json:"remaining,omitempty"`
	BudgetText string       `json:"budgetText"`
	State      State        `json:"state"`
}

// Summarize builds the header. The budget line is only computed when a month
// is selected and its budget is positive; otherwise it is muted.
func Summarize(visible []core.Transaction, budget *core.BudgetEntry, monthSelected bool) Header {
	var total core.Amount
	for _, tx := range visible {
		total = total.Add(tx.Amount)
	}
	h := Header{
		Total:      total,
		TotalText:  "Total " + FormatCurrency(total),
		Count:      len(visible),
		CountText:  countText(len(visible)),
		BudgetText: noBudgetText,
		State:      StateMuted,
	}
	if !monthSelected || budget == nil || budget.Budget.Cmp(core.Amount{}) <= 0 {
		return h
	}
	b := budget.Budget
	rem := b.Sub(total)
	h.Budget, h.Remaining = &b, &rem
	if rem.IsNegative() {
		h.BudgetText = "Over budget by " + FormatCurrency(rem.Abs())
		h.State = StateBad
	} else {
		h.BudgetText = "Available budget: " + FormatCurrency(rem)
		h.State = StateGood
	}
	return h
}

func countText(n int) string {
	if n == 1 {
		return "1 transaction"
	}
	return fmt.Sprintf("%d transactions", n)
}

// FormatCurrency renders a as dollars with two decimals, e.g. "$700.00" or
// "-$12.50".
func FormatCurrency(a core.Amount) string {
	if a.IsNegative() {
		return "-$" + a.Abs().StringFixed()
	}
	return "$" + a.StringFixed()
}
