package google

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tally/internal/core"
)

var (
	transactionHeader = []any{"id", "date", "desc", "category", "amount", "account", "recurring", "groupId"}
	budgetHeader      = []any{"month", "year", "budget"}
)

// parseTransactions converts a values matrix into transactions. The first row
// is a header; columns are located by name so reordered sheets still load.
// Rows without any content are skipped.
func parseTransactions(values [][]any) []core.Transaction {
	if len(values) == 0 {
		return []core.Transaction{}
	}
	cols := columnIndex(values[0])
	out := make([]core.Transaction, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		get := func(name string) string { return cell(row, cols, name) }
		amount, err := core.ParseAmount(get("amount"))
		if err != nil {
			amount = core.Amount{}
		}
		out = append(out, core.Transaction{
			ID:          parseID(get("id")),
			Date:        get("date"),
			Description: get("desc"),
			Category:    get("category"),
			Amount:      amount,
			Account:     get("account"),
			Recurring:   parseFlag(get("recurring")),
			GroupID:     parseID(get("groupid")),
		})
	}
	return out
}

func parseBudgets(values [][]any) []core.BudgetEntry {
	if len(values) == 0 {
		return []core.BudgetEntry{}
	}
	cols := columnIndex(values[0])
	out := make([]core.BudgetEntry, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := toStrings(raw)
		if blank(row) {
			continue
		}
		year, _ := strconv.Atoi(cell(row, cols, "year"))
		out = append(out, core.BudgetEntry{
			Month:  cell(row, cols, "month"),
			Year:   year,
			Budget: core.CoerceBudget(cell(row, cols, "budget")),
		})
	}
	return out
}

// transactionRows renders transactions as a values matrix with a header.
// Dates are written as text so the sheet cannot reinterpret them.
func transactionRows(txs []core.Transaction) [][]any {
	rows := make([][]any, 0, len(txs)+1)
	rows = append(rows, transactionHeader)
	for _, tx := range txs {
		recurring := "No"
		if tx.Recurring {
			recurring = "Yes"
		}
		rows = append(rows, []any{
			idCell(tx.ID),
			tx.Date,
			tx.Description,
			tx.Category,
			tx.Amount.Float64(),
			tx.Account,
			recurring,
			idCell(tx.GroupID),
		})
	}
	return rows
}

func budgetRows(budgets []core.BudgetEntry) [][]any {
	rows := make([][]any, 0, len(budgets)+1)
	rows = append(rows, budgetHeader)
	for _, b := range budgets {
		rows = append(rows, []any{b.Month, b.Year, b.Budget.Float64()})
	}
	return rows
}

// idCell writes numeric ids as numbers and the empty id as an empty cell.
func idCell(id core.ID) any {
	if id.IsZero() {
		return ""
	}
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return n
	}
	return string(id)
}

// parseID reuses the JSON rules so "1.7e12" and "1741564800000" agree.
func parseID(s string) core.ID {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var id core.ID
	raw, _ := json.Marshal(s)
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return core.ID(s)
	}
	return id
}

func parseFlag(s string) core.Flag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

func columnIndex(header []any) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range toStrings(header) {
		key := strings.ToLower(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok {
		return ""
	}
	return safeGet(row, i)
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
