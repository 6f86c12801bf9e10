package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultCategory = "Uncategorized"
	DefaultAccount  = "Joint"

	// AllFilter is the sentinel filter value that matches every account or category.
	AllFilter = "All"
)

// Categories is the fixed category set offered when recording a transaction.
var Categories = []string{
	"Groceries",
	"Dining out",
	"Personal spending",
	"Housing",
	"Transportation",
	"Subscriptions",
	"Utilities",
	"Savings",
	"Health",
	"Miscellaneous",
	DefaultCategory,
}

type (
	// Flag is a boolean stored on the sheet as "Yes"/"No".
	Flag bool

	Transaction struct {
		ID          ID     `json:"id"`
		Date        string `json:"date"` // canonical MM/DD/YYYY
		Description string `json:"desc"`
		Category    string `json:"category"`
		Amount      Amount `json:"amount"`
		Account     string `json:"account"`
		Recurring   Flag   `json:"recurring"`
		GroupID     ID     `json:"groupId"`
	}

	BudgetEntry struct {
		Month  string `json:"month"`
		Year   int    `json:"year"`
		Budget Amount `json:"budget"`
	}

	// Document is the whole persisted state, exchanged with the remote store
	// as a single unit.
	Document struct {
		Budgets      []BudgetEntry `json:"budgets"`
		Transactions []Transaction `json:"transactions"`
	}

	// Taxonomy holds the enumerated category and account sets accepted on input.
	Taxonomy struct {
		Categories []string
		Accounts   []string
	}
)

var (
	ErrMissingAmount   = errors.New("amount is required")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrMissingDate     = errors.New("date is required")
	ErrInvalidDate     = errors.New("invalid date")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownAccount  = errors.New("unknown account")
)

// ValidationError reports a rejected user input before any state is touched.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// DefaultTaxonomy returns the built-in categories and the given accounts.
// The default account is always included.
func DefaultTaxonomy(accounts ...string) Taxonomy {
	accts := []string{DefaultAccount}
	for _, a := range accounts {
		a = strings.TrimSpace(a)
		if _, dup := lookupFold(accts, a); a == "" || dup {
			continue
		}
		accts = append(accts, a)
	}
	return Taxonomy{
		Categories: append([]string(nil), Categories...),
		Accounts:   accts,
	}
}

// Category returns the taxonomy spelling of c, matched case-insensitively.
func (t Taxonomy) Category(c string) (string, bool) { return lookupFold(t.Categories, c) }

// Account returns the taxonomy spelling of a, matched case-insensitively.
func (t Taxonomy) Account(a string) (string, bool) { return lookupFold(t.Accounts, a) }

// CategoryOrDefault returns the trimmed category, or DefaultCategory when empty.
func CategoryOrDefault(c string) string {
	c = strings.TrimSpace(c)
	if c == "" {
		return DefaultCategory
	}
	return c
}

// AccountOrDefault returns the trimmed account, or DefaultAccount when empty.
func AccountOrDefault(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return DefaultAccount
	}
	return a
}

// WithDefaults fills the category and account defaults.
func (t Transaction) WithDefaults() Transaction {
	t.Category = CategoryOrDefault(t.Category)
	t.Account = AccountOrDefault(t.Account)
	return t
}

// Validate checks a transaction built from user input against the taxonomy.
// The date must already be canonical.
func (t Transaction) Validate(tax Taxonomy) error {
	if strings.TrimSpace(t.Date) == "" {
		return invalid("date", ErrMissingDate)
	}
	if _, ok := ParseCanonical(t.Date); !ok {
		return invalid("date", ErrInvalidDate)
	}
	if _, ok := tax.Category(t.Category); !ok {
		return invalid("category", fmt.Errorf("%w: %q", ErrUnknownCategory, t.Category))
	}
	if _, ok := tax.Account(t.Account); !ok {
		return invalid("account", fmt.Errorf("%w: %q", ErrUnknownAccount, t.Account))
	}
	return nil
}

// Canonicalize rewrites category and account to their taxonomy spelling.
// Unknown values are left untouched for Validate to report.
func (t Transaction) Canonicalize(tax Taxonomy) Transaction {
	t = t.WithDefaults()
	if c, ok := tax.Category(t.Category); ok {
		t.Category = c
	}
	if a, ok := tax.Account(t.Account); ok {
		t.Account = a
	}
	return t
}

// InSeries reports whether the transaction belongs to a recurring series.
func (t Transaction) InSeries() bool {
	return bool(t.Recurring) && !t.GroupID.IsZero()
}

// Matches reports whether the entry is keyed by k (month name case-insensitive).
func (b BudgetEntry) Matches(k MonthKey) bool {
	return !k.IsZero() && strings.EqualFold(b.Month, k.Month) && b.Year == k.Year
}

func (b *BudgetEntry) UnmarshalJSON(data []byte) error {
	var aux struct {
		Month  string          `json:"month"`
		Year   json.RawMessage `json:"year"`
		Budget Amount          `json:"budget"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.Month = strings.TrimSpace(aux.Month)
	b.Budget = aux.Budget
	b.Year = 0
	if raw := strings.Trim(string(bytes.TrimSpace(aux.Year)), `"`); raw != "" && raw != "null" {
		if y, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			b.Year = y
		} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
			b.Year = int(f)
		}
	}
	return nil
}

// UnmarshalJSON tolerates documents where either collection is missing or null.
func (d *Document) UnmarshalJSON(data []byte) error {
	var aux struct {
		Budgets      []BudgetEntry `json:"budgets"`
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.Budgets = aux.Budgets
	d.Transactions = aux.Transactions
	if d.Budgets == nil {
		d.Budgets = []BudgetEntry{}
	}
	if d.Transactions == nil {
		d.Transactions = []Transaction{}
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (d Document) Clone() Document {
	out := Document{
		Budgets:      make([]BudgetEntry, len(d.Budgets)),
		Transactions: make([]Transaction, len(d.Transactions)),
	}
	copy(out.Budgets, d.Budgets)
	copy(out.Transactions, d.Transactions)
	return out
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte(`"Yes"`), nil
	}
	return []byte(`"No"`), nil
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "yes", "y", "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

func lookupFold(list []string, v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return item, true
		}
	}
	return "", false
}
