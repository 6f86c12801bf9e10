package services

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/sheets/memory"
)

// captureDispatcher keeps every dispatched document.
type captureDispatcher struct {
	docs []core.Document
}

func (c *captureDispatcher) Dispatch(doc core.Document) int64 {
	c.docs = append(c.docs, doc.Clone())
	return int64(len(c.docs))
}

type failingLoader struct{}

func (failingLoader) Load(context.Context) (core.Document, error) {
	return core.Document{}, errors.New("endpoint unreachable")
}

var march1 = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, doc core.Document) (*Tracker, *captureDispatcher) {
	t.Helper()
	saves := &captureDispatcher{}
	tr := NewTracker(memory.New(doc), saves,
		WithTrackerClock(func() time.Time { return march1 }),
		WithTrackerLocation(time.UTC),
		WithTaxonomy(core.DefaultTaxonomy("Primary", "Partner")),
	)
	if _, err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return tr, saves
}

func dates(txs []core.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Date
	}
	return out
}

func TestAddNormalizesInput(t *testing.T) {
	tr, saves := newTestTracker(t, core.Document{})

	tx, err := tr.Add(context.Background(), TransactionInput{
		Date:     "2025-03-10",
		Amount:   "42.50",
		Category: "groceries",
		Account:  "Joint",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if tx.Date != "03/10/2025" {
		t.Errorf("date = %q, want 03/10/2025", tx.Date)
	}
	if !tx.Amount.Equal(core.NewAmount(42.5)) {
		t.Errorf("amount = %s, want 42.5", tx.Amount)
	}
	if tx.Category != "Groceries" {
		t.Errorf("category = %q, want Groceries", tx.Category)
	}
	if tx.ID.IsZero() || !tx.GroupID.IsZero() {
		t.Errorf("id = %q group = %q", tx.ID, tx.GroupID)
	}
	if len(saves.docs) != 1 || len(saves.docs[0].Transactions) != 1 {
		t.Fatalf("dispatched %d documents", len(saves.docs))
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	tr, saves := newTestTracker(t, core.Document{})

	tests := []struct {
		name    string
		in      TransactionInput
		field   string
		wantErr error
	}{
		{"missing date", TransactionInput{Amount: "1"}, "date", core.ErrMissingDate},
		{"bad date", TransactionInput{Date: "someday", Amount: "1"}, "date", core.ErrInvalidDate},
		{"missing amount", TransactionInput{Date: "03/01/2025"}, "amount", core.ErrMissingAmount},
		{"bad amount", TransactionInput{Date: "03/01/2025", Amount: "lots"}, "amount", core.ErrInvalidAmount},
		{"unknown category", TransactionInput{Date: "03/01/2025", Amount: "1", Category: "Yachts"}, "category", core.ErrUnknownCategory},
		{"unknown account", TransactionInput{Date: "03/01/2025", Amount: "1", Account: "Offshore"}, "account", core.ErrUnknownAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Add(context.Background(), tt.in)
			var ve *core.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field || !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %s: %v", err, tt.field, tt.wantErr)
			}
		})
	}
	if len(saves.docs) != 0 || len(tr.Snapshot().Transactions) != 0 {
		t.Fatal("rejected input must not change state")
	}
}

func TestAddRecurringGeneratesToHorizon(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})

	base, err := tr.Add(context.Background(), TransactionInput{
		Date: "01/31/2025", Amount: "900", Category: "Housing", Recurring: true,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if base.GroupID != base.ID {
		t.Fatalf("group = %q, want id %q", base.GroupID, base.ID)
	}

	got := dates(tr.Snapshot().Transactions)
	want := []string{"04/30/2025", "03/31/2025", "02/28/2025", "01/31/2025"}
	if len(got) != len(want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dates = %v, want %v", got, want)
		}
	}
}

func TestEditToRecurringStartsSeries(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()

	base, err := tr.Add(ctx, TransactionInput{Date: "03/10/2025", Amount: "15", Category: "Subscriptions"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	edited, err := tr.Edit(ctx, base.ID, TransactionInput{
		Date: "03/10/2025", Amount: "15", Category: "Subscriptions", Recurring: true,
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.ID != base.ID || edited.GroupID.IsZero() {
		t.Fatalf("edited = %+v", edited)
	}

	txs := tr.Snapshot().Transactions
	got := dates(txs)
	if len(got) != 2 || got[0] != "04/10/2025" || got[1] != "03/10/2025" {
		t.Fatalf("dates = %v, want [04/10/2025 03/10/2025]", got)
	}
	if txs[0].GroupID != edited.GroupID {
		t.Fatalf("generated group = %q, want %q", txs[0].GroupID, edited.GroupID)
	}
}

func TestEditRebuildsForwardWindow(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()

	base, err := tr.Add(ctx, TransactionInput{Date: "02/05/2025", Amount: "60", Category: "Utilities", Recurring: true})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if n := len(tr.Snapshot().Transactions); n != 3 {
		t.Fatalf("after add: %d transactions, want 3", n)
	}

	if _, err := tr.Edit(ctx, base.ID, TransactionInput{
		Date: "02/05/2025", Amount: "75", Category: "Utilities", Recurring: true,
	}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	txs := tr.Snapshot().Transactions
	if len(txs) != 3 {
		t.Fatalf("after edit: %d transactions, want 3", len(txs))
	}
	for _, tx := range txs {
		if !tx.Amount.Equal(core.NewAmount(75)) {
			t.Fatalf("%s amount = %s, want 75", tx.Date, tx.Amount)
		}
	}
}

func TestEditOffRecurringLeavesSeries(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()

	base, err := tr.Add(ctx, TransactionInput{Date: "02/05/2025", Amount: "60", Category: "Utilities", Recurring: true})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	edited, err := tr.Edit(ctx, base.ID, TransactionInput{Date: "02/05/2025", Amount: "60", Category: "Utilities"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !edited.GroupID.IsZero() {
		t.Fatalf("group = %q, want empty", edited.GroupID)
	}
	members := 0
	for _, tx := range tr.Snapshot().Transactions {
		if tx.GroupID == base.GroupID {
			members++
		}
	}
	if members != 2 {
		t.Fatalf("remaining series members = %d, want 2", members)
	}
}

func TestEditAndDeleteUnknownID(t *testing.T) {
	tr, saves := newTestTracker(t, core.Document{})
	ctx := context.Background()

	_, err := tr.Edit(ctx, "404", TransactionInput{Date: "03/01/2025", Amount: "1"})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("Edit err = %v", err)
	}
	if _, err := tr.Delete(ctx, "404"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("Delete err = %v", err)
	}
	if _, err := tr.Get("404"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("Get err = %v", err)
	}
	if len(saves.docs) != 0 {
		t.Fatal("nothing should be dispatched")
	}
}

func TestDeleteRemovesOnlyOneMember(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()

	base, err := tr.Add(ctx, TransactionInput{Date: "03/01/2025", Amount: "10", Recurring: true})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	before := tr.Version()
	removed, err := tr.Delete(ctx, base.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed.ID != base.ID {
		t.Fatalf("removed %q, want %q", removed.ID, base.ID)
	}
	txs := tr.Snapshot().Transactions
	if len(txs) != 1 || txs[0].Date != "04/01/2025" {
		t.Fatalf("remaining = %v", dates(txs))
	}
	if tr.Version() <= before {
		t.Fatal("version should advance on delete")
	}
}

func TestBudgetHeader(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()

	if _, ok := tr.SetBudget(ctx, "2025-03", "1200"); !ok {
		t.Fatal("SetBudget failed")
	}
	for _, in := range []TransactionInput{
		{Date: "03/02/2025", Amount: "300", Category: "Housing"},
		{Date: "03/20/2025", Amount: "200", Category: "Groceries"},
		{Date: "02/20/2025", Amount: "999", Category: "Groceries"},
	} {
		if _, err := tr.Add(ctx, in); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	v := tr.View(Query{Month: "2025-03"})
	if v.Header.BudgetText != "Available budget: $700.00" {
		t.Fatalf("budget text = %q", v.Header.BudgetText)
	}
	if v.Header.CountText != "2 transactions" || len(v.Transactions) != 2 {
		t.Fatalf("count = %q, rows = %d", v.Header.CountText, len(v.Transactions))
	}
	if v.Transactions[0].Date != "03/20/2025" {
		t.Fatalf("first row = %s, want newest first", v.Transactions[0].Date)
	}

	all := tr.View(Query{})
	if len(all.Transactions) != 3 || all.Header.BudgetText != "Available budget: —" {
		t.Fatalf("all months: rows = %d, budget = %q", len(all.Transactions), all.Header.BudgetText)
	}

	if _, ok := tr.SetBudget(ctx, "March '25", "-5"); !ok {
		t.Fatal("SetBudget failed")
	}
	if b, ok := tr.Budget("2025-03"); !ok || !b.Budget.IsZero() {
		t.Fatalf("budget = %+v, %v; want coerced to zero", b, ok)
	}
	if _, ok := tr.SetBudget(ctx, "not a month", "10"); ok {
		t.Fatal("unresolvable month should be rejected")
	}
}

func TestAbbreviatedMonthSharesBudgetAndFilter(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()

	if _, ok := tr.SetBudget(ctx, "2025-03", "1200"); !ok {
		t.Fatal("SetBudget failed")
	}
	if _, ok := tr.SetBudget(ctx, "Mar '25", "900"); !ok {
		t.Fatal("SetBudget with abbreviated month failed")
	}
	budgets := tr.Snapshot().Budgets
	if len(budgets) != 1 || budgets[0].Month != "March" || budgets[0].Year != 2025 {
		t.Fatalf("budgets = %+v, want one March 2025 entry", budgets)
	}
	if !budgets[0].Budget.Equal(core.NewAmount(900)) {
		t.Fatalf("budget = %s, want 900", budgets[0].Budget)
	}

	for _, in := range []TransactionInput{
		{Date: "03/05/2025", Amount: "100", Category: "Groceries"},
		{Date: "04/05/2025", Amount: "50", Category: "Groceries"},
	} {
		if _, err := tr.Add(ctx, in); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	v := tr.View(Query{Month: "Mar 2025"})
	if v.Month != "2025-03" || len(v.Transactions) != 1 {
		t.Fatalf("month = %q, rows = %d; want only March", v.Month, len(v.Transactions))
	}
	if v.Header.BudgetText != "Available budget: $800.00" {
		t.Fatalf("budget text = %q", v.Header.BudgetText)
	}

	if _, ok := tr.SetBudget(ctx, "Smarch '25", "10"); ok {
		t.Fatal("unknown month word should be rejected")
	}
}

func TestReportFocus(t *testing.T) {
	tr, _ := newTestTracker(t, core.Document{})
	ctx := context.Background()
	for _, in := range []TransactionInput{
		{Date: "03/02/2025", Amount: "300", Category: "Housing"},
		{Date: "03/03/2025", Amount: "50", Category: "Groceries"},
		{Date: "03/04/2025", Amount: "25", Category: "Groceries"},
	} {
		if _, err := tr.Add(ctx, in); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	r := tr.Report(Query{Month: "2025-03", Focus: "Groceries"})
	if !r.Breakdown.Total.Equal(core.NewAmount(375)) {
		t.Fatalf("total = %s, want 375", r.Breakdown.Total)
	}
	if r.Detail == nil || len(r.Detail.Items) != 2 {
		t.Fatalf("detail = %+v", r.Detail)
	}
	if r.Signature == "" || r.Signature == tr.Report(Query{Month: "2025-02"}).Signature {
		t.Fatal("signature should differ between months")
	}
}

func TestStartExtendsSeriesAndSavesOnce(t *testing.T) {
	doc := core.Document{Transactions: []core.Transaction{{
		ID: "100", Date: "01/15/2025", Amount: core.NewAmount(20), Category: "Subscriptions",
		Account: "Joint", Recurring: true, GroupID: "100",
	}}}
	tr, saves := newTestTracker(t, doc)

	if len(saves.docs) != 1 {
		t.Fatalf("dispatched %d times, want 1", len(saves.docs))
	}
	got := dates(tr.Snapshot().Transactions)
	want := []string{"04/15/2025", "03/15/2025", "02/15/2025", "01/15/2025"}
	if len(got) != len(want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}

	rep := tr.Maintain(context.Background())
	if rep.Generated != 0 || len(saves.docs) != 1 {
		t.Fatalf("second maintenance generated %d, dispatched %d", rep.Generated, len(saves.docs))
	}
}

func TestStartWithFailedLoad(t *testing.T) {
	saves := &captureDispatcher{}
	tr := NewTracker(failingLoader{}, saves, WithTrackerClock(func() time.Time { return march1 }))

	if _, err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected load error")
	}
	if !tr.Loaded() || len(tr.Snapshot().Transactions) != 0 {
		t.Fatal("tracker should be usable and empty after a failed load")
	}
	if _, err := tr.Add(context.Background(), TransactionInput{Date: "03/01/2025", Amount: "5"}); err != nil {
		t.Fatalf("Add after failed load: %v", err)
	}
}

func TestNewIDsExceedLoadedIDs(t *testing.T) {
	future := core.ID("1900000000000")
	doc := core.Document{Transactions: []core.Transaction{{ID: future, Date: "02/01/2025", Amount: core.NewAmount(1)}}}
	tr, _ := newTestTracker(t, doc)

	tx, err := tr.Add(context.Background(), TransactionInput{Date: "03/01/2025", Amount: "1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, _ := strconv.ParseInt(tx.ID.String(), 10, 64)
	if got <= 1900000000000 {
		t.Fatalf("new id %q does not exceed loaded id %q", tx.ID, future)
	}
}

func TestTransactionInputAcceptsNumberOrString(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"date":"03/01/2025","amount":42.5}`, "42.5"},
		{`{"date":"03/01/2025","amount":"$1,200.00"}`, "$1,200.00"},
		{`{"date":"03/01/2025","amount":null}`, ""},
		{`{"date":"03/01/2025","desc":"coffee","recurring":"Yes"}`, ""},
	}
	for _, tt := range tests {
		var in TransactionInput
		if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.body, err)
		}
		if in.Amount != tt.want || in.Date != "03/01/2025" {
			t.Fatalf("Unmarshal(%s) = %+v", tt.body, in)
		}
	}
}
