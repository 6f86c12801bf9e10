package recurring

import (
	"errors"
	"slices"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
)

func fixedEngine(today time.Time, opts ...Option) *Engine {
	clock := func() time.Time { return today }
	base := []Option{WithClock(clock), WithLocation(time.UTC), WithIDs(core.NewMonotonicIDs(clock))}
	return NewEngine(append(base, opts...)...)
}

func newLedger(txs ...core.Transaction) *ledger.Ledger {
	l := ledger.New(core.NewDateNormalizer(time.UTC))
	l.Load(core.Document{Transactions: txs})
	return l
}

func groupDates(l *ledger.Ledger, gid core.ID) []string {
	var out []string
	for _, tx := range l.Group(gid) {
		out = append(out, tx.Date)
	}
	slices.Sort(out)
	return out
}

func rent(id, date string) core.Transaction {
	return core.Transaction{
		ID: core.ID(id), Date: date, Description: "Rent", Category: "Housing",
		Amount: core.AmountFromCents(-150000), Account: "Joint", Recurring: true, GroupID: "g1",
	}
}

func TestHorizon(t *testing.T) {
	e := NewEngine(WithLocation(time.UTC))
	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC), "04/30/2025"},
		{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "04/30/2025"},
		{time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC), "02/28/2025"},
		{time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "02/29/2024"},
		{time.Date(2025, 11, 5, 0, 0, 0, 0, time.UTC), "12/31/2025"},
		{time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC), "01/31/2026"},
	}
	for _, tc := range cases {
		if got := core.FormatDate(e.Horizon(tc.now)); got != tc.want {
			t.Fatalf("Horizon(%s) = %s, want %s", tc.now, got, tc.want)
		}
	}
}

func TestMonthlyCadenceClamps(t *testing.T) {
	anchor := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	want := []string{"02/28/2025", "03/31/2025", "04/30/2025", "05/31/2025"}
	for i, w := range want {
		if got := core.FormatDate(Monthly{}.Step(anchor, i+1)); got != w {
			t.Fatalf("step %d = %s, want %s", i+1, got, w)
		}
	}
	leap := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	if got := core.FormatDate(Monthly{}.Step(leap, 2)); got != "02/29/2024" {
		t.Fatalf("leap step = %s", got)
	}
}

func TestSyncRolloverToEndOfFebruary(t *testing.T) {
	cases := []struct {
		name  string
		today time.Time
		base  string
		want  []string
	}{
		{"common year", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), "01/31/2025", []string{"01/31/2025", "02/28/2025"}},
		{"leap year", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "01/31/2024", []string{"01/31/2024", "02/29/2024"}},
		{"past february", time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), "01/31/2025", []string{"01/31/2025", "02/28/2025", "03/31/2025"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := rent("1", tc.base)
			l := newLedger(base)
			if _, err := fixedEngine(tc.today).Sync(l, base); err != nil {
				t.Fatal(err)
			}
			if got := groupDates(l, "g1"); !slices.Equal(got, tc.want) {
				t.Fatalf("dates = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	base := rent("1", "01/10/2025")
	l := newLedger(base)

	if _, err := e.Sync(l, base); err != nil {
		t.Fatal(err)
	}
	first := groupDates(l, "g1")
	if _, err := e.Sync(l, base); err != nil {
		t.Fatal(err)
	}
	second := groupDates(l, "g1")
	if !slices.Equal(first, second) {
		t.Fatalf("series changed on repeat sync: %v then %v", first, second)
	}
	want := []string{"01/10/2025", "02/10/2025", "03/10/2025", "04/10/2025"}
	if !slices.Equal(second, want) {
		t.Fatalf("dates = %v, want %v", second, want)
	}
	if l.Len() != len(want) {
		t.Fatalf("ledger holds %d transactions, want %d", l.Len(), len(want))
	}
}

func TestSyncRemovesOnlyLaterMembers(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	earlier := rent("0", "12/05/2024")
	stale := rent("9", "06/05/2025")
	unreadable := rent("8", "sometime")
	other := rent("7", "05/05/2025")
	other.GroupID = "g2"
	base := rent("1", "02/05/2025")
	l := newLedger(stale, base, earlier, unreadable, other)

	n, err := e.Sync(l, base)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("generated %d, want 2", n)
	}
	want := []string{"02/05/2025", "03/05/2025", "04/05/2025", "12/05/2024", "sometime"}
	if got := groupDates(l, "g1"); !slices.Equal(got, want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	if len(l.Group("g2")) != 1 {
		t.Fatal("other series must not be touched")
	}
}

func TestSyncInsertsNewestFirstAtFront(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	base := rent("1", "01/10/2025")
	l := newLedger(core.Transaction{ID: "x", Date: "03/01/2025"}, base)
	if _, err := e.Sync(l, base); err != nil {
		t.Fatal(err)
	}
	wantFront := []string{"04/10/2025", "03/10/2025", "02/10/2025"}
	for i, w := range wantFront {
		tx := l.At(i)
		if tx.Date != w || tx.GroupID != "g1" || tx.ID == base.ID || !bool(tx.Recurring) {
			t.Fatalf("position %d = %+v, want date %s in g1", i, tx, w)
		}
	}
	if l.At(3).ID != "x" {
		t.Fatalf("existing entries should follow the generated ones, got %+v", l.At(3))
	}
}

func TestSyncIgnoresNonSeries(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	plain := rent("1", "01/10/2025")
	plain.Recurring = false
	l := newLedger(plain)
	if n, err := e.Sync(l, plain); n != 0 || err != nil || l.Len() != 1 {
		t.Fatalf("non-recurring sync: n=%d err=%v len=%d", n, err, l.Len())
	}
	noGroup := rent("2", "01/10/2025")
	noGroup.GroupID = ""
	if n, _ := e.Sync(l, noGroup); n != 0 {
		t.Fatal("recurring without group must not generate")
	}
}

func TestSyncUnparseableBase(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	base := rent("1", "whenever")
	l := newLedger(base, rent("2", "04/01/2025"))
	_, err := e.Sync(l, base)
	if !errors.Is(err, ErrUnparseableDate) {
		t.Fatalf("err = %v", err)
	}
	if l.Len() != 2 {
		t.Fatal("ledger must be unchanged on error")
	}
}

func TestSyncStepCap(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), WithMaxSteps(3))
	base := rent("1", "01/01/2020")
	l := newLedger(base)
	n, err := e.Sync(l, base)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("generated %d, want cap of 3", n)
	}

	e = fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	l = newLedger(base)
	if n, _ := e.Sync(l, base); n != DefaultMaxSteps {
		t.Fatalf("generated %d, want default cap %d", n, DefaultMaxSteps)
	}
}

func TestMaintainHorizonBoundary(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC))
	l := newLedger(
		rent("1", "01/30/2025"),
		core.Transaction{ID: "2", Date: "01/01/2025", Description: "Gym", Recurring: true, GroupID: "g2"},
	)
	rep := e.Maintain(l)
	if rep.Series != 2 || rep.Skipped != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if got, want := groupDates(l, "g1"), []string{"01/30/2025", "02/28/2025", "03/30/2025", "04/30/2025"}; !slices.Equal(got, want) {
		t.Fatalf("g1 = %v, want %v", got, want)
	}
	if got, want := groupDates(l, "g2"), []string{"01/01/2025", "02/01/2025", "03/01/2025", "04/01/2025"}; !slices.Equal(got, want) {
		t.Fatalf("g2 = %v, want %v", got, want)
	}
	if rep.Generated != 6 {
		t.Fatalf("generated %d, want 6", rep.Generated)
	}
	for _, tx := range l.Transactions() {
		d, _ := core.ParseCanonical(tx.Date)
		if !d.Before(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("occurrence %s is past the horizon", tx.Date)
		}
	}

	if again := e.Maintain(l); again.Generated != 0 {
		t.Fatalf("second pass generated %d", again.Generated)
	}
}

func TestMaintainAnchorsOnLatestMember(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	old := rent("1", "01/31/2025")
	clamped := rent("2", "02/28/2025")
	clamped.Amount = core.AmountFromCents(-160000)
	l := newLedger(old, clamped)

	rep := e.Maintain(l)
	if rep.Generated != 2 {
		t.Fatalf("generated %d, want 2", rep.Generated)
	}
	if got, want := groupDates(l, "g1"), []string{"01/31/2025", "02/28/2025", "03/28/2025", "04/28/2025"}; !slices.Equal(got, want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	if !l.At(0).Amount.Equal(clamped.Amount) {
		t.Fatal("occurrences should copy the latest member")
	}
}

func TestMaintainTieBreakFirstInList(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	a := rent("1", "03/05/2025")
	a.Description = "first"
	b := rent("2", "03/05/2025")
	b.Description = "second"
	l := newLedger(a, b)
	e.Maintain(l)
	if l.At(0).Description != "first" || l.At(0).Date != "04/05/2025" {
		t.Fatalf("expected anchor on first member, got %+v", l.At(0))
	}
}

func TestMaintainSkipsUnreadableSeries(t *testing.T) {
	e := fixedEngine(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	l := newLedger(rent("1", "soon"), rent("2", "later"))
	rep := e.Maintain(l)
	if rep.Skipped != 1 || rep.Generated != 0 || l.Len() != 2 {
		t.Fatalf("report = %+v len=%d", rep, l.Len())
	}
}
