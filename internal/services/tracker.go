package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/recurring"
	"tally/internal/sheets"
	"tally/internal/view"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// Dispatcher accepts snapshots to persist. *SaveDispatcher is the usual one.
type Dispatcher interface {
	Dispatch(doc core.Document) int64
}

// TransactionInput is a transaction as typed by a user. Amount accepts a
// JSON number or a string such as "$1,200.50".
type TransactionInput struct {
	Date        string    `json:"date"`
	Description string    `json:"desc"`
	Category    string    `json:"category"`
	Amount      string    `json:"amount"`
	Account     string    `json:"account"`
	Recurring   core.Flag `json:"recurring"`
}

func (in *TransactionInput) UnmarshalJSON(data []byte) error {
	type plain TransactionInput
	var aux struct {
		plain
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*in = TransactionInput(aux.plain)
	raw := bytes.TrimSpace(aux.Amount)
	switch {
	case len(raw) == 0 || string(raw) == "null":
		in.Amount = ""
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		in.Amount = s
	default:
		in.Amount = string(raw)
	}
	return nil
}

// Query selects the visible set. Month takes any form the month-key
// resolver understands; empty means every month.
type Query struct {
	Month      string
	Accounts   []string
	Categories []string
	Focus      string
}

// TableView is the sorted visible set and its header.
type TableView struct {
	Month        string             `json:"month,omitempty"`
	Transactions []core.Transaction `json:"transactions"`
	Header       view.Header        `json:"header"`
	Version      uint64             `json:"version"`
}

// Report is the category breakdown of the visible set, with an optional
// drill-down into one category.
type Report struct {
	Month     string         `json:"month,omitempty"`
	Breakdown view.Breakdown `json:"breakdown"`
	Detail    *view.Detail   `json:"detail,omitempty"`
	Signature string         `json:"signature"`
	Version   uint64         `json:"version"`
}

// Tracker owns the ledger. Every read and write goes through it, serialized
// by one lock, and every write dispatches a snapshot of the whole document.
type Tracker struct {
	loader      sheets.DocumentLoader
	saves       Dispatcher
	engine      *recurring.Engine
	dates       *core.DateNormalizer
	ids         core.IDSource
	taxonomy    core.Taxonomy
	minFraction float64
	logger      *log.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu      sync.RWMutex
	ledger  *ledger.Ledger
	version uint64
	loaded  bool
}

type TrackerOption func(*Tracker)

// WithTrackerClock sets "today" for ids and the recurring horizon.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

func WithTrackerIDs(ids core.IDSource) TrackerOption {
	return func(t *Tracker) { t.ids = ids }
}

func WithTrackerLocation(loc *time.Location) TrackerOption {
	return func(t *Tracker) { t.dates = core.NewDateNormalizer(loc) }
}

func WithTaxonomy(tax core.Taxonomy) TrackerOption {
	return func(t *Tracker) { t.taxonomy = tax }
}

func WithMinFraction(f float64) TrackerOption {
	return func(t *Tracker) { t.minFraction = f }
}

func WithTrackerLogger(l *log.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

func WithTrackerMetrics(m *metrics.Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

func NewTracker(loader sheets.DocumentLoader, saves Dispatcher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		loader:      loader,
		saves:       saves,
		taxonomy:    core.DefaultTaxonomy("Primary", "Partner"),
		minFraction: view.DefaultMinFraction,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.dates == nil {
		t.dates = core.NewDateNormalizer(nil)
	}
	if t.ids == nil {
		t.ids = core.NewMonotonicIDs(t.now)
	}
	if t.logger == nil {
		t.logger = log.Discard()
	}
	t.logger = t.logger.WithComponent(log.ComponentTracker)
	t.engine = recurring.NewEngine(
		recurring.WithClock(t.now),
		recurring.WithIDs(t.ids),
		recurring.WithLocation(t.dates.Location()),
		recurring.WithLogger(t.logger.WithComponent(log.ComponentRecurring)),
	)
	t.ledger = ledger.New(t.dates)
	return t
}

// Start loads the document, extends recurring series to the horizon and,
// if that generated anything, saves once. A failed load leaves the tracker
// empty but usable; the error is returned so the caller can report it.
func (t *Tracker) Start(ctx context.Context) (recurring.MaintenanceReport, error) {
	return t.Reload(ctx)
}

// Reload replaces in-memory state with the stored document. Unsaved edits
// are lost, as they would be on restart.
func (t *Tracker) Reload(ctx context.Context) (recurring.MaintenanceReport, error) {
	var doc core.Document
	var err error
	if t.loader == nil {
		err = sheets.ErrNotConfigured
	} else {
		start := time.Now()
		doc, err = t.loader.Load(ctx)
		t.metrics.ObserveStore("load", time.Since(start), err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to load document",
			log.FieldError, err,
			log.FieldOperation, log.OpLoad)
		if !t.loaded {
			t.ledger.Load(core.Document{})
			t.loaded = true
			t.version++
		}
		return recurring.MaintenanceReport{}, fmt.Errorf("load document: %w", err)
	}

	t.ledger.Load(doc)
	t.observeIDs()
	t.loaded = true
	t.version++
	t.logger.InfoContext(ctx, "Document loaded",
		log.NewFields().WithOperation(log.OpLoad).WithDocument(len(doc.Transactions), len(doc.Budgets)).ToSlice()...)

	rep := t.maintainLocked()
	return rep, nil
}

// Maintain extends every series up to the horizon and saves once if
// anything was generated.
func (t *Tracker) Maintain(ctx context.Context) recurring.MaintenanceReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maintainLocked()
}

func (t *Tracker) maintainLocked() recurring.MaintenanceReport {
	rep := t.engine.Maintain(t.ledger)
	t.metrics.AddGenerated(rep.Generated)
	if rep.Generated > 0 {
		t.commitLocked()
	} else {
		t.metrics.SetTransactions(t.ledger.Len())
	}
	return rep
}

// observeIDs keeps newly issued ids above every loaded numeric id.
func (t *Tracker) observeIDs() {
	obs, ok := t.ids.(interface{ Observe(core.ID) })
	if !ok {
		return
	}
	for _, tx := range t.ledger.Transactions() {
		obs.Observe(tx.ID)
		obs.Observe(tx.GroupID)
	}
}

// commitLocked bumps the version and hands a snapshot to the dispatcher.
func (t *Tracker) commitLocked() {
	t.version++
	t.metrics.SetTransactions(t.ledger.Len())
	if t.saves != nil {
		t.saves.Dispatch(t.ledger.Document())
	}
}

// build validates input and returns a transaction without id or group.
func (t *Tracker) build(in TransactionInput) (core.Transaction, error) {
	raw := strings.TrimSpace(in.Date)
	if raw == "" {
		return core.Transaction{}, &core.ValidationError{Field: "date", Err: core.ErrMissingDate}
	}
	date := t.dates.Normalize(raw)
	if _, ok := core.ParseCanonical(date); !ok {
		return core.Transaction{}, &core.ValidationError{Field: "date", Err: fmt.Errorf("%w: %q", core.ErrInvalidDate, raw)}
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Err: err}
	}
	tx := core.Transaction{
		Date:        date,
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Amount:      amount,
		Account:     in.Account,
		Recurring:   in.Recurring,
	}.Canonicalize(t.taxonomy)
	if err := tx.Validate(t.taxonomy); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// Add records a new transaction at the front of the list. A recurring one
// starts a new series and its future occurrences are generated.
func (t *Tracker) Add(ctx context.Context, in TransactionInput) (core.Transaction, error) {
	tx, err := t.build(in)
	if err != nil {
		return core.Transaction{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tx.ID = t.ids.Next()
	if tx.Recurring {
		tx.GroupID = tx.ID
	}
	t.ledger.Prepend(tx)
	generated := t.syncLocked(ctx, tx)
	t.commitLocked()

	t.logger.InfoContext(ctx, "Transaction added", t.txFields(tx, log.OpCreate).ToSlice()...)
	if generated > 0 {
		t.logger.InfoContext(ctx, "Recurring occurrences generated",
			log.FieldGroupID, tx.GroupID.String(),
			log.FieldGenerated, generated)
	}
	return tx, nil
}

// Edit replaces the transaction with id in place. A series keeps its group;
// a transaction that just became recurring starts a new one; one that stops
// recurring leaves its series, whose other members are untouched.
func (t *Tracker) Edit(ctx context.Context, id core.ID, in TransactionInput) (core.Transaction, error) {
	tx, err := t.build(in)
	if err != nil {
		return core.Transaction{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.ledger.IndexOf(id)
	if idx < 0 {
		return core.Transaction{}, fmt.Errorf("edit %s: %w", id, ErrTransactionNotFound)
	}
	old := t.ledger.At(idx)
	tx.ID = old.ID
	switch {
	case !bool(tx.Recurring):
		tx.GroupID = ""
	case old.GroupID.IsZero():
		tx.GroupID = t.ids.Next()
	default:
		tx.GroupID = old.GroupID
	}
	t.ledger.Replace(idx, tx)
	t.syncLocked(ctx, tx)
	t.commitLocked()

	t.logger.InfoContext(ctx, "Transaction updated", t.txFields(tx, log.OpUpdate).ToSlice()...)
	return tx, nil
}

// Delete removes one transaction. Other members of its series stay.
func (t *Tracker) Delete(ctx context.Context, id core.ID) (core.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.ledger.IndexOf(id)
	if idx < 0 {
		return core.Transaction{}, fmt.Errorf("delete %s: %w", id, ErrTransactionNotFound)
	}
	tx := t.ledger.Delete(idx)
	t.commitLocked()

	t.logger.InfoContext(ctx, "Transaction deleted", t.txFields(tx, log.OpDelete).ToSlice()...)
	return tx, nil
}

func (t *Tracker) syncLocked(ctx context.Context, tx core.Transaction) int {
	n, err := t.engine.Sync(t.ledger, tx)
	if err != nil {
		t.logger.WarnContext(ctx, "Series sync skipped",
			log.FieldError, err,
			log.FieldGroupID, tx.GroupID.String())
		return 0
	}
	t.metrics.AddGenerated(n)
	return n
}

func (t *Tracker) txFields(tx core.Transaction, op string) log.LogFields {
	return log.NewFields().
		WithOperation(op).
		WithTransaction(tx.ID.String(), tx.Date, tx.Amount.StringFixed(), tx.Category, tx.Account)
}

// Get returns the transaction with id.
func (t *Tracker) Get(id core.ID) (core.Transaction, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := t.ledger.IndexOf(id)
	if idx < 0 {
		return core.Transaction{}, fmt.Errorf("get %s: %w", id, ErrTransactionNotFound)
	}
	return t.ledger.At(idx), nil
}

// SetBudget upserts the budget for a month selector value. The amount is
// coerced: unreadable or negative input becomes zero. A month that cannot
// be resolved changes nothing and reports false.
func (t *Tracker) SetBudget(ctx context.Context, month, amount string) (core.BudgetEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.ledger.UpsertBudget(month, core.CoerceBudget(amount))
	if !ok {
		t.logger.WarnContext(ctx, "Ignoring budget for unresolvable month",
			log.FieldMonth, month,
			log.FieldOperation, log.OpBudget)
		return core.BudgetEntry{}, false
	}
	t.commitLocked()
	t.logger.InfoContext(ctx, "Budget set",
		log.FieldMonth, entry.Month+" "+strconv.Itoa(entry.Year),
		log.FieldAmount, entry.Budget.StringFixed(),
		log.FieldOperation, log.OpBudget)
	return entry, true
}

// Budget looks up the budget for a month selector value.
func (t *Tracker) Budget(month string) (core.BudgetEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ledger.Budget(month)
}

// resolveMonth turns a selector value into a filter month. Values that name
// no month select every month.
func (t *Tracker) resolveMonth(value string) (core.YearMonth, core.MonthKey) {
	if strings.TrimSpace(value) == "" {
		return core.YearMonth{}, core.MonthKey{}
	}
	key := t.dates.ParseMonthKey(value)
	ym, ok := key.YearMonth()
	if !ok {
		return core.YearMonth{}, core.MonthKey{}
	}
	return ym, key
}

func (t *Tracker) visibleLocked(q Query) ([]core.Transaction, core.YearMonth, core.MonthKey) {
	ym, key := t.resolveMonth(q.Month)
	f := view.Filter{Month: ym, Accounts: q.Accounts, Categories: q.Categories}
	visible := view.Visible(t.ledger.Transactions(), f, t.dates)
	view.Sort(visible)
	return visible, ym, key
}

// View returns the visible set, newest first, with its header.
func (t *Tracker) View(q Query) TableView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	visible, ym, key := t.visibleLocked(q)
	var budget *core.BudgetEntry
	if b, ok := t.ledger.BudgetFor(key); ok {
		budget = &b
	}
	return TableView{
		Month:        ym.String(),
		Transactions: visible,
		Header:       view.Summarize(visible, budget, !ym.IsZero()),
		Version:      t.version,
	}
}

// Report aggregates the visible set by category. A non-empty Focus adds
// that category's line items.
func (t *Tracker) Report(q Query) Report {
	t.mu.RLock()
	defer t.mu.RUnlock()

	visible, ym, _ := t.visibleLocked(q)
	b := view.Aggregate(visible, t.minFraction)
	r := Report{
		Month:     ym.String(),
		Breakdown: b,
		Signature: view.Signature(ym, b),
		Version:   t.version,
	}
	if focus := strings.TrimSpace(q.Focus); focus != "" {
		d := view.CategoryDetail(visible, focus)
		r.Detail = &d
	}
	return r
}

// Version changes whenever state changes.
func (t *Tracker) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Loaded reports whether Start has completed, successfully or not.
func (t *Tracker) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Snapshot returns a copy of the whole document.
func (t *Tracker) Snapshot() core.Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ledger.Document()
}

func (t *Tracker) Taxonomy() core.Taxonomy { return t.taxonomy }
