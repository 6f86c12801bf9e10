// Package recurring materializes and repairs the future occurrences of
// recurring transaction series.
//
// A series is the set of transactions sharing a group id. The engine keeps a
// rolling window of upcoming occurrences that reaches the last day of the
// month after the current one.
package recurring

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
)

// DefaultMaxSteps bounds how many occurrences one call may generate per series.
const DefaultMaxSteps = 24

// ErrUnparseableDate is returned when an anchor date is not MM/DD/YYYY.
var ErrUnparseableDate = errors.New("anchor date is not a valid MM/DD/YYYY date")

type Engine struct {
	now      func() time.Time
	ids      core.IDSource
	loc      *time.Location
	logger   *log.Logger
	maxSteps int
	cadence  Cadence
}

type Option func(*Engine)

// WithClock sets the source of "today".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDs(ids core.IDSource) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithLocation sets the zone in which "today" is read.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

func WithCadence(c Cadence) Option {
	return func(e *Engine) { e.cadence = c }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:      time.Now,
		loc:      time.Local,
		maxSteps: DefaultMaxSteps,
		cadence:  Monthly{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = core.NewMonotonicIDs(e.now)
	}
	if e.logger == nil {
		e.logger = log.Discard()
	}
	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}
	return e
}

// Horizon returns the last calendar day of the month after now's month, as a
// civil date at midnight UTC. Occurrences dated on the horizon are included.
func (e *Engine) Horizon(now time.Time) time.Time {
	t := now.In(e.loc)
	return time.Date(t.Year(), t.Month()+2, 0, 0, 0, 0, 0, time.UTC)
}

// Sync rebuilds the forward window of base's series after base was added or
// edited. Members dated strictly after base are removed, then occurrences are
// regenerated from base up to the horizon. Members with unreadable dates are
// never removed. It returns the number of occurrences generated.
//
// A base that is not a recurring series member is left alone.
func (e *Engine) Sync(l *ledger.Ledger, base core.Transaction) (int, error) {
	if !base.InSeries() {
		return 0, nil
	}
	anchor, ok := core.ParseCanonical(l.Dates().Normalize(base.Date))
	if !ok {
		return 0, fmt.Errorf("sync series %s: %w: %q", base.GroupID, ErrUnparseableDate, base.Date)
	}

	removed := l.RemoveFromGroup(base.GroupID, func(tx core.Transaction) bool {
		d, ok := core.ParseCanonical(tx.Date)
		return ok && d.After(anchor)
	})

	generated := e.extend(l, base, anchor)
	e.logger.Debug("Series synced",
		log.FieldGroupID, base.GroupID.String(),
		"removed", removed,
		log.FieldGenerated, generated)
	return generated, nil
}

// MaintenanceReport summarizes one maintenance pass.
type MaintenanceReport struct {
	Series    int
	Generated int
	Skipped   int
}

// Maintain extends every recurring series from its latest member up to the
// horizon. Nothing is removed. When several members share the latest date the
// first one in list order is the anchor. Series whose latest member has an
// unreadable date are skipped.
func (e *Engine) Maintain(l *ledger.Ledger) MaintenanceReport {
	var rep MaintenanceReport
	for _, gid := range l.SeriesIDs() {
		rep.Series++
		latest, anchor, ok := latestMember(l.Group(gid))
		if !ok {
			rep.Skipped++
			e.logger.Warn("Skipping series with unreadable dates",
				log.FieldGroupID, gid.String(),
				log.FieldDate, latest.Date)
			continue
		}
		rep.Generated += e.extend(l, latest, anchor)
	}
	if rep.Generated > 0 {
		e.logger.Info("Extended recurring series",
			log.FieldCount, rep.Series,
			log.FieldGenerated, rep.Generated,
			log.FieldHorizon, core.FormatDate(e.Horizon(e.now())))
	}
	return rep
}

// latestMember picks the member with the greatest date. Unreadable dates
// rank lowest and only win when no member is readable.
func latestMember(members []core.Transaction) (core.Transaction, time.Time, bool) {
	var (
		best    core.Transaction
		bestAt  time.Time
		found   bool
		anySeen bool
	)
	for _, tx := range members {
		if !anySeen {
			best, anySeen = tx, true
		}
		d, ok := core.ParseCanonical(tx.Date)
		if !ok {
			continue
		}
		if !found || d.After(bestAt) {
			best, bestAt, found = tx, d, true
		}
	}
	return best, bestAt, found
}

// extend generates occurrences after anchor up to the horizon and inserts
// them at the front of the list, newest first.
func (e *Engine) extend(l *ledger.Ledger, tmpl core.Transaction, anchor time.Time) int {
	horizon := e.Horizon(e.now())
	var out []core.Transaction
	for n := 1; n <= e.maxSteps; n++ {
		next := e.cadence.Step(anchor, n)
		if next.After(horizon) {
			break
		}
		occ := tmpl
		occ.ID = e.ids.Next()
		occ.Date = core.FormatDate(next)
		out = append(out, occ)
	}
	slices.Reverse(out)
	l.Prepend(out...)
	return len(out)
}
