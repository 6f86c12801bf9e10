package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/sheets"
)

// ErrDispatcherStopped is returned by Flush when nothing will drain the queue.
var ErrDispatcherStopped = errors.New("save dispatcher is not running")

// SaveDispatcherConfig holds configuration for the save dispatcher
type SaveDispatcherConfig struct {
	// SaveTimeout bounds a single store write (default: 30s)
	SaveTimeout time.Duration

	// ErrorBuffer is the capacity of the Errors channel (default: 16).
	// Errors are dropped from the channel, never from the log, when it is full.
	ErrorBuffer int

	// OnError, when set, is called from the dispatch loop after a failed save.
	OnError func(SaveError)
}

func DefaultSaveDispatcherConfig() SaveDispatcherConfig {
	return SaveDispatcherConfig{
		SaveTimeout: 30 * time.Second,
		ErrorBuffer: 16,
	}
}

// SaveError reports a snapshot that could not be written. It is not retried.
type SaveError struct {
	Revision int64
	Err      error
}

func (e SaveError) Error() string { return fmt.Sprintf("save revision %d: %v", e.Revision, e.Err) }
func (e SaveError) Unwrap() error { return e.Err }

type snapshot struct {
	revision int64
	doc      core.Document
}

// SaveDispatcher writes document snapshots in the background. Dispatch never
// blocks. Snapshots are written in order by a single loop, and a queued
// snapshot replaced by a newer one before the loop reaches it is skipped:
// every save replaces the whole document, so only the newest matters.
type SaveDispatcher struct {
	saver   sheets.DocumentSaver
	config  SaveDispatcherConfig
	logger  *log.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	pending  *snapshot
	revision int64
	written  int64
	inFlight bool
	waiters  []chan struct{}
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	wake chan struct{}
	errs chan SaveError
}

func NewSaveDispatcher(saver sheets.DocumentSaver, config SaveDispatcherConfig, logger *log.Logger, m *metrics.Metrics) *SaveDispatcher {
	def := DefaultSaveDispatcherConfig()
	if config.SaveTimeout <= 0 {
		config.SaveTimeout = def.SaveTimeout
	}
	if config.ErrorBuffer <= 0 {
		config.ErrorBuffer = def.ErrorBuffer
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SaveDispatcher{
		saver:   saver,
		config:  config,
		logger:  logger.WithComponent(log.ComponentSave),
		metrics: m,
		wake:    make(chan struct{}, 1),
		errs:    make(chan SaveError, config.ErrorBuffer),
	}
}

// Start begins the dispatch loop. Returns an error if already running.
func (d *SaveDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("save dispatcher is already running")
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	go d.runLoop(stopCh, doneCh)
	d.poke()

	d.logger.InfoContext(ctx, "Save dispatcher started", "save_timeout", d.config.SaveTimeout)
	return nil
}

// Stop writes whatever is still queued and waits for the loop to exit. If
// ctx ends first the loop keeps draining and a later Stop waits for it again.
func (d *SaveDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	stopCh, doneCh := d.stopCh, d.doneCh
	d.stopCh = nil
	d.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		d.logger.InfoContext(ctx, "Save dispatcher stopped gracefully")
	case <-ctx.Done():
		d.logger.WarnContext(ctx, "Save dispatcher stop timed out")
		return ctx.Err()
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	return nil
}

func (d *SaveDispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Dispatch queues doc for saving and returns its revision. It never blocks.
func (d *SaveDispatcher) Dispatch(doc core.Document) int64 {
	d.mu.Lock()
	d.revision++
	rev := d.revision
	if d.pending != nil {
		d.metrics.IncCoalesced()
		d.logger.Debug("Coalescing queued save",
			"replaced_revision", d.pending.revision,
			log.FieldRevision, rev)
	}
	d.pending = &snapshot{revision: rev, doc: doc.Clone()}
	d.mu.Unlock()
	d.poke()
	return rev
}

// Errors delivers save failures. Failures are also logged and counted, so
// nobody is required to read it.
func (d *SaveDispatcher) Errors() <-chan SaveError { return d.errs }

// Written returns the revision of the last snapshot the loop finished
// with, whether or not the write succeeded.
func (d *SaveDispatcher) Written() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written
}

// Flush waits until nothing is queued or in flight.
func (d *SaveDispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	if d.pending == nil && !d.inFlight {
		d.mu.Unlock()
		return nil
	}
	if !d.running {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	ch := make(chan struct{})
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *SaveDispatcher) poke() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *SaveDispatcher) runLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			d.drain()
			return
		case <-d.wake:
			d.drain()
		}
	}
}

// drain writes queued snapshots until the queue is empty.
func (d *SaveDispatcher) drain() {
	for {
		d.mu.Lock()
		next := d.pending
		d.pending = nil
		d.inFlight = next != nil
		if next == nil {
			for _, w := range d.waiters {
				close(w)
			}
			d.waiters = nil
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		d.save(next)

		d.mu.Lock()
		d.inFlight = false
		d.written = next.revision
		d.mu.Unlock()
	}
}

func (d *SaveDispatcher) save(s *snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.SaveTimeout)
	defer cancel()

	start := time.Now()
	err := d.saver.Save(ctx, s.doc)
	elapsed := time.Since(start)
	d.metrics.ObserveStore("save", elapsed, err)

	if err == nil {
		d.logger.Info("Document saved",
			log.FieldRevision, s.revision,
			log.FieldTransaction, len(s.doc.Transactions),
			log.FieldBudgets, len(s.doc.Budgets),
			log.FieldDuration, elapsed.Milliseconds())
		return
	}

	d.logger.Error("Failed to save document",
		log.FieldError, err,
		log.FieldRevision, s.revision,
		log.FieldOperation, log.OpSave)
	se := SaveError{Revision: s.revision, Err: err}
	select {
	case d.errs <- se:
	default:
	}
	if d.config.OnError != nil {
		d.config.OnError(se)
	}
}
