// Package worker writes queued document snapshots to the configured store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/sheets"
)

// SnapshotSource delivers snapshots until ctx is done.
type SnapshotSource interface {
	ConsumeSnapshots(ctx context.Context, handler func(context.Context, *amqp.SnapshotMessage) error) error
}

// Stats summarizes what the worker has done since it started.
type Stats struct {
	Written      int
	Skipped      int
	Failed       int
	LastRevision int64
}

// SnapshotWorker saves snapshots in revision order. A snapshot older than the
// last one written is acknowledged and dropped.
type SnapshotWorker struct {
	source   SnapshotSource
	store    sheets.DocumentSaver
	logger   *log.Logger
	metrics  *metrics.Metrics
	interval time.Duration

	mu    sync.Mutex
	stats Stats
}

func NewSnapshotWorker(source SnapshotSource, store sheets.DocumentSaver, logger *log.Logger, m *metrics.Metrics) *SnapshotWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &SnapshotWorker{
		source:   source,
		store:    store,
		logger:   logger.WithComponent(log.ComponentWorker),
		metrics:  m,
		interval: time.Minute,
	}
}

// HandleSnapshot writes msg unless a newer or equal revision was already
// written.
func (w *SnapshotWorker) HandleSnapshot(ctx context.Context, msg *amqp.SnapshotMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if msg.Revision <= w.stats.LastRevision {
		w.stats.Skipped++
		w.metrics.IncSnapshotSkipped()
		w.logger.InfoContext(ctx, "Skipping stale snapshot",
			log.FieldRevision, msg.Revision,
			"last_revision", w.stats.LastRevision)
		return nil
	}

	start := time.Now()
	err := w.store.Save(ctx, msg.Document)
	w.metrics.ObserveStore("save", time.Since(start), err)
	if err != nil {
		w.stats.Failed++
		return fmt.Errorf("save snapshot %d: %w", msg.Revision, err)
	}
	w.stats.Written++
	w.stats.LastRevision = msg.Revision
	w.logger.InfoContext(ctx, "Snapshot written",
		log.FieldRevision, msg.Revision,
		log.FieldTransaction, len(msg.Document.Transactions),
		log.FieldBudgets, len(msg.Document.Budgets))
	return nil
}

func (w *SnapshotWorker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run consumes until ctx is cancelled, logging progress periodically.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.source.ConsumeSnapshots(ctx, w.HandleSnapshot)
	})
	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s := w.Stats()
				w.logger.Info("Worker status",
					"written", s.Written,
					"skipped", s.Skipped,
					"failed", s.Failed,
					"last_revision", s.LastRevision)
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
