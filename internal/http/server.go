// Package http serves the tracker's JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/cache"
	"tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/services"
)

// Options tunes a Server. Zero values take the defaults below.
type Options struct {
	Logger  *log.Logger
	Metrics *metrics.Metrics

	// RateLimit is the number of mutating requests a client may make per
	// minute (default 60).
	RateLimit int

	// MaxBodyBytes caps request bodies (default 1 MiB).
	MaxBodyBytes int64

	// CacheSize and CacheTTL bound the rendered view caches (default 128, 5m).
	CacheSize int
	CacheTTL  time.Duration

	// Flush, when set, is called on shutdown after the listener closes so
	// queued saves reach the store.
	Flush func(context.Context) error
}

type Server struct {
	http.Server

	tracker *services.Tracker
	logger  *log.Logger
	metrics *metrics.Metrics
	opts    Options
	started time.Time

	rateLimiter *rateLimiter
	security    *securityMetrics

	views   *cache.LRUCache[services.TableView]
	reports *cache.LRUCache[services.Report]
	caches  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware around tracker.
func NewServer(addr string, tracker *services.Tracker, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 60
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	s := &Server{
		tracker:     tracker,
		logger:      opts.Logger.WithComponent(log.ComponentHTTP),
		metrics:     opts.Metrics,
		opts:        opts,
		started:     time.Now(),
		rateLimiter: newRateLimiter(opts.RateLimit),
		security:    &securityMetrics{},
		views:       cache.NewLRUCache[services.TableView](opts.CacheSize, opts.CacheTTL),
		reports:     cache.NewLRUCache[services.Report](opts.CacheSize, opts.CacheTTL),
		caches:      cache.NewManager(opts.Logger),
	}
	s.caches.Register(s.views)
	s.caches.Register(s.reports)
	s.caches.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/taxonomy", s.handleTaxonomy)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/budgets/{month}", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budgets/{month}", s.handleSetBudget)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("POST /api/reload", s.handleReload)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Shutdown stops accepting requests, waits for in-flight ones, then flushes
// queued saves.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.rateLimiter.stop()

		shutdownErr = s.Server.Shutdown(ctx)

		if s.opts.Flush != nil {
			if err := s.opts.Flush(ctx); err != nil {
				s.logger.WarnContext(ctx, "Pending saves not flushed", log.FieldError, err)
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}
	})
	return shutdownErr
}
