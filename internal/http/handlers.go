package http

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"tally/internal/log"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w, nil)
}

// handleReady reports ready once the initial load has finished, whether or
// not it succeeded: a failed load still leaves a usable empty tracker.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.tracker.Loaded() {
		NewJSONResponse().Status(http.StatusServiceUnavailable).
			Body(map[string]any{"status": "not_ready", "checks": map[string]string{"document": "loading"}}).
			Write(w, nil)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"status":  "ready",
		"version": s.tracker.Version(),
		"checks":  map[string]string{"document": "ok"},
	}).Write(w, nil)
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	tax := s.tracker.Taxonomy()
	NewJSONResponse().Body(map[string][]string{
		"categories": tax.Categories,
		"accounts":   tax.Accounts,
	}).Write(w, r)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r.URL.Query())
	key := queryKey(s.tracker.Version(), q)

	v, hit := s.views.Get(key)
	s.metrics.CacheLookup(hit)
	if !hit {
		v = s.tracker.View(q)
		s.views.Set(queryKey(v.Version, q), v)
	}
	NewJSONResponse().ETag(fmt.Sprintf(`W/"%d-%x"`, v.Version, hashString(key))).Body(v).Write(w, r)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.tracker.Get(pathID(r))
	if err != nil {
		s.fail(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Body(tx).Write(w, r)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, err := NewRequestBodyParser(r).Transaction()
	if err != nil {
		s.fail(w, r, err, log.OpCreate)
		return
	}
	tx, err := s.tracker.Add(r.Context(), in)
	if err != nil {
		s.fail(w, r, err, log.OpCreate)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/transactions/"+tx.ID.String()).
		Body(tx).
		Write(w, nil)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	in, err := NewRequestBodyParser(r).Transaction()
	if err != nil {
		s.fail(w, r, err, log.OpUpdate)
		return
	}
	tx, err := s.tracker.Edit(r.Context(), pathID(r), in)
	if err != nil {
		s.fail(w, r, err, log.OpUpdate)
		return
	}
	NewJSONResponse().Body(tx).Write(w, nil)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if _, err := s.tracker.Delete(r.Context(), pathID(r)); err != nil {
		s.fail(w, r, err, log.OpDelete)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w, nil)
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	b, ok := s.tracker.Budget(r.PathValue("month"))
	if !ok {
		writeError(w, http.StatusNotFound, "no budget for month")
		return
	}
	NewJSONResponse().Body(b).Write(w, r)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	amount, err := NewRequestBodyParser(r).BudgetAmount()
	if err != nil {
		s.fail(w, r, err, log.OpBudget)
		return
	}
	b, ok := s.tracker.SetBudget(r.Context(), r.PathValue("month"), amount)
	if !ok {
		NewJSONResponse().Status(http.StatusUnprocessableEntity).
			Body(ErrorBody{Error: "unrecognized month", Field: "month"}).
			Write(w, nil)
		return
	}
	NewJSONResponse().Body(b).Write(w, nil)
}

// handleReport serves the category breakdown. Its ETag is the breakdown
// signature, so a client redraws the chart only when it would change.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q := parseQuery(r.URL.Query())
	key := queryKey(s.tracker.Version(), q)

	rep, hit := s.reports.Get(key)
	s.metrics.CacheLookup(hit)
	if !hit {
		rep = s.tracker.Report(q)
		s.reports.Set(queryKey(rep.Version, q), rep)
	}

	etag := rep.Signature
	if rep.Detail != nil {
		// Line items can change without the totals changing.
		etag = fmt.Sprintf("%s-%d", etag, rep.Version)
	}
	NewJSONResponse().ETag(etag).Body(rep).Write(w, r)
}

// handleReload replaces in-memory state with the stored document. Unsaved
// edits are lost.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	rep, err := s.tracker.Reload(r.Context())
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Reload failed", err, log.OpLoad, nil)
		writeError(w, http.StatusBadGateway, "reload failed: store unavailable")
		return
	}
	s.views.Purge()
	s.reports.Purge()
	NewJSONResponse().Body(map[string]any{
		"version":   s.tracker.Version(),
		"generated": rep.Generated,
	}).Write(w, nil)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, body := errorResponse(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.LogError(r.Context(), "Request failed", err, op, nil)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldError, err,
			log.FieldOperation, op,
			log.FieldStatusCode, status)
	}
	NewJSONResponse().Status(status).Body(body).Write(w, nil)
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
