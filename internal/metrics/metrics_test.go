package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStore("save", time.Millisecond, nil)
	m.AddGenerated(3)
	m.IncCoalesced()
	m.IncSnapshotSkipped()
	m.SetTransactions(4)
	m.ObserveHTTP("GET", "/x", "200", time.Millisecond)
	m.CacheLookup(true)
	if m.Registry() != nil {
		t.Fatal("nil metrics should have no registry")
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveStore("save", time.Millisecond, nil)
	m.ObserveStore("save", time.Millisecond, errors.New("boom"))
	m.ObserveStore("save", time.Millisecond, errors.New("boom"))
	m.AddGenerated(2)
	m.AddGenerated(0)

	if got := testutil.ToFloat64(m.storeOps.WithLabelValues("save", OutcomeError)); got != 2 {
		t.Fatalf("save errors = %v", got)
	}
	if got := testutil.ToFloat64(m.storeOps.WithLabelValues("save", OutcomeSuccess)); got != 1 {
		t.Fatalf("save successes = %v", got)
	}
	if got := testutil.ToFloat64(m.generated); got != 2 {
		t.Fatalf("generated = %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetTransactions(7)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tally_transactions 7") {
		t.Fatalf("metrics output missing gauge:\n%s", body)
	}
}
