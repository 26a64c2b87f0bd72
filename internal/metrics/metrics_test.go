package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.StreamSettled(OutcomeOK, 3, 1.2)
	m.StreamSettled(OutcomeFailed, 0, 0.1)
	m.Envelope("NEW_MESSAGE", "sent")
	m.Dropped()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.PersistWrite("skipped")
	m.AuthAttempt("login", "ok")
	m.StorageChange("history", false)
	m.StorageChange("history", true)

	if got := testutil.ToFloat64(m.streams.WithLabelValues(OutcomeOK)); got != 1 {
		t.Errorf("ok streams = %v", got)
	}
	if got := testutil.ToFloat64(m.sessions); got != 1 {
		t.Errorf("open sessions = %v", got)
	}
	if got := testutil.ToFloat64(m.dropped); got != 1 {
		t.Errorf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.storage.WithLabelValues("history", "delete")); got != 1 {
		t.Errorf("history deletes = %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.StreamSettled(OutcomeOK, 1, 1)
	m.Envelope("x", "y")
	m.SessionOpened()
	m.PersistWrite("written")
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.PersistWrite("written")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `omni_persist_writes_total{result="written"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
