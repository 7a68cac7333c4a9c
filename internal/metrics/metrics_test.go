package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rewired-gh/spreadwatch/internal/models"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePoll(ResultOK, time.Second)
	m.RowRejected("bad_leg")
	m.DuplicateRow()
	m.EventsCommitted([]models.ChangeEvent{{Kind: models.KindNew}})
	m.PersistFailed()
	m.SetTracked(3)
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObservePoll(ResultOK, 10*time.Millisecond)
	m.ObservePoll(ResultOK, 20*time.Millisecond)
	m.ObservePoll(ResultPersistError, time.Millisecond)
	m.RowRejected("bad_leg")
	m.RowRejected("bad_leg")
	m.RowRejected("missing_leg")
	m.DuplicateRow()
	m.PersistFailed()
	m.SetTracked(7)
	m.EventsCommitted([]models.ChangeEvent{
		{Kind: models.KindNew, SpreadType: models.Primary},
		{Kind: models.KindChange, SpreadType: models.Derived},
		{Kind: models.KindChange, SpreadType: models.Derived},
	})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"polls ok", testutil.ToFloat64(m.polls.WithLabelValues(ResultOK)), 2},
		{"polls persist error", testutil.ToFloat64(m.polls.WithLabelValues(ResultPersistError)), 1},
		{"rejected bad_leg", testutil.ToFloat64(m.rowsRejected.WithLabelValues("bad_leg")), 2},
		{"rejected missing_leg", testutil.ToFloat64(m.rowsRejected.WithLabelValues("missing_leg")), 1},
		{"duplicates", testutil.ToFloat64(m.duplicateRows), 1},
		{"persist failures", testutil.ToFloat64(m.persistFailures), 1},
		{"tracked", testutil.ToFloat64(m.tracked), 7},
		{"new primary", testutil.ToFloat64(m.events.WithLabelValues("NEW", "PRIMARY")), 1},
		{"chg derived", testutil.ToFloat64(m.events.WithLabelValues("CHG", "DERIVED")), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetTracked(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "spreadwatch_tracked_spreads 2") {
		t.Errorf("metrics output missing tracked gauge:\n%s", body)
	}
}
