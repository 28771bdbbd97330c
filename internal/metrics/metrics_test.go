package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metricValue returns the counter value of the series of name whose label
// values equal labels, in label order.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func labelsMatch(m *dto.Metric, want []string) bool {
	pairs := m.GetLabel()
	if len(pairs) != len(want) {
		return false
	}
	for i, p := range pairs {
		if p.GetValue() != want[i] {
			return false
		}
	}
	return true
}

func TestCollector_MonitorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.TickCompleted(20*time.Millisecond, false)
	c.TickCompleted(5*time.Millisecond, true)
	c.TickSkipped()
	c.IdleWarningSent()
	c.IdleWarningSent()
	c.SessionAutoStopped()
	c.NotificationFailed("idle_warning")

	if got := metricValue(t, reg, "worktrack_idle_ticks_total", "ok"); got != 1 {
		t.Errorf("ok ticks = %v, want 1", got)
	}
	if got := metricValue(t, reg, "worktrack_idle_ticks_total", "error"); got != 1 {
		t.Errorf("error ticks = %v, want 1", got)
	}
	if got := metricValue(t, reg, "worktrack_idle_ticks_skipped_total"); got != 1 {
		t.Errorf("skipped ticks = %v, want 1", got)
	}
	if got := metricValue(t, reg, "worktrack_idle_warnings_total"); got != 2 {
		t.Errorf("idle warnings = %v, want 2", got)
	}
	if got := metricValue(t, reg, "worktrack_idle_auto_stops_total"); got != 1 {
		t.Errorf("auto stops = %v, want 1", got)
	}
	if got := metricValue(t, reg, "worktrack_notification_failures_total", "idle_warning"); got != 1 {
		t.Errorf("notification failures = %v, want 1", got)
	}
}

func TestCollector_RequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionStart("denied")
	c.RecordHTTPRequest(http.MethodPost, "/api/sessions", http.StatusForbidden, 3*time.Millisecond)

	if got := metricValue(t, reg, "worktrack_session_starts_total", "denied"); got != 1 {
		t.Errorf("denied starts = %v, want 1", got)
	}
	if got := metricValue(t, reg, "worktrack_http_requests_total", http.MethodPost, "/api/sessions", "403"); got != 1 {
		t.Errorf("http requests = %v, want 1", got)
	}
}

type brokerStub struct{}

func (brokerStub) Dropped() uint64  { return 7 }
func (brokerStub) Subscribers() int { return 2 }

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveBroker(brokerStub{})
	c.IdleWarningSent()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := rec.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"worktrack_idle_warnings_total 1",
		"worktrack_event_subscribers 2",
		"worktrack_events_dropped_total 7",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("response missing %q", want)
		}
	}
}
