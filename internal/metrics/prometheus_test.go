package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(DropReasonStaleTarget)
	m.Inc(DropReasonStaleTarget)
	m.Inc(EventChatDelivered)

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	body := rr.Body.String()
	if !strings.Contains(body, `parlor_signaling_events_total{event="stale_target"} 2`) {
		t.Fatalf("missing stale_target counter:\n%s", body)
	}
	if !strings.Contains(body, `parlor_signaling_events_total{event="chat_delivered"} 1`) {
		t.Fatalf("missing chat_delivered counter:\n%s", body)
	}
}

func TestPrometheusHandler_Gauges(t *testing.T) {
	m := New()
	rooms := int64(0)
	m.RegisterGauge(GaugeRooms, func() int64 { return rooms })

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "parlor_signaling_rooms 0") {
		t.Fatalf("missing rooms gauge:\n%s", rr.Body.String())
	}

	// Gauges are sampled per scrape, not at registration.
	rooms = 3
	rr = httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "parlor_signaling_rooms 3") {
		t.Fatalf("stale rooms gauge:\n%s", rr.Body.String())
	}
}

func TestPrometheusHandler_EscapesLabels(t *testing.T) {
	m := New()
	m.Inc(`quote"back\slash`)

	rr := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `parlor_signaling_events_total{event="quote\"back\\slash"} 1`) {
		t.Fatalf("label not escaped:\n%s", rr.Body.String())
	}
}

func TestPrometheusHandler_NilMetrics(t *testing.T) {
	rr := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 500 {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}
