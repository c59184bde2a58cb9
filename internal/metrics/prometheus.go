package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// PrometheusHandler exposes Metrics in Prometheus' text exposition format.
//
// All counters are exposed as a single metric with an `event` label, which
// keeps the in-process registry simple while still allowing scraping.
// Registered gauges follow, one metric each.
func PrometheusHandler(m *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		snap := m.Snapshot()
		events := make([]string, 0, len(snap))
		for k := range snap {
			events = append(events, k)
		}
		sort.Strings(events)

		_, _ = fmt.Fprintln(w, "# HELP parlor_signaling_events_total Internal event counters.")
		_, _ = fmt.Fprintln(w, "# TYPE parlor_signaling_events_total counter")
		for _, k := range events {
			_, _ = fmt.Fprintf(w, "parlor_signaling_events_total{event=\"%s\"} %d\n", escapeLabel(k), snap[k])
		}

		gauges := m.SampleGauges()
		names := make([]string, 0, len(gauges))
		for k := range gauges {
			names = append(names, k)
		}
		sort.Strings(names)

		for _, name := range names {
			_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			_, _ = fmt.Fprintf(w, "%s %d\n", name, gauges[name])
		}
	})
}

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

func escapeLabel(v string) string {
	return labelEscaper.Replace(v)
}
