// Package metrics exposes Prometheus counters/gauges for the client,
// grounded on the promauto wiring style in prometheus.go (the teacher's
// noise-floor metrics registration).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors this client registers. Construct once per
// process with New and share across sessions, labeling by connection
// index.
type Metrics struct {
	FramesDecoded *prometheus.CounterVec
	BytesRecorded *prometheus.CounterVec
	Reconnects    *prometheus.CounterVec
	SquelchOpen   *prometheus.GaugeVec
	SessionUp     *prometheus.GaugeVec
}

// New registers the client's collectors against the default registry.
func New() *Metrics {
	return &Metrics{
		FramesDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kiwirecorder_frames_decoded_total",
			Help: "Number of frames decoded, labeled by session and frame kind.",
		}, []string{"session", "kind"}),
		BytesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kiwirecorder_bytes_recorded_total",
			Help: "Number of PCM bytes appended to a recording sink.",
		}, []string{"session"}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kiwirecorder_reconnects_total",
			Help: "Number of connect attempts per session, the first one included.",
		}, []string{"session"}),
		SquelchOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kiwirecorder_squelch_open",
			Help: "1 if the squelch gate is currently open for a session, else 0.",
		}, []string{"session"}),
		SessionUp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kiwirecorder_session_up",
			Help: "1 if a session currently has an open connection, else 0.",
		}, []string{"session"}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr. Intended to be
// run in its own goroutine; returns the listener error.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
