// Package metrics provides Prometheus metrics for stream lifecycle and
// transcoder resource usage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamgate/internal/events"
	"streamgate/internal/store"
)

var (
	streamsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Name:      "streams",
		Help:      "Number of streams by lifecycle status",
	}, []string{"status"})

	crashRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "crash_restarts_total",
		Help:      "Unrequested transcoder exits per stream",
	}, []string{"stream_id"})

	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streamgate",
		Name:      "token_refreshes_total",
		Help:      "Token refresh attempts by result",
	}, []string{"result"})

	transcoderCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Subsystem: "transcoder",
		Name:      "cpu_percent",
		Help:      "Transcoder process CPU usage percent",
	}, []string{"stream_id"})

	transcoderRSS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "streamgate",
		Subsystem: "transcoder",
		Name:      "memory_rss_bytes",
		Help:      "Transcoder process resident set size",
	}, []string{"stream_id"})
)

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe wires lifecycle events to the counters and keeps the status
// gauge in sync with the store. Returns an unsubscribe function.
func Observe(bus *events.Bus, list func() []store.Record) func() {
	refresh := func() { setStatusGauge(list()) }

	unsubs := []func(){
		events.Subscribe(bus, func(e events.StreamStatusEvent) { refresh() }),
		events.Subscribe(bus, func(e events.StreamAddedEvent) { refresh() }),
		events.Subscribe(bus, func(e events.StreamRemovedEvent) {
			crashRestartsTotal.DeleteLabelValues(e.StreamID)
			transcoderCPU.DeleteLabelValues(e.StreamID)
			transcoderRSS.DeleteLabelValues(e.StreamID)
			refresh()
		}),
		events.Subscribe(bus, func(e events.ProcessExitEvent) {
			if !e.Requested {
				crashRestartsTotal.WithLabelValues(e.StreamID).Inc()
			}
		}),
		events.Subscribe(bus, func(e events.TokenRefreshedEvent) {
			result := "ok"
			if !e.Success {
				result = "error"
			}
			tokenRefreshesTotal.WithLabelValues(result).Inc()
		}),
	}

	refresh()
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func setStatusGauge(records []store.Record) {
	counts := map[store.Status]int{
		store.StatusStarting: 0,
		store.StatusRunning:  0,
		store.StatusStopped:  0,
		store.StatusFailed:   0,
	}
	for _, rec := range records {
		counts[rec.Status]++
	}
	for status, n := range counts {
		streamsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

// SetTranscoderStats records resource usage for one stream's process.
func SetTranscoderStats(streamID string, cpuPercent float64, rssBytes uint64) {
	transcoderCPU.WithLabelValues(streamID).Set(cpuPercent)
	transcoderRSS.WithLabelValues(streamID).Set(float64(rssBytes))
}

// ClearTranscoderStats drops the per-stream resource series.
func ClearTranscoderStats(streamID string) {
	transcoderCPU.DeleteLabelValues(streamID)
	transcoderRSS.DeleteLabelValues(streamID)
}
