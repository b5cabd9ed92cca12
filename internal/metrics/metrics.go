// Package metrics exposes prometheus instrumentation for the trading pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IntentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "intents_total", Help: "Trade intents produced per source"},
		[]string{"source"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Trades applied to the ledger"},
		[]string{"market", "side"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rejections_total", Help: "Intents refused before execution"},
		[]string{"stage"},
	)
	StreamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_events_total", Help: "Stream follower events by disposition"},
		[]string{"result"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Stream transport reconnection attempts"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "intent_queue_depth", Help: "Intents waiting in the engine queue"},
	)
)

func init() {
	prometheus.MustRegister(IntentsTotal, FillsTotal, RejectionsTotal, StreamEventsTotal, ReconnectsTotal, QueueDepth)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
