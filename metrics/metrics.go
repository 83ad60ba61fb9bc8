// Package metrics exposes the host's Prometheus metrics (active sessions,
// bytes transferred, ping RTT) over the standard /metrics endpoint, served
// alongside the main protocol listener when `serve --metrics-addr` is set.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kerr_sessions_active",
		Help: "Number of live sessions per session type.",
	}, []string{"session_type"})

	BytesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kerr_bytes_in_total",
		Help: "Bytes read from the transport stream, by session type.",
	}, []string{"session_type"})

	BytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kerr_bytes_out_total",
		Help: "Bytes written to the transport stream, by session type.",
	}, []string{"session_type"})

	PingRTTSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kerr_ping_rtt_seconds",
		Help:    "Observed ping round-trip time.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)

// Serve starts the Prometheus HTTP handler on addr. It blocks until the
// listener errors, matching net/http.ListenAndServe's contract.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
