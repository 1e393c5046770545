// Package metrics holds the Prometheus instrumentation for the detection
// pipeline. Collectors register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_packets_processed_total",
			Help: "Packets run through the detection pipeline",
		},
		[]string{"mode"}, // live, offline
	)

	DetectionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_detection_events_total",
			Help: "Detection events emitted",
		},
		[]string{"detector", "category"},
	)

	DetectorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsentry_detector_failures_total",
			Help: "Detector invocations that panicked and were skipped",
		},
		[]string{"detector"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsentry_dispatch_duration_seconds",
			Help:    "Time spent dispatching one packet to all detectors",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10), // 1us .. ~260ms
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsentry_sessions_active",
			Help: "Live capture sessions currently running",
		},
	)

	StoreEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsentry_result_store_evictions_total",
			Help: "Results dropped from bounded result stores to make room",
		},
	)
)

// Mode labels for PacketsProcessed.
const (
	ModeLive    = "live"
	ModeOffline = "offline"
)
