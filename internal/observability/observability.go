// Package observability holds the process-wide Prometheus collectors and
// the metrics listener used by the worker binary. The api binary mounts
// Handler on its own router instead.
package observability

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_enqueued_total",
		Help: "Background tasks enqueued.",
	}, []string{"type"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_processed_total",
		Help: "Background tasks completed by the worker.",
	}, []string{"type", "status"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "task_duration_seconds",
		Help:    "Wall time spent handling one claimed task.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type"})

	StaleTasksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stale_tasks_reaped_total",
		Help: "Processing claims reset after their worker disappeared.",
	})

	InquiriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inquiries_created_total",
		Help: "New inquiries opened, by inbound channel.",
	}, []string{"channel"})

	ExtractionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "extraction_requests_total",
		Help: "Extraction service calls, by kind and outcome.",
	}, []string{"kind", "outcome"})
)

// Handler exposes the default registry for the api router.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer runs a standalone /metrics listener. Used by the
// worker binary, which has no other HTTP surface.
func StartMetricsServer(addr string, logger *log.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if logger != nil {
			logger.Printf("metrics listening on %s", addr)
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed && logger != nil {
			logger.Printf("metrics server failed: %v", err)
		}
	}()
}
