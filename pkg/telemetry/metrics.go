package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Workflow runner ─────────────────────────────────────────────────────────

	WorkflowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "workflow",
		Name:      "started_total",
		Help:      "Total workflow instances started.",
	})

	WorkflowsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quotestream",
		Subsystem: "workflow",
		Name:      "active",
		Help:      "Workflow instances currently running.",
	})

	WorkflowDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quotestream",
		Subsystem: "workflow",
		Name:      "duration_seconds",
		Help:      "Wall-clock workflow runtime, labelled by final status.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
	}, []string{"final_status"})

	WorkflowIterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "workflow",
		Name:      "iterations_total",
		Help:      "Total iterations executed across all workflows.",
	})

	WorkflowQuotesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "workflow",
		Name:      "quotes_delivered_total",
		Help:      "Total quotes successfully delivered.",
	})

	WorkflowFetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "workflow",
		Name:      "fetch_retries_total",
		Help:      "Total quote fetch retry attempts.",
	})

	// ─── Stream bridge ───────────────────────────────────────────────────────────

	StreamsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "stream",
		Name:      "opened_total",
		Help:      "Total SSE streams opened.",
	})

	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quotestream",
		Subsystem: "stream",
		Name:      "active",
		Help:      "SSE streams currently open.",
	})

	StreamEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "stream",
		Name:      "events_emitted_total",
		Help:      "Total stream events emitted, labelled by event type.",
	}, []string{"event"})

	// ─── Stop signal ─────────────────────────────────────────────────────────────

	StopSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quotestream",
		Subsystem: "signal",
		Name:      "stop_total",
		Help:      "Total stop requests, labelled by outcome (sent | not_found).",
	}, []string{"outcome"})
)
