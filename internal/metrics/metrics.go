// Package metrics provides Prometheus metrics for conversation turns.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeEmpty     = "empty"
)

// Dispatch stages.
const (
	StageCreate = "create_conversation"
	StageSend   = "send_message"
)

// Drop reasons for stray events.
const (
	DropConversation = "conversation"
	DropTurn         = "turn"
	DropIdle         = "idle"
)

// Metrics holds all Prometheus metrics for the controller.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal            *prometheus.CounterVec
	DispatchFailuresTotal *prometheus.CounterVec
	EventsDroppedTotal    *prometheus.CounterVec
	TitlePatchesTotal     *prometheus.CounterVec
	FirstTokenSeconds     prometheus.Histogram
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.TurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_turns_total",
			Help: "Assistant turns by outcome",
		},
		[]string{"outcome"},
	)

	m.DispatchFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_dispatch_failures_total",
			Help: "Failed conversation create or message send calls",
		},
		[]string{"stage"},
	)

	m.EventsDroppedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_events_dropped_total",
			Help: "Streaming events dropped as stale or stray",
		},
		[]string{"reason"},
	)

	m.TitlePatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datachat_title_patches_total",
			Help: "Background title patches by status",
		},
		[]string{"status"},
	)

	m.FirstTokenSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datachat_first_token_seconds",
			Help:    "Time from dispatch to first streamed token",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordTurn counts a finished turn.
func (m *Metrics) RecordTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordDispatchFailure counts a failed remote call on the send path.
func (m *Metrics) RecordDispatchFailure(stage string) {
	if m == nil {
		return
	}
	m.DispatchFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordDrop counts a dropped event.
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordTitlePatch counts a background title patch.
func (m *Metrics) RecordTitlePatch(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TitlePatchesTotal.WithLabelValues(status).Inc()
}

// ObserveFirstToken records time to first token.
func (m *Metrics) ObserveFirstToken(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstTokenSeconds.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
