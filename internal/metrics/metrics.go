package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the prometheus instruments for the alarm engine.
type Metrics struct {
	TicksTotal          prometheus.Counter
	TickDuration        prometheus.Histogram
	AlarmsEvaluated     prometheus.Counter
	AlarmsFired         prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	NotEvaluable        prometheus.Counter
	FetchErrors         prometheus.Counter
	TransitionConflicts prometheus.Counter
	SweptAlarms         prometheus.Counter
	PendingAlarms       prometheus.Gauge
}

// NewMetrics registers and returns all engine metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_ticks_total",
			Help: "Total evaluation sweeps executed",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alarmwatcher_tick_duration_seconds",
			Help:    "Evaluation sweep wall time",
			Buckets: prometheus.DefBuckets,
		}),
		AlarmsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_alarms_evaluated_total",
			Help: "Alarms whose condition was evaluated",
		}),
		AlarmsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_alarms_fired_total",
			Help: "Alarms whose condition evaluated true",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_notifications_sent_total",
			Help: "Alert notifications delivered",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_notifications_failed_total",
			Help: "Alert notifications that exhausted the retry budget",
		}),
		NotEvaluable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_alarms_not_evaluable_total",
			Help: "Evaluations skipped for insufficient history",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_fetch_errors_total",
			Help: "Alarms skipped because the instrument fetch failed",
		}),
		TransitionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_transition_conflicts_total",
			Help: "Lost pending->triggered races (handled elsewhere)",
		}),
		SweptAlarms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarmwatcher_swept_alarms_total",
			Help: "Stale terminal alarms reclaimed by the sweeper",
		}),
		PendingAlarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alarmwatcher_pending_alarms",
			Help: "Pending alarms seen by the last sweep",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.AlarmsEvaluated,
		m.AlarmsFired,
		m.NotificationsSent,
		m.NotificationsFailed,
		m.NotEvaluable,
		m.FetchErrors,
		m.TransitionConflicts,
		m.SweptAlarms,
		m.PendingAlarms,
	)
	return m
}

// Serve exposes /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
