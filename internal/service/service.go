package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"financial-alarms/internal/alarm"
	"financial-alarms/internal/alerting"
	"financial-alarms/internal/config"
	"financial-alarms/internal/evaluate"
	"financial-alarms/internal/fetcher"
	"financial-alarms/internal/metrics"
	"financial-alarms/internal/scheduler"
	"financial-alarms/internal/storage"
)

var errNoNotifier = errors.New("no notifier configured")

// TickSummary reports the outcome counts of one evaluation sweep.
type TickSummary struct {
	Evaluated    int
	Fired        int
	Notified     int
	Failed       int
	NotEvaluable int
	FetchErrors  int
	Conflicts    int
}

// Service orchestrates evaluation sweeps and the stale-record sweeper.
type Service struct {
	scheduler *scheduler.Scheduler
	store     storage.AlarmStore
	fetcher   fetcher.SeriesFetcher
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	fetchTimeout time.Duration
	retention    time.Duration
	locker       storage.AdvisoryLocker
	lockKey      int64
}

// New constructs the alarm evaluation service.
func New(cfg *config.Config, sched *scheduler.Scheduler, store storage.AlarmStore, seriesFetcher fetcher.SeriesFetcher, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:    sched,
		store:        store,
		fetcher:      seriesFetcher,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With().Str("component", "service").Logger(),
		fetchTimeout: cfg.Scheduler.FetchTimeout,
		retention:    cfg.Sweeper.Retention,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned sweep loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单次评估扫描；持有 advisory lock 的其他实例优先。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.Sweep(ctx)
	return err
}

// instrument identifies one market data fetch.
type instrument struct {
	Class  alarm.AssetClass
	Symbol string
}

// Sweep drives one pass over all pending alarms. Per-alarm and per-group
// failures are isolated; only a failure to load the pending snapshot is
// fatal to the sweep.
func (s *Service) Sweep(ctx context.Context) (TickSummary, error) {
	started := time.Now()
	logger := s.logger.With().Str("run_id", uuid.NewString()).Logger()

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return TickSummary{}, fmt.Errorf("load pending snapshot: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
		s.metrics.PendingAlarms.Set(float64(len(pending)))
	}
	if len(pending) == 0 {
		logger.Debug().Msg("no pending alarms")
		return TickSummary{}, nil
	}

	// One fetch per instrument, sized for the largest window in the group.
	groups := make(map[instrument][]alarm.Alarm)
	for _, a := range pending {
		key := instrument{Class: a.AssetClass, Symbol: a.AssetSymbol}
		groups[key] = append(groups[key], a)
	}

	var (
		mu      sync.Mutex
		summary TickSummary
		wg      sync.WaitGroup
	)
	for inst, group := range groups {
		wg.Add(1)
		go func(inst instrument, group []alarm.Alarm) {
			defer wg.Done()
			s.processGroup(ctx, logger, inst, group, &mu, &summary)
		}(inst, group)
	}
	wg.Wait()

	s.recordSummary(summary, time.Since(started))
	logger.Info().
		Int("pending", len(pending)).
		Int("evaluated", summary.Evaluated).
		Int("fired", summary.Fired).
		Int("notified", summary.Notified).
		Int("failed", summary.Failed).
		Int("not_evaluable", summary.NotEvaluable).
		Int("fetch_errors", summary.FetchErrors).
		Int("conflicts", summary.Conflicts).
		Dur("elapsed", time.Since(started)).
		Msg("sweep completed")

	return summary, nil
}

func (s *Service) processGroup(ctx context.Context, logger zerolog.Logger, inst instrument, group []alarm.Alarm, mu *sync.Mutex, summary *TickSummary) {
	minLen := 1
	for _, a := range group {
		if n := a.Params.MinSamples(); n > minLen {
			minLen = n
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	series, err := s.fetcher.FetchSeries(fetchCtx, inst.Class, inst.Symbol, minLen)
	cancel()
	if err != nil {
		// The whole group stays pending and is retried next tick.
		logger.Warn().Err(err).
			Str("symbol", inst.Symbol).
			Str("asset_class", string(inst.Class)).
			Int("alarms", len(group)).
			Msg("market data fetch failed, group skipped")
		mu.Lock()
		summary.FetchErrors += len(group)
		mu.Unlock()
		return
	}

	for i := range group {
		s.processAlarm(ctx, logger, &group[i], series, mu, summary)
	}
}

func (s *Service) processAlarm(ctx context.Context, logger zerolog.Logger, a *alarm.Alarm, series []decimal.Decimal, mu *sync.Mutex, summary *TickSummary) {
	res, err := evaluate.Evaluate(a, series)
	if err != nil {
		// Corrupt or unsupported row. Record and keep it pending for the
		// operator to inspect.
		msg := err.Error()
		logger.Error().Err(err).Int64("alarm_id", a.ID).Msg("evaluation failed")
		if markErr := s.store.MarkChecked(ctx, a.ID, &msg); markErr != nil {
			logger.Warn().Err(markErr).Int64("alarm_id", a.ID).Msg("mark checked failed")
		}
		return
	}

	mu.Lock()
	summary.Evaluated++
	mu.Unlock()

	switch res.Outcome {
	case evaluate.NotEvaluable:
		mu.Lock()
		summary.NotEvaluable++
		mu.Unlock()
		logger.Debug().Int64("alarm_id", a.ID).Str("reason", res.Reason).Msg("alarm not evaluable yet")

	case evaluate.NoFire:
		if markErr := s.store.MarkChecked(ctx, a.ID, nil); markErr != nil {
			logger.Warn().Err(markErr).Int64("alarm_id", a.ID).Msg("mark checked failed")
		}

	case evaluate.Fire:
		mu.Lock()
		summary.Fired++
		mu.Unlock()
		s.fireAlarm(ctx, logger, a, res, mu, summary)
	}
}

// fireAlarm claims the alarm via compare-and-set, delivers the notification
// and retires the row. Losing the CAS means another instance owns delivery.
func (s *Service) fireAlarm(ctx context.Context, logger zerolog.Logger, a *alarm.Alarm, res evaluate.Result, mu *sync.Mutex, summary *TickSummary) {
	claimed, err := s.store.TryTransition(ctx, a.ID, alarm.StatusPending, alarm.StatusTriggered)
	if err != nil {
		logger.Error().Err(err).Int64("alarm_id", a.ID).Msg("claim transition failed")
		return
	}
	if !claimed {
		mu.Lock()
		summary.Conflicts++
		mu.Unlock()
		logger.Debug().Int64("alarm_id", a.ID).Msg("alarm already claimed elsewhere")
		return
	}

	note := alerting.Notification{
		Alarm:       *a,
		Price:       res.Price,
		Reason:      res.Reason,
		TriggeredAt: time.Now().UTC(),
	}
	notifyErr := errNoNotifier
	if s.notifier != nil {
		notifyErr = s.notifier.Notify(ctx, note)
	}
	if notifyErr != nil {
		mu.Lock()
		summary.Failed++
		mu.Unlock()
		logger.Error().Err(notifyErr).
			Int64("alarm_id", a.ID).
			Str("email", a.Email).
			Msg("notification delivery failed, alarm parked as failed")
		if _, terr := s.store.TryTransition(ctx, a.ID, alarm.StatusTriggered, alarm.StatusFailed); terr != nil {
			logger.Warn().Err(terr).Int64("alarm_id", a.ID).Msg("failed transition did not apply")
		}
		msg := notifyErr.Error()
		if markErr := s.store.MarkChecked(ctx, a.ID, &msg); markErr != nil {
			logger.Warn().Err(markErr).Int64("alarm_id", a.ID).Msg("mark checked failed")
		}
		return
	}

	mu.Lock()
	summary.Notified++
	mu.Unlock()
	logger.Info().
		Int64("alarm_id", a.ID).
		Str("symbol", a.AssetSymbol).
		Str("alarm_type", string(a.Type)).
		Str("price", res.Price.String()).
		Str("reason", res.Reason).
		Msg("alarm fired and notified")

	// Triggered rows are retired immediately; the sweeper reclaims any
	// stragglers this delete misses.
	if deleted, delErr := s.store.DeleteAlarm(ctx, a.ID); delErr != nil || !deleted {
		logger.Warn().Err(delErr).Int64("alarm_id", a.ID).Msg("retire delete incomplete, sweeper will reclaim")
	}
}

// Cleanup deletes terminal alarms older than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.SweepDelete(ctx, []alarm.Status{alarm.StatusTriggered, alarm.StatusFailed}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale alarms: %w", err)
	}

	if s.metrics != nil {
		s.metrics.SweptAlarms.Add(float64(removed))
	}
	s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("stale alarm sweep completed")
	return removed, nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("advisory lock: %w", err)
	}
	return unlock, acquired, nil
}

func (s *Service) recordSummary(summary TickSummary, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.TickDuration.Observe(elapsed.Seconds())
	s.metrics.AlarmsEvaluated.Add(float64(summary.Evaluated))
	s.metrics.AlarmsFired.Add(float64(summary.Fired))
	s.metrics.NotificationsSent.Add(float64(summary.Notified))
	s.metrics.NotificationsFailed.Add(float64(summary.Failed))
	s.metrics.NotEvaluable.Add(float64(summary.NotEvaluable))
	s.metrics.FetchErrors.Add(float64(summary.FetchErrors))
	s.metrics.TransitionConflicts.Add(float64(summary.Conflicts))
}
