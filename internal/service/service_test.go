package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"financial-alarms/internal/alarm"
	"financial-alarms/internal/alerting"
	"financial-alarms/internal/config"
	"financial-alarms/internal/scheduler"
)

// memStore is an in-memory AlarmStore with the same compare-and-set
// semantics as the postgres implementation.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]alarm.Alarm

	// beforeTransition, when set, runs once just before the CAS check to
	// simulate a concurrent competitor.
	beforeTransition func(s *memStore, id int64)
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]alarm.Alarm)}
}

func (s *memStore) InsertAlarm(_ context.Context, a alarm.Alarm) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	a.ID = s.nextID
	if a.Status == "" {
		a.Status = alarm.StatusPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.rows[a.ID] = a
	return a.ID, nil
}

func (s *memStore) GetAlarm(_ context.Context, id int64) (*alarm.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *memStore) ListPending(_ context.Context) ([]alarm.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]alarm.Alarm, 0)
	for _, row := range s.rows {
		if row.Status == alarm.StatusPending {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListRecent(_ context.Context, limit int) ([]alarm.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]alarm.Alarm, 0)
	for _, row := range s.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) TryTransition(_ context.Context, id int64, from, to alarm.Status) (bool, error) {
	s.mu.Lock()
	if hook := s.beforeTransition; hook != nil {
		s.beforeTransition = nil
		hook(s, id)
	}

	row, ok := s.rows[id]
	if !ok || row.Status != from {
		s.mu.Unlock()
		return false, nil
	}
	now := time.Now().UTC()
	row.Status = to
	row.LastCheckAt = &now
	row.UpdatedAt = now
	s.rows[id] = row
	s.mu.Unlock()
	return true, nil
}

func (s *memStore) MarkChecked(_ context.Context, id int64, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	row.LastCheckAt = &now
	row.LastError = lastError
	row.UpdatedAt = now
	s.rows[id] = row
	return nil
}

func (s *memStore) DeleteAlarm(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.rows[id]
	delete(s.rows, id)
	return ok, nil
}

func (s *memStore) SweepDelete(_ context.Context, statuses []alarm.Status, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match := make(map[alarm.Status]bool, len(statuses))
	for _, status := range statuses {
		match[status] = true
	}

	var removed int64
	for id, row := range s.rows {
		if match[row.Status] && row.CreatedAt.Before(olderThan) {
			delete(s.rows, id)
			removed++
		}
	}
	return removed, nil
}

func (s *memStore) CountAlarms(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}

// stubFetcher serves canned series keyed by symbol.
type stubFetcher struct {
	mu     sync.Mutex
	series map[string][]decimal.Decimal
	errs   map[string]error
	calls  map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		series: make(map[string][]decimal.Decimal),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *stubFetcher) FetchSeries(_ context.Context, _ alarm.AssetClass, symbol string, _ int) ([]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[symbol]++
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	return f.series[symbol], nil
}

// recordingNotifier captures deliveries and optionally fails them.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notes)
}

func newTestService(store *memStore, fetch *stubFetcher, notify *recordingNotifier) *Service {
	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{
			Interval:     time.Minute,
			FetchTimeout: time.Second,
		},
		Sweeper: config.SweeperConfig{
			Interval:  24 * time.Hour,
			Retention: 720 * time.Hour,
		},
	}
	sched := scheduler.New(scheduler.Options{Interval: cfg.Scheduler.Interval}, zerolog.Nop())
	return New(cfg, sched, store, fetch, notify, nil, zerolog.Nop())
}

func seriesOf(values ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func pendingPriceAlarm(symbol string, target float64, dir alarm.Direction) alarm.Alarm {
	return alarm.Alarm{
		AssetClass:  alarm.AssetCrypto,
		AssetSymbol: symbol,
		Type:        alarm.TypePrice,
		Params:      alarm.PriceParams{TargetPrice: decimal.NewFromFloat(target), Direction: dir},
		Email:       "trader@example.com",
		Status:      alarm.StatusPending,
	}
}

func TestSweepFireNotifiesAndRetires(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	id, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 50000, alarm.DirectionAbove))
	require.NoError(t, err)
	fetch.series["BTC-USDT"] = seriesOf(49000, 50500)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Evaluated)
	require.Equal(t, 1, summary.Fired)
	require.Equal(t, 1, summary.Notified, "触发后必须恰好投递一次")
	require.Equal(t, 0, summary.Failed)

	require.Equal(t, 1, notify.count())
	require.Equal(t, id, notify.notes[0].Alarm.ID)
	require.Equal(t, "50500", notify.notes[0].Price.String())

	// The row is gone: the alarm is one-shot.
	row, err := store.GetAlarm(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestSweepNoFireStaysPending(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	id, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 60000, alarm.DirectionAbove))
	require.NoError(t, err)
	fetch.series["BTC-USDT"] = seriesOf(49000, 50500)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Evaluated)
	require.Equal(t, 0, summary.Fired)
	require.Equal(t, 0, notify.count())

	row, err := store.GetAlarm(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, alarm.StatusPending, row.Status)
	require.NotNil(t, row.LastCheckAt, "未触发也要刷新 last_check_at")
	require.Nil(t, row.LastError)
}

func TestSweepNotEvaluableLeavesAlarmUntouched(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	id, err := store.InsertAlarm(context.Background(), alarm.Alarm{
		AssetClass:  alarm.AssetCrypto,
		AssetSymbol: "BTC-USDT",
		Type:        alarm.TypeRSI,
		Params:      alarm.RSIParams{Period: 14, Threshold: 30},
		Email:       "trader@example.com",
		Status:      alarm.StatusPending,
	})
	require.NoError(t, err)
	// Far fewer than the period+1 samples RSI needs.
	fetch.series["BTC-USDT"] = seriesOf(100, 101, 102)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.NotEvaluable)
	require.Equal(t, 0, summary.Fired)
	require.Equal(t, 0, notify.count())

	row, err := store.GetAlarm(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, alarm.StatusPending, row.Status)
	require.Nil(t, row.LastCheckAt)
}

func TestSweepFetchFailureIsolatesGroup(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	_, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 50000, alarm.DirectionAbove))
	require.NoError(t, err)
	_, err = store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 100000, alarm.DirectionAbove))
	require.NoError(t, err)
	ethID, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("ETH-USDT", 3000, alarm.DirectionAbove))
	require.NoError(t, err)

	fetch.errs["BTC-USDT"] = errors.New("upstream 503")
	fetch.series["ETH-USDT"] = seriesOf(2900, 3100)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.FetchErrors, "failed group counts every alarm it carried")
	require.Equal(t, 1, summary.Evaluated)
	require.Equal(t, 1, summary.Notified)

	require.Equal(t, 1, notify.count())
	require.Equal(t, ethID, notify.notes[0].Alarm.ID)

	// The failed group is untouched and retried next tick.
	pending, err := store.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestSweepConflictSkipsNotification(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	id, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 50000, alarm.DirectionAbove))
	require.NoError(t, err)
	fetch.series["BTC-USDT"] = seriesOf(50500)

	// A competing instance claims the row between our snapshot and CAS.
	store.beforeTransition = func(s *memStore, claimID int64) {
		row := s.rows[claimID]
		row.Status = alarm.StatusTriggered
		s.rows[claimID] = row
	}

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fired)
	require.Equal(t, 1, summary.Conflicts)
	require.Equal(t, 0, summary.Notified)
	require.Equal(t, 0, notify.count(), "输掉 CAS 的一方绝不能再发通知")

	row, err := store.GetAlarm(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, alarm.StatusTriggered, row.Status)
}

func TestSweepDeliveryFailureParksFailed(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{err: errors.New("smtp connect refused")}
	svc := newTestService(store, fetch, notify)

	id, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 50000, alarm.DirectionAbove))
	require.NoError(t, err)
	fetch.series["BTC-USDT"] = seriesOf(50500)

	summary, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fired)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 0, summary.Notified)

	row, err := store.GetAlarm(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, alarm.StatusFailed, row.Status)
	require.NotNil(t, row.LastError)
	require.Contains(t, *row.LastError, "smtp connect refused")
}

func TestConcurrentSweepsNotifyExactlyOnce(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	_, err := store.InsertAlarm(context.Background(), pendingPriceAlarm("BTC-USDT", 50000, alarm.DirectionAbove))
	require.NoError(t, err)
	fetch.series["BTC-USDT"] = seriesOf(50500)

	var wg sync.WaitGroup
	summaries := make([]TickSummary, 2)
	sweepErrs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summaries[i], sweepErrs[i] = svc.Sweep(context.Background())
		}(i)
	}
	wg.Wait()
	require.NoError(t, sweepErrs[0])
	require.NoError(t, sweepErrs[1])

	require.Equal(t, 1, notify.count(), "两个并发扫描也只能投递一次")
	require.Equal(t, 1, summaries[0].Notified+summaries[1].Notified)

	count, err := store.CountAlarms(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCleanupRemovesStaleTerminalRows(t *testing.T) {
	store := newMemStore()
	fetch := newStubFetcher()
	notify := &recordingNotifier{}
	svc := newTestService(store, fetch, notify)

	old := time.Now().UTC().Add(-31 * 24 * time.Hour)

	stale := pendingPriceAlarm("BTC-USDT", 1, alarm.DirectionAbove)
	stale.Status = alarm.StatusFailed
	stale.CreatedAt = old
	_, err := store.InsertAlarm(context.Background(), stale)
	require.NoError(t, err)

	staleTriggered := pendingPriceAlarm("ETH-USDT", 1, alarm.DirectionAbove)
	staleTriggered.Status = alarm.StatusTriggered
	staleTriggered.CreatedAt = old
	_, err = store.InsertAlarm(context.Background(), staleTriggered)
	require.NoError(t, err)

	// Fresh terminal row and an old pending row both survive.
	freshFailed := pendingPriceAlarm("SOL-USDT", 1, alarm.DirectionAbove)
	freshFailed.Status = alarm.StatusFailed
	_, err = store.InsertAlarm(context.Background(), freshFailed)
	require.NoError(t, err)

	oldPending := pendingPriceAlarm("XRP-USDT", 1, alarm.DirectionAbove)
	oldPending.CreatedAt = old
	_, err = store.InsertAlarm(context.Background(), oldPending)
	require.NoError(t, err)

	removed, err := svc.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	// Idempotent: a second pass finds nothing.
	removed, err = svc.Cleanup(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)

	count, err := store.CountAlarms(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
