package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"financial-alarms/internal/alarm"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	alarmColumns = `id,
        asset_class,
        asset_symbol,
        alarm_type,
        params,
        email,
        status,
        last_check_at,
        last_error,
        created_at,
        updated_at`

	insertAlarmSQL = `INSERT INTO alarms (
        asset_class,
        asset_symbol,
        alarm_type,
        params,
        email,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id;`

	getAlarmSQL = `SELECT ` + alarmColumns + `
    FROM alarms
    WHERE id = $1;`

	listPendingSQL = `SELECT ` + alarmColumns + `
    FROM alarms
    WHERE status = 'pending'
    ORDER BY created_at;`

	listRecentSQL = `SELECT ` + alarmColumns + `
    FROM alarms
    ORDER BY created_at DESC
    LIMIT $1;`

	tryTransitionSQL = `UPDATE alarms
    SET status = $3, last_check_at = now(), updated_at = now()
    WHERE id = $1
      AND status = $2;`

	markCheckedSQL = `UPDATE alarms
    SET last_check_at = now(), last_error = $2, updated_at = now()
    WHERE id = $1;`

	deleteAlarmSQL = `DELETE FROM alarms WHERE id = $1;`

	sweepDeleteSQL = `DELETE FROM alarms
    WHERE status = ANY($1)
      AND created_at < $2;`

	countAlarmsSQL = `SELECT COUNT(*) FROM alarms;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlarmStore defines the persistence operations the engine relies on. All
// status mutation goes through TryTransition, a single-row atomic
// compare-and-set.
type AlarmStore interface {
	InsertAlarm(ctx context.Context, a alarm.Alarm) (int64, error)
	GetAlarm(ctx context.Context, id int64) (*alarm.Alarm, error)
	ListPending(ctx context.Context) ([]alarm.Alarm, error)
	ListRecent(ctx context.Context, limit int) ([]alarm.Alarm, error)
	TryTransition(ctx context.Context, id int64, from, to alarm.Status) (bool, error)
	MarkChecked(ctx context.Context, id int64, lastError *string) error
	DeleteAlarm(ctx context.Context, id int64) (bool, error)
	SweepDelete(ctx context.Context, statuses []alarm.Status, olderThan time.Time) (int64, error)
	CountAlarms(ctx context.Context) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers for coarse tick overlap
// protection.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL-backed alarm repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertAlarm persists a new alarm in pending state and returns its id.
func (s *Store) InsertAlarm(ctx context.Context, a alarm.Alarm) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	if err := a.Validate(); err != nil {
		return 0, fmt.Errorf("validate alarm: %w", err)
	}
	params, err := alarm.EncodeParams(a.Params)
	if err != nil {
		return 0, err
	}

	status := a.Status
	if status == "" {
		status = alarm.StatusPending
	}

	var id int64
	if err := pool.QueryRow(ctx, insertAlarmSQL,
		string(a.AssetClass),
		a.AssetSymbol,
		string(a.Type),
		params,
		a.Email,
		string(status),
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert alarm: %w", err)
	}
	return id, nil
}

// GetAlarm fetches one alarm by id, nil when absent.
func (s *Store) GetAlarm(ctx context.Context, id int64) (*alarm.Alarm, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getAlarmSQL, id)
	if queryErr != nil {
		return nil, fmt.Errorf("get alarm: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	a, scanErr := scanAlarm(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &a, nil
}

// ListPending returns the pending snapshot in chronological order.
func (s *Store) ListPending(ctx context.Context) ([]alarm.Alarm, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPendingSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list pending alarms: %w", queryErr)
	}
	defer rows.Close()

	alarms := make([]alarm.Alarm, 0)
	for rows.Next() {
		a, scanErr := scanAlarm(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alarms = append(alarms, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alarms, nil
}

// ListRecent returns the newest alarms regardless of status.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]alarm.Alarm, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alarms: %w", queryErr)
	}
	defer rows.Close()

	alarms := make([]alarm.Alarm, 0, limit)
	for rows.Next() {
		a, scanErr := scanAlarm(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alarms = append(alarms, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alarms, nil
}

// TryTransition atomically moves one alarm from one status to another.
// Returns false without error when the precondition no longer holds, which
// callers must treat as "handled elsewhere".
func (s *Store) TryTransition(ctx context.Context, id int64, from, to alarm.Status) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tag, execErr := pool.Exec(ctx, tryTransitionSQL, id, string(from), string(to))
	if execErr != nil {
		return false, fmt.Errorf("transition alarm %d %s->%s: %w", id, from, to, execErr)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkChecked refreshes bookkeeping columns without touching status.
func (s *Store) MarkChecked(ctx context.Context, id int64, lastError *string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var msg interface{}
	if lastError != nil {
		msg = *lastError
	}
	if _, execErr := pool.Exec(ctx, markCheckedSQL, id, msg); execErr != nil {
		return fmt.Errorf("mark alarm %d checked: %w", id, execErr)
	}
	return nil
}

// DeleteAlarm removes one alarm row, reporting whether it existed.
func (s *Store) DeleteAlarm(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	tag, execErr := pool.Exec(ctx, deleteAlarmSQL, id)
	if execErr != nil {
		return false, fmt.Errorf("delete alarm %d: %w", id, execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// SweepDelete removes every alarm in one of the given statuses created
// before the cutoff, in a single set-based statement.
func (s *Store) SweepDelete(ctx context.Context, statuses []alarm.Status, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	raw := make([]string, len(statuses))
	for i, status := range statuses {
		raw[i] = string(status)
	}

	tag, execErr := pool.Exec(ctx, sweepDeleteSQL, raw, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("sweep delete: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// CountAlarms counts stored alarms.
func (s *Store) CountAlarms(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAlarmsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count alarms: %w", scanErr)
	}
	return count, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// unlock best effort; the session drop releases it anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

var _ AlarmStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
