package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"financial-alarms/internal/alarm"
)

// scanAlarm maps one alarms row into the domain type, decoding the params
// document against the row's alarm type.
func scanAlarm(rows pgx.Rows) (alarm.Alarm, error) {
	var (
		id          int64
		classStr    string
		symbol      string
		typeStr     string
		paramsRaw   []byte
		email       string
		statusStr   string
		lastCheckAt sql.NullTime
		lastError   sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	if err := rows.Scan(
		&id,
		&classStr,
		&symbol,
		&typeStr,
		&paramsRaw,
		&email,
		&statusStr,
		&lastCheckAt,
		&lastError,
		&createdAt,
		&updatedAt,
	); err != nil {
		return alarm.Alarm{}, err
	}

	class, err := alarm.ParseAssetClass(classStr)
	if err != nil {
		return alarm.Alarm{}, fmt.Errorf("row %d: %w", id, err)
	}
	typ, err := alarm.ParseType(typeStr)
	if err != nil {
		return alarm.Alarm{}, fmt.Errorf("row %d: %w", id, err)
	}
	status, err := alarm.ParseStatus(statusStr)
	if err != nil {
		return alarm.Alarm{}, fmt.Errorf("row %d: %w", id, err)
	}
	params, err := alarm.DecodeParams(typ, paramsRaw)
	if err != nil {
		return alarm.Alarm{}, fmt.Errorf("row %d: %w", id, err)
	}

	a := alarm.Alarm{
		ID:          id,
		AssetClass:  class,
		AssetSymbol: symbol,
		Type:        typ,
		Params:      params,
		Email:       email,
		Status:      status,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	if lastCheckAt.Valid {
		t := lastCheckAt.Time
		a.LastCheckAt = &t
	}
	if lastError.Valid {
		msg := lastError.String
		a.LastError = &msg
	}
	return a, nil
}
