package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	return &DB{raw}, mock
}

func TestInsertTelemetry(t *testing.T) {
	db, mock := newMockDB(t)

	temp := 25.0
	record := &TelemetryRecord{
		DeviceName:  "esp32_02",
		Temperature: &temp,
		Timestamp:   time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		Raw:         []byte(`{"deviceId":"esp32_02","temperature":25}`),
		MonthBucket: "2026-09",
		OpenAlerts:  0,
	}

	mock.ExpectQuery("INSERT INTO telemetry_records").
		WithArgs(record.DeviceName, record.Temperature, record.Humidity,
			record.OilLevel, record.Timestamp, record.Raw,
			record.MonthBucket, record.OpenAlerts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, db.InsertTelemetry(context.Background(), record))
	require.Equal(t, int64(42), record.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertAlarm(t *testing.T) {
	db, mock := newMockDB(t)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	record := &AlarmRecord{
		AlarmID:        15,
		DeviceID:       2,
		Value:          5,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
		TelemetryKeyID: "oilLevel",
		DeviceName:     "esp32_02",
		PlantName:      "Plant North",
		Raw:            []byte(`{"deviceId":"esp32_02","oilLevel":5}`),
	}

	mock.ExpectQuery("INSERT INTO alarm_records").
		WithArgs(record.AlarmID, record.DeviceID, record.Value, record.Active,
			record.CreatedAt, record.UpdatedAt, record.TelemetryKeyID,
			record.RootCauseID, record.DeviceName, record.PlantName, record.Raw).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, db.InsertAlarm(context.Background(), record))
	require.Equal(t, int64(7), record.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMonthBucket(t *testing.T) {
	require.Equal(t, "2026-09", MonthBucket(time.Date(2026, 9, 15, 3, 0, 0, 0, time.UTC)))
	require.Equal(t, "2025-01", MonthBucket(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}
