package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		filePath := filepath.Join(migrationsDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	return nil
}

// InsertTelemetry inserts a durable telemetry record
func (db *DB) InsertTelemetry(ctx context.Context, record *TelemetryRecord) error {
	query := `
		INSERT INTO telemetry_records (
			device_name, temperature, humidity, oil_level,
			recorded_at, raw_payload, month_bucket, open_alerts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	return db.QueryRowContext(
		ctx,
		query,
		record.DeviceName,
		record.Temperature,
		record.Humidity,
		record.OilLevel,
		record.Timestamp,
		record.Raw,
		record.MonthBucket,
		record.OpenAlerts,
	).Scan(&record.ID)
}

// InsertAlarm inserts a durable alarm record
func (db *DB) InsertAlarm(ctx context.Context, record *AlarmRecord) error {
	query := `
		INSERT INTO alarm_records (
			alarm_id, device_id, alarm_value, is_active,
			created_at, updated_at, telemetry_key_id, root_cause_id,
			device_name, plant_name, raw_payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	return db.QueryRowContext(
		ctx,
		query,
		record.AlarmID,
		record.DeviceID,
		record.Value,
		record.Active,
		record.CreatedAt,
		record.UpdatedAt,
		record.TelemetryKeyID,
		record.RootCauseID,
		record.DeviceName,
		record.PlantName,
		record.Raw,
	).Scan(&record.ID)
}
