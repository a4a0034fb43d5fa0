package database

import (
	"time"
)

// TelemetryRecord is the durable form of a full reading document. Written
// only when a relevant parameter changed or on first sighting.
type TelemetryRecord struct {
	ID          int64
	DeviceName  string
	Temperature *float64
	Humidity    *float64
	OilLevel    *float64
	Timestamp   time.Time
	Raw         []byte
	MonthBucket string // yyyy-MM category for partition-friendly queries
	OpenAlerts  int
}

// AlarmRecord is the durable form of an alarm event. Alarms are always
// stored, independent of the telemetry storage decision.
type AlarmRecord struct {
	ID             int64
	AlarmID        int // numeric code: temperature/humidity alarms 14, oil 15
	DeviceID       int // numeric device id from the static registry
	Value          float64
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	TelemetryKeyID string
	RootCauseID    string
	DeviceName     string
	PlantName      string
	Raw            []byte // full device JSON for audit
}

// MonthBucket formats the month category string for a timestamp.
func MonthBucket(t time.Time) string {
	return t.Format("2006-01")
}
