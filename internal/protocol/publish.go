package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlarmPublish is the real-time alarm payload pushed to dashboards.
type AlarmPublish struct {
	ID               string    `json:"id"`
	DeviceID         string    `json:"deviceId"`
	DeviceName       string    `json:"deviceName"`
	AlarmCode        string    `json:"alarmCode"`
	AlarmDescription string    `json:"alarmDescription"`
	AlarmValue       float64   `json:"alarmValue"`
	PlantName        string    `json:"plantName"`
	CreatedTimestamp time.Time `json:"createdTimestamp"`
	IsActive         bool      `json:"isActive"`
	TelemetryKeyID   string    `json:"telemetryKeyId"`
	AlarmRootCauseID string    `json:"alarmRootCauseId"`
}

// AlarmNotification is the message format for the outbound notification topic.
type AlarmNotification struct {
	Type             string    `json:"type"` // ALARM_TRIGGERED
	DeviceID         string    `json:"deviceId"`
	DeviceName       string    `json:"deviceName"`
	PlantName        string    `json:"plantName"`
	AlarmCode        string    `json:"alarmCode"`
	AlarmDescription string    `json:"alarmDescription"`
	AlarmValue       float64   `json:"alarmValue"`
	CreatedTimestamp time.Time `json:"createdTimestamp"`
}

const NotificationTypeTriggered = "ALARM_TRIGGERED"

// EncodeTelemetryPublish builds the real-time telemetry payload: the original
// normalized fields plus plantName, nothing else injected.
func EncodeTelemetryPublish(r *Reading, plantName string) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(r.Raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode reading: %w", err)
	}
	doc["plantName"] = plantName
	return json.Marshal(doc)
}

// EncodeAlarmPublish encodes an AlarmPublish to JSON
func EncodeAlarmPublish(alarm *AlarmPublish) ([]byte, error) {
	return json.Marshal(alarm)
}

// DecodeAlarmPublish decodes JSON to AlarmPublish
func DecodeAlarmPublish(data []byte) (*AlarmPublish, error) {
	var alarm AlarmPublish
	if err := json.Unmarshal(data, &alarm); err != nil {
		return nil, err
	}
	return &alarm, nil
}

// EncodeAlarmNotification encodes an AlarmNotification to JSON
func EncodeAlarmNotification(notification *AlarmNotification) ([]byte, error) {
	return json.Marshal(notification)
}

// DecodeAlarmNotification decodes JSON to AlarmNotification
func DecodeAlarmNotification(data []byte) (*AlarmNotification, error) {
	var notification AlarmNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		return nil, err
	}
	return &notification, nil
}
