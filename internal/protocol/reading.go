package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrMalformed marks input that cannot be turned into a Reading. The batch
// handler skips the single event and continues.
var ErrMalformed = errors.New("malformed reading")

// Tracked health parameters. Only these participate in delta detection.
const (
	ParamTemperature = "temperature"
	ParamHumidity    = "humidity"
	ParamOilLevel    = "oilLevel"
)

// TrackedParams lists the health parameters in evaluation order.
var TrackedParams = []string{ParamTemperature, ParamHumidity, ParamOilLevel}

// Alert is an explicit alert embedded in the device payload.
type Alert struct {
	Code  string  `json:"code"`
	Desc  string  `json:"desc"`
	Value float64 `json:"value"`
}

// Reading is the normalized, immutable form of one raw device event. All
// field-name fallbacks and envelope unwrapping happen in NormalizeReading;
// business logic only ever sees this type.
type Reading struct {
	DeviceID   string
	Params     map[string]float64
	Alerts     []Alert
	AlertCode  string
	Sequence   int64
	EnqueuedAt time.Time
	Raw        json.RawMessage
}

// Param returns the value of a tracked parameter and whether it was present.
func (r *Reading) Param(name string) (float64, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// HasAlert reports whether the payload carried an explicit alert.
func (r *Reading) HasAlert() bool {
	return len(r.Alerts) > 0 || r.AlertCode != ""
}

// OpenAlerts counts the explicit alerts carried by the payload.
func (r *Reading) OpenAlerts() int {
	n := len(r.Alerts)
	if n == 0 && r.AlertCode != "" {
		n = 1
	}
	return n
}

// NormalizeReading parses a raw event into a Reading.
//
// Field precedence for the canonical device key: deviceId, then device, then
// device_id. A payload wrapped in an event.payload envelope is unwrapped
// before parsing, and normalizing it yields the same Reading as normalizing
// the inner payload directly.
func NormalizeReading(data []byte, enqueuedAt time.Time) (*Reading, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformed, err)
	}

	// Unwrap event.payload envelopes delivered by some gateways.
	if inner, ok := unwrapEnvelope(doc); ok {
		data = inner
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: invalid envelope payload: %v", ErrMalformed, err)
		}
	}

	deviceID := firstString(doc, "deviceId", "device", "device_id")
	if deviceID == "" {
		return nil, fmt.Errorf("%w: missing device identifier", ErrMalformed)
	}

	reading := &Reading{
		DeviceID:   deviceID,
		Params:     make(map[string]float64),
		EnqueuedAt: enqueuedAt,
		Raw:        append(json.RawMessage(nil), data...),
	}

	for _, param := range TrackedParams {
		raw, ok := doc[param]
		if !ok {
			continue
		}
		v, err := coerceFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrMalformed, param, err)
		}
		reading.Params[param] = v
	}

	if raw, ok := doc["alerts"]; ok {
		alerts, err := parseAlerts(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		reading.Alerts = alerts
	}
	if code, ok := doc["alert_code"].(string); ok {
		reading.AlertCode = code
	}

	if raw, ok := firstValue(doc, "msgCount", "sequence"); ok {
		seq, err := coerceFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: sequence: %v", ErrMalformed, err)
		}
		reading.Sequence = int64(seq)
	}

	return reading, nil
}

func unwrapEnvelope(doc map[string]interface{}) ([]byte, bool) {
	event, ok := doc["event"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	payload, ok := event["payload"].(string)
	if !ok {
		return nil, false
	}
	return []byte(payload), true
}

func firstString(doc map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := doc[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstValue(doc map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := doc[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// coerceFloat accepts JSON numbers and numeric strings; devices in the field
// report oilLevel as a quoted string on some firmware revisions.
func coerceFloat(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("unparsable numeric string %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}

func parseAlerts(raw interface{}) ([]Alert, error) {
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("alerts is not an array")
	}

	var alerts []Alert
	for _, entry := range entries {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("alert entry is not an object")
		}
		alert := Alert{}
		if code, ok := fields["code"].(string); ok {
			alert.Code = code
		}
		if desc, ok := fields["desc"].(string); ok {
			alert.Desc = desc
		}
		if v, ok := fields["value"]; ok {
			f, err := coerceFloat(v)
			if err != nil {
				return nil, fmt.Errorf("alert value: %w", err)
			}
			alert.Value = f
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}
