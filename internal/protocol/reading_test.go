package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plantops/telemetry-pipeline/internal/protocol"
)

func TestNormalizeReading_Basic(t *testing.T) {
	now := time.Now()
	raw := []byte(`{"deviceId":"esp32_02","temperature":25,"humidity":50,"oilLevel":30,"msgCount":3}`)

	r, err := protocol.NormalizeReading(raw, now)
	require.NoError(t, err)
	require.Equal(t, "esp32_02", r.DeviceID)
	require.Equal(t, int64(3), r.Sequence)
	require.Equal(t, now, r.EnqueuedAt)

	temp, ok := r.Param(protocol.ParamTemperature)
	require.True(t, ok)
	require.Equal(t, 25.0, temp)

	oil, ok := r.Param(protocol.ParamOilLevel)
	require.True(t, ok)
	require.Equal(t, 30.0, oil)
}

func TestNormalizeReading_DeviceFieldPrecedence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"deviceId wins", `{"deviceId":"a","device":"b","device_id":"c"}`, "a"},
		{"device over device_id", `{"device":"b","device_id":"c"}`, "b"},
		{"device_id alone", `{"device_id":"c"}`, "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := protocol.NormalizeReading([]byte(tt.raw), time.Now())
			require.NoError(t, err)
			require.Equal(t, tt.want, r.DeviceID)
		})
	}
}

func TestNormalizeReading_NumericStrings(t *testing.T) {
	raw := []byte(`{"deviceId":"d1","temperature":"25.5","oilLevel":"12"}`)

	r, err := protocol.NormalizeReading(raw, time.Now())
	require.NoError(t, err)

	temp, _ := r.Param(protocol.ParamTemperature)
	require.Equal(t, 25.5, temp)
	oil, _ := r.Param(protocol.ParamOilLevel)
	require.Equal(t, 12.0, oil)
}

func TestNormalizeReading_EnvelopeRoundTrip(t *testing.T) {
	now := time.Now()
	inner := `{"deviceId":"esp32_01","temperature":21.5,"humidity":40,"msgCount":7}`

	envelope, err := json.Marshal(map[string]interface{}{
		"event": map[string]interface{}{"payload": inner},
	})
	require.NoError(t, err)

	wrapped, err := protocol.NormalizeReading(envelope, now)
	require.NoError(t, err)
	direct, err := protocol.NormalizeReading([]byte(inner), now)
	require.NoError(t, err)

	require.Equal(t, direct, wrapped)
}

func TestNormalizeReading_Alerts(t *testing.T) {
	raw := []byte(`{"device":"d1","alerts":[{"code":"ALM_OIL_REFILL","desc":"Tank refilled","value":95}]}`)

	r, err := protocol.NormalizeReading(raw, time.Now())
	require.NoError(t, err)
	require.True(t, r.HasAlert())
	require.Equal(t, 1, r.OpenAlerts())
	require.Equal(t, "ALM_OIL_REFILL", r.Alerts[0].Code)
	require.Equal(t, 95.0, r.Alerts[0].Value)
}

func TestNormalizeReading_AlertCodeOnly(t *testing.T) {
	raw := []byte(`{"device":"d1","alert_code":"ALM_CUSTOM"}`)

	r, err := protocol.NormalizeReading(raw, time.Now())
	require.NoError(t, err)
	require.True(t, r.HasAlert())
	require.Equal(t, 1, r.OpenAlerts())
	require.Equal(t, "ALM_CUSTOM", r.AlertCode)
}

func TestNormalizeReading_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid JSON", `{not json`},
		{"missing device", `{"temperature":25}`},
		{"unparsable numeric string", `{"device":"d1","temperature":"warm"}`},
		{"non-numeric parameter", `{"device":"d1","humidity":{"x":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := protocol.NormalizeReading([]byte(tt.raw), time.Now())
			require.Error(t, err)
			require.True(t, errors.Is(err, protocol.ErrMalformed))
		})
	}
}

func TestEncodeTelemetryPublish_InjectsPlantOnly(t *testing.T) {
	raw := []byte(`{"deviceId":"esp32_02","temperature":25,"msgCount":1}`)
	r, err := protocol.NormalizeReading(raw, time.Now())
	require.NoError(t, err)

	payload, err := protocol.EncodeTelemetryPublish(r, "Plant North")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &doc))
	require.Equal(t, "Plant North", doc["plantName"])
	require.Equal(t, "esp32_02", doc["deviceId"])
	require.Equal(t, 25.0, doc["temperature"])
	require.Len(t, doc, 4) // original three fields plus plantName
}
