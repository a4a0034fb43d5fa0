package alarm

import (
	"strings"
	"time"

	"github.com/plantops/telemetry-pipeline/internal/delta"
	"github.com/plantops/telemetry-pipeline/internal/protocol"
	"github.com/plantops/telemetry-pipeline/internal/tolerance"
)

// Fixed threshold bands. Bands for one parameter never overlap, so at most
// one fires per parameter per event; high thresholds are checked before low.
const (
	TempHighLimit = 50.0
	TempLowLimit  = 10.0
	HumHighLimit  = 80.0
	HumLowLimit   = 20.0

	OilEmptyLimit    = 0.0
	OilCriticalLimit = 10.0
	OilLowLimit      = 30.0
	OilHalfLimit     = 50.0
)

// Rules evaluates fixed threshold bands and embedded alert codes against a
// reading that already passed significance detection.
type Rules struct {
	tolerances *tolerance.Provider
}

func NewRules(tolerances *tolerance.Provider) *Rules {
	return &Rules{tolerances: tolerances}
}

// Evaluate produces zero or more alarm events for one significant reading.
func (r *Rules) Evaluate(reading *protocol.Reading, result delta.Result, plant string, now time.Time) []Event {
	var events []Event

	if v, ok := reading.Param(protocol.ParamTemperature); ok {
		if e := evaluateTemperature(v); e != nil {
			events = append(events, r.finish(*e, reading, plant, now))
		}
	}
	if v, ok := reading.Param(protocol.ParamHumidity); ok {
		if e := evaluateHumidity(v); e != nil {
			events = append(events, r.finish(*e, reading, plant, now))
		}
	}
	if v, ok := reading.Param(protocol.ParamOilLevel); ok {
		if r.oilChanged(reading, result, v) {
			if e := EvaluateOilLevel(v); e != nil {
				events = append(events, r.finish(*e, reading, plant, now))
			}
		}
	}

	if e := passThroughAlert(reading); e != nil {
		events = append(events, r.finish(*e, reading, plant, now))
	}

	return events
}

// oilChanged is the duplicate guard on oil alarms: the detector must have
// flagged the parameter, and the delta is re-checked against the current
// tolerance. An empty tank always passes.
func (r *Rules) oilChanged(reading *protocol.Reading, result delta.Result, value float64) bool {
	if !result.Changed(protocol.ParamOilLevel) {
		return false
	}
	if value == 0 {
		return true
	}
	diff, ok := result.Deltas[protocol.ParamOilLevel]
	if !ok {
		// First observation: no prior value, nothing to re-check.
		return false
	}
	threshold := r.tolerances.Resolve(reading.DeviceID, protocol.ParamOilLevel)
	return diff > threshold
}

func (r *Rules) finish(e Event, reading *protocol.Reading, plant string, now time.Time) Event {
	e.DeviceID = reading.DeviceID
	e.Plant = plant
	e.CreatedAt = now
	e.Active = true
	return e
}

func evaluateTemperature(value float64) *Event {
	switch {
	case value > TempHighLimit:
		return &Event{
			Code:        CodeTempHigh,
			Description: "Temperature above safe operating limit",
			Value:       value,
			Parameter:   protocol.ParamTemperature,
			Notify:      true,
		}
	case value < TempLowLimit:
		return &Event{
			Code:        CodeTempLow,
			Description: "Temperature below safe operating limit",
			Value:       value,
			Parameter:   protocol.ParamTemperature,
			Notify:      true,
		}
	}
	return nil
}

func evaluateHumidity(value float64) *Event {
	switch {
	case value > HumHighLimit:
		return &Event{
			Code:        CodeHumHigh,
			Description: "Humidity above safe operating limit",
			Value:       value,
			Parameter:   protocol.ParamHumidity,
			Notify:      true,
		}
	case value < HumLowLimit:
		return &Event{
			Code:        CodeHumLow,
			Description: "Humidity below safe operating limit",
			Value:       value,
			Parameter:   protocol.ParamHumidity,
			Notify:      true,
		}
	}
	return nil
}

// EvaluateOilLevel maps an oil level onto its severity band. Exported for the
// liveness reconciler, which routes placeholder readings through this band
// evaluation only.
func EvaluateOilLevel(value float64) *Event {
	switch {
	case value <= OilEmptyLimit:
		return &Event{
			Code:        CodeOilEmpty,
			Description: "Oil tank empty",
			Value:       value,
			Parameter:   protocol.ParamOilLevel,
			Notify:      true,
		}
	case value <= OilCriticalLimit:
		return &Event{
			Code:        CodeOilCriticalLow,
			Description: "Oil level critically low",
			Value:       value,
			Parameter:   protocol.ParamOilLevel,
			Notify:      true,
		}
	case value <= OilLowLimit:
		return &Event{
			Code:        CodeOilLow,
			Description: "Oil level low",
			Value:       value,
			Parameter:   protocol.ParamOilLevel,
			Notify:      true,
		}
	case value <= OilHalfLimit:
		return &Event{
			Code:        CodeOilHalf,
			Description: "Oil level at half capacity",
			Value:       value,
			Parameter:   protocol.ParamOilLevel,
			Notify:      false,
		}
	}
	return nil
}

// passThroughAlert turns an embedded alert with a recognized code prefix into
// an alarm event carrying the device's own code, description and value.
func passThroughAlert(reading *protocol.Reading) *Event {
	var code, desc string
	var value float64

	if len(reading.Alerts) > 0 {
		code = reading.Alerts[0].Code
		desc = reading.Alerts[0].Desc
		value = reading.Alerts[0].Value
	} else if reading.AlertCode != "" {
		code = reading.AlertCode
	}

	if code == "" || !strings.HasPrefix(code, PassThroughPrefix) {
		return nil
	}
	if desc == "" {
		desc = "Device reported alert " + code
	}

	return &Event{
		Code:        code,
		Description: desc,
		Value:       value,
		Parameter:   delta.AlertMarker,
		Notify:      true,
	}
}
