package delta

import (
	"math"

	"github.com/plantops/telemetry-pipeline/internal/devstate"
	"github.com/plantops/telemetry-pipeline/internal/protocol"
	"github.com/plantops/telemetry-pipeline/internal/tolerance"
)

// AlertMarker is the ChangedParams entry recorded when an explicit alert
// forced significance. It is not one of the three health parameters and does
// not gate storage.
const AlertMarker = "alert"

// Result is the per-event significance verdict.
type Result struct {
	// Significant is the OR over all parameter checks and the alert check.
	// When false the caller stops all further processing for the event.
	Significant bool
	// RelevantChanged is true only if temperature, humidity or oilLevel
	// crossed its threshold (or was first observed). Gates durable storage.
	RelevantChanged bool
	// FirstSighting is true on the very first reading ever seen for the
	// device; storage is forced for it.
	FirstSighting bool
	ChangedParams map[string]struct{}
	// Deltas holds the absolute delta per changed tracked parameter.
	// First observations have no prior value and carry no delta, so
	// delta-gated downstream checks skip them.
	Deltas map[string]float64
}

func (r *Result) Changed(param string) bool {
	_, ok := r.ChangedParams[param]
	return ok
}

// Detector decides per-parameter and per-event significance against the
// device state store. Evaluate mutates device state atomically; it is the
// only writer of DeviceState.
type Detector struct {
	store      *devstate.Store
	tolerances *tolerance.Provider
}

func NewDetector(store *devstate.Store, tolerances *tolerance.Provider) *Detector {
	return &Detector{store: store, tolerances: tolerances}
}

// Evaluate judges one reading. The whole read-compare-write sequence runs
// under the store lock so concurrent batches cannot lose updates.
func (d *Detector) Evaluate(reading *protocol.Reading) Result {
	result := Result{
		ChangedParams: make(map[string]struct{}),
		Deltas:        make(map[string]float64),
	}

	d.store.Mutate(reading.DeviceID, func(state *devstate.DeviceState, first bool) {
		state.BeginEvent()
		result.FirstSighting = first

		for _, param := range protocol.TrackedParams {
			value, ok := reading.Param(param)
			if !ok {
				continue
			}

			// Power-on firmware defaults report zero on the first
			// message; don't treat that as real data. An empty oil
			// tank is real regardless.
			if value == 0 && reading.Sequence == 0 && param != protocol.ParamOilLevel {
				continue
			}

			old, seen := state.LastSeen[param]
			if !seen {
				result.Significant = true
				result.RelevantChanged = true
				result.ChangedParams[param] = struct{}{}
				state.LastSeen[param] = value
				continue
			}

			diff := math.Abs(value - old)
			threshold := d.tolerances.Resolve(reading.DeviceID, param)
			significant := diff > threshold ||
				(param == protocol.ParamOilLevel && value == 0)

			if significant {
				result.Significant = true
				result.RelevantChanged = true
				result.ChangedParams[param] = struct{}{}
				result.Deltas[param] = diff
			}

			// The cache always reflects the latest observation, even
			// when the event is otherwise suppressed.
			state.LastSeen[param] = value
		}

		// Explicit alerts always force significance, but they are not a
		// relevant parameter change and do not gate storage.
		if reading.HasAlert() {
			result.Significant = true
			result.ChangedParams[AlertMarker] = struct{}{}
		}

		state.ChangedThisEvent = result.ChangedParams

		if result.RelevantChanged || result.FirstSighting {
			for param, value := range reading.Params {
				state.LastStored[param] = value
			}
		}
	})

	return result
}
