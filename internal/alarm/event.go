package alarm

import "time"

// Stable alarm code identifiers. Temperature/humidity codes map to numeric
// alarm id 14 downstream, oil-level codes to 15.
const (
	CodeTempHigh       = "TEMP_HIGH"
	CodeTempLow        = "TEMP_LOW"
	CodeHumHigh        = "HUM_HIGH"
	CodeHumLow         = "HUM_LOW"
	CodeOilEmpty       = "OIL_EMPTY"
	CodeOilCriticalLow = "OIL_CRITICAL_LOW"
	CodeOilLow         = "OIL_LOW"
	CodeOilHalf        = "OIL_HALF"

	// CodeOilRefill is an embedded device code meaning the tank was
	// refilled; it flows through like any threshold alarm.
	CodeOilRefill = "ALM_OIL_REFILL"

	// PassThroughPrefix marks embedded alert codes the engine recognizes.
	PassThroughPrefix = "ALM"
)

// Event is one triggered alarm condition. Immutable after creation; every
// event carries a non-empty code and device identifier.
type Event struct {
	Code        string
	Description string
	Value       float64
	Parameter   string
	RootCauseID string
	DeviceID    string
	Plant       string
	CreatedAt   time.Time
	Active      bool
	// Notify is false only for the half-capacity oil band, which is
	// recorded but does not page anyone.
	Notify bool
}

// Key identifies an alarm for rate limiting: (device, code).
type Key struct {
	DeviceID string
	Code     string
}
