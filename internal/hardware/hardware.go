// Package hardware provides the soil moisture sensor and pump relay gateways.
// Real implementations talk to the Pi's I2C bus and GPIO character device; the
// fake implementations allow testing without hardware.
package hardware

import "math"

// Pin and bus assignments (BCM numbering / I2C address)
const (
	// Relay CH1 on the Waveshare relay HAT
	RelayPin = 26

	// Adafruit STEMMA soil sensor (seesaw) I2C address
	SoilSensorAddr = 0x36
)

// Calibration reference points in raw capacitance units. These are fixed
// constants, not configuration.
const (
	dryReference = 600
	wetReference = 300
)

// MoistureSensor reads the soil moisture level.
type MoistureSensor interface {
	// Read returns the moisture percentage and whether a reading was
	// obtained. A communication failure yields (0, false) and the next
	// call attempts a fresh connection; there are no retries within a
	// single call.
	Read() (float64, bool)

	// Close releases the bus handle.
	Close() error
}

// PumpRelay drives the water pump through an active-low relay.
type PumpRelay interface {
	// Set energizes (on=true) or de-energizes the relay. Safe to call
	// redundantly. A no-op when the relay is not ready.
	Set(on bool)

	// Ready reports whether hardware initialization succeeded. When false,
	// pump operations must refuse to start.
	Ready() bool

	// Close forces the relay off and releases GPIO resources.
	Close() error
}

// ConvertMoisture maps a raw capacitance value onto 0-100%, clamped and
// rounded to one decimal place.
func ConvertMoisture(raw int) float64 {
	pct := float64(dryReference-raw) / float64(dryReference-wetReference) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*10) / 10
}
