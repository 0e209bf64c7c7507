//go:build !linux

package hardware

import "errors"

// GPIORelay is not available on non-Linux platforms.
type GPIORelay struct{}

// NewGPIORelay returns an error on non-Linux platforms.
func NewGPIORelay(pin int) (*GPIORelay, error) {
	return nil, errors.New("hardware: gpio not supported on this platform (requires Linux)")
}

func (r *GPIORelay) Set(on bool) {}

func (r *GPIORelay) Ready() bool { return false }

func (r *GPIORelay) Close() error { return nil }

// SeesawSensor is not available on non-Linux platforms.
type SeesawSensor struct{}

// NewSeesawSensor returns a sensor that always reports unavailable.
func NewSeesawSensor(addr byte) *SeesawSensor {
	return &SeesawSensor{}
}

func (s *SeesawSensor) Read() (float64, bool) { return 0, false }

func (s *SeesawSensor) Close() error { return nil }
