//go:build linux

package hardware

import (
	"log"
	"sync"
	"time"

	"github.com/reef-pi/rpi/i2c"
)

// Seesaw capacitive touch read command (module base, function address).
var seesawMoistureCmd = []byte{0x0F, 0x10}

// How long the seesaw firmware needs before the conversion result is valid.
const seesawReadDelay = 5 * time.Millisecond

// SeesawSensor reads the Adafruit STEMMA soil sensor over I2C. The bus handle
// is acquired lazily and dropped on any communication failure, so a
// disconnected sensor recovers on a later read without restarting the hub.
type SeesawSensor struct {
	mu   sync.Mutex
	addr byte
	bus  i2c.Bus
}

// NewSeesawSensor creates a sensor gateway for the given I2C address. No bus
// access happens until the first Read.
func NewSeesawSensor(addr byte) *SeesawSensor {
	return &SeesawSensor{addr: addr}
}

// Read returns the soil moisture percentage, or false if the sensor is
// unavailable. The monitor loop's next cycle is the retry mechanism.
func (s *SeesawSensor) Read() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bus, err := s.acquireBus()
	if err != nil {
		return 0, false
	}

	if err := bus.WriteBytes(s.addr, seesawMoistureCmd); err != nil {
		s.dropBus()
		return 0, false
	}
	time.Sleep(seesawReadDelay)

	data, err := bus.ReadBytes(s.addr, 2)
	if err != nil || len(data) < 2 {
		s.dropBus()
		return 0, false
	}

	raw := int(data[0])<<8 | int(data[1])
	return ConvertMoisture(raw), true
}

// acquireBus returns the cached bus or attempts a fresh open. Callers hold mu.
func (s *SeesawSensor) acquireBus() (i2c.Bus, error) {
	if s.bus != nil {
		return s.bus, nil
	}
	bus, err := i2c.New()
	if err != nil {
		return nil, err
	}
	log.Printf("Soil sensor connected at 0x%02X", s.addr)
	s.bus = bus
	return bus, nil
}

// dropBus discards the handle so the next Read reopens it. Callers hold mu.
func (s *SeesawSensor) dropBus() {
	if s.bus != nil {
		s.bus.Close()
		s.bus = nil
	}
}

// Close releases the bus handle if one is held.
func (s *SeesawSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus == nil {
		return nil
	}
	err := s.bus.Close()
	s.bus = nil
	return err
}
