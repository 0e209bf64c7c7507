package hardware

import "sync"

// FakeSensor is a test double returning scripted moisture values.
type FakeSensor struct {
	mu sync.Mutex

	// Values contains scripted readings. Each Read consumes the next one;
	// when exhausted, the last value repeats.
	Values []float64

	// Unavailable, when true, makes Read report no reading.
	Unavailable bool

	index  int
	Closed bool
}

// NewFakeSensor creates a FakeSensor with the given readings.
func NewFakeSensor(values ...float64) *FakeSensor {
	return &FakeSensor{Values: values}
}

// Read returns the next scripted value.
func (f *FakeSensor) Read() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unavailable || len(f.Values) == 0 {
		return 0, false
	}

	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, true
}

// SetUnavailable toggles sensor availability mid-test.
func (f *FakeSensor) SetUnavailable(unavailable bool) {
	f.mu.Lock()
	f.Unavailable = unavailable
	f.mu.Unlock()
}

// Close marks the sensor as closed.
func (f *FakeSensor) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeRelay records output transitions for assertions.
type FakeRelay struct {
	mu sync.Mutex

	// NotReady simulates failed hardware initialization.
	NotReady bool

	on          bool
	Transitions []bool
	Closed      bool
}

// Set records the requested state. A no-op when the relay is not ready.
func (f *FakeRelay) Set(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.NotReady {
		return
	}
	f.on = on
	f.Transitions = append(f.Transitions, on)
}

// Ready reports the scripted readiness.
func (f *FakeRelay) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.NotReady
}

// On returns the current output state.
func (f *FakeRelay) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// History returns a copy of all recorded transitions.
func (f *FakeRelay) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.Transitions))
	copy(out, f.Transitions)
	return out
}

// Close forces the relay off and marks it closed.
func (f *FakeRelay) Close() error {
	f.mu.Lock()
	f.on = false
	f.Closed = true
	f.mu.Unlock()
	return nil
}
