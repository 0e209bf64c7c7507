//go:build linux

package hardware

import (
	"fmt"
	"log"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Relay output levels. The Waveshare board energizes on a LOW line.
const (
	relayOnLevel  = 0
	relayOffLevel = 1
)

// GPIORelay drives the pump relay through the Linux GPIO character device.
type GPIORelay struct {
	mu   sync.Mutex
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewGPIORelay opens the relay line as an output, de-energized.
func NewGPIORelay(pin int) (*GPIORelay, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(relayOffLevel))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &GPIORelay{chip: chip, line: line}, nil
}

// Set drives the relay line. Active-low: on means driving the line LOW.
func (r *GPIORelay) Set(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.line == nil {
		return
	}

	level := relayOffLevel
	if on {
		level = relayOnLevel
	}
	if err := r.line.SetValue(level); err != nil {
		log.Printf("Failed to set relay output: %v", err)
	}
}

// Ready reports whether the relay line was acquired.
func (r *GPIORelay) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.line != nil
}

// Close forces the relay off and releases the line and chip.
func (r *GPIORelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.line != nil {
		if err := r.line.SetValue(relayOffLevel); err != nil {
			errs = append(errs, fmt.Errorf("force relay off: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
		}
		r.line = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
