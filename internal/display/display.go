// Package display defines the status display collaborator. The monitor loop
// pushes a small status frame each cycle; what renders it (OLED, log line) is
// an implementation detail behind the Display interface.
package display

import (
	"fmt"
	"log"
)

// Label classifies the current moisture against the configured thresholds.
type Label string

const (
	LabelDry  Label = "DRY"
	LabelWet  Label = "WET"
	LabelOK   Label = "OK"
	LabelWait Label = "WAIT" // no reading yet
	LabelPump Label = "PUMP" // a run is active, overrides everything
)

// Frame is one status update for the display.
type Frame struct {
	Label       Label
	Moisture    *float64
	AutoEnabled bool
	LastWatered string
}

// Display receives status frames from the monitor loop.
type Display interface {
	// Show renders a frame. Must never block the monitor loop for long and
	// must swallow hardware errors.
	Show(f Frame)

	// Blank clears the display on shutdown or when disabled.
	Blank()
}

// Derive computes the status label from a moisture reading and thresholds.
// Order matters with an inverted threshold pair: the low comparison wins, as
// it always has.
func Derive(moisture *float64, low, high float64, pumpRunning bool) Label {
	if pumpRunning {
		return LabelPump
	}
	if moisture == nil {
		return LabelWait
	}
	switch {
	case *moisture < low:
		return LabelDry
	case *moisture > high:
		return LabelWet
	default:
		return LabelOK
	}
}

// LogDisplay writes status transitions to the process log. It is the default
// collaborator when no OLED is attached.
type LogDisplay struct {
	last Label
}

func (d *LogDisplay) Show(f Frame) {
	if f.Label == d.last {
		return
	}
	d.last = f.Label
	moisture := "--"
	if f.Moisture != nil {
		moisture = fmt.Sprintf("%.1f%%", *f.Moisture)
	}
	log.Printf("Status %s, moisture %s", f.Label, moisture)
}

func (d *LogDisplay) Blank() {
	d.last = ""
}
