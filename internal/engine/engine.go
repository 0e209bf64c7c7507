// Package engine provides the core logic for the hub: the pump control state
// machine and the monitor loop that drives automatic watering.
package engine

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bonsaihub/controller/internal/config"
	"github.com/bonsaihub/controller/internal/display"
	"github.com/bonsaihub/controller/internal/hardware"
	"github.com/bonsaihub/controller/internal/metrics"
	"github.com/bonsaihub/controller/internal/mqtt"
	"github.com/bonsaihub/controller/internal/storage"
)

// Mode identifies what started a pump run.
type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// StopReason is the terminal classification of a finished run.
type StopReason string

const (
	StopCompleted     StopReason = "completed"
	StopManual        StopReason = "manual_stop"
	StopSafetyTimeout StopReason = "safety_timeout"
	StopShutdown      StopReason = "shutdown"
)

// How often the run worker checks its exit conditions.
const pumpPollInterval = 100 * time.Millisecond

// PumpRun is the state of the current (or last) pump run. At most one run has
// Running=true at any time.
type PumpRun struct {
	Running    bool
	Mode       Mode
	StartedAt  time.Time
	EndsAt     time.Time
	StopReason StopReason
}

// Deps carries the engine's collaborators. Display, Publisher and Metrics may
// be nil; no-op implementations are substituted.
type Deps struct {
	Config    config.Config
	Store     *config.Store
	DB        *storage.DB
	Sensor    hardware.MoistureSensor
	Relay     hardware.PumpRelay
	Display   display.Display
	Publisher mqtt.Publisher
	Metrics   *metrics.Metrics
}

// Engine owns all mutable hub state. Every public operation takes the single
// controller mutex; internal helpers named *Locked assume it is held.
type Engine struct {
	mu  sync.Mutex
	cfg config.Config

	store *config.Store
	db    *storage.DB

	sensor  hardware.MoistureSensor
	relay   hardware.PumpRelay
	display display.Display
	pub     mqtt.Publisher
	met     *metrics.Metrics

	pump            PumpRun
	currentMoisture *float64
	lastWatered     *string
	lastWaterTime   time.Time
	manualToggleOn  bool

	stopRequested atomic.Bool
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// New creates an engine instance. It does not start the monitor loop.
func New(d Deps) *Engine {
	if d.Display == nil {
		d.Display = &display.LogDisplay{}
	}
	if d.Publisher == nil {
		d.Publisher = mqtt.NopPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	return &Engine{
		cfg:      d.Config,
		store:    d.Store,
		db:       d.DB,
		sensor:   d.Sensor,
		relay:    d.Relay,
		display:  d.Display,
		pub:      d.Publisher,
		met:      d.Metrics,
		pump:     PumpRun{Mode: ModeIdle},
		stopChan: make(chan struct{}),
	}
}

// Start launches the monitor loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.monitorLoop()
	log.Println("Engine started")
}

// Stop shuts the engine down: interrupts the monitor loop, requests a pump
// stop, waits for workers to tear down, then forces the actuator off and
// releases hardware. Safe to call once even if nothing is running.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		log.Println("Shutting down")
		close(e.stopChan)
		e.StopPump()
		e.wg.Wait()

		// Defense in depth: the run worker's teardown already turned the
		// relay off, but never trust a single path with the pump.
		e.relay.Set(false)
		if err := e.relay.Close(); err != nil {
			log.Printf("Error closing relay: %v", err)
		}
		if err := e.sensor.Close(); err != nil {
			log.Printf("Error closing sensor: %v", err)
		}
		e.display.Blank()
		if err := e.pub.Close(); err != nil {
			log.Printf("Error closing publisher: %v", err)
		}
		log.Println("Engine stopped")
	})
}

// ConfigSnapshot returns a consistent copy of the runtime configuration.
func (e *Engine) ConfigSnapshot() config.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Metrics returns the engine's collectors for the /metrics handler.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.met
}

// HardwareReady reports whether the pump relay is usable. The health
// endpoint distinguishes "controller up, GPIO unavailable" from "up".
func (e *Engine) HardwareReady() bool {
	return e.relay.Ready()
}

// PumpStatus is the pump part of a status snapshot.
type PumpStatus struct {
	Running          bool   `json:"running"`
	Mode             string `json:"mode"`
	RemainingSeconds int    `json:"remaining_seconds"`
	StopReason       string `json:"stop_reason"`
}

// Status is the full snapshot served to the dashboard.
type Status struct {
	Moisture       *float64      `json:"moisture"`
	LastWatered    *string       `json:"last_watered"`
	ManualToggleOn bool          `json:"manual_toggle_on"`
	Config         config.Config `json:"config"`
	OLEDEnabled    bool          `json:"oled_enabled"`
	Pump           PumpStatus    `json:"pump"`
}

// Status returns a consistent snapshot of the controller state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := 0
	if e.pump.Running {
		if r := time.Until(e.pump.EndsAt); r > 0 {
			remaining = int(r.Round(time.Second) / time.Second)
		}
	}

	return Status{
		Moisture:       e.currentMoisture,
		LastWatered:    e.lastWatered,
		ManualToggleOn: e.manualToggleOn,
		Config:         e.cfg,
		OLEDEnabled:    e.cfg.OLEDEnabled,
		Pump: PumpStatus{
			Running:          e.pump.Running,
			Mode:             string(e.pump.Mode),
			RemainingSeconds: remaining,
			StopReason:       string(e.pump.StopReason),
		},
	}
}

// UpdateConfig merges the recognized tunable keys onto the current config and
// persists the result. A persistence failure is returned to the caller but
// the in-memory state keeps the mutation (last write wins until restart).
func (e *Engine) UpdateConfig(fields map[string]interface{}) (config.Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = config.ApplyUpdate(e.cfg, fields)
	if err := e.store.Save(e.cfg); err != nil {
		return e.cfg, fmt.Errorf("persist config: %w", err)
	}
	return e.cfg, nil
}

// MutateConfig applies an arbitrary mutation under the controller lock and
// persists the result. Used for the integration settings the partial-update
// path does not expose.
func (e *Engine) MutateConfig(mutate func(*config.Config)) (config.Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mutate(&e.cfg)
	if err := e.store.Save(e.cfg); err != nil {
		return e.cfg, fmt.Errorf("persist config: %w", err)
	}
	return e.cfg, nil
}

// SetAutoMode flips the automatic-watering gate. Moisture logging continues
// regardless.
func (e *Engine) SetAutoMode(enabled bool) error {
	_, err := e.MutateConfig(func(c *config.Config) {
		c.AutoWateringEnabled = enabled
	})
	return err
}

// SetOLEDEnabled flips the display gate and blanks the display when turned
// off.
func (e *Engine) SetOLEDEnabled(enabled bool) error {
	_, err := e.MutateConfig(func(c *config.Config) {
		c.OLEDEnabled = enabled
	})
	if !enabled {
		e.display.Blank()
	}
	return err
}

// SetManualToggle maps the dashboard's manual switch onto pump operations.
// Turning it on starts a manual run capped at the manual maximum; turning it
// off requests a stop. The rejection reason is returned for the 409 path.
func (e *Engine) SetManualToggle(enabled bool) (bool, string) {
	if !enabled {
		e.StopPump()
		e.mu.Lock()
		e.manualToggleOn = false
		e.mu.Unlock()
		return true, "Manual pump stop requested."
	}

	e.mu.Lock()
	e.manualToggleOn = true
	seconds := e.cfg.ManualMaxRuntimeSeconds
	e.mu.Unlock()

	ok, msg := e.StartPump(ModeManual, seconds)
	if !ok {
		e.mu.Lock()
		e.manualToggleOn = false
		e.mu.Unlock()
		return false, msg
	}
	return true, fmt.Sprintf("Manual pump run started (max %ds).", seconds)
}

// RecentReadings returns moisture samples from the last N hours, oldest
// first.
func (e *Engine) RecentReadings(hours int) ([]*storage.MoistureReading, error) {
	if hours <= 0 {
		hours = 48
	}
	return e.db.ReadingsSince(time.Now().Add(-time.Duration(hours) * time.Hour))
}

// RecentWaterings returns the newest watering events, most recent first.
func (e *Engine) RecentWaterings(count int) ([]*storage.WateringEvent, error) {
	if count <= 0 {
		count = 20
	}
	return e.db.RecentWaterings(count)
}
