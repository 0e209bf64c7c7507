package engine

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bonsaihub/controller/internal/mqtt"
	"github.com/bonsaihub/controller/internal/storage"
)

// StartPump requests a pump run. The check-and-set against the current run is
// atomic under the controller mutex, so concurrent callers cannot both win.
// On acceptance the run executes on its own goroutine and StartPump returns
// immediately.
func (e *Engine) StartPump(mode Mode, requestedSeconds int) (bool, string) {
	e.mu.Lock()

	if !e.relay.Ready() {
		e.mu.Unlock()
		return false, "Pump hardware unavailable"
	}
	if e.pump.Running {
		e.mu.Unlock()
		return false, "Pump already running"
	}

	cap := e.cfg.PumpMaxRuntimeSeconds
	if mode == ModeManual {
		cap = e.cfg.ManualMaxRuntimeSeconds
	}
	runSeconds := requestedSeconds
	if runSeconds > cap {
		runSeconds = cap
	}
	if runSeconds < 1 {
		runSeconds = 1
	}

	now := time.Now()
	e.pump = PumpRun{
		Running:   true,
		Mode:      mode,
		StartedAt: now,
		EndsAt:    now.Add(time.Duration(runSeconds) * time.Second),
	}
	moistureBefore := e.currentMoisture

	// A stop raised while idle must not kill this run on its first tick.
	e.stopRequested.Store(false)

	e.wg.Add(1)
	e.mu.Unlock()

	go e.runPump(mode, runSeconds, moistureBefore)
	return true, "Pump started"
}

// StopPump raises the stop signal observed by the run worker. Idempotent and
// a no-op when nothing is running; the signal is cleared by run teardown, not
// here.
func (e *Engine) StopPump() {
	e.stopRequested.Store(true)
}

// runPump is the run worker. It energizes the relay, polls for an exit
// condition, and always tears down through finishRun.
func (e *Engine) runPump(mode Mode, runSeconds int, moistureBefore *float64) {
	defer e.wg.Done()

	started := time.Now()
	deadline := started.Add(time.Duration(runSeconds) * time.Second)

	// Exits via the shutdown path keep this value.
	reason := StopShutdown
	defer func() { e.finishRun(mode, started, moistureBefore, reason) }()

	e.relay.Set(true)
	e.met.PumpRunning.Set(1)
	log.Printf("Pump %s start, target %ds", mode, runSeconds)

	for {
		select {
		case <-e.stopChan:
			return
		default:
		}

		if e.stopRequested.Load() {
			reason = StopManual
			return
		}
		if !time.Now().Before(deadline) {
			// A manual run hitting its cap was not operator-stopped;
			// report the safety timeout so the operator can tell.
			if mode == ModeManual {
				reason = StopSafetyTimeout
			} else {
				reason = StopCompleted
			}
			return
		}

		time.Sleep(pumpPollInterval)
	}
}

// finishRun is the guaranteed teardown: actuator off first, then the event
// record, then the state reset under the same mutex StartPump uses, so no new
// run can be accepted mid-teardown.
func (e *Engine) finishRun(mode Mode, started time.Time, moistureBefore *float64, reason StopReason) {
	e.relay.Set(false)
	e.met.PumpRunning.Set(0)

	elapsed := time.Since(started)
	elapsedSeconds := float64(elapsed.Round(100*time.Millisecond)) / float64(time.Second)

	// Best effort; the sensor may be gone.
	var moistureAfter *float64
	if v, ok := e.sensor.Read(); ok {
		moistureAfter = &v
	}

	event := &storage.WateringEvent{
		RunID:           uuid.NewString(),
		Timestamp:       time.Now(),
		DurationSeconds: elapsedSeconds,
		MoistureBefore:  moistureBefore,
		MoistureAfter:   moistureAfter,
		Mode:            string(mode),
		StopReason:      string(reason),
	}
	if _, err := e.db.InsertWateringEvent(event); err != nil {
		log.Printf("Failed to store watering event: %v", err)
	}

	e.met.PumpRunsTotal.WithLabelValues(string(mode)).Inc()
	e.met.PumpSecondsTotal.Add(elapsedSeconds)

	if err := e.pub.PublishWatering(mqtt.WateringPayload{
		RunID:      event.RunID,
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
		Duration:   elapsedSeconds,
		Before:     moistureBefore,
		After:      moistureAfter,
		Mode:       string(mode),
		StopReason: string(reason),
	}); err != nil {
		log.Printf("Failed to publish watering event: %v", err)
	}

	now := time.Now()
	watered := now.Format("15:04")

	e.mu.Lock()
	e.lastWatered = &watered
	e.lastWaterTime = now
	e.pump = PumpRun{Mode: ModeIdle, StopReason: reason}
	e.manualToggleOn = false
	e.stopRequested.Store(false)
	e.mu.Unlock()

	log.Printf("Pump stop (%s), ran %.1fs", reason, elapsedSeconds)
}
