package engine

import (
	"log"
	"time"

	"github.com/bonsaihub/controller/internal/display"
	"github.com/bonsaihub/controller/internal/mqtt"
	"github.com/bonsaihub/controller/internal/storage"
)

// The monitor loop never cycles faster than this, whatever the configured
// read interval says.
const minReadInterval = 30 * time.Second

// monitorLoop drives the hub: read, log, display, and (maybe) water, forever
// until shutdown.
func (e *Engine) monitorLoop() {
	defer e.wg.Done()
	log.Println("Monitor loop started")

	for {
		e.runMonitorCycle()

		interval := time.Duration(e.ConfigSnapshot().SensorReadIntervalSeconds) * time.Second
		if interval < minReadInterval {
			interval = minReadInterval
		}

		select {
		case <-e.stopChan:
			return
		case <-time.After(interval):
		}
	}
}

// runMonitorCycle performs one pass: sample the sensor, append the reading,
// update the display, and evaluate the auto-watering gate.
func (e *Engine) runMonitorCycle() {
	cfg := e.ConfigSnapshot()

	// Moisture logging is always on, independent of the auto-watering
	// toggle.
	moisture, ok := e.sensor.Read()
	if ok {
		e.mu.Lock()
		e.currentMoisture = &moisture
		e.mu.Unlock()

		if _, err := e.db.InsertMoistureReading(&storage.MoistureReading{
			Timestamp:       time.Now(),
			MoisturePercent: moisture,
		}); err != nil {
			log.Printf("Failed to store moisture reading: %v", err)
		}
		e.met.Moisture.Set(moisture)
		log.Printf("Moisture: %.1f%%", moisture)
	} else {
		e.met.SensorErrorsTotal.Inc()
	}

	e.mu.Lock()
	m := e.currentMoisture
	pumpRunning := e.pump.Running
	lastWatered := ""
	if e.lastWatered != nil {
		lastWatered = *e.lastWatered
	}
	e.mu.Unlock()

	label := display.Derive(m, cfg.MoistureThresholdLow, cfg.MoistureThresholdHigh, pumpRunning)
	if cfg.OLEDEnabled {
		e.display.Show(display.Frame{
			Label:       label,
			Moisture:    m,
			AutoEnabled: cfg.AutoWateringEnabled,
			LastWatered: lastWatered,
		})
	}

	if err := e.pub.PublishStatus(mqtt.StatusPayload{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Moisture:    m,
		PumpRunning: pumpRunning,
		AutoEnabled: cfg.AutoWateringEnabled,
	}); err != nil {
		log.Printf("Failed to publish status: %v", err)
	}

	if m == nil || !cfg.AutoWateringEnabled {
		return
	}

	// The gate conditions are read under one lock acquisition so a manual
	// run starting mid-evaluation cannot slip past. StartPump's own
	// check-and-set stays authoritative either way.
	e.mu.Lock()
	idle := !e.pump.Running
	intervalOK := e.lastWaterTime.IsZero() ||
		time.Since(e.lastWaterTime) >= time.Duration(cfg.MinWaterIntervalSeconds)*time.Second
	e.mu.Unlock()

	needsWater := *m < cfg.MoistureThresholdLow
	if needsWater && intervalOK && idle {
		if ok, msg := e.StartPump(ModeAuto, cfg.WateringDurationSeconds); !ok {
			log.Printf("Auto watering skipped: %s", msg)
		}
	}
}
