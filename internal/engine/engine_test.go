package engine

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bonsaihub/controller/internal/config"
	"github.com/bonsaihub/controller/internal/hardware"
	"github.com/bonsaihub/controller/internal/mqtt"
	"github.com/bonsaihub/controller/internal/storage"
)

// testConfig returns a config tuned for fast tests: one-second runs and caps
// small enough that nothing sleeps for long.
func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.WateringDurationSeconds = 1
	cfg.PumpMaxRuntimeSeconds = 2
	cfg.ManualMaxRuntimeSeconds = 1
	cfg.MinWaterIntervalSeconds = 3600
	cfg.AutoWateringEnabled = true
	return cfg
}

type testRig struct {
	engine *Engine
	sensor *hardware.FakeSensor
	relay  *hardware.FakeRelay
	pub    *mqtt.FakePublisher
	db     *storage.DB
}

func newTestRig(t *testing.T, cfg config.Config, readings ...float64) *testRig {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sensor := hardware.NewFakeSensor(readings...)
	relay := &hardware.FakeRelay{}
	pub := &mqtt.FakePublisher{}

	eng := New(Deps{
		Config:    cfg,
		Store:     config.NewStore(filepath.Join(dir, "config.json")),
		DB:        db,
		Sensor:    sensor,
		Relay:     relay,
		Publisher: pub,
	})

	return &testRig{engine: eng, sensor: sensor, relay: relay, pub: pub, db: db}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}

func (r *testRig) waitForRunFinished(t *testing.T, want int) {
	t.Helper()
	waitFor(t, 5*time.Second, func() bool {
		return r.pub.WateringCount() >= want && !r.engine.Status().Pump.Running
	}, "pump run to finish")
}

func TestConcurrentStartsSingleWinner(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, _ := rig.engine.StartPump(ModeManual, 1)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range results {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("Expected exactly one start to win, got %d", winners)
	}

	rig.waitForRunFinished(t, 1)

	events, err := rig.db.RecentWaterings(10)
	if err != nil {
		t.Fatalf("Failed to read watering events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected one watering event, got %d", len(events))
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.PumpMaxRuntimeSeconds = 5
	rig := newTestRig(t, cfg, 50)

	if ok, _ := rig.engine.StartPump(ModeAuto, 5); !ok {
		t.Fatal("First start should be accepted")
	}
	if ok, msg := rig.engine.StartPump(ModeAuto, 5); ok {
		t.Fatal("Second start should be rejected while running")
	} else if msg != "Pump already running" {
		t.Fatalf("Unexpected rejection message: %q", msg)
	}

	rig.engine.StopPump()
	rig.waitForRunFinished(t, 1)
}

func TestStartRejectedWhenRelayNotReady(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)
	rig.relay.NotReady = true

	if ok, msg := rig.engine.StartPump(ModeManual, 1); ok {
		t.Fatal("Start should be rejected with unavailable hardware")
	} else if msg != "Pump hardware unavailable" {
		t.Fatalf("Unexpected rejection message: %q", msg)
	}
}

func TestRuntimeClampedToCap(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)

	// Manual cap is 1s in the test config; ask for far more.
	ok, _ := rig.engine.StartPump(ModeManual, 9999)
	if !ok {
		t.Fatal("Start should be accepted")
	}
	if remaining := rig.engine.Status().Pump.RemainingSeconds; remaining > 1 {
		t.Fatalf("Remaining %ds exceeds the manual cap", remaining)
	}

	rig.waitForRunFinished(t, 1)

	events, err := rig.db.RecentWaterings(1)
	if err != nil {
		t.Fatalf("Failed to read watering events: %v", err)
	}
	if events[0].StopReason != string(StopSafetyTimeout) {
		t.Fatalf("Manual run hitting its cap should report %s, got %s",
			StopSafetyTimeout, events[0].StopReason)
	}
	if events[0].DurationSeconds > 1.5 {
		t.Fatalf("Run lasted %.1fs despite a 1s cap", events[0].DurationSeconds)
	}
}

func TestAutoRunCompletes(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)

	if ok, _ := rig.engine.StartPump(ModeAuto, 1); !ok {
		t.Fatal("Start should be accepted")
	}
	rig.waitForRunFinished(t, 1)

	events, _ := rig.db.RecentWaterings(1)
	if events[0].StopReason != string(StopCompleted) {
		t.Fatalf("Expected stop reason %s, got %s", StopCompleted, events[0].StopReason)
	}
	if events[0].Mode != string(ModeAuto) {
		t.Fatalf("Expected mode %s, got %s", ModeAuto, events[0].Mode)
	}
}

func TestManualStopReason(t *testing.T) {
	cfg := testConfig()
	cfg.ManualMaxRuntimeSeconds = 10
	rig := newTestRig(t, cfg, 50)

	if ok, _ := rig.engine.StartPump(ModeManual, 10); !ok {
		t.Fatal("Start should be accepted")
	}
	time.Sleep(300 * time.Millisecond)
	rig.engine.StopPump()
	rig.waitForRunFinished(t, 1)

	events, _ := rig.db.RecentWaterings(1)
	if events[0].StopReason != string(StopManual) {
		t.Fatalf("Expected stop reason %s, got %s", StopManual, events[0].StopReason)
	}
}

func TestShutdownStopsRunningPump(t *testing.T) {
	cfg := testConfig()
	cfg.PumpMaxRuntimeSeconds = 30
	rig := newTestRig(t, cfg, 50)

	if ok, _ := rig.engine.StartPump(ModeAuto, 30); !ok {
		t.Fatal("Start should be accepted")
	}
	time.Sleep(300 * time.Millisecond)
	rig.engine.Stop()

	if rig.relay.On() {
		t.Fatal("Relay must be off after shutdown")
	}
	if !rig.relay.Closed {
		t.Fatal("Relay must be released on shutdown")
	}

	events, _ := rig.db.RecentWaterings(1)
	if len(events) != 1 {
		t.Fatalf("Expected one watering event, got %d", len(events))
	}
	// Stop raises the stop signal before waiting, so the worker may
	// observe either exit path; both are acceptable shutdown outcomes.
	if r := events[0].StopReason; r != string(StopShutdown) && r != string(StopManual) {
		t.Fatalf("Unexpected shutdown stop reason %s", r)
	}
}

func TestRelayOffBeforeEventRecorded(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)

	if ok, _ := rig.engine.StartPump(ModeManual, 1); !ok {
		t.Fatal("Start should be accepted")
	}

	// The moment an event is observable the relay must already be off.
	waitFor(t, 5*time.Second, func() bool {
		events, err := rig.db.RecentWaterings(1)
		return err == nil && len(events) == 1
	}, "watering event to be recorded")
	if rig.relay.On() {
		t.Fatal("Relay still on after the watering event was recorded")
	}

	history := rig.relay.History()
	if len(history) < 2 || history[len(history)-1] {
		t.Fatalf("Relay history should end with off, got %v", history)
	}
}

func TestLoggingContinuesWithAutoDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AutoWateringEnabled = false
	rig := newTestRig(t, cfg, 10) // well below the low threshold

	rig.engine.runMonitorCycle()

	readings, err := rig.db.ReadingsSince(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Failed to read moisture samples: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("Expected the reading to be logged, got %d rows", len(readings))
	}
	if rig.engine.Status().Pump.Running {
		t.Fatal("Pump must not start with auto watering disabled")
	}
	if rig.pub.WateringCount() != 0 {
		t.Fatal("No watering should have been published")
	}
}

func TestAutoWateringStartsWhenDry(t *testing.T) {
	rig := newTestRig(t, testConfig(), 10)

	rig.engine.runMonitorCycle()
	rig.waitForRunFinished(t, 1)

	events, _ := rig.db.RecentWaterings(1)
	if events[0].Mode != string(ModeAuto) {
		t.Fatalf("Expected an auto run, got mode %s", events[0].Mode)
	}
	if events[0].MoistureBefore == nil || *events[0].MoistureBefore != 10 {
		t.Fatalf("Expected moisture before of 10, got %v", events[0].MoistureBefore)
	}
}

func TestAutoWateringThrottledByInterval(t *testing.T) {
	rig := newTestRig(t, testConfig(), 10)

	rig.engine.runMonitorCycle()
	rig.waitForRunFinished(t, 1)

	// Still dry, but the minimum interval has not elapsed.
	rig.engine.runMonitorCycle()
	time.Sleep(300 * time.Millisecond)

	if rig.pub.WateringCount() != 1 {
		t.Fatalf("Expected exactly one watering, got %d", rig.pub.WateringCount())
	}
	if rig.engine.Status().Pump.Running {
		t.Fatal("Second cycle must not start the pump before the interval elapses")
	}
}

func TestAutoWateringSkippedAboveThreshold(t *testing.T) {
	rig := newTestRig(t, testConfig(), 80)

	rig.engine.runMonitorCycle()
	time.Sleep(200 * time.Millisecond)

	if rig.pub.WateringCount() != 0 {
		t.Fatal("Wet soil must not trigger watering")
	}
}

func TestStopWhileIdleDoesNotAffectNextRun(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)

	rig.engine.StopPump()
	rig.engine.StopPump()

	if ok, _ := rig.engine.StartPump(ModeAuto, 1); !ok {
		t.Fatal("Start should be accepted after idle stops")
	}
	rig.waitForRunFinished(t, 1)

	events, _ := rig.db.RecentWaterings(1)
	if events[0].StopReason != string(StopCompleted) {
		t.Fatalf("Idle stop leaked into the next run: stop reason %s", events[0].StopReason)
	}
}

func TestManualToggleRoundTrip(t *testing.T) {
	cfg := testConfig()
	cfg.ManualMaxRuntimeSeconds = 10
	rig := newTestRig(t, cfg, 50)

	ok, _ := rig.engine.SetManualToggle(true)
	if !ok {
		t.Fatal("Toggle on should start a manual run")
	}
	st := rig.engine.Status()
	if !st.Pump.Running || st.Pump.Mode != string(ModeManual) {
		t.Fatalf("Expected a running manual pump, got %+v", st.Pump)
	}
	if !st.ManualToggleOn {
		t.Fatal("Toggle state should be on while the run is live")
	}

	time.Sleep(300 * time.Millisecond)
	rig.engine.SetManualToggle(false)
	rig.waitForRunFinished(t, 1)

	st = rig.engine.Status()
	if st.ManualToggleOn {
		t.Fatal("Toggle state should clear when the run ends")
	}

	events, _ := rig.db.RecentWaterings(1)
	if events[0].StopReason != string(StopManual) {
		t.Fatalf("Expected stop reason %s, got %s", StopManual, events[0].StopReason)
	}
}

func TestManualToggleRejectedWhileRunning(t *testing.T) {
	cfg := testConfig()
	cfg.PumpMaxRuntimeSeconds = 10
	rig := newTestRig(t, cfg, 50)

	if ok, _ := rig.engine.StartPump(ModeAuto, 10); !ok {
		t.Fatal("Start should be accepted")
	}

	if ok, _ := rig.engine.SetManualToggle(true); ok {
		t.Fatal("Toggle must be rejected while a run is live")
	}
	if rig.engine.Status().ManualToggleOn {
		t.Fatal("Rejected toggle must not stay latched on")
	}

	rig.engine.StopPump()
	rig.waitForRunFinished(t, 1)
}

func TestSensorFailureLeavesStateIntact(t *testing.T) {
	rig := newTestRig(t, testConfig(), 10)
	rig.sensor.SetUnavailable(true)

	rig.engine.runMonitorCycle()

	if rig.engine.Status().Moisture != nil {
		t.Fatal("No reading should be cached from a failed sensor")
	}
	readings, _ := rig.db.ReadingsSince(time.Now().Add(-time.Minute))
	if len(readings) != 0 {
		t.Fatalf("Failed reads must not be logged, got %d rows", len(readings))
	}
	if rig.engine.Status().Pump.Running {
		t.Fatal("Auto watering must not trigger without a reading")
	}

	// Sensor comes back: the cycle resumes normally.
	rig.sensor.SetUnavailable(false)
	rig.engine.runMonitorCycle()
	rig.waitForRunFinished(t, 1)

	if rig.pub.WateringCount() != 1 {
		t.Fatalf("Expected one watering after recovery, got %d", rig.pub.WateringCount())
	}
}

func TestUpdateConfigTakesEffect(t *testing.T) {
	rig := newTestRig(t, testConfig(), 10)

	cfg, err := rig.engine.UpdateConfig(map[string]interface{}{
		"auto_watering_enabled":  false,
		"moisture_threshold_low": 5.0,
	})
	if err != nil {
		t.Fatalf("Config update failed: %v", err)
	}
	if cfg.AutoWateringEnabled {
		t.Fatal("Auto mode should be off after the update")
	}
	if cfg.MoistureThresholdLow != 5.0 {
		t.Fatalf("Expected low threshold 5.0, got %v", cfg.MoistureThresholdLow)
	}

	rig.engine.runMonitorCycle()
	time.Sleep(200 * time.Millisecond)
	if rig.engine.Status().Pump.Running {
		t.Fatal("Disabled auto mode must gate the monitor cycle immediately")
	}
}

func TestStatusPublishedEachCycle(t *testing.T) {
	rig := newTestRig(t, testConfig(), 80)

	rig.engine.runMonitorCycle()
	rig.engine.runMonitorCycle()

	if got := rig.pub.StatusCount(); got != 2 {
		t.Fatalf("Expected two status publications, got %d", got)
	}
	last, _ := rig.pub.LastStatus()
	if last.Moisture == nil || *last.Moisture != 80 {
		t.Fatalf("Expected published moisture 80, got %v", last.Moisture)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rig := newTestRig(t, testConfig(), 50)
	rig.engine.Start()

	rig.engine.Stop()
	rig.engine.Stop()

	if !rig.sensor.Closed || !rig.relay.Closed {
		t.Fatal("Hardware must be released on shutdown")
	}
}
