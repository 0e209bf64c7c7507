// Package config holds the hub's runtime tunables. Defaults are compiled in,
// overrides are persisted as a single JSON file and merged on load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds every runtime tunable. The whole struct is persisted on each
// save; there is no partial-field API.
type Config struct {
	MoistureThresholdLow      float64 `json:"moisture_threshold_low"`
	MoistureThresholdHigh     float64 `json:"moisture_threshold_high"`
	WateringDurationSeconds   int     `json:"watering_duration_seconds"`
	MinWaterIntervalSeconds   int     `json:"min_water_interval_seconds"`
	SensorReadIntervalSeconds int     `json:"sensor_read_interval_seconds"`
	PumpMaxRuntimeSeconds     int     `json:"pump_max_runtime_seconds"`
	ManualMaxRuntimeSeconds   int     `json:"manual_max_runtime_seconds"`
	AutoWateringEnabled       bool    `json:"auto_watering_enabled"`
	OLEDEnabled               bool    `json:"oled_enabled"`

	// Home Assistant integration settings, persisted alongside the pump
	// tunables so the whole hub state lives in one file.
	HAEnabled      bool   `json:"ha_enabled"`
	HABaseURL      string `json:"ha_base_url"`
	HAToken        string `json:"ha_token"`
	HASwitchEntity string `json:"ha_switch_entity"`
	HALightEntity  string `json:"ha_light_entity"`

	// Pi-hole integration settings.
	PiholeEnabled        bool   `json:"pihole_enabled"`
	PiholeBaseURL        string `json:"pihole_base_url"`
	PiholeMode           string `json:"pihole_mode"` // auto | v6 | legacy
	PiholeVerifyTLS      bool   `json:"pihole_verify_tls"`
	PiholePassword       string `json:"pihole_password"`
	PiholeLegacyAPIToken string `json:"pihole_legacy_api_token"`
}

// Defaults returns the compiled-in configuration.
func Defaults() Config {
	return Config{
		MoistureThresholdLow:      35,
		MoistureThresholdHigh:     65,
		WateringDurationSeconds:   60,
		MinWaterIntervalSeconds:   28800,
		SensorReadIntervalSeconds: 300,
		PumpMaxRuntimeSeconds:     120,
		ManualMaxRuntimeSeconds:   30,
		AutoWateringEnabled:       true,
		OLEDEnabled:               true,
		HABaseURL:                 "http://homeassistant.local:8123",
		PiholeMode:                "auto",
	}
}

// Store loads and saves the persisted configuration file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns defaults merged with any persisted overrides. A missing file
// yields pure defaults. Unknown persisted keys are ignored; keys missing from
// the file keep their default values.
func (s *Store) Load() (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	// Unmarshal into the defaults: present keys overwrite, absent keys
	// keep defaults, unknown keys are dropped by encoding/json.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save persists the full snapshot. The write goes through a temp file and a
// rename so a crash mid-write never leaves a truncated config behind.
func (s *Store) Save(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

// updatableKeys are the fields a caller may change through ApplyUpdate.
// Anything else in the payload is silently dropped.
var updatableKeys = map[string]struct{}{
	"moisture_threshold_low":       {},
	"moisture_threshold_high":      {},
	"watering_duration_seconds":    {},
	"min_water_interval_seconds":   {},
	"sensor_read_interval_seconds": {},
	"pump_max_runtime_seconds":     {},
	"manual_max_runtime_seconds":   {},
	"auto_watering_enabled":        {},
}

// ApplyUpdate merges recognized keys from a partial update onto cfg and
// returns the result. Values arrive as decoded JSON (float64, bool). Numeric
// range and threshold ordering are the caller's responsibility; an inverted
// low/high pair is stored as given.
func ApplyUpdate(cfg Config, fields map[string]interface{}) Config {
	for key, value := range fields {
		if _, ok := updatableKeys[key]; !ok {
			continue
		}
		switch key {
		case "moisture_threshold_low":
			if v, ok := toFloat(value); ok {
				cfg.MoistureThresholdLow = v
			}
		case "moisture_threshold_high":
			if v, ok := toFloat(value); ok {
				cfg.MoistureThresholdHigh = v
			}
		case "watering_duration_seconds":
			if v, ok := toFloat(value); ok {
				cfg.WateringDurationSeconds = int(v)
			}
		case "min_water_interval_seconds":
			if v, ok := toFloat(value); ok {
				cfg.MinWaterIntervalSeconds = int(v)
			}
		case "sensor_read_interval_seconds":
			if v, ok := toFloat(value); ok {
				cfg.SensorReadIntervalSeconds = int(v)
			}
		case "pump_max_runtime_seconds":
			if v, ok := toFloat(value); ok {
				cfg.PumpMaxRuntimeSeconds = int(v)
			}
		case "manual_max_runtime_seconds":
			if v, ok := toFloat(value); ok {
				cfg.ManualMaxRuntimeSeconds = int(v)
			}
		case "auto_watering_enabled":
			if v, ok := value.(bool); ok {
				cfg.AutoWateringEnabled = v
			}
		}
	}
	return cfg
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
