// Package storage provides SQLite persistence for the hub's history tables.
package storage

import "time"

// MoistureReading is one sensor sample. Rows are append-only.
type MoistureReading struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	MoisturePercent float64   `json:"moisture"`
}

// WateringEvent records one completed pump run. Written exactly once, after
// the pump has physically stopped. Rows are append-only.
type WateringEvent struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"duration"`
	MoistureBefore  *float64  `json:"before"`
	MoistureAfter   *float64  `json:"after"`
	Mode            string    `json:"mode"`
	StopReason      string    `json:"stop_reason"`
}
