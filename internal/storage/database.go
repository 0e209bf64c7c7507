package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the database schema
func (db *DB) migrate() error {
	schema := `
	-- Moisture sensor samples
	CREATE TABLE IF NOT EXISTS moisture_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		moisture_percent REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_moisture_timestamp ON moisture_readings(timestamp);

	-- Completed pump runs
	CREATE TABLE IF NOT EXISTS watering_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		duration_seconds REAL NOT NULL,
		moisture_before REAL,
		moisture_after REAL,
		mode TEXT NOT NULL,
		stop_reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_watering_timestamp ON watering_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// --- Moisture Readings ---

// InsertMoistureReading appends a sensor sample
func (db *DB) InsertMoistureReading(r *MoistureReading) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO moisture_readings (timestamp, moisture_percent) VALUES (?, ?)",
		r.Timestamp, r.MoisturePercent)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ReadingsSince retrieves all samples newer than the cutoff, oldest first
func (db *DB) ReadingsSince(cutoff time.Time) ([]*MoistureReading, error) {
	rows, err := db.conn.Query(
		`SELECT id, timestamp, moisture_percent FROM moisture_readings
		 WHERE timestamp > ? ORDER BY timestamp`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []*MoistureReading
	for rows.Next() {
		r := &MoistureReading{}
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.MoisturePercent); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// --- Watering Events ---

// InsertWateringEvent appends a completed pump run
func (db *DB) InsertWateringEvent(e *WateringEvent) (int64, error) {
	query := `INSERT INTO watering_events
		(run_id, timestamp, duration_seconds, moisture_before, moisture_after, mode, stop_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := db.conn.Exec(query, e.RunID, e.Timestamp, e.DurationSeconds,
		nullable(e.MoistureBefore), nullable(e.MoistureAfter), e.Mode, e.StopReason)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentWaterings retrieves the newest events, most recent first
func (db *DB) RecentWaterings(limit int) ([]*WateringEvent, error) {
	query := `SELECT id, run_id, timestamp, duration_seconds, moisture_before, moisture_after, mode, stop_reason
		FROM watering_events ORDER BY timestamp DESC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*WateringEvent
	for rows.Next() {
		e := &WateringEvent{}
		var before, after sql.NullFloat64
		var reason sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &e.DurationSeconds,
			&before, &after, &e.Mode, &reason); err != nil {
			return nil, err
		}
		if before.Valid {
			v := before.Float64
			e.MoistureBefore = &v
		}
		if after.Valid {
			v := after.Float64
			e.MoistureAfter = &v
		}
		e.StopReason = reason.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
