// SPDX-License-Identifier: MIT
/*
Package store persists analysis results to SQLite: one measurement row per
band per analysis window in live_logs, and one row per threshold crossing
in alerts. The schema evolves additively, so databases written by older
builds are upgraded in place by adding missing columns.
*/
package store

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is the timestamp text format used in both tables.
const timeLayout = "2006-01-02 15:04:05"

// Measurement is one band's peak for one analysis window.
type Measurement struct {
	ID        int64
	Timestamp time.Time
	Band      string
	PeakFreq  float64 // Hz
	PeakLevel float64 // dB
}

// Alert is one threshold crossing.
type Alert struct {
	ID        int64
	Timestamp time.Time
	Band      string
	Frequency float64 // Hz
	Level     float64 // dB
	Threshold float64 // dB
	Message   string
}

// Stats summarizes the database contents.
type Stats struct {
	Measurements int64
	Alerts       int64
	Bands        []BandStats
}

// BandStats aggregates the recorded peak levels for one band.
type BandStats struct {
	Band     string
	Count    int64
	AvgLevel float64 // dB
	MaxLevel float64 // dB
}

// liveLogColumns and alertColumns describe the current schema. Columns
// added here are created on open for databases that predate them.
var liveLogColumns = []columnDef{
	{"timestamp", "TEXT NOT NULL"},
	{"band", "TEXT NOT NULL"},
	{"peak_freq", "REAL"},
	{"peak_level", "REAL"},
}

var alertColumns = []columnDef{
	{"timestamp", "TEXT NOT NULL"},
	{"band", "TEXT NOT NULL"},
	{"freq", "REAL"},
	{"level", "REAL"},
	{"threshold", "REAL"},
	{"message", "TEXT"},
}

type columnDef struct {
	name string
	typ  string
}

// Store is the SQLite-backed sink for measurements and alerts. Writes
// that fail are counted rather than propagated as fatal; monitoring must
// not die because the disk hiccuped.
type Store struct {
	db            *sql.DB
	writeFailures atomic.Uint64
}

// Open opens (or creates) the database at path with WAL journaling and
// brings its schema up to date.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteFailures reports how many writes have been dropped.
func (s *Store) WriteFailures() uint64 {
	return s.writeFailures.Load()
}

func (s *Store) migrate() error {
	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS live_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			band TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			band TEXT NOT NULL
		)`,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	if err := s.ensureColumns("live_logs", liveLogColumns); err != nil {
		return err
	}
	return s.ensureColumns("alerts", alertColumns)
}

// ensureColumns adds any column from want that the table lacks. Existing
// columns are never altered or dropped.
func (s *Store) ensureColumns(table string, want []columnDef) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()

	have := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("scan %s column: %w", table, err)
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range want {
		if have[col.name] {
			continue
		}
		// ALTER TABLE cannot add a NOT NULL column without a default.
		typ := col.typ
		if typ == "TEXT NOT NULL" {
			typ = "TEXT NOT NULL DEFAULT ''"
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col.name, typ)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col.name, err)
		}
	}
	return nil
}

// RecordMeasurement inserts one band measurement. Failures are counted
// and returned, but callers typically log and continue.
func (s *Store) RecordMeasurement(m Measurement) error {
	_, err := s.db.Exec(
		`INSERT INTO live_logs (timestamp, band, peak_freq, peak_level) VALUES (?, ?, ?, ?)`,
		m.Timestamp.Format(timeLayout), m.Band, m.PeakFreq, m.PeakLevel,
	)
	if err != nil {
		s.writeFailures.Add(1)
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

// RecordAlert inserts one threshold crossing.
func (s *Store) RecordAlert(a Alert) error {
	_, err := s.db.Exec(
		`INSERT INTO alerts (timestamp, band, freq, level, threshold, message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.Timestamp.Format(timeLayout), a.Band, a.Frequency, a.Level, a.Threshold, a.Message,
	)
	if err != nil {
		s.writeFailures.Add(1)
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentMeasurements returns up to limit measurements, newest first.
// Numeric columns written by older builds in legacy encodings (float32
// blobs, decimal text) are decoded transparently; undecodable values
// surface as zero.
func (s *Store) RecentMeasurements(limit int) ([]Measurement, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, band, peak_freq, peak_level
		 FROM live_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer rows.Close()

	var out []Measurement
	for rows.Next() {
		var (
			m         Measurement
			ts        string
			freq, lvl any
		)
		if err := rows.Scan(&m.ID, &ts, &m.Band, &freq, &lvl); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		m.Timestamp, _ = time.ParseInLocation(timeLayout, ts, time.Local)
		m.PeakFreq, _ = decodeFloat(freq)
		m.PeakLevel, _ = decodeFloat(lvl)
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(limit int) ([]Alert, error) {
	rows, err := s.db.Query(
		`SELECT id, timestamp, band, freq, level, threshold, message
		 FROM alerts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var (
			a              Alert
			ts             string
			freq, lvl, thr any
			message        sql.NullString
		)
		if err := rows.Scan(&a.ID, &ts, &a.Band, &freq, &lvl, &thr, &message); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Timestamp, _ = time.ParseInLocation(timeLayout, ts, time.Local)
		a.Frequency, _ = decodeFloat(freq)
		a.Level, _ = decodeFloat(lvl)
		a.Threshold, _ = decodeFloat(thr)
		if message.Valid {
			a.Message = message.String
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns row counts for both tables plus per-band average and
// maximum peak levels across all recorded measurements.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM live_logs`).Scan(&st.Measurements); err != nil {
		return Stats{}, fmt.Errorf("count measurements: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&st.Alerts); err != nil {
		return Stats{}, fmt.Errorf("count alerts: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT band, COUNT(*), AVG(peak_level), MAX(peak_level)
		 FROM live_logs GROUP BY band ORDER BY band`)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate bands: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b        BandStats
			avg, max sql.NullFloat64
		)
		if err := rows.Scan(&b.Band, &b.Count, &avg, &max); err != nil {
			return Stats{}, fmt.Errorf("scan band stats: %w", err)
		}
		b.AvgLevel = avg.Float64
		b.MaxLevel = max.Float64
		st.Bands = append(st.Bands, b)
	}
	return st, rows.Err()
}
