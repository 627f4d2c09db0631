// SPDX-License-Identifier: MIT
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// alertRecord is the on-disk JSON shape, one object per line.
type alertRecord struct {
	Timestamp string  `json:"timestamp"`
	Band      string  `json:"band"`
	Frequency float64 `json:"freq_hz"`
	Level     float64 `json:"level_db"`
	Threshold float64 `json:"threshold_db"`
	Message   string  `json:"message,omitempty"`
}

// AlertLog appends alerts to a JSON-lines file alongside the database, for
// consumption by tools that do not speak SQLite. Safe for concurrent use.
type AlertLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenAlertLog opens (or creates) the JSON alert log at path for appending.
func OpenAlertLog(path string) (*AlertLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open alert log: %w", err)
	}
	return &AlertLog{file: f}, nil
}

// Append writes one alert as a JSON line.
func (l *AlertLog) Append(a Alert) error {
	rec := alertRecord{
		Timestamp: a.Timestamp.Format(time.RFC3339),
		Band:      a.Band,
		Frequency: a.Frequency,
		Level:     a.Level,
		Threshold: a.Threshold,
		Message:   a.Message,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *AlertLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
