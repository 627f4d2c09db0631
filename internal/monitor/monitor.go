// SPDX-License-Identifier: MIT
/*
Package monitor runs the live analysis loop: it drains capture blocks from
the queue, accumulates fixed-length mono windows, analyzes each window for
per-band spectral peaks, and fans the results out to the database, the
alert log, and any live transport.

Sink failures never stop the loop. A monitoring session that dies because
a database write failed is worse than one with a gap in its log.
*/
package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"lfnmon/internal/analysis"
	"lfnmon/internal/audio"
	applog "lfnmon/internal/log"
	"lfnmon/internal/session"
	"lfnmon/internal/store"
	"lfnmon/internal/transport"
)

// MeasurementSink receives one measurement per band per window and one
// alert per threshold crossing. *store.Store satisfies it.
type MeasurementSink interface {
	RecordMeasurement(m store.Measurement) error
	RecordAlert(a store.Alert) error
}

// AlertLogger mirrors alerts to a secondary log. *store.AlertLog
// satisfies it.
type AlertLogger interface {
	Append(a store.Alert) error
}

// Update is the live payload broadcast after each analysis window.
type Update struct {
	Timestamp time.Time       `json:"timestamp"`
	Peaks     []analysis.Peak `json:"peaks"`
	Alerts    []store.Alert   `json:"alerts,omitempty"`
}

// Monitor consumes capture blocks and produces analysis results.
type Monitor struct {
	queue       *audio.Queue
	analyzer    *analysis.Analyzer
	sink        MeasurementSink
	alertLog    AlertLogger // optional
	trans       transport.Transport
	readTimeout time.Duration
	windowSecs  int
	summaryDir  string // optional per-window summary files

	now func() time.Time // seam for tests

	windows      atomic.Uint64
	alerts       atomic.Uint64
	sinkFailures atomic.Uint64

	// Accumulation state for the current window.
	mono       []float64
	sampleRate float64
}

// Options configures a Monitor beyond its required collaborators.
type Options struct {
	AlertLog    AlertLogger
	Transport   transport.Transport
	ReadTimeout time.Duration
	WindowSecs  int
	SummaryDir  string
}

// New creates a monitor reading from queue and writing to sink.
func New(queue *audio.Queue, analyzer *analysis.Analyzer, sink MeasurementSink, opts Options) *Monitor {
	if opts.Transport == nil {
		opts.Transport = transport.LoggingTransport{}
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WindowSecs <= 0 {
		opts.WindowSecs = 5
	}
	return &Monitor{
		queue:       queue,
		analyzer:    analyzer,
		sink:        sink,
		alertLog:    opts.AlertLog,
		trans:       opts.Transport,
		readTimeout: opts.ReadTimeout,
		windowSecs:  opts.WindowSecs,
		summaryDir:  opts.SummaryDir,
		now:         time.Now,
	}
}

// Windows reports how many analysis windows have completed.
func (m *Monitor) Windows() uint64 {
	return m.windows.Load()
}

// Alerts reports how many threshold crossings have fired.
func (m *Monitor) Alerts() uint64 {
	return m.alerts.Load()
}

// SinkFailures reports how many sink writes were dropped.
func (m *Monitor) SinkFailures() uint64 {
	return m.sinkFailures.Load()
}

// Run drains the queue until the end-of-stream sentinel arrives, the
// queue closes, or the session requests a stop. A read timeout is logged
// and survived; the producer may just be between buffers.
func (m *Monitor) Run(sess *session.Session) error {
	sess.SetState(session.Analyzing)
	for {
		block, err := m.queue.Pop(m.readTimeout)
		switch {
		case err == audio.ErrQueueTimeout:
			if sess.Stopped() {
				m.flush()
				return nil
			}
			applog.Warnf("Monitor: no audio for %v, still waiting", m.readTimeout)
			continue
		case err == audio.ErrQueueClosed:
			m.flush()
			return nil
		case err != nil:
			return fmt.Errorf("queue read: %w", err)
		}

		if block.EOS() {
			m.flush()
			return nil
		}
		m.ingest(block)
	}
}

// ingest downmixes one block into the accumulation window and analyzes
// whenever a full window is available.
func (m *Monitor) ingest(block audio.Block) {
	if block.SampleRate != m.sampleRate {
		// Rate change mid-stream invalidates the partial window.
		m.mono = m.mono[:0]
		m.sampleRate = block.SampleRate
	}
	m.mono = append(m.mono, downmix(block)...)

	windowLen := int(m.sampleRate) * m.windowSecs
	for windowLen > 0 && len(m.mono) >= windowLen {
		m.analyzeWindow(m.mono[:windowLen])
		m.mono = m.mono[:copy(m.mono, m.mono[windowLen:])]
	}
}

// flush analyzes whatever partial window remains, if it is long enough to
// be meaningful.
func (m *Monitor) flush() {
	if len(m.mono) >= m.analyzer.MinSamples() {
		m.analyzeWindow(m.mono)
	}
	m.mono = nil
}

func (m *Monitor) analyzeWindow(window []float64) {
	peaks := m.analyzer.Analyze(window, m.sampleRate)
	if peaks == nil {
		return
	}
	m.windows.Add(1)
	now := m.now()

	var fired []store.Alert
	for _, peak := range peaks {
		if err := m.sink.RecordMeasurement(store.Measurement{
			Timestamp: now,
			Band:      peak.Band,
			PeakFreq:  peak.Frequency,
			PeakLevel: peak.Level,
		}); err != nil {
			m.sinkFailures.Add(1)
			applog.Warnf("Monitor: measurement write failed: %v", err)
		}

		band, ok := m.bandFor(peak.Band)
		if !ok || !peak.Exceeds(band) {
			continue
		}
		alert := store.Alert{
			Timestamp: now,
			Band:      peak.Band,
			Frequency: peak.Frequency,
			Level:     peak.Level,
			Threshold: band.Threshold,
			Message: fmt.Sprintf("%s peak %.1f Hz at %.1f dB exceeds %.1f dB",
				peak.Band, peak.Frequency, peak.Level, band.Threshold),
		}
		fired = append(fired, alert)
		m.alerts.Add(1)
		applog.Warnf("ALERT: %s", alert.Message)

		if err := m.sink.RecordAlert(alert); err != nil {
			m.sinkFailures.Add(1)
			applog.Warnf("Monitor: alert write failed: %v", err)
		}
		if m.alertLog != nil {
			if err := m.alertLog.Append(alert); err != nil {
				m.sinkFailures.Add(1)
				applog.Warnf("Monitor: alert log append failed: %v", err)
			}
		}
	}

	if err := m.trans.Send(Update{Timestamp: now, Peaks: peaks, Alerts: fired}); err != nil {
		applog.Warnf("Monitor: live update failed: %v", err)
	}
	if m.summaryDir != "" {
		m.writeSummary(now, peaks, fired)
	}
}

func (m *Monitor) bandFor(name string) (analysis.Band, bool) {
	for _, b := range m.analyzer.Bands() {
		if b.Name == name {
			return b, true
		}
	}
	return analysis.Band{}, false
}

// writeSummary drops a small human-readable file per analysis window.
func (m *Monitor) writeSummary(now time.Time, peaks []analysis.Peak, fired []store.Alert) {
	path := filepath.Join(m.summaryDir, fmt.Sprintf("window_%s.txt", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		applog.Warnf("Monitor: summary write failed: %v", err)
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "window ending %s\n", now.Format(time.RFC3339))
	for _, p := range peaks {
		fmt.Fprintf(f, "%-12s %8.1f Hz %7.1f dB\n", p.Band, p.Frequency, p.Level)
	}
	for _, a := range fired {
		fmt.Fprintf(f, "ALERT: %s\n", a.Message)
	}
}

// downmix averages interleaved channels into mono float64 samples.
func downmix(block audio.Block) []float64 {
	frames := block.Frames()
	mono := make([]float64, frames)
	if block.Channels == 1 {
		for i, s := range block.Samples {
			mono[i] = float64(s)
		}
		return mono
	}
	for i := range frames {
		var sum float64
		for ch := range block.Channels {
			sum += float64(block.Samples[i*block.Channels+ch])
		}
		mono[i] = sum / float64(block.Channels)
	}
	return mono
}
