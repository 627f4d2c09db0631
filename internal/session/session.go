// SPDX-License-Identifier: MIT
// Package session tracks the lifecycle of one capture run: its planned
// duration, segment layout, and a cooperative stop flag shared between the
// control goroutine and the consumer.
package session

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle phase of a session.
type State uint32

const (
	Idle State = iota
	Negotiating
	Capturing
	Rotating
	Analyzing
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Negotiating:
		return "negotiating"
	case Capturing:
		return "capturing"
	case Rotating:
		return "rotating"
	case Analyzing:
		return "analyzing"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session describes one capture run. PlannedDuration of zero means run
// until stopped. State transitions and the stop flag are atomic so the
// producer, consumer, and signal handler can all consult them.
type Session struct {
	Start             time.Time
	PlannedDuration   time.Duration
	SegmentDuration   time.Duration
	segmentsCompleted atomic.Uint64
	state             atomic.Uint32
	stop              atomic.Bool
}

// New creates a session starting now.
func New(planned, segment time.Duration) *Session {
	return &Session{
		Start:           time.Now(),
		PlannedDuration: planned,
		SegmentDuration: segment,
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// SetState records a lifecycle transition.
func (s *Session) SetState(state State) {
	s.state.Store(uint32(state))
}

// Stop requests a cooperative shutdown. Idempotent.
func (s *Session) Stop() {
	s.stop.Store(true)
}

// Stopped reports whether a shutdown was requested.
func (s *Session) Stopped() bool {
	return s.stop.Load()
}

// SegmentCompleted increments the finished-segment counter and returns the
// new total.
func (s *Session) SegmentCompleted() uint64 {
	return s.segmentsCompleted.Add(1)
}

// SegmentsCompleted returns how many segments have been finalized.
func (s *Session) SegmentsCompleted() uint64 {
	return s.segmentsCompleted.Load()
}

// SegmentStart returns the nominal start time of segment idx: the session
// start advanced by idx whole segments. Timestamps derive from the sample
// stream layout, not from when the file happened to be opened.
func (s *Session) SegmentStart(idx int) time.Time {
	return s.Start.Add(time.Duration(idx) * s.SegmentDuration)
}
