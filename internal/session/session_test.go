// SPDX-License-Identifier: MIT
package session

import (
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Negotiating, "negotiating"},
		{Capturing, "capturing"},
		{Rotating, "rotating"},
		{Analyzing, "analyzing"},
		{Stopping, "stopping"},
		{Failed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := New(time.Hour, 30*time.Minute)

	if s.State() != Idle {
		t.Errorf("initial state = %v, want idle", s.State())
	}
	s.SetState(Capturing)
	if s.State() != Capturing {
		t.Errorf("state = %v, want capturing", s.State())
	}

	if s.Stopped() {
		t.Error("new session reports stopped")
	}
	s.Stop()
	s.Stop() // idempotent
	if !s.Stopped() {
		t.Error("session does not report stopped after Stop")
	}
}

func TestSegmentCounting(t *testing.T) {
	s := New(time.Hour, 30*time.Minute)

	if got := s.SegmentsCompleted(); got != 0 {
		t.Errorf("SegmentsCompleted() = %d, want 0", got)
	}
	if got := s.SegmentCompleted(); got != 1 {
		t.Errorf("SegmentCompleted() = %d, want 1", got)
	}
	if got := s.SegmentCompleted(); got != 2 {
		t.Errorf("SegmentCompleted() = %d, want 2", got)
	}
}

func TestSegmentStart(t *testing.T) {
	s := New(3*time.Hour, 30*time.Minute)

	for idx := range 6 {
		want := s.Start.Add(time.Duration(idx) * 30 * time.Minute)
		if got := s.SegmentStart(idx); !got.Equal(want) {
			t.Errorf("SegmentStart(%d) = %v, want %v", idx, got, want)
		}
	}

	// Consecutive segments are exactly contiguous.
	for idx := 1; idx < 6; idx++ {
		gap := s.SegmentStart(idx).Sub(s.SegmentStart(idx - 1))
		if gap != 30*time.Minute {
			t.Errorf("gap between segments %d and %d = %v, want 30m", idx-1, idx, gap)
		}
	}
}
