// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
)

// fakeHost implements Host with a static device table and a per-call
// probe function.
type fakeHost struct {
	devices      []Device
	defaultInput int
	probe        func(dev Device, rate float64, channels int) error
	probed       []Attempt
}

func (f *fakeHost) Devices() ([]Device, error) {
	return f.devices, nil
}

func (f *fakeHost) DefaultInput() (Device, error) {
	if f.defaultInput < 0 || f.defaultInput >= len(f.devices) {
		return Device{}, errors.New("no default input device")
	}
	return f.devices[f.defaultInput], nil
}

func (f *fakeHost) Probe(dev Device, rate float64, channels int) error {
	err := f.probe(dev, rate, channels)
	f.probed = append(f.probed, Attempt{DeviceID: dev.ID, DeviceName: dev.Name, Rate: rate, Err: err})
	return err
}

func TestNegotiateRequestedRateAccepted(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "USB Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error { return nil },
	}

	cfg, err := NewNegotiator(host, 512, false).Negotiate(0, 96000)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if cfg.SampleRate != 96000 {
		t.Errorf("SampleRate = %v, want 96000", cfg.SampleRate)
	}
	if cfg.Channels != 2 {
		t.Errorf("Channels = %d, want 2", cfg.Channels)
	}
	if cfg.FramesPerBuffer != 512 {
		t.Errorf("FramesPerBuffer = %d, want 512", cfg.FramesPerBuffer)
	}
	if len(host.probed) != 1 {
		t.Errorf("probe count = %d, want 1", len(host.probed))
	}
}

func TestNegotiateFallsBackToDeviceDefault(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "USB Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error {
			if rate != 48000 {
				return fmt.Errorf("rate %v unsupported", rate)
			}
			return nil
		},
	}

	cfg, err := NewNegotiator(host, 1024, false).Negotiate(0, 96000)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if cfg.SampleRate != 48000 {
		t.Errorf("SampleRate = %v, want 48000", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("Channels = %d, want 1 (mono device)", cfg.Channels)
	}

	// Requested rate, then the system default, then the device default.
	wantRates := []float64{96000, 44100, 48000}
	if len(host.probed) != len(wantRates) {
		t.Fatalf("probe count = %d, want %d", len(host.probed), len(wantRates))
	}
	for i, want := range wantRates {
		if host.probed[i].Rate != want {
			t.Errorf("probe[%d].Rate = %v, want %v", i, host.probed[i].Rate, want)
		}
	}
}

func TestNegotiateDeduplicatesNearEqualRates(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			// Device default within 1 Hz of the system default.
			{ID: 0, Name: "Mic", MaxInputChannels: 2, DefaultSampleRate: 44100.5},
		},
		probe: func(dev Device, rate float64, channels int) error {
			return errors.New("unsupported")
		},
	}

	_, err := NewNegotiator(host, 1024, false).Negotiate(0, 44100)
	if err == nil {
		t.Fatal("Negotiate() error = nil, want failure")
	}
	if len(host.probed) != 1 {
		t.Errorf("probe count = %d, want 1 (44100 and 44100.5 deduplicated)", len(host.probed))
	}
}

func TestNegotiateZeroInputChannels(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "HDMI Out", MaxInputChannels: 0, MaxOutputChannels: 2, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error { return nil },
	}

	_, err := NewNegotiator(host, 1024, false).Negotiate(0, 44100)
	if !errors.Is(err, ErrNoInputChannels) {
		t.Errorf("Negotiate() error = %v, want ErrNoInputChannels", err)
	}
	if len(host.probed) != 0 {
		t.Errorf("probe count = %d, want 0", len(host.probed))
	}
}

func TestNegotiateChannelsCappedAtTwo(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "Interface", MaxInputChannels: 8, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error { return nil },
	}

	cfg, err := NewNegotiator(host, 1024, false).Negotiate(0, 48000)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if cfg.Channels != 2 {
		t.Errorf("Channels = %d, want 2 (capped)", cfg.Channels)
	}
}

func TestNegotiateDefaultDevice(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "Loopback", MaxInputChannels: 2, DefaultSampleRate: 48000},
			{ID: 1, Name: "Built-in Mic", MaxInputChannels: 2, DefaultSampleRate: 44100},
		},
		defaultInput: 1,
		probe:        func(dev Device, rate float64, channels int) error { return nil },
	}

	cfg, err := NewNegotiator(host, 1024, false).Negotiate(-1, 0)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if cfg.DeviceID != 1 {
		t.Errorf("DeviceID = %d, want 1 (default input)", cfg.DeviceID)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("SampleRate = %v, want system default 44100", cfg.SampleRate)
	}
}

func TestNegotiateInvalidDeviceID(t *testing.T) {
	host := &fakeHost{
		devices: []Device{{ID: 0, Name: "Mic", MaxInputChannels: 2, DefaultSampleRate: 48000}},
		probe:   func(dev Device, rate float64, channels int) error { return nil },
	}

	if _, err := NewNegotiator(host, 1024, false).Negotiate(7, 44100); err == nil {
		t.Error("Negotiate(7, ...) error = nil, want invalid device ID")
	}
}

func TestNegotiateHostConflictRetriesAlternate(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "Shared Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
			{ID: 3, Name: "Shared Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
			{ID: 4, Name: "Other Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error {
			if dev.ID == 0 {
				return fmt.Errorf("%w: device busy", ErrHostConflict)
			}
			return nil
		},
	}

	cfg, err := NewNegotiator(host, 1024, false).Negotiate(0, 48000)
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if cfg.DeviceID != 3 {
		t.Errorf("DeviceID = %d, want alternate entry 3", cfg.DeviceID)
	}
	if cfg.DeviceName != "Shared Mic" {
		t.Errorf("DeviceName = %q, want same name as original", cfg.DeviceName)
	}
}

func TestNegotiateHostConflictNoAlternate(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "Shared Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error {
			return fmt.Errorf("%w: device busy", ErrHostConflict)
		},
	}

	_, err := NewNegotiator(host, 1024, false).Negotiate(0, 48000)
	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("Negotiate() error = %T, want *NegotiationError", err)
	}
	// Requested and system default coincide; the device default differs.
	if len(negErr.Attempts) != 2 {
		t.Errorf("attempt count = %d, want 2", len(negErr.Attempts))
	}
	for _, a := range negErr.Attempts {
		if !errors.Is(a.Err, ErrHostConflict) {
			t.Errorf("attempt %+v does not wrap ErrHostConflict", a)
		}
	}
	if !strings.Contains(err.Error(), "Shared Mic") {
		t.Errorf("error %q should name the device", err.Error())
	}
}

func TestNegotiationErrorListsEveryAttempt(t *testing.T) {
	host := &fakeHost{
		devices: []Device{
			{ID: 0, Name: "Mic", MaxInputChannels: 2, DefaultSampleRate: 48000},
		},
		probe: func(dev Device, rate float64, channels int) error {
			return errors.New("format rejected")
		},
	}

	_, err := NewNegotiator(host, 1024, false).Negotiate(0, 96000)
	var negErr *NegotiationError
	if !errors.As(err, &negErr) {
		t.Fatalf("Negotiate() error = %T, want *NegotiationError", err)
	}
	if len(negErr.Attempts) != 3 {
		t.Fatalf("attempt count = %d, want 3", len(negErr.Attempts))
	}
	for _, want := range []string{"96000", "44100", "48000"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing rate %s", err.Error(), want)
		}
	}
}

func TestRateCandidates(t *testing.T) {
	tests := []struct {
		name                             string
		requested, system, deviceDefault float64
		want                             []float64
	}{
		{"all distinct", 96000, 44100, 48000, []float64{96000, 44100, 48000}},
		{"no request", 0, 44100, 48000, []float64{44100, 48000}},
		{"request matches system", 44100, 44100, 48000, []float64{44100, 48000}},
		{"device matches system", 48000, 44100, 44100, []float64{48000, 44100}},
		{"near equal collapses", 44100, 44100.9, 48000, []float64{44100, 48000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rateCandidates(tt.requested, tt.system, tt.deviceDefault)
			if len(got) != len(tt.want) {
				t.Fatalf("rateCandidates() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) >= 1 {
					t.Errorf("rateCandidates()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
