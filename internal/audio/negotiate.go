// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gordonklaus/portaudio"

	"lfnmon/internal/config"
	applog "lfnmon/internal/log"
)

var (
	// ErrNoInputChannels means the selected device cannot capture at all.
	ErrNoInputChannels = errors.New("device has no input channels")

	// ErrHostConflict marks a host-API error that typically indicates a
	// transient driver conflict on a shared device; negotiation retries
	// alternate device entries with the same display name.
	ErrHostConflict = errors.New("host API conflict")
)

// rateTolerance is the near-equality window for deduplicating candidate
// sample rates and for deciding whether a substitution happened.
const rateTolerance = 1.0

// Attempt records one failed probe during negotiation.
type Attempt struct {
	DeviceID   int
	DeviceName string
	Rate       float64
	Err        error
}

// NegotiationError reports that every candidate (device, rate) combination
// failed, listing each attempt.
type NegotiationError struct {
	Attempts []Attempt
}

func (e *NegotiationError) Error() string {
	var sb strings.Builder
	sb.WriteString("stream negotiation failed; attempted:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&sb, " [%s (#%d) @ %.0f Hz: %v]", a.DeviceName, a.DeviceID, a.Rate, a.Err)
	}
	return sb.String()
}

// Host abstracts the audio host API for negotiation so tests can substitute
// fake device tables.
type Host interface {
	// Devices returns every host device, indexed by ID.
	Devices() ([]Device, error)
	// DefaultInput returns the system default input device.
	DefaultInput() (Device, error)
	// Probe validates a (device, rate, channels) triple by opening and
	// closing a trial stream. A driver-conflict failure wraps
	// ErrHostConflict.
	Probe(dev Device, sampleRate float64, channels int) error
}

// Negotiator selects a working (device, sample rate, channel count) triple
// before capture begins.
type Negotiator struct {
	host            Host
	systemRate      float64
	framesPerBuffer int
	lowLatency      bool
}

// NewNegotiator creates a negotiator over the given host. framesPerBuffer
// and lowLatency are carried into the resulting StreamConfig.
func NewNegotiator(host Host, framesPerBuffer int, lowLatency bool) *Negotiator {
	return &Negotiator{
		host:            host,
		systemRate:      config.DefaultSampleRate,
		framesPerBuffer: framesPerBuffer,
		lowLatency:      lowLatency,
	}
}

// Negotiate resolves the requested device (or the system default for a
// negative ID) and probes candidate sample rates in preference order:
// the requested rate, the system default, then the device's own default,
// deduplicated by near-equality. The first successful probe wins. If every
// candidate fails with a host-API conflict, alternate device entries
// sharing the same display name are retried before giving up.
func (n *Negotiator) Negotiate(deviceID int, requestedRate float64) (StreamConfig, error) {
	dev, err := n.resolveDevice(deviceID)
	if err != nil {
		return StreamConfig{}, err
	}

	if dev.MaxInputChannels == 0 {
		return StreamConfig{}, fmt.Errorf("device %q (#%d): %w", dev.Name, dev.ID, ErrNoInputChannels)
	}
	channels := min(dev.MaxInputChannels, config.MaxInputStreams)

	cfg, attempts := n.tryDevice(dev, channels, requestedRate)
	if attempts == nil {
		return cfg, nil
	}

	if errors.Is(attempts[len(attempts)-1].Err, ErrHostConflict) {
		alternates, err := n.sameNameAlternates(dev)
		if err != nil {
			applog.Warnf("Negotiator: could not enumerate alternate devices: %v", err)
		}
		for _, alt := range alternates {
			altChannels := min(alt.MaxInputChannels, config.MaxInputStreams)
			cfg, altAttempts := n.tryDevice(alt, altChannels, requestedRate)
			if altAttempts == nil {
				applog.Infof("Negotiator: switched to alternate device entry %q (#%d) to bypass host error",
					alt.Name, alt.ID)
				return cfg, nil
			}
			attempts = append(attempts, altAttempts...)
		}
	}

	return StreamConfig{}, &NegotiationError{Attempts: attempts}
}

// tryDevice probes each candidate rate against one device. On success the
// returned attempts slice is nil; otherwise it holds every failure.
func (n *Negotiator) tryDevice(dev Device, channels int, requestedRate float64) (StreamConfig, []Attempt) {
	var attempts []Attempt
	for _, rate := range rateCandidates(requestedRate, n.systemRate, dev.DefaultSampleRate) {
		if err := n.host.Probe(dev, rate, channels); err != nil {
			attempts = append(attempts, Attempt{
				DeviceID:   dev.ID,
				DeviceName: dev.Name,
				Rate:       rate,
				Err:        err,
			})
			continue
		}

		if requestedRate != 0 && !nearlyEqual(rate, requestedRate) {
			applog.Infof("Negotiator: requested sample rate %.0f Hz unsupported; using %.0f Hz instead",
				requestedRate, rate)
		} else if requestedRate == 0 && !nearlyEqual(rate, n.systemRate) {
			applog.Infof("Negotiator: adjusted sample rate to device default (%.0f Hz)", rate)
		}

		return StreamConfig{
			DeviceID:        dev.ID,
			DeviceName:      dev.Name,
			Channels:        channels,
			SampleRate:      rate,
			FramesPerBuffer: n.framesPerBuffer,
			LowLatency:      n.lowLatency,
		}, nil
	}
	return StreamConfig{}, attempts
}

func (n *Negotiator) resolveDevice(deviceID int) (Device, error) {
	if deviceID < 0 {
		return n.host.DefaultInput()
	}
	devices, err := n.host.Devices()
	if err != nil {
		return Device{}, err
	}
	if deviceID >= len(devices) {
		return Device{}, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	return devices[deviceID], nil
}

// sameNameAlternates returns input-capable devices that share the display
// name of dev but have a different ID (typically the same hardware exposed
// through another host API).
func (n *Negotiator) sameNameAlternates(dev Device) ([]Device, error) {
	devices, err := n.host.Devices()
	if err != nil {
		return nil, err
	}
	var alternates []Device
	for _, d := range devices {
		if d.ID != dev.ID && d.Name == dev.Name && d.MaxInputChannels > 0 {
			alternates = append(alternates, d)
		}
	}
	return alternates, nil
}

// rateCandidates builds the ordered candidate list, skipping a zero
// requested rate and deduplicating by near-equality.
func rateCandidates(requested, system, deviceDefault float64) []float64 {
	var rates []float64
	add := func(rate float64) {
		if rate <= 0 {
			return
		}
		for _, r := range rates {
			if nearlyEqual(r, rate) {
				return
			}
		}
		rates = append(rates, rate)
	}
	add(requested)
	add(system)
	add(deviceDefault)
	return rates
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < rateTolerance
}

// PortAudioHost implements Host against the real PortAudio library.
type PortAudioHost struct {
	FramesPerBuffer int
	LowLatency      bool
}

var _ Host = (*PortAudioHost)(nil)

// Devices implements Host.
func (h *PortAudioHost) Devices() ([]Device, error) {
	return HostDevices()
}

// DefaultInput implements Host.
func (h *PortAudioHost) DefaultInput() (Device, error) {
	info, err := paLibDefaultInputDeviceFunc()
	if err != nil {
		return Device{}, err
	}
	devices, err := HostDevices()
	if err != nil {
		return Device{}, err
	}
	for _, d := range devices {
		if d.Name == info.Name && d.MaxInputChannels == info.MaxInputChannels {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("default input device %q not found in device table", info.Name)
}

// Probe implements Host by opening, starting, and closing a short trial
// stream on the triple. Driver-conflict failures are wrapped with
// ErrHostConflict so the negotiator can retry alternate device entries.
func (h *PortAudioHost) Probe(dev Device, sampleRate float64, channels int) error {
	info, err := deviceInfo(dev.ID)
	if err != nil {
		return err
	}

	latency := info.DefaultHighInputLatency
	if h.LowLatency {
		latency = info.DefaultLowInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  latency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: h.FramesPerBuffer,
	}

	probeCallback := func(in []float32) {}
	if err := portaudio.IsFormatSupported(params, probeCallback); err != nil {
		return h.classify(err)
	}

	stream, err := portaudio.OpenStream(params, probeCallback)
	if err != nil {
		return h.classify(err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return h.classify(err)
	}
	if err := stream.Stop(); err != nil {
		return h.classify(err)
	}
	return nil
}

// classify maps PortAudio's unanticipated-host error onto ErrHostConflict.
func (h *PortAudioHost) classify(err error) error {
	var hostErr portaudio.UnanticipatedHostError
	if errors.As(err, &hostErr) {
		return fmt.Errorf("%w: %v", ErrHostConflict, err)
	}
	return err
}
