// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	applog "lfnmon/internal/log"
)

// Producer states, stored atomically so the PortAudio callback thread and
// the control goroutine never race.
const (
	producerIdle uint32 = iota
	producerRunning
	producerStopped
	producerFailed
)

// Producer owns the capture stream. The PortAudio callback copies each
// buffer into a fresh Block and hands it to the queue; the callback never
// retains a reference to a pushed block.
type Producer struct {
	cfg    StreamConfig
	queue  *Queue
	stream *portaudio.Stream

	state     atomic.Uint32
	seq       atomic.Uint64
	overflows atomic.Uint64
}

// NewProducer creates a producer that captures with the negotiated stream
// configuration and publishes blocks onto queue.
func NewProducer(cfg StreamConfig, queue *Queue) *Producer {
	return &Producer{cfg: cfg, queue: queue}
}

// Start opens and starts the capture stream. It returns an error if the
// producer already ran or the device cannot be opened with the negotiated
// parameters.
func (p *Producer) Start() error {
	if !p.state.CompareAndSwap(producerIdle, producerRunning) {
		return fmt.Errorf("producer already started")
	}

	info, err := deviceInfo(p.cfg.DeviceID)
	if err != nil {
		p.state.Store(producerFailed)
		return err
	}

	latency := info.DefaultHighInputLatency
	if p.cfg.LowLatency {
		latency = info.DefaultLowInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: p.cfg.Channels,
			Latency:  latency,
		},
		SampleRate:      p.cfg.SampleRate,
		FramesPerBuffer: p.cfg.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, p.callback)
	if err != nil {
		p.state.Store(producerFailed)
		return fmt.Errorf("failed to open capture stream: %w", err)
	}
	p.stream = stream

	if err := p.stream.Start(); err != nil {
		p.stream.Close()
		p.state.Store(producerFailed)
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	applog.Infof("Producer: capturing from %q (#%d) at %.0f Hz, %d channel(s)",
		p.cfg.DeviceName, p.cfg.DeviceID, p.cfg.SampleRate, p.cfg.Channels)
	return nil
}

// Stop halts capture and signals end-of-stream so the consumer drains and
// exits. Stop never blocks on the queue: if the sentinel cannot be enqueued
// without waiting, the queue is closed instead, which ends the consumer the
// same way once the backlog drains. Safe to call once after a successful
// Start.
func (p *Producer) Stop() error {
	if !p.state.CompareAndSwap(producerRunning, producerStopped) {
		return nil
	}

	var err error
	if p.stream != nil {
		if stopErr := p.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop capture stream: %w", stopErr)
		}
		if closeErr := p.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close capture stream: %w", closeErr)
		}
		p.stream = nil
	}

	if pushErr := p.queue.TryPush(sentinel(p.seq.Add(1))); pushErr != nil {
		// Full (no consumer keeping up) or already closed. Closing delivers
		// the same end-of-stream signal without blocking this thread.
		p.queue.Close()
	}

	if n := p.overflows.Load(); n > 0 {
		applog.Warnf("Producer: %d input overflow(s) during capture", n)
	}
	return err
}

// Overflows reports how many callback invocations flagged an input overflow.
func (p *Producer) Overflows() uint64 {
	return p.overflows.Load()
}

// callback is the PortAudio capture callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - The only allocation is the block copy handed to the consumer
func (p *Producer) callback(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.process(in, flags&portaudio.InputOverflow != 0)
}

// process copies the callback buffer into an owned block and publishes it.
// Split from callback so tests can drive it without a device.
func (p *Producer) process(in []float32, overflow bool) {
	if p.state.Load() != producerRunning {
		return
	}
	if overflow {
		p.overflows.Add(1)
	}
	if len(in) == 0 {
		return
	}

	samples := make([]float32, len(in))
	copy(samples, in)

	block := Block{
		Samples:    samples,
		Channels:   p.cfg.Channels,
		SampleRate: p.cfg.SampleRate,
		Seq:        p.seq.Add(1),
	}
	if err := p.queue.Push(block); err != nil {
		applog.Warnf("Producer: dropping block %d: %v", block.Seq, err)
	}
}
