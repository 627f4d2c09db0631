// SPDX-License-Identifier: MIT
/*
Package audio implements the capture side of the monitoring pipeline:

- PortAudio device enumeration and stream negotiation with fallback
- A producer that packages capture callbacks into owned sample blocks
- The bounded FIFO queue between the capture and consumer goroutines

The queue is the only structure shared between the two long-lived
goroutines of a session; everything else is confined to its owner.
*/
package audio

// Block is one capture delivery: an owned buffer of interleaved float32
// samples plus the stream geometry and an arrival sequence number.
// Ownership transfers fully on enqueue; the producer never aliases a
// block it has pushed.
type Block struct {
	Samples    []float32
	Channels   int
	SampleRate float64
	Seq        uint64
}

// EOS reports whether the block is the end-of-stream sentinel pushed by the
// producer when capture stops or fails.
func (b Block) EOS() bool {
	return b.Samples == nil
}

// Frames returns the number of sample frames in the block.
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// sentinel returns the end-of-stream marker carrying the next sequence
// number so consumers can account for every delivery.
func sentinel(seq uint64) Block {
	return Block{Seq: seq}
}

// StreamConfig is the negotiated capture geometry. Immutable once a stream
// is opened; changing any field requires tearing the stream down and
// renegotiating.
type StreamConfig struct {
	DeviceID        int
	DeviceName      string
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}
