// SPDX-License-Identifier: MIT
/*
Package dsp implements the signal conditioning applied to recorded audio:
a second-order Butterworth high-pass filter that strips DC offset and
sub-audible rumble before samples are written to disk.

The filter runs as a biquad in direct form II transposed. Filter state is
carried across Process calls, so streaming a long signal through in chunks
produces exactly the same output as filtering it in one pass.
*/
package dsp

import (
	"fmt"
	"math"
)

// minFilterLen is the shortest signal worth filtering. Anything shorter
// passes through untouched; a second-order filter cannot settle on it.
const minFilterLen = 100

// HighPass is a second-order Butterworth high-pass biquad with one state
// pair per channel. Not safe for concurrent use.
type HighPass struct {
	b0, b1, b2 float64
	a1, a2     float64

	// Direct form II transposed delay elements, one pair per channel.
	z1, z2 []float64
}

// NewHighPass designs a second-order Butterworth high-pass filter with the
// given cutoff by bilinear transform of the analog prototype. channels
// determines how many independent state pairs are kept for interleaved
// input.
func NewHighPass(cutoffHz, sampleRate float64, channels int) (*HighPass, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %v", sampleRate)
	}
	if cutoffHz <= 0 || cutoffHz >= sampleRate/2 {
		return nil, fmt.Errorf("cutoff %v Hz out of range (0, %v)", cutoffHz, sampleRate/2)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	// Bilinear transform with frequency pre-warping. c is the warped
	// analog cutoff; the Butterworth prototype contributes the sqrt(2)
	// damping term.
	c := math.Tan(math.Pi * cutoffHz / sampleRate)
	a0 := 1 + math.Sqrt2*c + c*c

	return &HighPass{
		b0: 1 / a0,
		b1: -2 / a0,
		b2: 1 / a0,
		a1: 2 * (c*c - 1) / a0,
		a2: (1 - math.Sqrt2*c + c*c) / a0,
		z1: make([]float64, channels),
		z2: make([]float64, channels),
	}, nil
}

// Channels reports how many interleaved channels the filter processes.
func (f *HighPass) Channels() int {
	return len(f.z1)
}

// Reset clears the filter state, as if no samples had been processed.
func (f *HighPass) Reset() {
	for ch := range f.z1 {
		f.z1[ch] = 0
		f.z2[ch] = 0
	}
}

// Process filters interleaved samples in place, carrying state from any
// previous call. Sample counts that do not divide evenly by the channel
// count leave the trailing partial frame untouched.
func (f *HighPass) Process(samples []float32) {
	channels := len(f.z1)
	frames := len(samples) / channels
	for i := range frames {
		for ch := range channels {
			x := float64(samples[i*channels+ch])
			y := f.b0*x + f.z1[ch]
			f.z1[ch] = f.b1*x - f.a1*y + f.z2[ch]
			f.z2[ch] = f.b2*x - f.a2*y
			samples[i*channels+ch] = float32(y)
		}
	}
}

// ProcessChunked filters interleaved samples in place, walking the signal
// in chunks of at most chunkFrames frames. Because state carries across
// chunk boundaries the result is identical to a single Process call;
// chunking only bounds the working set. Signals shorter than the filter's
// minimum length pass through unmodified.
func (f *HighPass) ProcessChunked(samples []float32, chunkFrames int) {
	if chunkFrames <= 0 {
		chunkFrames = 1 << 20
	}
	channels := len(f.z1)
	if len(samples)/channels < minFilterLen {
		return
	}

	chunk := chunkFrames * channels
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		f.Process(samples[start:end])
	}
}
