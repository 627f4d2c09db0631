// Package wavegen generates synthetic float32 test signals shared by the
// analysis, filter, and recorder tests.
package wavegen

import "math"

// Sine returns n samples of a sine wave at the given frequency and
// amplitude (0..1 of full scale).
func Sine(n int, sampleRate, frequency, amplitude float64) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		t := float64(i) / sampleRate
		buf[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buf
}

// Complex returns n samples of a 440 Hz fundamental plus two harmonics,
// useful for exercising peak detection with realistic spectra.
func Complex(n int, sampleRate float64) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		t := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*t)*0.5 +
			math.Sin(2*math.Pi*880*t)*0.3 +
			math.Sin(2*math.Pi*1320*t)*0.2
		buf[i] = float32(signal * 0.9)
	}
	return buf
}

// DC returns n samples of a constant offset, which a high-pass correction
// stage should reject.
func DC(n int, level float64) []float32 {
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(level)
	}
	return buf
}

// Interleave packs per-channel sample slices into a single interleaved
// buffer. All channels must have equal length.
func Interleave(channels ...[]float32) []float32 {
	if len(channels) == 0 {
		return nil
	}
	frames := len(channels[0])
	out := make([]float32, frames*len(channels))
	for f := 0; f < frames; f++ {
		for c, ch := range channels {
			out[f*len(channels)+c] = ch[f]
		}
	}
	return out
}
