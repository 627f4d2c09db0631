// SPDX-License-Identifier: MIT
/*
Package analysis turns captured audio windows into spectral peak reports.

The pipeline is: overlapping Hann-windowed FFT segments (a spectrogram),
power in dB, then per-band peak extraction with a prominence filter so a
band reports at most one dominant tone per analysis window.
*/
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"lfnmon/pkg/bitint"
)

// dbFloor is added inside the log so silence maps to a finite floor:
// 10*log10(1e-10) = -100 dB.
const dbFloor = 1e-10

// SilenceDB is the level reported for bins with no energy at all.
const SilenceDB = -100.0

// spectrogramWorkspace holds pre-allocated buffers for segment transforms.
type spectrogramWorkspace struct {
	input  []float64    // ...for windowed segment samples
	coeffs []complex128 // ...for FFT complex output
	win    []float64    // ...for Hann window coefficients
}

// Spectrogram computes overlapping windowed power spectra. All buffers are
// allocated once at construction; Compute allocates only its result.
type Spectrogram struct {
	nperseg  int
	noverlap int
	fftObj   *fourier.FFT
	winPower float64 // sum of squared window coefficients
	ws       spectrogramWorkspace
}

// NewSpectrogram creates a spectrogram over segments of nperseg samples
// advancing by nperseg-noverlap each step.
func NewSpectrogram(nperseg, noverlap int) (*Spectrogram, error) {
	if !bitint.IsPowerOfTwo(nperseg) {
		return nil, fmt.Errorf("segment size must be a power of 2, got %d", nperseg)
	}
	if noverlap < 0 || noverlap >= nperseg {
		return nil, fmt.Errorf("overlap %d out of range [0, %d)", noverlap, nperseg)
	}

	// window.Hann scales in place, so start from unit coefficients to
	// recover the window itself.
	win := make([]float64, nperseg)
	for i := range win {
		win[i] = 1.0
	}
	window.Hann(win)

	var winPower float64
	for _, w := range win {
		winPower += w * w
	}

	return &Spectrogram{
		nperseg:  nperseg,
		noverlap: noverlap,
		fftObj:   fourier.NewFFT(nperseg),
		winPower: winPower,
		ws: spectrogramWorkspace{
			input:  make([]float64, nperseg),
			coeffs: make([]complex128, nperseg/2+1),
			win:    win,
		},
	}, nil
}

// Bins returns the number of frequency bins per segment.
func (s *Spectrogram) Bins() int {
	return s.nperseg/2 + 1
}

// MinSamples returns the shortest signal the spectrogram can process.
func (s *Spectrogram) MinSamples() int {
	return s.nperseg
}

// Frequencies returns the center frequency of each bin for the given
// sample rate.
func (s *Spectrogram) Frequencies(sampleRate float64) []float64 {
	freqs := make([]float64, s.Bins())
	for i := range freqs {
		freqs[i] = s.fftObj.Freq(i) * sampleRate
	}
	return freqs
}

// Compute returns the power spectral density of each segment, indexed
// [segment][bin]. Signals shorter than one segment yield nil.
func (s *Spectrogram) Compute(samples []float64, sampleRate float64) [][]float64 {
	if len(samples) < s.nperseg || sampleRate <= 0 {
		return nil
	}

	step := s.nperseg - s.noverlap
	segments := (len(samples) - s.noverlap) / step
	scale := 1.0 / (sampleRate * s.winPower)
	power := make([][]float64, 0, segments)

	for start := 0; start+s.nperseg <= len(samples); start += step {
		for i := range s.nperseg {
			s.ws.input[i] = samples[start+i] * s.ws.win[i]
		}
		s.fftObj.Coefficients(s.ws.coeffs, s.ws.input)

		row := make([]float64, len(s.ws.coeffs))
		for i, c := range s.ws.coeffs {
			p := cmplx.Abs(c)
			p = p * p * scale
			// One-sided spectrum: interior bins carry both halves.
			if i != 0 && i != len(s.ws.coeffs)-1 {
				p *= 2
			}
			row[i] = p
		}
		power = append(power, row)
	}
	return power
}

// ToDB converts power values to decibels in place. The additive floor
// keeps silent bins at exactly SilenceDB instead of negative infinity.
func ToDB(power [][]float64) {
	for _, row := range power {
		for i, p := range row {
			row[i] = 10 * math.Log10(p+dbFloor)
		}
	}
}
