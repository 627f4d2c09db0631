// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
)

// minProminenceDB filters spurious spectral ripples: a band peak must rise
// at least this far above its surroundings to be preferred over the plain
// band maximum.
const minProminenceDB = 3.0

// Band is a frequency range watched for tonal activity.
type Band struct {
	Name      string
	Low       float64 // Hz, inclusive
	High      float64 // Hz, inclusive
	Threshold float64 // dB, alerts fire strictly above this
}

// Peak is the dominant tone found in one band during one analysis window.
type Peak struct {
	Band      string
	Frequency float64 // Hz
	Level     float64 // dB
}

// Exceeds reports whether the peak is loud enough to alert for its band.
// The comparison is strict: a level exactly at the threshold stays quiet.
func (p Peak) Exceeds(band Band) bool {
	return p.Level > band.Threshold
}

// Analyzer extracts per-band spectral peaks from mono audio windows.
// Not safe for concurrent use; the monitor loop owns it.
type Analyzer struct {
	sg    *Spectrogram
	bands []Band
}

// NewAnalyzer creates an analyzer for the given bands.
func NewAnalyzer(nperseg, noverlap int, bands []Band) (*Analyzer, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("at least one band is required")
	}
	sg, err := NewSpectrogram(nperseg, noverlap)
	if err != nil {
		return nil, err
	}
	return &Analyzer{sg: sg, bands: bands}, nil
}

// MinSamples returns the shortest window the analyzer can process.
func (a *Analyzer) MinSamples() int {
	return a.sg.MinSamples()
}

// Bands returns the configured bands in order.
func (a *Analyzer) Bands() []Band {
	return a.bands
}

// Analyze finds the dominant peak in each band of the given mono window.
// Bands that lie entirely above the Nyquist frequency are skipped, as are
// windows shorter than one spectrogram segment. The input is sanitized
// (non-finite samples zeroed) and peak-normalized before analysis, so the
// reported levels are relative to the loudest sample in the window.
func (a *Analyzer) Analyze(samples []float64, sampleRate float64) []Peak {
	if len(samples) < a.sg.MinSamples() || sampleRate <= 0 {
		return nil
	}

	sanitize(samples)
	normalize(samples)

	power := a.sg.Compute(samples, sampleRate)
	if power == nil {
		return nil
	}
	ToDB(power)
	freqs := a.sg.Frequencies(sampleRate)
	nyquist := sampleRate / 2

	var peaks []Peak
	for _, band := range a.bands {
		if band.Low >= nyquist {
			continue
		}

		lo, hi := binRange(freqs, band.Low, band.High)
		if lo >= hi {
			continue
		}

		// Profile: loudest level each bin reached across the window.
		profile := make([]float64, hi-lo)
		for i := range profile {
			profile[i] = math.Inf(-1)
			for _, row := range power {
				if row[lo+i] > profile[i] {
					profile[i] = row[lo+i]
				}
			}
		}

		best := -1
		for _, p := range prominentPeaks(profile, minProminenceDB) {
			if best == -1 || profile[p] > profile[best] {
				best = p
			}
		}
		if best == -1 {
			best = argMax(profile)
		}
		if best == -1 {
			continue
		}

		peaks = append(peaks, Peak{
			Band:      band.Name,
			Frequency: freqs[lo+best],
			Level:     profile[best],
		})
	}
	return peaks
}

// binRange returns the half-open bin index range [lo, hi) covering
// frequencies in [low, high]. freqs must be ascending.
func binRange(freqs []float64, low, high float64) (int, int) {
	lo := len(freqs)
	for i, f := range freqs {
		if f >= low {
			lo = i
			break
		}
	}
	hi := lo
	for hi < len(freqs) && freqs[hi] <= high {
		hi++
	}
	return lo, hi
}

// sanitize zeroes non-finite samples in place.
func sanitize(samples []float64) {
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			samples[i] = 0
		}
	}
}

// normalize scales samples in place so the loudest has magnitude 1.
// All-zero input is left alone.
func normalize(samples []float64) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i := range samples {
		samples[i] /= peak
	}
}
