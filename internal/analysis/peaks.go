// SPDX-License-Identifier: MIT
package analysis

// localMaxima returns the index of every local maximum in x. A plateau of
// equal values flanked by lower neighbors counts once, at its midpoint.
func localMaxima(x []float64) []int {
	var peaks []int
	i := 1
	for i < len(x)-1 {
		if x[i-1] >= x[i] {
			i++
			continue
		}
		// Climb across any plateau.
		ahead := i + 1
		for ahead < len(x)-1 && x[ahead] == x[i] {
			ahead++
		}
		if x[ahead] < x[i] {
			peaks = append(peaks, (i+ahead-1)/2)
		}
		i = ahead
	}
	return peaks
}

// prominence measures how far a peak rises above its surroundings: the
// drop from the peak to the higher of the two valley floors separating it
// from taller terrain (or from the signal edge).
func prominence(x []float64, peak int) float64 {
	leftMin := x[peak]
	for i := peak - 1; i >= 0; i-- {
		if x[i] > x[peak] {
			break
		}
		if x[i] < leftMin {
			leftMin = x[i]
		}
	}

	rightMin := x[peak]
	for i := peak + 1; i < len(x); i++ {
		if x[i] > x[peak] {
			break
		}
		if x[i] < rightMin {
			rightMin = x[i]
		}
	}

	return x[peak] - max(leftMin, rightMin)
}

// prominentPeaks returns local maxima whose prominence is at least
// minProminence, in index order.
func prominentPeaks(x []float64, minProminence float64) []int {
	var peaks []int
	for _, p := range localMaxima(x) {
		if prominence(x, p) >= minProminence {
			peaks = append(peaks, p)
		}
	}
	return peaks
}

// argMax returns the index of the largest element, or -1 for empty input.
func argMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}
