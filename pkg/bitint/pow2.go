/*
Package bitint provides power-of-2 helpers for FFT window sizing and audio
buffer allocation. All operations are O(1), allocation-free, and safe to call
from real-time code.

	windowSize := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(windowSize)

NextPowerOfTwo subtracts 1 before taking the bit length so that exact powers
of 2 map to themselves instead of doubling: for 8, bits.Len64(7) is 3 and
1<<3 is 8 again.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
// Non-positive inputs return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2 have
// exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
