/*
Package bitint provides power-of-2 helpers for FFT and buffer sizing.
All operations are O(1), allocation-free and real-time safe.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size. Exact powers of 2 are
// preserved (the size-1 before bits.Len is what keeps 8 from becoming 16);
// non-positive sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return int(1 << bits.Len64(uint64(size-1)))
}

// IsPowerOfTwo reports whether n is a positive power of 2. Powers of 2 have
// exactly one bit set, so n & (n-1) is zero only for them.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
