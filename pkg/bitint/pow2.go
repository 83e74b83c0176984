// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-2 helpers used to size FFT windows.

All functions are O(1), allocation free and safe to call from the pump's
hot path.

Usage:

	// Reject a window the transform cannot use
	if !bitint.IsPowerOfTwo(fftSize) { ... }

	// Suggest the nearest usable sizes around a frame of 1600 samples
	bitint.PrevPowerOfTwo(1600) // 1024
	bitint.NextPowerOfTwo(1600) // 2048

NextPowerOfTwo works on size-1 so exact powers of 2 are preserved:
for 8, bits.Len(7) = 3 and 1<<3 = 8. Without the subtraction
bits.Len(8) = 4 and the result would double to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size, or 1 for
// non-positive sizes.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of 2 <= size, or 0 for
// non-positive sizes.
//
//	Input  Output
//	1600   1024
//	1024   1024
//	1      1
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo checks if n is a power of 2. Powers of 2 have exactly one
// bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
