// Package radix implements the stable parallel LSD radix sort used to
// compact scattered per-tile hits into contiguous, ordered tile ranges.
//
// Keys are sorted in 8-bit digit passes. Each pass is split into chunks of
// WorkgroupSize x ItemsPerInvocation entries, the same decomposition the GPU
// kernels use, and chunks agree on their write offsets through a decoupled
// look-back over a per-chunk status table instead of a global barrier.
package radix

import "math/bits"

const (
	// RadixBits is the width of one digit.
	RadixBits = 8

	// Digits is the number of buckets per digit.
	Digits = 1 << RadixBits

	// DigitMask extracts one digit from a shifted key.
	DigitMask = Digits - 1

	// WorkgroupSize is the number of invocations per chunk.
	WorkgroupSize = 256

	// ItemsPerInvocation is the number of entries each invocation handles.
	ItemsPerInvocation = 16

	// ItemsPerWorkgroup is the number of entries in one chunk.
	ItemsPerWorkgroup = WorkgroupSize * ItemsPerInvocation

	// MaxPasses covers a full 64-bit key.
	MaxPasses = 64 / RadixBits

	// MaxEntries bounds the entry count; per-digit counts share a status
	// word with two flag bits.
	MaxEntries = 1<<30 - 1
)

// Entry is one sort record. Key orders the entry, Value rides along.
type Entry struct {
	Key   uint64
	Value uint32
}

// WorkgroupCount returns the number of chunks needed for n entries.
func WorkgroupCount(n int) int {
	return (n + ItemsPerWorkgroup - 1) / ItemsPerWorkgroup
}

// SpineSize returns the number of per-chunk, per-digit counters for n
// entries.
func SpineSize(n int) int {
	return WorkgroupCount(n) * Digits
}

// Passes returns the number of digit passes needed to order keys of the
// given bit width.
func Passes(keyBits int) int {
	if keyBits <= 0 {
		return 0
	}
	return min((keyBits+RadixBits-1)/RadixBits, MaxPasses)
}

// KeyBits returns the number of significant bits of maxKey.
func KeyBits(maxKey uint64) int {
	return bits.Len64(maxKey)
}

func digit(key uint64, shift uint) uint32 {
	return uint32(key>>shift) & DigitMask
}

// chunkRange returns the entry range [lo, hi) of chunk c.
func chunkRange(c, n int) (lo, hi int) {
	lo = c * ItemsPerWorkgroup
	return lo, min(lo+ItemsPerWorkgroup, n)
}
