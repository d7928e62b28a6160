package binning

import (
	"math/bits"

	"github.com/gogpu/tilebin/internal/parallel"
)

// Hierarchy granularity.
const (
	// L0Bits is the number of primitives per L0 word.
	L0Bits = 32

	// L1Span is the number of primitives summarized by one L1 bit.
	L1Span = L0Bits * 32

	// RangeWords is the size of the fine tile header holding the occupied
	// L0 word range [lo, hi).
	RangeWords = 2
)

// Layout describes the per-tile word region of an occupancy buffer.
// Writers and readers of a buffer must use the same Layout.
//
// Fine tiles: [lo, hi] | L1 words | L0 words.
// Coarse tiles: L0 words only.
type Layout struct {
	Capacity int

	RangeOffset int
	RangeWords  int
	L1Offset    int
	L1Words     int
	L0Offset    int
	L0Words     int

	// Stride is the number of words per tile.
	Stride int
}

// FineLayout returns the fine tile layout for capacity primitives.
// capacity must be a positive multiple of L1Span.
func FineLayout(capacity int) Layout {
	l0 := capacity / L0Bits
	// One L1 word per 32 batches, rounded up.
	l1 := max((capacity/L1Span+31)/32, 1)
	return Layout{
		Capacity:    capacity,
		RangeOffset: 0,
		RangeWords:  RangeWords,
		L1Offset:    RangeWords,
		L1Words:     l1,
		L0Offset:    RangeWords + l1,
		L0Words:     l0,
		Stride:      RangeWords + l1 + l0,
	}
}

// CoarseLayout returns the coarse tile layout for capacity primitives.
func CoarseLayout(capacity int) Layout {
	l0 := capacity / L0Bits
	return Layout{
		Capacity: capacity,
		L0Words:  l0,
		Stride:   l0,
	}
}

// HasL1 reports whether the layout carries an L1 summary.
func (l Layout) HasL1() bool {
	return l.L1Words > 0
}

// Frame is the binning view of a frame's configuration. It is built once
// per frame and passed by value to every stage.
type Frame struct {
	Coarse parallel.Grid
	Fine   parallel.Grid

	NumPrimitives int

	CoarseLayout Layout
	FineLayout   Layout
}

// Batches returns the number of L1-sized primitive batches in the frame.
func (f Frame) Batches() int {
	return (f.NumPrimitives + L1Span - 1) / L1Span
}

// PrimBits returns the number of key bits carrying the primitive index.
func (f Frame) PrimBits() uint {
	return uint(bits.Len(uint(max(f.NumPrimitives-1, 0))))
}

// MaxKey returns the largest sort key the frame can produce.
func (f Frame) MaxKey() uint64 {
	if f.NumPrimitives == 0 || f.Fine.Len() == 0 {
		return 0
	}
	return uint64(f.Fine.Len()-1)<<f.PrimBits() | uint64(f.NumPrimitives-1)
}
