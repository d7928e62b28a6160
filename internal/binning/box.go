// Package binning assigns primitives to screen tiles.
//
// Binning runs in two phases. The coarse pass tests every primitive batch
// against 64 pixel tiles and records an L0 bit per primitive. The fine
// pass re-tests only the coarse survivors against the 16 pixel tiles nested
// inside each coarse tile and hands the per-batch hit masks to a Sink,
// which either stores them as a hierarchical bitmap or appends sort
// entries for compaction.
//
// Boxes are [4]float32{minX, minY, maxX, maxY} in screen pixels.
package binning

// Box is an axis-aligned box as {minX, minY, maxX, maxY}.
type Box = [4]float32

// Empty is the identity of Union: it overlaps nothing.
var Empty = Box{inf, inf, -inf, -inf}

const inf = float32(1e38)

// Valid reports whether b has positive extent on both axes. NaN
// coordinates fail every comparison and are therefore invalid.
func Valid(b Box) bool {
	return b[0] < b[2] && b[1] < b[3]
}

// Overlaps runs the separating-axis test on the open interiors of a and b.
// Boxes that merely touch do not overlap; invalid boxes overlap nothing.
func Overlaps(a, b Box) bool {
	if !Valid(a) || !Valid(b) {
		return false
	}
	return a[0] < b[2] && b[0] < a[2] && a[1] < b[3] && b[1] < a[3]
}

// Union returns the smallest box containing a and b. Invalid inputs are
// ignored.
func Union(a, b Box) Box {
	if !Valid(b) {
		return a
	}
	if !Valid(a) {
		return b
	}
	return Box{min(a[0], b[0]), min(a[1], b[1]), max(a[2], b[2]), max(a[3], b[3])}
}
