package binning

import (
	"sync/atomic"

	"github.com/gogpu/tilebin/internal/radix"
)

// Range is a tile's [Min, Max) slice of the sorted entry array.
type Range struct {
	Min uint32
	Max uint32
}

// Len returns the number of entries in the range.
func (r Range) Len() int {
	return int(r.Max - r.Min)
}

// Resolve turns per-tile hit counts into tile ranges. Because the sort key
// places the tile index above the primitive index, tile t's entries occupy
// exactly [sum(counts[:t]), sum(counts[:t+1])) of the sorted array, so the
// ranges partition it with no gaps.
func Resolve(counts []atomic.Uint32, ranges []Range) []Range {
	ranges = resize(ranges, len(counts))
	var sum uint32
	for t := range counts {
		n := counts[t].Load()
		ranges[t] = Range{Min: sum, Max: sum + n}
		sum += n
	}
	return ranges
}

// Payloads copies the values of sorted entries into list.
func Payloads(entries []radix.Entry, list []uint32) []uint32 {
	list = resize(list, len(entries))
	for i, e := range entries {
		list[i] = e.Value
	}
	return list
}
