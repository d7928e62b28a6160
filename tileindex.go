package tilebin

import (
	"image"
	"iter"
	"math/bits"

	"github.com/gogpu/tilebin/internal/binning"
)

// TileIndex answers, per tile, which primitives may touch it. Hits yields
// primitive indices in increasing order, which is submission order.
//
// Both binning strategies produce a TileIndex; consumers such as Compose
// do not depend on which one ran.
type TileIndex interface {
	// Resolution returns the tile grid size.
	Resolution() image.Point

	// TileSize returns the tile side in pixels.
	TileSize() int

	// Hits yields the primitives binned to tile.
	Hits(tile int) iter.Seq[uint32]

	// Len returns the number of primitives binned to tile.
	Len(tile int) int
}

// TileRange is a tile's [Min, Max) slice of a CompactIndex list.
type TileRange = binning.Range

// CompactIndex is the output of the compact strategy: one list of primitive
// indices sorted by (tile, primitive) and a range per tile into it.
type CompactIndex struct {
	resolution image.Point
	tileSize   int

	Ranges []TileRange
	List   []uint32
}

// NewCompactIndex wraps ranges and list. Ranges are indexed row-major over
// a resolution grid of tileSize tiles.
func NewCompactIndex(resolution image.Point, tileSize int, ranges []TileRange, list []uint32) *CompactIndex {
	return &CompactIndex{resolution: resolution, tileSize: tileSize, Ranges: ranges, List: list}
}

// Resolution implements TileIndex.
func (c *CompactIndex) Resolution() image.Point { return c.resolution }

// TileSize implements TileIndex.
func (c *CompactIndex) TileSize() int { return c.tileSize }

// Range returns the [min, max) range of tile in List. Out-of-range tiles
// get an empty range.
func (c *CompactIndex) Range(tile int) TileRange {
	if tile < 0 || tile >= len(c.Ranges) {
		return TileRange{}
	}
	r := c.Ranges[tile]
	if r.Max < r.Min || int(r.Max) > len(c.List) {
		return TileRange{}
	}
	return r
}

// Hits implements TileIndex.
func (c *CompactIndex) Hits(tile int) iter.Seq[uint32] {
	r := c.Range(tile)
	return func(yield func(uint32) bool) {
		for _, p := range c.List[r.Min:r.Max] {
			if !yield(p) {
				return
			}
		}
	}
}

// Len implements TileIndex.
func (c *CompactIndex) Len(tile int) int {
	return c.Range(tile).Len()
}

// BitmapIndex is a per-tile occupancy bitmap: bit p of a tile's L0 words is
// set when primitive p may touch the tile. Fine indexes also carry an L1
// summary bit per 1024 primitives and the occupied L0 word range.
type BitmapIndex struct {
	resolution image.Point
	tileSize   int
	layout     binning.Layout

	// used is the number of L0 words that can hold live primitives.
	used  int
	words []uint32
}

func newBitmapIndex(resolution image.Point, tileSize int, layout binning.Layout, numPrimitives int, words []uint32) *BitmapIndex {
	return &BitmapIndex{
		resolution: resolution,
		tileSize:   tileSize,
		layout:     layout,
		used:       min((numPrimitives+binning.L0Bits-1)/binning.L0Bits, layout.L0Words),
		words:      words,
	}
}

// Resolution implements TileIndex.
func (b *BitmapIndex) Resolution() image.Point { return b.resolution }

// TileSize implements TileIndex.
func (b *BitmapIndex) TileSize() int { return b.tileSize }

// Words returns the raw words of tile: the range header, L1 and L0 words
// for fine indexes, L0 words only for coarse ones. Out-of-range tiles
// return nil.
func (b *BitmapIndex) Words(tile int) []uint32 {
	s := b.layout.Stride
	if tile < 0 || (tile+1)*s > len(b.words) {
		return nil
	}
	return b.words[tile*s : (tile+1)*s]
}

// l0Range returns the L0 words of tile worth scanning, [lo, hi).
func (b *BitmapIndex) l0Range(region []uint32) (lo, hi int) {
	hi = b.used
	if b.layout.HasL1() {
		lo = min(int(region[b.layout.RangeOffset]), hi)
		hi = min(int(region[b.layout.RangeOffset+1]), hi)
	}
	return lo, max(lo, hi)
}

// occupied reports whether L0 word w may hold set bits.
func (b *BitmapIndex) occupied(region []uint32, w int) bool {
	if !b.layout.HasL1() {
		return true
	}
	batch := w / 32
	return region[b.layout.L1Offset+batch/32]&(1<<(batch%32)) != 0
}

// Hits implements TileIndex. Batches whose L1 bit is clear are skipped
// without reading their L0 words.
func (b *BitmapIndex) Hits(tile int) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		region := b.Words(tile)
		if region == nil {
			return
		}
		l0 := region[b.layout.L0Offset:]
		lo, hi := b.l0Range(region)
		for w := lo; w < hi; w++ {
			if w%32 == 0 && !b.occupied(region, w) {
				w += 31
				continue
			}
			word := l0[w]
			for word != 0 {
				k := bits.TrailingZeros32(word)
				word &= word - 1
				if !yield(uint32(w*binning.L0Bits + k)) {
					return
				}
			}
		}
	}
}

// Len implements TileIndex.
func (b *BitmapIndex) Len(tile int) int {
	region := b.Words(tile)
	if region == nil {
		return 0
	}
	l0 := region[b.layout.L0Offset:]
	lo, hi := b.l0Range(region)
	n := 0
	for w := lo; w < hi; w++ {
		if w%32 == 0 && !b.occupied(region, w) {
			w += 31
			continue
		}
		n += bits.OnesCount32(l0[w])
	}
	return n
}

// L1Consistent reports whether, in every tile, each L1 bit is set exactly
// when its 32 L0 words hold a set bit. Indexes without L1 are trivially
// consistent.
func (b *BitmapIndex) L1Consistent() bool {
	l := b.layout
	if !l.HasL1() {
		return true
	}
	tiles := len(b.words) / l.Stride
	for t := range tiles {
		region := b.Words(t)
		l0 := region[l.L0Offset : l.L0Offset+l.L0Words]
		for batch := range l.L0Words / 32 {
			nonzero := false
			for _, w := range l0[batch*32 : batch*32+32] {
				if w != 0 {
					nonzero = true
					break
				}
			}
			set := region[l.L1Offset+batch/32]&(1<<(batch%32)) != 0
			if set != nonzero {
				return false
			}
		}
	}
	return true
}
