package binning

import (
	"math/bits"
	"sync/atomic"

	"github.com/gogpu/tilebin/internal/parallel"
)

// Coarse writes the L0 occupancy of every coarse tile into words, which
// must hold f.Coarse.Len() * f.CoarseLayout.Stride words. It returns the
// number of (coarse tile, primitive) hits.
//
// One unit covers one (coarse tile, L1 batch) pair and owns L0 words
// [32*batch, 32*batch+32) of its tile, so units never share a word.
func Coarse(pool *parallel.WorkerPool, f Frame, b *Batches, words []uint32) int {
	layout := f.CoarseLayout
	batches := f.Batches()
	tiles := f.Coarse.Len()

	pool.Dispatch(tiles, func(t int) {
		clear(words[t*layout.Stride : (t+1)*layout.Stride])
	})

	var hits atomic.Int64
	pool.Dispatch(tiles*batches, func(u int) {
		t, bi := u/batches, u%batches
		tile := f.Coarse.Tile(t).Box()
		if !Overlaps(tile, b.L1[bi]) {
			return
		}

		base := t*layout.Stride + layout.L0Offset
		n := 0
		for sub := bi * 32; sub < min((bi+1)*32, len(b.L0)); sub++ {
			if !Overlaps(tile, b.L0[sub]) {
				continue
			}
			var mask uint32
			for k := range L0Bits {
				p := sub*L0Bits + k
				if p >= f.NumPrimitives {
					break
				}
				if Overlaps(tile, b.Boxes[p]) {
					mask |= 1 << k
				}
			}
			words[base+sub] = mask
			n += bits.OnesCount32(mask)
		}
		if n > 0 {
			hits.Add(int64(n))
		}
	})

	return int(hits.Load())
}
