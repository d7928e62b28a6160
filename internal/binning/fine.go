package binning

import (
	"math/bits"

	"github.com/gogpu/tilebin/internal/parallel"
)

// Sink receives the fine pass output.
//
// Emit is called at most once per (fine tile, L1 batch) pair, concurrently
// for different pairs. Bit k of mask[w] stands for primitive
// batch*1024 + w*32 + k.
type Sink interface {
	Emit(tile, batch int, mask *[32]uint32)
}

// Fine re-tests coarse survivors against the fine tiles nested in each
// coarse tile. coarse is the buffer written by Coarse for the same frame.
func Fine(pool *parallel.WorkerPool, f Frame, b *Batches, coarse []uint32, sink Sink) {
	layout := f.CoarseLayout
	batches := f.Batches()

	pool.Dispatch(f.Fine.Len()*batches, func(u int) {
		t, bi := u/batches, u%batches
		tile := f.Fine.Tile(t).Box()
		if !Overlaps(tile, b.L1[bi]) {
			return
		}

		parent := f.Fine.Parent(t, f.Coarse)
		base := parent*layout.Stride + layout.L0Offset + bi*32
		survivors := coarse[base : base+32]

		var mask [32]uint32
		var hit bool
		for w, word := range survivors {
			for word != 0 {
				k := bits.TrailingZeros32(word)
				word &= word - 1
				if Overlaps(tile, b.Boxes[bi*L1Span+w*L0Bits+k]) {
					mask[w] |= 1 << k
					hit = true
				}
			}
		}
		if hit {
			sink.Emit(t, bi, &mask)
		}
	})
}
