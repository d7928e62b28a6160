package binning

import (
	"math/bits"
	"sync/atomic"

	"github.com/gogpu/tilebin/internal/parallel"
	"github.com/gogpu/tilebin/internal/radix"
)

// BitmapSink stores fine pass output as hierarchical per-tile bitmaps.
type BitmapSink struct {
	Layout Layout
	Words  []uint32
}

// NewBitmapSink returns a sink for tiles fine tiles, reusing words when it
// is large enough.
func NewBitmapSink(layout Layout, tiles int, words []uint32) *BitmapSink {
	return &BitmapSink{Layout: layout, Words: resize(words, tiles*layout.Stride)}
}

// Clear zeroes every tile region. It must run before the fine pass.
func (s *BitmapSink) Clear(pool *parallel.WorkerPool) {
	stride := s.Layout.Stride
	pool.Dispatch(len(s.Words)/stride, func(t int) {
		clear(s.Words[t*stride : (t+1)*stride])
	})
}

// Emit stores the L0 words of one batch and sets its L1 bit. The L1 word is
// shared by 32 batches and is updated atomically.
func (s *BitmapSink) Emit(tile, batch int, mask *[32]uint32) {
	base := tile * s.Layout.Stride
	copy(s.Words[base+s.Layout.L0Offset+batch*32:], mask[:])
	atomic.OrUint32(&s.Words[base+s.Layout.L1Offset+batch/32], 1<<(batch%32))
}

// Finalize writes the occupied L0 word range [lo, hi) into each tile header.
// Tiles without hits get [0, 0).
func (s *BitmapSink) Finalize(pool *parallel.WorkerPool) {
	l := s.Layout
	pool.Dispatch(len(s.Words)/l.Stride, func(t int) {
		region := s.Words[t*l.Stride : (t+1)*l.Stride]
		l1 := region[l.L1Offset : l.L1Offset+l.L1Words]

		lo, hi := -1, -1
		for i, word := range l1 {
			if word == 0 {
				continue
			}
			if lo < 0 {
				lo = i*32 + bits.TrailingZeros32(word)
			}
			hi = i*32 + 31 - bits.LeadingZeros32(word)
		}

		if lo < 0 {
			region[l.RangeOffset], region[l.RangeOffset+1] = 0, 0
			return
		}
		region[l.RangeOffset] = uint32(lo * 32)
		region[l.RangeOffset+1] = uint32((hi + 1) * 32)
	})
}

// AppendSink turns fine pass output into sort entries keyed by
// tile<<PrimBits | primitive. It bump-allocates one block per Emit; when the
// entry buffer is exhausted it writes nothing more and reports Failed.
type AppendSink struct {
	Entries    []radix.Entry
	TileCounts []atomic.Uint32
	PrimBits   uint

	next   atomic.Uint32
	failed atomic.Bool
}

// NewAppendSink returns a sink with room for capacity entries over tiles
// tiles. Buffers of a previous sink may be passed in for reuse.
func NewAppendSink(capacity, tiles int, primBits uint, entries []radix.Entry, counts []atomic.Uint32) *AppendSink {
	s := &AppendSink{
		Entries:    resize(entries, capacity),
		TileCounts: resize(counts, tiles),
		PrimBits:   primBits,
	}
	for i := range s.TileCounts {
		s.TileCounts[i].Store(0)
	}
	return s
}

// Emit appends one entry per set bit, in primitive order.
func (s *AppendSink) Emit(tile, batch int, mask *[32]uint32) {
	var n uint32
	for _, w := range mask {
		n += uint32(bits.OnesCount32(w))
	}

	end := s.next.Add(n)
	if int(end) > len(s.Entries) || end < n {
		s.failed.Store(true)
		return
	}
	s.TileCounts[tile].Add(n)

	i := end - n
	key := uint64(tile) << s.PrimBits
	for w, word := range mask {
		for word != 0 {
			k := bits.TrailingZeros32(word)
			word &= word - 1
			prim := uint32(batch*L1Span + w*L0Bits + k)
			s.Entries[i] = radix.Entry{Key: key | uint64(prim), Value: prim}
			i++
		}
	}
}

// Len returns the number of entries written.
func (s *AppendSink) Len() int {
	return min(int(s.next.Load()), len(s.Entries))
}

// Requested returns the number of entries the fine pass asked for,
// including those dropped on overflow.
func (s *AppendSink) Requested() int {
	return int(s.next.Load())
}

// Failed reports whether any Emit ran out of entry capacity.
func (s *AppendSink) Failed() bool {
	return s.failed.Load()
}
