package binning

import "github.com/gogpu/tilebin/internal/parallel"

// Batches holds per-primitive boxes and their unions at L0 (32) and L1
// (1024) granularity. A tile that misses an L1 box skips the whole batch;
// one that misses an L0 box skips 32 primitive tests.
type Batches struct {
	Boxes []Box
	L0    []Box
	L1    []Box
}

// Prepare fills b with the boxes of n primitives. bounds must be safe for
// concurrent calls and return an invalid box for primitives that cover
// nothing.
func Prepare(pool *parallel.WorkerPool, n int, bounds func(i int) Box, b *Batches) {
	b.Boxes = resize(b.Boxes, n)
	b.L0 = resize(b.L0, (n+L0Bits-1)/L0Bits)
	b.L1 = resize(b.L1, (n+L1Span-1)/L1Span)

	pool.Dispatch(len(b.L1), func(bi int) {
		outer := Empty
		for sub := bi * 32; sub < min((bi+1)*32, len(b.L0)); sub++ {
			inner := Empty
			for p := sub * L0Bits; p < min((sub+1)*L0Bits, n); p++ {
				box := bounds(p)
				b.Boxes[p] = box
				inner = Union(inner, box)
			}
			b.L0[sub] = inner
			outer = Union(outer, inner)
		}
		b.L1[bi] = outer
	})
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}
