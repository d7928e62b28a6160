package radix

import (
	"runtime"
	"sync/atomic"

	"github.com/gogpu/tilebin/internal/parallel"
)

// Look-back status words: two flag bits above a 30-bit count.
// A word only ever moves notReady -> aggregate -> prefix within a pass.
const (
	flagNotReady  uint32 = 0
	flagAggregate uint32 = 1 << 30
	flagPrefix    uint32 = 2 << 30
	flagMask      uint32 = 3 << 30
	countMask     uint32 = MaxEntries
)

// Stats describes one Sort call.
type Stats struct {
	// Chunks is the number of chunks per pass.
	Chunks int

	// Passes is the number of digit passes the key width requires.
	Passes int

	// Skipped counts passes whose digit had a single populated bucket.
	Skipped int
}

// Sorter sorts entry slices on a worker pool. Scratch buffers grow to the
// largest input seen and are reused; no ordering state survives a call.
//
// Thread safety: a Sorter must not be used by concurrent Sort calls.
type Sorter struct {
	pool *parallel.WorkerPool

	scratch []Entry

	// status is the spine-shaped look-back table, chunk-major.
	status []atomic.Uint32

	// hist and bases hold the global digit histogram and its exclusive
	// scan for every pass, pass-major.
	hist  []atomic.Uint32
	bases []uint32

	finished atomic.Uint32
	ticket   atomic.Uint32
}

// NewSorter returns a Sorter that runs on pool.
func NewSorter(pool *parallel.WorkerPool) *Sorter {
	return &Sorter{pool: pool}
}

// Sort orders entries by the low keyBits bits of Key, stably, in place.
// Bits above keyBits must be zero. len(entries) must not exceed MaxEntries.
func (s *Sorter) Sort(entries []Entry, keyBits int) Stats {
	n := len(entries)
	st := Stats{Chunks: WorkgroupCount(n), Passes: Passes(keyBits)}
	if n <= 1 || st.Passes == 0 {
		return st
	}

	s.reserve(n, st.Passes)
	s.histogram(entries, st.Passes)

	src, dst := entries, s.scratch[:n]
	for p := range st.Passes {
		if s.singleBucket(p, n) {
			st.Skipped++
			continue
		}
		s.pass(src, dst, p)
		src, dst = dst, src
	}

	if &src[0] != &entries[0] {
		s.pool.Dispatch(st.Chunks, func(c int) {
			lo, hi := chunkRange(c, n)
			copy(entries[lo:hi], src[lo:hi])
		})
	}
	return st
}

func (s *Sorter) reserve(n, passes int) {
	if cap(s.scratch) < n {
		s.scratch = make([]Entry, n)
	}
	if spine := SpineSize(n); len(s.status) < spine {
		s.status = make([]atomic.Uint32, spine)
	}
	if len(s.hist) < passes*Digits {
		s.hist = make([]atomic.Uint32, MaxPasses*Digits)
		s.bases = make([]uint32, MaxPasses*Digits)
	}
}

// histogram counts every pass's digits in one sweep over the input. The
// last chunk to finish turns the counts into exclusive digit bases.
func (s *Sorter) histogram(entries []Entry, passes int) {
	n := len(entries)
	chunks := WorkgroupCount(n)

	for i := range passes * Digits {
		s.hist[i].Store(0)
	}
	s.finished.Store(0)

	s.pool.Dispatch(chunks, func(c int) {
		var local [MaxPasses][Digits]uint32

		lo, hi := chunkRange(c, n)
		for _, e := range entries[lo:hi] {
			for p := range passes {
				local[p][digit(e.Key, uint(p*RadixBits))]++
			}
		}
		for p := range passes {
			for d, v := range local[p] {
				if v != 0 {
					s.hist[p*Digits+d].Add(v)
				}
			}
		}

		if s.finished.Add(1) == uint32(chunks) {
			s.scanBases(passes)
		}
	})
}

func (s *Sorter) scanBases(passes int) {
	for p := range passes {
		var sum uint32
		for d := range Digits {
			s.bases[p*Digits+d] = sum
			sum += s.hist[p*Digits+d].Load()
		}
	}
}

// singleBucket reports whether every entry shares the same digit in pass p,
// in which case the pass would reproduce its input.
func (s *Sorter) singleBucket(p, n int) bool {
	for d := range Digits {
		if c := s.hist[p*Digits+d].Load(); c != 0 {
			return c == uint32(n)
		}
	}
	return false
}

// pass runs one stable digit pass from src into dst.
//
// Worker loops take chunk tickets in increasing order. A chunk only waits
// on lower tickets, and those were taken earlier by loops that are running,
// so every wait ends.
func (s *Sorter) pass(src, dst []Entry, p int) {
	n := len(src)
	chunks := WorkgroupCount(n)
	status := s.status[:chunks*Digits]
	for i := range status {
		status[i].Store(flagNotReady)
	}
	s.ticket.Store(0)

	shift := uint(p * RadixBits)
	bases := s.bases[p*Digits : (p+1)*Digits]

	s.pool.Broadcast(func(int) {
		for {
			c := int(s.ticket.Add(1) - 1)
			if c >= chunks {
				return
			}
			scatterChunk(src, dst, c, shift, bases, status)
		}
	})
}

func scatterChunk(src, dst []Entry, c int, shift uint, bases []uint32, status []atomic.Uint32) {
	lo, hi := chunkRange(c, len(src))
	items := src[lo:hi]

	var count [Digits]uint32
	for _, e := range items {
		count[digit(e.Key, shift)]++
	}

	own := status[c*Digits : (c+1)*Digits]
	flag := flagAggregate
	if c == 0 {
		flag = flagPrefix
	}
	for d := range own {
		own[d].Store(flag | count[d])
	}

	var offset [Digits]uint32
	for d := range Digits {
		var exclusive uint32
		if c > 0 {
			exclusive = lookBack(status, c, d)
			own[d].Store(flagPrefix | (exclusive + count[d]))
		}
		offset[d] = bases[d] + exclusive
	}

	for _, e := range items {
		d := digit(e.Key, shift)
		dst[offset[d]] = e
		offset[d]++
	}
}

// lookBack sums digit d over chunks [0, c). It walks backwards adding
// aggregates until it meets a published prefix. A not-ready word means the
// predecessor has not published yet and is retried, never read as zero.
func lookBack(status []atomic.Uint32, c, d int) uint32 {
	var sum uint32
	for j := c - 1; j >= 0; {
		v := status[j*Digits+d].Load()
		switch v & flagMask {
		case flagPrefix:
			return sum + v&countMask
		case flagAggregate:
			sum += v & countMask
			j--
		default:
			runtime.Gosched()
		}
	}
	return sum
}
