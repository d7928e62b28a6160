package tilebin

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/tilebin/internal/binning"
	"github.com/gogpu/tilebin/internal/parallel"
	"github.com/gogpu/tilebin/internal/radix"
)

var (
	// ErrScratchOverflow is returned when a frame produces more tile hits
	// than its SortCapacity.
	ErrScratchOverflow = errors.New("tilebin: sort scratch overflow")

	// ErrClosed is returned by Bin after Close.
	ErrClosed = errors.New("tilebin: binner closed")

	// ErrSourceLength is returned when the source length differs from the
	// configured primitive count.
	ErrSourceLength = errors.New("tilebin: source length does not match config")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("tilebin: nil DeviceProvider")

	// ErrGPUUnavailable is returned by NewGPUBinner when the provider has no
	// usable HAL device or the package was built with the nogpu tag.
	ErrGPUUnavailable = errors.New("tilebin: GPU binning unavailable")
)

// Strategy selects how fine binning results are stored.
type Strategy int

const (
	// StrategyCompact appends (tile, primitive) hits, radix sorts them and
	// resolves one contiguous range per tile. Memory scales with hits.
	StrategyCompact Strategy = iota

	// StrategyBitmap stores a hierarchical L1/L0 bitmap per tile. Memory
	// scales with tiles times primitive capacity and is allocated on every
	// Bin; size frames with WithPrimitiveCapacity close to the primitive
	// count (see FrameConfig.BitmapWords).
	StrategyBitmap
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyCompact:
		return "compact"
	case StrategyBitmap:
		return "bitmap"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy returns the strategy named s.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "compact", "":
		return StrategyCompact, nil
	case "bitmap":
		return StrategyBitmap, nil
	default:
		return 0, fmt.Errorf("tilebin: unknown strategy %q", s)
	}
}

// BinnerOption configures a Binner during creation.
type BinnerOption func(*binnerOptions)

type binnerOptions struct {
	workers  int
	strategy Strategy
}

// WithWorkers sets the worker pool size. Non-positive values use
// GOMAXPROCS.
func WithWorkers(n int) BinnerOption {
	return func(o *binnerOptions) {
		o.workers = n
	}
}

// WithStrategy selects the fine binning strategy. StrategyBitmap callers
// should lower the frame's primitive capacity, since the default of
// MaxPrims costs 8202 words per fine tile.
func WithStrategy(s Strategy) BinnerOption {
	return func(o *binnerOptions) {
		o.strategy = s
	}
}

// Stats describes one Bin call.
type Stats struct {
	Prepare time.Duration
	Coarse  time.Duration
	Fine    time.Duration
	Sort    time.Duration
	Resolve time.Duration

	// CoarseHits is the number of (coarse tile, primitive) pairs surviving
	// the coarse pass.
	CoarseHits int

	// Dropped counts primitives that failed to decode and cover nothing.
	Dropped int

	// Radix describes the sort; zero for the bitmap strategy.
	Radix radix.Stats
}

// Result is the output of one Bin call. It does not share memory with the
// Binner and stays valid after later calls.
type Result struct {
	Config   FrameConfig
	Strategy Strategy

	// Coarse is the coarse tile occupancy.
	Coarse *BitmapIndex

	// Fine is the fine tile index: a *CompactIndex or a *BitmapIndex
	// depending on the strategy.
	Fine TileIndex

	// Entries is the number of (fine tile, primitive) hits.
	Entries int

	Stats Stats
}

// Binner assigns primitives to screen tiles on a worker pool.
//
// Scratch buffers are reused across frames. Bin calls are serialized.
type Binner struct {
	mu       sync.Mutex
	pool     *parallel.WorkerPool
	sorter   *radix.Sorter
	strategy Strategy

	batches binning.Batches
	entries []radix.Entry
	counts  []atomic.Uint32
}

// NewBinner returns a Binner with its own worker pool. Close releases it.
func NewBinner(opts ...BinnerOption) *Binner {
	var o binnerOptions
	for _, opt := range opts {
		opt(&o)
	}
	pool := parallel.NewWorkerPool(o.workers)
	slogger().Debug("tilebin: binner created", "workers", pool.Workers(), "strategy", o.strategy)
	return &Binner{
		pool:     pool,
		sorter:   radix.NewSorter(pool),
		strategy: o.strategy,
	}
}

// Strategy returns the fine binning strategy.
func (b *Binner) Strategy() Strategy {
	return b.strategy
}

// Workers returns the worker pool size.
func (b *Binner) Workers() int {
	return b.pool.Workers()
}

// Close stops the worker pool. Bin returns ErrClosed afterwards.
func (b *Binner) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pool.Close()
}

// Bin bins the primitives of src into the tiles of cfg. metrics resolves
// glyph bounds.
//
// Primitives that fail to decode or have degenerate bounds cover nothing.
// Capacity problems are reported before any stage runs, except hits
// exceeding cfg.SortCapacity, which are only known after the fine pass.
func (b *Binner) Bin(cfg FrameConfig, src Source, metrics []GlyphMetrics) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src.Len() != cfg.NumPrimitives {
		return nil, fmt.Errorf("%w: %d != %d", ErrSourceLength, src.Len(), cfg.NumPrimitives)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pool.IsRunning() {
		return nil, ErrClosed
	}

	f := cfg.frame()
	res := &Result{Config: cfg, Strategy: b.strategy}
	st := &res.Stats

	start := time.Now()
	var dropped atomic.Int64
	binning.Prepare(b.pool, cfg.NumPrimitives, func(i int) binning.Box {
		p, err := src.Primitive(i)
		if err != nil {
			dropped.Add(1)
			return binning.Empty
		}
		return p.Bounds(metrics).array()
	}, &b.batches)
	st.Prepare = time.Since(start)
	st.Dropped = int(dropped.Load())
	if st.Dropped > 0 {
		slogger().Warn("tilebin: primitives dropped", "count", st.Dropped)
	}

	start = time.Now()
	coarse := make([]uint32, f.Coarse.Len()*f.CoarseLayout.Stride)
	st.CoarseHits = binning.Coarse(b.pool, f, &b.batches, coarse)
	res.Coarse = newBitmapIndex(cfg.CoarseTileResolution, CoarseTileSize, f.CoarseLayout, cfg.NumPrimitives, coarse)
	st.Coarse = time.Since(start)

	var err error
	switch b.strategy {
	case StrategyBitmap:
		b.binBitmap(cfg, f, coarse, res)
	default:
		err = b.binCompact(cfg, f, coarse, res)
	}
	if err != nil {
		return nil, err
	}

	slogger().Debug("tilebin: frame binned",
		"strategy", b.strategy,
		"primitives", cfg.NumPrimitives,
		"tiles", f.Fine.Len(),
		"coarse_hits", st.CoarseHits,
		"entries", res.Entries,
		"prepare", st.Prepare,
		"coarse", st.Coarse,
		"fine", st.Fine,
		"sort", st.Sort,
		"resolve", st.Resolve,
		"skipped_passes", st.Radix.Skipped,
	)
	return res, nil
}

func (b *Binner) binBitmap(cfg FrameConfig, f binning.Frame, coarse []uint32, res *Result) {
	start := time.Now()
	slogger().Debug("tilebin: bitmap scratch", "words", cfg.BitmapWords(), "capacity", cfg.PrimitiveCapacity)
	sink := binning.NewBitmapSink(f.FineLayout, f.Fine.Len(), nil)
	sink.Clear(b.pool)
	binning.Fine(b.pool, f, &b.batches, coarse, sink)
	sink.Finalize(b.pool)
	res.Stats.Fine = time.Since(start)

	fine := newBitmapIndex(cfg.TileResolution, TileSize, f.FineLayout, cfg.NumPrimitives, sink.Words)
	for t := range f.Fine.Len() {
		res.Entries += fine.Len(t)
	}
	res.Fine = fine
}

func (b *Binner) binCompact(cfg FrameConfig, f binning.Frame, coarse []uint32, res *Result) error {
	st := &res.Stats

	start := time.Now()
	sink := binning.NewAppendSink(cfg.SortCapacity, f.Fine.Len(), f.PrimBits(), b.entries, b.counts)
	b.entries, b.counts = sink.Entries, sink.TileCounts
	binning.Fine(b.pool, f, &b.batches, coarse, sink)
	st.Fine = time.Since(start)

	if sink.Failed() {
		slogger().Warn("tilebin: sort scratch overflow", "requested", sink.Requested(), "capacity", cfg.SortCapacity)
		return fmt.Errorf("%w: %d hits > capacity %d", ErrScratchOverflow, sink.Requested(), cfg.SortCapacity)
	}

	start = time.Now()
	entries := sink.Entries[:sink.Len()]
	st.Radix = b.sorter.Sort(entries, radix.KeyBits(f.MaxKey()))
	st.Sort = time.Since(start)

	start = time.Now()
	ranges := binning.Resolve(sink.TileCounts, nil)
	list := binning.Payloads(entries, nil)
	st.Resolve = time.Since(start)

	res.Entries = len(entries)
	res.Fine = NewCompactIndex(cfg.TileResolution, TileSize, ranges, list)
	return nil
}
