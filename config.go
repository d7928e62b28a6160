package tilebin

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/tilebin/internal/binning"
	"github.com/gogpu/tilebin/internal/parallel"
	"github.com/gogpu/tilebin/internal/radix"
)

const (
	// MaxPrims is the largest number of primitives in one frame.
	MaxPrims = 1 << 18

	// DefaultSortCapacity is the default number of (tile, primitive) hits
	// the compact strategy can hold per frame.
	DefaultSortCapacity = 1 << 20

	// TileSize is the side of a fine tile in pixels.
	TileSize = parallel.FineTileSize

	// CoarseTileSize is the side of a coarse tile in pixels.
	CoarseTileSize = parallel.CoarseTileSize

	// TileSizeMul is the number of fine tiles along a coarse tile side.
	TileSizeMul = parallel.TileSizeMul

	maxSortCapacity = radix.MaxEntries
)

var (
	// ErrTooManyPrimitives is returned when a frame holds more primitives
	// than its capacity.
	ErrTooManyPrimitives = errors.New("tilebin: too many primitives")

	// ErrEmptyScreen is returned for a screen with no pixels.
	ErrEmptyScreen = errors.New("tilebin: empty screen")

	// ErrInvalidCapacity is returned for a capacity option that is not a
	// positive multiple of 1024 or exceeds its limit.
	ErrInvalidCapacity = errors.New("tilebin: invalid capacity")
)

// FrameConfig is the per-frame configuration shared by every stage.
// It is immutable after NewFrameConfig and passed by value.
type FrameConfig struct {
	ScreenResolution image.Point
	AtlasResolution  image.Point

	// TileResolution and CoarseTileResolution are the tile grid sizes,
	// rounded up.
	TileResolution       image.Point
	CoarseTileResolution image.Point

	NumPrimitives     int
	NumPrimitives32   int
	NumPrimitives1024 int

	// PrimitiveCapacity sizes the per-tile occupancy bitmaps.
	PrimitiveCapacity int

	// TileStride and CoarseTileStride are the words per tile of the fine
	// and coarse occupancy buffers.
	TileStride       int
	CoarseTileStride int

	// SortCapacity is the number of hits the compact strategy can hold.
	SortCapacity int
}

// ConfigOption configures a FrameConfig during creation.
type ConfigOption func(*configOptions)

type configOptions struct {
	primitiveCapacity int
	sortCapacity      int
}

func defaultConfigOptions() configOptions {
	return configOptions{
		primitiveCapacity: MaxPrims,
		sortCapacity:      DefaultSortCapacity,
	}
}

// WithPrimitiveCapacity sets the number of primitives the occupancy bitmaps
// are sized for. It must be a positive multiple of 1024 no larger than
// MaxPrims; lowering it shrinks the bitmap strategy's memory use.
func WithPrimitiveCapacity(n int) ConfigOption {
	return func(o *configOptions) {
		o.primitiveCapacity = n
	}
}

// WithSortCapacity sets the number of hits the compact strategy can hold.
func WithSortCapacity(n int) ConfigOption {
	return func(o *configOptions) {
		o.sortCapacity = n
	}
}

// NewFrameConfig returns the configuration of a frame of numPrimitives
// primitives on a screen of the given size. Validate reports whether the
// result is usable.
func NewFrameConfig(screen, atlas image.Point, numPrimitives int, opts ...ConfigOption) FrameConfig {
	o := defaultConfigOptions()
	for _, opt := range opts {
		opt(&o)
	}

	fine := parallel.NewGrid(screen.X, screen.Y, TileSize)
	coarse := parallel.NewGrid(screen.X, screen.Y, CoarseTileSize)

	cfg := FrameConfig{
		ScreenResolution:     screen,
		AtlasResolution:      atlas,
		TileResolution:       image.Pt(fine.Cols, fine.Rows),
		CoarseTileResolution: image.Pt(coarse.Cols, coarse.Rows),
		NumPrimitives:        numPrimitives,
		NumPrimitives32:      (numPrimitives + 31) / 32,
		NumPrimitives1024:    (numPrimitives + 1023) / 1024,
		PrimitiveCapacity:    o.primitiveCapacity,
		SortCapacity:         o.sortCapacity,
	}
	if validCapacity(o.primitiveCapacity) {
		cfg.TileStride = binning.FineLayout(o.primitiveCapacity).Stride
		cfg.CoarseTileStride = binning.CoarseLayout(o.primitiveCapacity).Stride
	}
	return cfg
}

func validCapacity(n int) bool {
	return n > 0 && n <= MaxPrims && n%binning.L1Span == 0
}

// Validate checks the configuration against its capacities. It is the
// caller-side check; binning stages assume a valid configuration and only
// index safely.
func (c FrameConfig) Validate() error {
	if c.ScreenResolution.X <= 0 || c.ScreenResolution.Y <= 0 {
		return fmt.Errorf("%w: %v", ErrEmptyScreen, c.ScreenResolution)
	}
	if !validCapacity(c.PrimitiveCapacity) {
		return fmt.Errorf("%w: primitive capacity %d", ErrInvalidCapacity, c.PrimitiveCapacity)
	}
	if c.SortCapacity <= 0 || c.SortCapacity > maxSortCapacity {
		return fmt.Errorf("%w: sort capacity %d", ErrInvalidCapacity, c.SortCapacity)
	}
	if c.NumPrimitives < 0 || c.NumPrimitives > c.PrimitiveCapacity {
		return fmt.Errorf("%w: %d > %d", ErrTooManyPrimitives, c.NumPrimitives, c.PrimitiveCapacity)
	}
	return nil
}

// Tiles returns the number of fine tiles.
func (c FrameConfig) Tiles() int {
	return c.TileResolution.X * c.TileResolution.Y
}

// CoarseTiles returns the number of coarse tiles.
func (c FrameConfig) CoarseTiles() int {
	return c.CoarseTileResolution.X * c.CoarseTileResolution.Y
}

// BitmapWords returns the number of 32-bit words StrategyBitmap allocates
// per frame for the fine and coarse occupancy buffers. It grows with
// PrimitiveCapacity, not NumPrimitives: at the MaxPrims default a 1080p
// frame needs about 280 MB.
func (c FrameConfig) BitmapWords() int {
	return c.Tiles()*c.TileStride + c.CoarseTiles()*c.CoarseTileStride
}

// Tile returns the pixel rectangle of fine tile t of cfg, clipped to the
// screen.
func (c FrameConfig) Tile(t int) image.Rectangle {
	g := parallel.NewGrid(c.ScreenResolution.X, c.ScreenResolution.Y, TileSize)
	x, y, w, h := g.Tile(t).Bounds()
	return image.Rect(x, y, x+w, y+h)
}

func (c FrameConfig) frame() binning.Frame {
	return binning.Frame{
		Coarse:        parallel.NewGrid(c.ScreenResolution.X, c.ScreenResolution.Y, CoarseTileSize),
		Fine:          parallel.NewGrid(c.ScreenResolution.X, c.ScreenResolution.Y, TileSize),
		NumPrimitives: c.NumPrimitives,
		CoarseLayout:  binning.CoarseLayout(c.PrimitiveCapacity),
		FineLayout:    binning.FineLayout(c.PrimitiveCapacity),
	}
}
