// Package parallel provides the tile grid and worker pool the binning stages
// run on.
//
// The screen is divided into square tiles whose side is a power of two.
// Two nested grids are used per frame: coarse tiles (64 pixels) cull
// primitives cheaply, fine tiles (16 pixels) refine the survivors. A coarse
// tile covers exactly Mul x Mul fine tiles.
//
// Thread safety: Grid and Tile are plain values and safe to share.
// WorkerPool is safe for concurrent use.
package parallel

// Tile size constants.
const (
	// FineTileSize is the side of a fine tile in pixels.
	FineTileSize = 16

	// CoarseTileSize is the side of a coarse tile in pixels.
	CoarseTileSize = 64

	// TileSizeMul is the number of fine tiles along one side of a coarse tile.
	TileSizeMul = CoarseTileSize / FineTileSize
)

// Tile is one cell of a Grid.
//
// Edge tiles may have smaller actual dimensions when the screen is not
// evenly divisible by the tile size. Binning uses the full square bounds
// regardless, so a primitive hanging off the right edge still lands in the
// last column.
type Tile struct {
	// X is the tile column index (0-based).
	X int

	// Y is the tile row index (0-based).
	Y int

	// Width is the visible width in pixels (may be < Size for edge tiles).
	Width int

	// Height is the visible height in pixels (may be < Size for edge tiles).
	Height int

	// Size is the side of the full tile in pixels.
	Size int
}

// Bounds returns the pixel rectangle of the visible part of the tile as
// (x, y, width, height).
func (t Tile) Bounds() (x, y, w, h int) {
	return t.X * t.Size, t.Y * t.Size, t.Width, t.Height
}

// Box returns the full square tile box as (minX, minY, maxX, maxY).
func (t Tile) Box() [4]float32 {
	x0 := float32(t.X * t.Size)
	y0 := float32(t.Y * t.Size)
	s := float32(t.Size)
	return [4]float32{x0, y0, x0 + s, y0 + s}
}

// Grid is a row-major tile grid covering a screen.
// Tile-linear index is y*Cols + x.
type Grid struct {
	Size   int
	Cols   int
	Rows   int
	Width  int
	Height int
}

// NewGrid returns the grid of size-pixel tiles covering a width x height
// screen. Non-positive dimensions produce an empty grid.
func NewGrid(width, height, size int) Grid {
	if width <= 0 || height <= 0 || size <= 0 {
		return Grid{Size: size}
	}
	return Grid{
		Size:   size,
		Cols:   (width + size - 1) / size,
		Rows:   (height + size - 1) / size,
		Width:  width,
		Height: height,
	}
}

// Len returns the number of tiles in the grid.
func (g Grid) Len() int {
	return g.Cols * g.Rows
}

// Index returns the linear index of tile (x, y), or -1 when out of range.
func (g Grid) Index(x, y int) int {
	if x < 0 || x >= g.Cols || y < 0 || y >= g.Rows {
		return -1
	}
	return y*g.Cols + x
}

// Tile returns the tile with linear index i.
func (g Grid) Tile(i int) Tile {
	x, y := i%g.Cols, i/g.Cols
	w := min(g.Size, g.Width-x*g.Size)
	h := min(g.Size, g.Height-y*g.Size)
	return Tile{X: x, Y: y, Width: w, Height: h, Size: g.Size}
}

// Parent returns the linear index in coarse of the tile containing fine
// tile i of g. The coarse grid must use a multiple of g's tile size.
func (g Grid) Parent(i int, coarse Grid) int {
	mul := coarse.Size / g.Size
	x, y := i%g.Cols, i/g.Cols
	return coarse.Index(x/mul, y/mul)
}
