package atlas

import (
	"errors"
	"image"
)

// ErrAtlasFull is returned when the atlas cannot fit the requested region.
var ErrAtlasFull = errors.New("atlas: full")

// shelf is a horizontal strip of the atlas.
type shelf struct {
	y      int // top edge
	height int // tallest item so far, padding included
	nextX  int // next free column
}

// Allocator packs rectangles into a fixed area with the shelf algorithm:
// an item goes on the first shelf with room for it, otherwise on a new
// shelf below the last one.
//
// Allocator is not safe for concurrent use.
type Allocator struct {
	size    image.Point
	padding int
	shelves []shelf

	count int
	used  int
}

// NewAllocator returns an allocator for a size area with padding pixels
// between items and shelves.
func NewAllocator(size image.Point, padding int) *Allocator {
	return &Allocator{size: size, padding: max(padding, 0)}
}

// Allocate reserves a w x h region. It fails with ErrAtlasFull when no
// shelf can take the item and no new shelf fits below.
func (a *Allocator) Allocate(w, h int) (image.Rectangle, error) {
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, nil
	}
	pw, ph := w+a.padding, h+a.padding
	if pw > a.size.X || ph > a.size.Y {
		return image.Rectangle{}, ErrAtlasFull
	}

	for i := range a.shelves {
		s := &a.shelves[i]
		if s.nextX+pw > a.size.X {
			continue
		}
		// An occupied shelf cannot grow taller.
		if ph > s.height && s.nextX > 0 {
			continue
		}
		r := image.Rect(s.nextX, s.y, s.nextX+w, s.y+h)
		s.nextX += pw
		s.height = max(s.height, ph)
		return a.commit(r), nil
	}

	y := 0
	if n := len(a.shelves); n > 0 {
		y = a.shelves[n-1].y + a.shelves[n-1].height
	}
	if y+ph > a.size.Y {
		return image.Rectangle{}, ErrAtlasFull
	}
	a.shelves = append(a.shelves, shelf{y: y, height: ph, nextX: pw})
	return a.commit(image.Rect(0, y, w, y+h)), nil
}

func (a *Allocator) commit(r image.Rectangle) image.Rectangle {
	a.count++
	a.used += r.Dx() * r.Dy()
	return r
}

// Reset frees every region.
func (a *Allocator) Reset() {
	a.shelves = a.shelves[:0]
	a.count = 0
	a.used = 0
}

// Count returns the number of successful allocations.
func (a *Allocator) Count() int {
	return a.count
}

// Utilization returns the fraction of the area covered by regions.
func (a *Allocator) Utilization() float64 {
	total := a.size.X * a.size.Y
	if total == 0 {
		return 0
	}
	return float64(a.used) / float64(total)
}
