package tilebin

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/tilebin/internal/binning"
)

// Vec2 is a 2D vector in screen pixels, y pointing down.
type Vec2 struct {
	X, Y float32
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v*s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Abs returns the component-wise absolute value.
func (v Vec2) Abs() Vec2 { return Vec2{math32.Abs(v.X), math32.Abs(v.Y)} }

// Max returns the component-wise maximum of v and o.
func (v Vec2) Max(o Vec2) Vec2 { return Vec2{math32.Max(v.X, o.X), math32.Max(v.Y, o.Y)} }

// Length returns the Euclidean length of v.
func (v Vec2) Length() float32 { return math32.Sqrt(v.X*v.X + v.Y*v.Y) }

func (v Vec2) String() string { return fmt.Sprintf("(%g, %g)", v.X, v.Y) }

// Box is an axis-aligned box.
type Box struct {
	Min, Max Vec2
}

// Empty reports whether b covers no area. Boxes with NaN coordinates are
// empty.
func (b Box) Empty() bool {
	return !binning.Valid(b.array())
}

// Overlaps reports whether the interiors of b and o intersect. Empty boxes
// overlap nothing; boxes sharing only an edge do not overlap.
func (b Box) Overlaps(o Box) bool {
	return binning.Overlaps(b.array(), o.array())
}

// Size returns the extent of b.
func (b Box) Size() Vec2 {
	return b.Max.Sub(b.Min)
}

func (b Box) array() binning.Box {
	return binning.Box{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y}
}

func boxFromArray(a binning.Box) Box {
	return Box{Min: Vec2{a[0], a[1]}, Max: Vec2{a[2], a[3]}}
}
