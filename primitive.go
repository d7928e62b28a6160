package tilebin

import (
	"fmt"
	"image"
)

// Kind tags a primitive variant. It is the first word of a command record
// and the type half of an Instance.
type Kind uint32

const (
	// KindRect is a rounded, bordered rectangle.
	KindRect Kind = 0

	// KindGlyph is a glyph quad sampled from the atlas.
	KindGlyph Kind = 1
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRect:
		return "rect"
	case KindGlyph:
		return "glyph"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// Radius and border limits of the packed rect encoding.
const (
	// MaxRadius is the largest corner radius, in pixels.
	MaxRadius = 63

	// MaxBorderWidth is the largest border width, in pixels.
	MaxBorderWidth = 255
)

// Corner indices into CornerRadii, clockwise from top-left.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// CornerRadii holds per-corner radii in whole pixels, indexed by TopLeft,
// TopRight, BottomRight and BottomLeft.
type CornerRadii [4]uint8

// UniformRadii returns radii with all four corners set to r.
func UniformRadii(r uint8) CornerRadii {
	return CornerRadii{r, r, r, r}
}

// Primitive is a drawable: a Rect or a Glyph.
type Primitive interface {
	// Kind returns the variant tag.
	Kind() Kind

	// Bounds returns the screen-space box the primitive may touch.
	// metrics is consulted by glyphs only.
	Bounds(metrics []GlyphMetrics) Box
}

// Rect is a filled rectangle with rounded corners and an inner border.
//
// Rect is the canonical form of both encodings: bounds as min/max, four
// corner radii and a border width in whole pixels, two colors. The border
// is drawn inside the bounds, so it never grows the rect's footprint.
type Rect struct {
	Min, Max    Vec2
	Radii       CornerRadii
	BorderWidth uint8
	Background  Color
	Border      Color
}

// RectAt returns a rect centered on center extending halfExtent each way.
func RectAt(center, halfExtent Vec2) Rect {
	return Rect{Min: center.Sub(halfExtent), Max: center.Add(halfExtent)}
}

// Kind implements Primitive.
func (Rect) Kind() Kind { return KindRect }

// Bounds implements Primitive.
func (r Rect) Bounds([]GlyphMetrics) Box {
	return Box{Min: r.Min, Max: r.Max}
}

// Center returns the center of the rect.
func (r Rect) Center() Vec2 {
	return r.Min.Add(r.Max).Scale(0.5)
}

// HalfExtent returns half the size of the rect.
func (r Rect) HalfExtent() Vec2 {
	return r.Max.Sub(r.Min).Scale(0.5)
}

// Valid reports whether every radius fits the packed encoding.
func (r Rect) Valid() bool {
	for _, v := range r.Radii {
		if v > MaxRadius {
			return false
		}
	}
	return true
}

// SDFRadii returns the corner radii in the quadrant order SDRoundedBox
// expects. Screen y points down, so +y is the bottom edge.
func (r Rect) SDFRadii() [4]float32 {
	return [4]float32{
		float32(r.Radii[BottomRight]), // +x +y
		float32(r.Radii[TopRight]),    // +x -y
		float32(r.Radii[BottomLeft]),  // -x +y
		float32(r.Radii[TopLeft]),     // -x -y
	}
}

// Glyph is a quad drawn from a glyph atlas entry, anchored at Position.
type Glyph struct {
	Position Vec2
	Index    uint32
	Color    Color
}

// Kind implements Primitive.
func (Glyph) Kind() Kind { return KindGlyph }

// Bounds implements Primitive. An index outside metrics yields an empty box.
func (g Glyph) Bounds(metrics []GlyphMetrics) Box {
	if int64(g.Index) >= int64(len(metrics)) {
		return Box{}
	}
	m := metrics[g.Index]
	return Box{Min: g.Position.Add(m.OffsetMin), Max: g.Position.Add(m.OffsetMax)}
}

// GlyphMetrics is one glyph atlas entry. It is produced by the atlas
// builder and only read here.
type GlyphMetrics struct {
	// AtlasMin and AtlasMax bound the glyph's texels in the atlas.
	AtlasMin, AtlasMax image.Point

	// OffsetMin and OffsetMax bound the quad relative to the glyph anchor.
	OffsetMin, OffsetMax Vec2
}

// AtlasRect returns the atlas texel rectangle.
func (m GlyphMetrics) AtlasRect() image.Rectangle {
	return image.Rectangle{Min: m.AtlasMin, Max: m.AtlasMax}
}

// Instance references a primitive in a Store by kind and index.
type Instance struct {
	Kind  Kind
	Index uint32
}
