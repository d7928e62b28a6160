// Package atlas rasterizes glyphs into an alpha atlas and records the
// tilebin.GlyphMetrics that locate them.
package atlas

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/tilebin"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// ErrNoGlyph is returned by Add for a rune the font does not cover.
var ErrNoGlyph = errors.New("atlas: rune not in font")

// padding separates atlas entries so sampling never bleeds.
const padding = 1

// Builder grows a glyph atlas one rune at a time. Each rune is rasterized
// once; its metrics index is stable for the lifetime of the Builder.
//
// Builder is not safe for concurrent use.
type Builder struct {
	face  font.Face
	alloc *Allocator
	img   *image.Alpha

	index    map[rune]uint32
	metrics  []tilebin.GlyphMetrics
	advances []float32
}

// NewBuilder returns a builder for a size atlas rendering Go Regular at
// fontSize pixels.
func NewBuilder(size image.Point, fontSize float64) (*Builder, error) {
	return NewBuilderFromFont(goregular.TTF, size, fontSize)
}

// NewBuilderFromFont is NewBuilder with the given TrueType or OpenType
// font data.
func NewBuilderFromFont(data []byte, size image.Point, fontSize float64) (*Builder, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("atlas: invalid size %v", size)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("atlas: parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("atlas: create face: %w", err)
	}
	return &Builder{
		face:  face,
		alloc: NewAllocator(size, padding),
		img:   image.NewAlpha(image.Rectangle{Max: size}),
		index: make(map[rune]uint32),
	}, nil
}

// Add rasterizes r into the atlas if it is not there yet and returns its
// metrics index. Blank glyphs such as space get metrics with an empty
// quad and no atlas area.
func (b *Builder) Add(r rune) (uint32, error) {
	if i, ok := b.index[r]; ok {
		return i, nil
	}

	dr, mask, maskp, advance, ok := b.face.Glyph(fixed.Point26_6{}, r)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoGlyph, r)
	}

	var m tilebin.GlyphMetrics
	if !dr.Empty() {
		region, err := b.alloc.Allocate(dr.Dx(), dr.Dy())
		if err != nil {
			return 0, fmt.Errorf("%w: glyph %q needs %dx%d", err, r, dr.Dx(), dr.Dy())
		}
		draw.Draw(b.img, region, mask, maskp, draw.Src)
		m = tilebin.GlyphMetrics{
			AtlasMin:  region.Min,
			AtlasMax:  region.Max,
			OffsetMin: tilebin.Vec2{X: float32(dr.Min.X), Y: float32(dr.Min.Y)},
			OffsetMax: tilebin.Vec2{X: float32(dr.Max.X), Y: float32(dr.Max.Y)},
		}
	}

	i := uint32(len(b.metrics))
	b.metrics = append(b.metrics, m)
	b.advances = append(b.advances, toFloat(advance))
	b.index[r] = i
	return i, nil
}

// AddString adds every rune of s and returns their indices in order.
func (b *Builder) AddString(s string) ([]uint32, error) {
	out := make([]uint32, 0, len(s))
	for _, r := range s {
		i, err := b.Add(r)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

// Layout places s on a single line starting at origin, the baseline
// anchor of the first glyph, and returns one Glyph per rune.
func (b *Builder) Layout(s string, origin tilebin.Vec2, c tilebin.Color) ([]tilebin.Glyph, error) {
	indices, err := b.AddString(s)
	if err != nil {
		return nil, err
	}
	glyphs := make([]tilebin.Glyph, len(indices))
	pen := origin
	for k, i := range indices {
		glyphs[k] = tilebin.Glyph{Position: pen, Index: i, Color: c}
		pen.X += b.advances[i]
	}
	return glyphs, nil
}

// Advance returns the horizontal advance of glyph i in pixels.
func (b *Builder) Advance(i uint32) float32 {
	if int(i) >= len(b.advances) {
		return 0
	}
	return b.advances[i]
}

// LineHeight returns the recommended baseline-to-baseline distance.
func (b *Builder) LineHeight() float32 {
	return toFloat(b.face.Metrics().Height)
}

// Metrics returns the metrics of every added glyph, indexed by the values
// Add returned. The slice is shared with the Builder.
func (b *Builder) Metrics() []tilebin.GlyphMetrics {
	return b.metrics
}

// Image returns the atlas. It is shared with the Builder and changes as
// glyphs are added.
func (b *Builder) Image() *image.Alpha {
	return b.img
}

// Size returns the atlas size.
func (b *Builder) Size() image.Point {
	return b.img.Rect.Size()
}

// Close releases the font face.
func (b *Builder) Close() error {
	return b.face.Close()
}

func toFloat(x fixed.Int26_6) float32 {
	return float32(x) / 64
}
