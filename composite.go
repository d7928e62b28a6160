package tilebin

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"iter"
	"time"

	"github.com/chewxy/math32"
)

var (
	// ErrAtlasMissing is returned by Compose when the frame holds glyphs but
	// no atlas was given.
	ErrAtlasMissing = errors.New("tilebin: glyph atlas missing")

	// ErrTargetSize is returned by Compose when the target does not match
	// the screen resolution.
	ErrTargetSize = errors.New("tilebin: target size does not match screen")
)

// Compose renders a binned frame into dst, one fine tile per unit on the
// Binner's worker pool.
//
// Each pixel starts from layer (transparent when nil) and blends the
// primitives of its tile source-over in submission order. Rects are shaded
// with SDRoundedBox, glyphs sample atlas coverage. src and metrics must be
// the ones res was binned from.
func (b *Binner) Compose(dst *image.RGBA, res *Result, src Source, metrics []GlyphMetrics, atlas *image.Alpha, layer image.Image) error {
	cfg := res.Config
	if dst.Bounds().Size() != cfg.ScreenResolution {
		return fmt.Errorf("%w: %v != %v", ErrTargetSize, dst.Bounds().Size(), cfg.ScreenResolution)
	}
	if src.Len() != cfg.NumPrimitives {
		return fmt.Errorf("%w: %d != %d", ErrSourceLength, src.Len(), cfg.NumPrimitives)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.pool.IsRunning() {
		return ErrClosed
	}

	start := time.Now()
	prims := make([]Primitive, src.Len())
	b.pool.Dispatch(len(prims), func(i int) {
		if p, err := src.Primitive(i); err == nil {
			prims[i] = p
		}
	})
	if atlas == nil {
		for _, p := range prims {
			if p != nil && p.Kind() == KindGlyph {
				return ErrAtlasMissing
			}
		}
	}

	c := compositor{dst: dst, prims: prims, metrics: metrics, atlas: atlas, layer: layer}
	b.pool.Dispatch(cfg.Tiles(), func(t int) {
		c.tile(cfg.Tile(t), res.Fine.Hits(t))
	})

	slogger().Debug("tilebin: frame composed", "tiles", cfg.Tiles(), "elapsed", time.Since(start))
	return nil
}

type compositor struct {
	dst     *image.RGBA
	prims   []Primitive
	metrics []GlyphMetrics
	atlas   *image.Alpha
	layer   image.Image
}

// pixel is a premultiplied color with components in [0, 1].
type pixel [4]float32

// over blends c scaled by coverage over p.
func (p *pixel) over(c Color, coverage float32) {
	n := c.NRGBA()
	a := coverage * float32(n.A) / 255
	if a <= 0 {
		return
	}
	inv := 1 - a
	p[0] = float32(n.R)/255*a + p[0]*inv
	p[1] = float32(n.G)/255*a + p[1]*inv
	p[2] = float32(n.B)/255*a + p[2]*inv
	p[3] = a + p[3]*inv
}

func (c *compositor) tile(r image.Rectangle, hits iter.Seq[uint32]) {
	var list []Primitive
	for i := range hits {
		if int(i) < len(c.prims) && c.prims[i] != nil {
			list = append(list, c.prims[i])
		}
	}

	origin := c.dst.Bounds().Min
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			var px pixel
			if c.layer != nil {
				lr, lg, lb, la := c.layer.At(x, y).RGBA()
				px = pixel{float32(lr) / 0xffff, float32(lg) / 0xffff, float32(lb) / 0xffff, float32(la) / 0xffff}
			}
			center := Vec2{float32(x) + 0.5, float32(y) + 0.5}
			for _, p := range list {
				switch v := p.(type) {
				case Rect:
					shadeRect(&px, v, center)
				case Glyph:
					c.shadeGlyph(&px, v, center)
				}
			}
			c.dst.SetRGBA(origin.X+x, origin.Y+y, px.rgba())
		}
	}
}

// shadeRect blends r into px. Coverage is clipped to the rect's bounds, the
// box it was binned with, so the anti-aliased fringe never depends on
// whether a neighbouring pixel lies in a tile that lists r.
func shadeRect(px *pixel, r Rect, at Vec2) {
	if !(at.X > r.Min.X && at.X < r.Max.X && at.Y > r.Min.Y && at.Y < r.Max.Y) {
		return
	}
	half := r.HalfExtent()
	radii := r.SDFRadii()
	d := SDRoundedBox(at.Sub(r.Center()), half, radii)
	outer := Coverage(d)
	if outer == 0 {
		return
	}
	if r.BorderWidth == 0 {
		px.over(r.Background, outer)
		return
	}

	bw := float32(r.BorderWidth)
	inner := Coverage(d + bw)
	px.over(r.Background, inner)
	px.over(r.Border, outer-inner)
}

func (c *compositor) shadeGlyph(px *pixel, g Glyph, at Vec2) {
	if int64(g.Index) >= int64(len(c.metrics)) {
		return
	}
	m := c.metrics[g.Index]
	box := g.Bounds(c.metrics)
	if box.Empty() || at.X < box.Min.X || at.Y < box.Min.Y || at.X >= box.Max.X || at.Y >= box.Max.Y {
		return
	}

	ar := m.AtlasRect()
	size := box.Size()
	u := (at.X - box.Min.X) / size.X * float32(ar.Dx())
	v := (at.Y - box.Min.Y) / size.Y * float32(ar.Dy())
	tx := ar.Min.X + int(math32.Floor(u))
	ty := ar.Min.Y + int(math32.Floor(v))
	if !image.Pt(tx, ty).In(ar) {
		return
	}
	px.over(g.Color, float32(c.atlas.AlphaAt(tx, ty).A)/255)
}

func (p pixel) rgba() color.RGBA {
	q := func(v float32) uint8 {
		return uint8(math32.Min(math32.Max(v, 0), 1)*255 + 0.5)
	}
	return color.RGBA{R: q(p[0]), G: q(p[1]), B: q(p[2]), A: q(p[3])}
}
