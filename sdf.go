package tilebin

import "github.com/chewxy/math32"

// sdfAntialiasWidth controls the smoothstep transition width in pixels.
// A value of 0.7 produces smooth anti-aliasing at standard DPI.
const sdfAntialiasWidth = 0.7

// SDBox returns the signed distance from p to an axis-aligned box with
// half-extent b centered on the origin. Negative values are inside.
func SDBox(p, b Vec2) float32 {
	d := p.Abs().Sub(b)
	outside := d.Max(Vec2{}).Length()
	inside := math32.Min(math32.Max(d.X, d.Y), 0)
	return outside + inside
}

// SDRoundedBox returns the signed distance from p to a box with half-extent
// b and per-quadrant corner radii r, centered on the origin.
//
// The radius is picked by the quadrant of p:
//
//	r[0]  x > 0, y > 0
//	r[1]  x > 0, y <= 0
//	r[2]  x <= 0, y > 0
//	r[3]  x <= 0, y <= 0
//
// Radii are clamped to [0, min(b.X, b.Y)] so a corner never exceeds the box.
func SDRoundedBox(p, b Vec2, r [4]float32) float32 {
	var radius float32
	switch {
	case p.X > 0 && p.Y > 0:
		radius = r[0]
	case p.X > 0:
		radius = r[1]
	case p.Y > 0:
		radius = r[2]
	default:
		radius = r[3]
	}
	radius = math32.Min(math32.Max(radius, 0), math32.Max(math32.Min(b.X, b.Y), 0))

	q := p.Abs().Sub(b).Add(Vec2{radius, radius})
	outside := q.Max(Vec2{}).Length()
	inside := math32.Min(math32.Max(q.X, q.Y), 0)
	return outside + inside - radius
}

// Coverage converts a signed distance to an anti-aliased coverage value in
// [0, 1] using a Hermite smoothstep over ±0.7 px.
func Coverage(d float32) float32 {
	if d >= sdfAntialiasWidth {
		return 0
	}
	if d <= -sdfAntialiasWidth {
		return 1
	}
	t := (d + sdfAntialiasWidth) / (2 * sdfAntialiasWidth)
	return 1 - t*t*(3-2*t)
}
