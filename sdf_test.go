package tilebin

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestCoverage(t *testing.T) {
	tests := []struct {
		name string
		d    float32
		want float32
	}{
		{"fully inside", -2, 1},
		{"fully outside", 2, 0},
		{"at center", 0, 0.5},
		{"at inner edge", -sdfAntialiasWidth, 1},
		{"at outer edge", sdfAntialiasWidth, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coverage(tt.d)
			if math32.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Coverage(%f) = %f, want %f", tt.d, got, tt.want)
			}
		})
	}
}

func TestCoverageMonotonic(t *testing.T) {
	// Coverage must not increase as the distance grows.
	prev := float32(1)
	for d := float32(-1.5); d <= 1.5; d += 0.01 {
		curr := Coverage(d)
		if curr > prev+1e-6 {
			t.Errorf("coverage increased at d=%f: prev=%f, curr=%f", d, prev, curr)
		}
		prev = curr
	}
}

func TestSDBox(t *testing.T) {
	b := Vec2{10, 5}
	tests := []struct {
		name string
		p    Vec2
		want float32
	}{
		{"center", Vec2{0, 0}, -5},
		{"on right edge", Vec2{10, 0}, 0},
		{"on top edge", Vec2{0, -5}, 0},
		{"outside right", Vec2{13, 0}, 3},
		{"outside below", Vec2{0, 9}, 4},
		{"outside corner", Vec2{13, 9}, 5},
		{"inside near x edge", Vec2{9, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SDBox(tt.p, b)
			if math32.Abs(got-tt.want) > 1e-5 {
				t.Errorf("SDBox(%v, %v) = %f, want %f", tt.p, b, got, tt.want)
			}
		})
	}
}

func TestSDRoundedBoxZeroRadiusMatchesBox(t *testing.T) {
	b := Vec2{20, 12}
	for y := float32(-30); y <= 30; y += 2.5 {
		for x := float32(-30); x <= 30; x += 2.5 {
			p := Vec2{x, y}
			got := SDRoundedBox(p, b, [4]float32{})
			want := SDBox(p, b)
			if math32.Abs(got-want) > 1e-5 {
				t.Fatalf("SDRoundedBox(%v) = %f, SDBox = %f", p, got, want)
			}
		}
	}
}

func TestSDRoundedBoxCorners(t *testing.T) {
	b := Vec2{10, 10}
	r := [4]float32{4, 0, 0, 0}

	// The +x +y corner is rounded: its sharp corner point lies outside.
	d := SDRoundedBox(Vec2{10, 10}, b, r)
	want := math32.Sqrt(2)*4 - 4
	if math32.Abs(d-want) > 1e-4 {
		t.Errorf("rounded corner distance = %f, want %f", d, want)
	}

	// The other corners stay sharp.
	for _, p := range []Vec2{{10, -10}, {-10, 10}, {-10, -10}} {
		if d := SDRoundedBox(p, b, r); math32.Abs(d) > 1e-5 {
			t.Errorf("sharp corner %v distance = %f, want 0", p, d)
		}
	}

	// Edges away from the corner are unaffected.
	if d := SDRoundedBox(Vec2{10, 0}, b, r); math32.Abs(d) > 1e-5 {
		t.Errorf("edge distance = %f, want 0", d)
	}
}

func TestSDRoundedBoxClampsRadius(t *testing.T) {
	b := Vec2{5, 5}
	huge := [4]float32{100, 100, 100, 100}

	// Clamped to 5 the box is a circle of radius 5.
	tests := []Vec2{{5, 0}, {0, 5}, {-5, 0}, {0, -5}, {3, 4}, {-3, -4}}
	for _, p := range tests {
		if d := SDRoundedBox(p, b, huge); math32.Abs(d) > 1e-4 {
			t.Errorf("SDRoundedBox(%v) = %f, want 0 on the circle", p, d)
		}
	}
	if d := SDRoundedBox(Vec2{}, b, huge); math32.Abs(d+5) > 1e-4 {
		t.Errorf("center distance = %f, want -5", d)
	}
}

func TestSDRoundedBoxNegativeRadius(t *testing.T) {
	b := Vec2{8, 8}
	p := Vec2{8, 8}
	if got, want := SDRoundedBox(p, b, [4]float32{-3, -3, -3, -3}), SDBox(p, b); math32.Abs(got-want) > 1e-5 {
		t.Errorf("negative radius: got %f, want %f", got, want)
	}
}

func BenchmarkSDRoundedBox(b *testing.B) {
	half := Vec2{40, 20}
	r := [4]float32{6, 6, 6, 6}
	var sink float32
	for b.Loop() {
		for y := float32(-25); y < 25; y++ {
			sink += SDRoundedBox(Vec2{35, y}, half, r)
		}
	}
	_ = sink
}
