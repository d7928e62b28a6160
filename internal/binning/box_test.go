package binning

import (
	"math"
	"testing"
)

func TestOverlaps(t *testing.T) {
	nan := float32(math.NaN())
	tile := Box{16, 16, 32, 32}

	tests := []struct {
		name string
		box  Box
		want bool
	}{
		{"inside", Box{20, 20, 24, 24}, true},
		{"covers", Box{0, 0, 100, 100}, true},
		{"partial", Box{30, 30, 40, 40}, true},
		{"touching right edge", Box{32, 16, 48, 32}, false},
		{"touching bottom edge", Box{16, 32, 32, 48}, false},
		{"left of", Box{0, 16, 10, 32}, false},
		{"above", Box{16, 0, 32, 10}, false},
		{"zero width", Box{20, 20, 20, 30}, false},
		{"zero height", Box{20, 20, 30, 20}, false},
		{"negative extent", Box{30, 30, 20, 20}, false},
		{"nan min", Box{nan, 20, 30, 30}, false},
		{"nan max", Box{20, 20, 30, nan}, false},
		{"empty", Empty, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tile, tt.box); got != tt.want {
				t.Errorf("Overlaps(tile, %v) = %v, want %v", tt.box, got, tt.want)
			}
			if got := Overlaps(tt.box, tile); got != tt.want {
				t.Errorf("Overlaps(%v, tile) = %v, want %v (not symmetric)", tt.box, got, tt.want)
			}
		})
	}
}

func TestUnion(t *testing.T) {
	a := Box{0, 0, 10, 10}
	b := Box{5, -5, 20, 8}

	if got := Union(a, b); got != (Box{0, -5, 20, 10}) {
		t.Errorf("Union = %v", got)
	}
	if got := Union(Empty, a); got != a {
		t.Errorf("Union(Empty, a) = %v, want a", got)
	}
	if got := Union(a, Box{float32(math.NaN()), 0, 1, 1}); got != a {
		t.Errorf("Union with NaN box = %v, want a", got)
	}
}

func TestLayout(t *testing.T) {
	fine := FineLayout(1 << 18)
	if fine.L0Words != 8192 || fine.L1Words != 8 {
		t.Errorf("fine L0/L1 words = %d/%d, want 8192/8", fine.L0Words, fine.L1Words)
	}
	if fine.L1Offset != 2 || fine.L0Offset != 10 || fine.Stride != 8202 {
		t.Errorf("fine offsets = %d/%d stride %d, want 2/10 stride 8202",
			fine.L1Offset, fine.L0Offset, fine.Stride)
	}

	small := FineLayout(1024)
	if small.L1Words != 1 || small.L0Words != 32 || small.Stride != 35 {
		t.Errorf("small fine layout = %+v", small)
	}

	// 33 batches need a second L1 word, rounded up.
	partial := FineLayout(33 * L1Span)
	if partial.L1Words != 2 || partial.L0Offset != 4 || partial.L0Words != 1056 || partial.Stride != 1062 {
		t.Errorf("partial fine layout = %+v, want 2 L1 words at 2, 1056 L0 words at 4, stride 1062", partial)
	}
	for _, batches := range []int{1, 31, 32, 33, 63, 64, 65, 200, 256} {
		l := FineLayout(batches * L1Span)
		if l.L1Words*32 < batches {
			t.Errorf("FineLayout(%d batches): %d L1 words cannot hold %d bits", batches, l.L1Words, batches)
		}
		if l.L0Offset != l.L1Offset+l.L1Words || l.Stride != l.L0Offset+l.L0Words {
			t.Errorf("FineLayout(%d batches) regions overlap: %+v", batches, l)
		}
	}

	coarse := CoarseLayout(1 << 18)
	if coarse.HasL1() || coarse.L0Offset != 0 || coarse.Stride != 8192 {
		t.Errorf("coarse layout = %+v", coarse)
	}
}
