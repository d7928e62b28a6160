// Package scenefile loads tilebin frames from YAML or TOML scene files and
// generates seeded random scenes.
package scenefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/tilebin"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for a scene file extension other than
// .yaml, .yml or .toml.
var ErrUnsupportedFormat = errors.New("scenefile: unsupported format")

// Format is a scene file encoding.
type Format string

// Supported formats.
const (
	YAML Format = "yaml"
	TOML Format = "toml"
)

// Default screen size of a scene that does not set one.
const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Scene is a frame description. Colors are "#rgb", "#rgba", "#rrggbb" or
// "#rrggbbaa" strings.
type Scene struct {
	Width      int         `yaml:"width" toml:"width"`
	Height     int         `yaml:"height" toml:"height"`
	Background string      `yaml:"background,omitempty" toml:"background,omitempty"`
	FontSize   float64     `yaml:"font_size,omitempty" toml:"font_size,omitempty"`
	Rects      []RectSpec  `yaml:"rects,omitempty" toml:"rects,omitempty"`
	Glyphs     []GlyphSpec `yaml:"glyphs,omitempty" toml:"glyphs,omitempty"`
}

// RectSpec is one rect. Radii is either one radius for every corner or
// four, clockwise from top-left.
type RectSpec struct {
	X      float32 `yaml:"x" toml:"x"`
	Y      float32 `yaml:"y" toml:"y"`
	W      float32 `yaml:"w" toml:"w"`
	H      float32 `yaml:"h" toml:"h"`
	Radii  []int   `yaml:"radii,flow,omitempty" toml:"radii,omitempty"`
	Border uint8   `yaml:"border,omitempty" toml:"border,omitempty"`
	Fill   string  `yaml:"fill" toml:"fill"`
	Stroke string  `yaml:"stroke,omitempty" toml:"stroke,omitempty"`
}

// GlyphSpec is a run of text on one baseline starting at X, Y.
type GlyphSpec struct {
	X     float32 `yaml:"x" toml:"x"`
	Y     float32 `yaml:"y" toml:"y"`
	Text  string  `yaml:"text" toml:"text"`
	Color string  `yaml:"color" toml:"color"`
}

// Layouter turns a text run into glyphs. atlas.Builder implements it.
type Layouter interface {
	Layout(s string, origin tilebin.Vec2, c tilebin.Color) ([]tilebin.Glyph, error)
}

// Load reads the scene at path, choosing the decoder by extension.
func Load(path string) (*Scene, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenefile: %w", err)
	}
	s, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("scenefile: %s: %w", path, err)
	}
	return s, nil
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Decode reads a scene in the given format and fills in defaults.
func Decode(r io.Reader, format Format) (*Scene, error) {
	s := &Scene{}
	switch format {
	case YAML:
		if err := yaml.NewDecoder(r).Decode(s); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case TOML:
		if err := toml.NewDecoder(r).Decode(s); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if s.Width <= 0 {
		s.Width = DefaultWidth
	}
	if s.Height <= 0 {
		s.Height = DefaultHeight
	}
	return s, nil
}

// Encode writes s in the given format.
func Encode(w io.Writer, s *Scene, format Format) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("scenefile: encode yaml: %w", err)
		}
		return enc.Close()
	case TOML:
		if err := toml.NewEncoder(w).Encode(s); err != nil {
			return fmt.Errorf("scenefile: encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Size returns the screen size of s.
func (s *Scene) Size() (w, h int) {
	return s.Width, s.Height
}

// BackgroundColor returns the parsed background, transparent when unset.
func (s *Scene) BackgroundColor() (tilebin.Color, error) {
	return parseColor(s.Background)
}

// Store converts s to a primitive store in file order: all rects, then
// every glyph run. text lays out glyph runs and may be nil for scenes
// without glyphs.
func (s *Scene) Store(text Layouter) (*tilebin.Store, error) {
	st := &tilebin.Store{}
	for i, rs := range s.Rects {
		r, err := rs.Rect()
		if err != nil {
			return nil, fmt.Errorf("scenefile: rect %d: %w", i, err)
		}
		st.AddRect(r)
	}
	if len(s.Glyphs) > 0 && text == nil {
		return nil, errors.New("scenefile: scene has glyphs but no text layout")
	}
	for i, gs := range s.Glyphs {
		c, err := parseColor(gs.Color)
		if err != nil {
			return nil, fmt.Errorf("scenefile: glyph run %d: %w", i, err)
		}
		glyphs, err := text.Layout(gs.Text, tilebin.Vec2{X: gs.X, Y: gs.Y}, c)
		if err != nil {
			return nil, fmt.Errorf("scenefile: glyph run %d: %w", i, err)
		}
		for _, g := range glyphs {
			st.AddGlyph(g)
		}
	}
	return st, nil
}

// Rect converts rs to a tilebin.Rect.
func (rs RectSpec) Rect() (tilebin.Rect, error) {
	fill, err := parseColor(rs.Fill)
	if err != nil {
		return tilebin.Rect{}, err
	}
	stroke, err := parseColor(rs.Stroke)
	if err != nil {
		return tilebin.Rect{}, err
	}

	r := tilebin.Rect{
		Min:         tilebin.Vec2{X: rs.X, Y: rs.Y},
		Max:         tilebin.Vec2{X: rs.X + rs.W, Y: rs.Y + rs.H},
		BorderWidth: rs.Border,
		Background:  fill,
		Border:      stroke,
	}
	for _, v := range rs.Radii {
		if v < 0 || v > tilebin.MaxRadius {
			return tilebin.Rect{}, fmt.Errorf("radius %d outside [0, %d]", v, tilebin.MaxRadius)
		}
	}
	switch len(rs.Radii) {
	case 0:
	case 1:
		r.Radii = tilebin.UniformRadii(uint8(rs.Radii[0]))
	case 4:
		for i, v := range rs.Radii {
			r.Radii[i] = uint8(v)
		}
	default:
		return tilebin.Rect{}, fmt.Errorf("radii: want 1 or 4 values, got %d", len(rs.Radii))
	}
	return r, nil
}

func parseColor(s string) (tilebin.Color, error) {
	if s == "" {
		return 0, nil
	}
	return tilebin.ParseHex(s)
}

// Random returns a seeded scene of n primitives on a w x h screen: mostly
// rounded, some bordered rects and single-letter glyph runs, scattered
// slightly past the screen edges.
func Random(n, w, h int, seed uint64) *Scene {
	rng := rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
	s := &Scene{Width: w, Height: h, Background: "#ffffff", FontSize: 16}
	color := func(alpha uint32) string {
		return fmt.Sprintf("#%06x%02x", rng.Uint32()&0xffffff, alpha)
	}
	for i := range n {
		x := rng.Float32()*float32(w+64) - 32
		y := rng.Float32()*float32(h+64) - 32
		if i%4 == 3 {
			s.Glyphs = append(s.Glyphs, GlyphSpec{
				X:     x,
				Y:     y,
				Text:  string(rune('A' + rng.IntN(26))),
				Color: color(0xff),
			})
			continue
		}
		rs := RectSpec{
			X:     x,
			Y:     y,
			W:     4 + rng.Float32()*96,
			H:     4 + rng.Float32()*64,
			Radii: []int{rng.IntN(12)},
			Fill:  color(0x80 + rng.Uint32()%0x80),
		}
		if rng.IntN(3) == 0 {
			rs.Border = uint8(1 + rng.IntN(4))
			rs.Stroke = color(0xff)
		}
		s.Rects = append(s.Rects, rs)
	}
	return s
}
