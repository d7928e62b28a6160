package scenefile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/tilebin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlScene = `
width: 320
height: 200
background: "#202020"
rects:
  - {x: 10, y: 20, w: 100, h: 50, radii: [4], fill: "#ff0000"}
  - {x: 50, y: 60, w: 30, h: 30, radii: [1, 2, 3, 4], border: 2, fill: "#00ff0080", stroke: "#000"}
glyphs:
  - {x: 5, y: 180, text: "hi", color: "#ffffff"}
`

const tomlScene = `
width = 320
height = 200
background = "#202020"

[[rects]]
x = 10.0
y = 20.0
w = 100.0
h = 50.0
radii = [4]
fill = "#ff0000"

[[rects]]
x = 50.0
y = 60.0
w = 30.0
h = 30.0
radii = [1, 2, 3, 4]
border = 2
fill = "#00ff0080"
stroke = "#000"

[[glyphs]]
x = 5.0
y = 180.0
text = "hi"
color = "#ffffff"
`

// fakeLayout places one glyph per rune, 10 pixels apart.
type fakeLayout struct{}

func (fakeLayout) Layout(s string, origin tilebin.Vec2, c tilebin.Color) ([]tilebin.Glyph, error) {
	var out []tilebin.Glyph
	for i, r := range []rune(s) {
		out = append(out, tilebin.Glyph{
			Position: tilebin.Vec2{X: origin.X + float32(10*i), Y: origin.Y},
			Index:    uint32(r),
			Color:    c,
		})
	}
	return out, nil
}

func checkScene(t *testing.T, s *Scene) {
	t.Helper()
	assert.Equal(t, 320, s.Width)
	assert.Equal(t, 200, s.Height)
	require.Len(t, s.Rects, 2)
	require.Len(t, s.Glyphs, 1)
	assert.Equal(t, []int{1, 2, 3, 4}, s.Rects[1].Radii)
	assert.Equal(t, uint8(2), s.Rects[1].Border)
	assert.Equal(t, "hi", s.Glyphs[0].Text)

	bg, err := s.BackgroundColor()
	require.NoError(t, err)
	assert.Equal(t, tilebin.RGBA(0x20, 0x20, 0x20, 0xff), bg)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"yaml", yamlScene, YAML},
		{"toml", tomlScene, TOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode(strings.NewReader(tt.data), tt.format)
			require.NoError(t, err)
			checkScene(t, s)
		})
	}
}

func TestDecodeDefaults(t *testing.T) {
	s, err := Decode(strings.NewReader(""), YAML)
	require.NoError(t, err)
	assert.Equal(t, DefaultWidth, s.Width)
	assert.Equal(t, DefaultHeight, s.Height)
	assert.Empty(t, s.Rects)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode(strings.NewReader("width: [oops"), YAML)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader("width = "), TOML)
	assert.Error(t, err)

	_, err = Decode(strings.NewReader(""), Format("json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"scene.yaml": yamlScene,
		"scene.YML":  yamlScene,
		"scene.toml": tomlScene,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
			s, err := Load(path)
			require.NoError(t, err)
			checkScene(t, s)
		})
	}

	_, err := Load(filepath.Join(dir, "scene.json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEncodeRoundTrip(t *testing.T) {
	want := Random(50, 256, 128, 9)
	for _, format := range []Format{YAML, TOML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, want, format))
			got, err := Decode(&buf, format)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
	assert.ErrorIs(t, Encode(&bytes.Buffer{}, want, "xml"), ErrUnsupportedFormat)
}

func TestStore(t *testing.T) {
	s, err := Decode(strings.NewReader(yamlScene), YAML)
	require.NoError(t, err)

	st, err := s.Store(fakeLayout{})
	require.NoError(t, err)
	require.Equal(t, 4, st.Len())

	p, err := st.Primitive(1)
	require.NoError(t, err)
	r, ok := p.(tilebin.Rect)
	require.True(t, ok)
	assert.Equal(t, tilebin.Vec2{X: 50, Y: 60}, r.Min)
	assert.Equal(t, tilebin.Vec2{X: 80, Y: 90}, r.Max)
	assert.Equal(t, tilebin.CornerRadii{1, 2, 3, 4}, r.Radii)
	assert.Equal(t, uint8(2), r.BorderWidth)
	assert.Equal(t, tilebin.RGBA(0, 0xff, 0, 0x80), r.Background)
	assert.Equal(t, tilebin.RGBA(0, 0, 0, 0xff), r.Border)

	p, err = st.Primitive(3)
	require.NoError(t, err)
	g, ok := p.(tilebin.Glyph)
	require.True(t, ok)
	assert.Equal(t, uint32('i'), g.Index)
	assert.Equal(t, tilebin.Vec2{X: 15, Y: 180}, g.Position)
}

func TestStoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		scene Scene
		want  error
	}{
		{"bad fill", Scene{Rects: []RectSpec{{Fill: "#nothex"}}}, tilebin.ErrBadColor},
		{"bad glyph color", Scene{Glyphs: []GlyphSpec{{Text: "a", Color: "red"}}}, tilebin.ErrBadColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.scene.Store(fakeLayout{})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := (&Scene{Rects: []RectSpec{{Radii: []int{64}}}}).Store(nil)
	assert.Error(t, err)
	_, err = (&Scene{Rects: []RectSpec{{Radii: []int{1, 2}}}}).Store(nil)
	assert.Error(t, err)
	_, err = (&Scene{Glyphs: []GlyphSpec{{Text: "a"}}}).Store(nil)
	assert.Error(t, err)
}

func TestRandom(t *testing.T) {
	a := Random(1000, 640, 480, 42)
	b := Random(1000, 640, 480, 42)
	assert.Equal(t, a, b, "same seed must give the same scene")
	assert.Equal(t, 1000, len(a.Rects)+len(a.Glyphs))

	c := Random(1000, 640, 480, 43)
	assert.NotEqual(t, a, c)

	st, err := a.Store(fakeLayout{})
	require.NoError(t, err)
	assert.Equal(t, 1000, st.Len())
	for i := range st.Len() {
		_, err := st.Primitive(i)
		require.NoError(t, err)
	}
}
