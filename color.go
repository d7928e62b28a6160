package tilebin

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
)

// ErrBadColor is returned by ParseHex for malformed color strings.
var ErrBadColor = errors.New("tilebin: malformed color")

// Color is a straight-alpha RGBA color packed into 32 bits with red in the
// low byte, the layout unpack4x8unorm expects on the GPU.
type Color uint32

// RGBA packs 8-bit components into a Color.
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24)
}

// FromColor converts any color.Color to a packed Color.
func FromColor(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return RGBA(n.R, n.G, n.B, n.A)
}

// NRGBA unpacks c.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{
		R: uint8(c),
		G: uint8(c >> 8),
		B: uint8(c >> 16),
		A: uint8(c >> 24),
	}
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return c.NRGBA().RGBA()
}

// Alpha returns the alpha component.
func (c Color) Alpha() uint8 {
	return uint8(c >> 24)
}

// ParseHex parses "#rgb", "#rgba", "#rrggbb" or "#rrggbbaa"; the leading
// '#' is optional.
func ParseHex(s string) (Color, error) {
	hex := s
	if hex != "" && hex[0] == '#' {
		hex = hex[1:]
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadColor, s)
	}

	nib := func(shift uint) uint8 { return uint8(v>>shift&0xf) * 17 }
	byt := func(shift uint) uint8 { return uint8(v >> shift) }

	switch len(hex) {
	case 3:
		return RGBA(nib(8), nib(4), nib(0), 255), nil
	case 4:
		return RGBA(nib(12), nib(8), nib(4), nib(0)), nil
	case 6:
		return RGBA(byt(16), byt(8), byt(0), 255), nil
	case 8:
		return RGBA(byt(24), byt(16), byt(8), byt(0)), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
}
