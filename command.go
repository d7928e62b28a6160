package tilebin

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CmdWords is the fixed payload size of a command record. Every variant
// must fit; a larger variant is a breaking format change.
const CmdWords = 7

// CmdBytes is the wire size of one command record.
const CmdBytes = (1 + CmdWords) * 4

// invalidTag marks records that decode to nothing.
const invalidTag = math.MaxUint32

var (
	// ErrUnknownCommand is returned when decoding a record whose tag is not
	// a known Kind.
	ErrUnknownCommand = errors.New("tilebin: unknown command tag")

	// ErrKindMismatch is returned by DecodeRect and DecodeGlyph for a
	// record of the other kind.
	ErrKindMismatch = errors.New("tilebin: command kind mismatch")

	// ErrShortCommands is returned by ParseCommands for a byte slice that is
	// not a whole number of records.
	ErrShortCommands = errors.New("tilebin: truncated command buffer")
)

// Cmd is a self-contained primitive record: a kind tag and seven payload
// words. Float fields are stored as their IEEE-754 bit patterns.
//
// Rect payload:
//
//	0..3  min.x, min.y, max.x, max.y
//	4     radii and border width (see PackRadii)
//	5     border color
//	6     background color
//
// Glyph payload:
//
//	0     glyph metrics index
//	1..2  position.x, position.y
//	3     color
//	4..6  zero
type Cmd struct {
	Tag   uint32
	Words [CmdWords]uint32
}

// PackRadii packs corner radii into 6-bit fields (top-left in bits 0..5,
// then clockwise) and the border width into bits 24..31. Radii above
// MaxRadius are clamped.
func PackRadii(radii CornerRadii, borderWidth uint8) uint32 {
	var w uint32
	for i, r := range radii {
		w |= uint32(min(r, MaxRadius)) << (6 * i)
	}
	return w | uint32(borderWidth)<<24
}

// UnpackRadii reverses PackRadii.
func UnpackRadii(w uint32) (CornerRadii, uint8) {
	var radii CornerRadii
	for i := range radii {
		radii[i] = uint8(w >> (6 * i) & MaxRadius)
	}
	return radii, uint8(w >> 24)
}

// EncodeRect encodes r.
func EncodeRect(r Rect) Cmd {
	return Cmd{
		Tag: uint32(KindRect),
		Words: [CmdWords]uint32{
			math.Float32bits(r.Min.X),
			math.Float32bits(r.Min.Y),
			math.Float32bits(r.Max.X),
			math.Float32bits(r.Max.Y),
			PackRadii(r.Radii, r.BorderWidth),
			uint32(r.Border),
			uint32(r.Background),
		},
	}
}

// EncodeGlyph encodes g.
func EncodeGlyph(g Glyph) Cmd {
	return Cmd{
		Tag: uint32(KindGlyph),
		Words: [CmdWords]uint32{
			g.Index,
			math.Float32bits(g.Position.X),
			math.Float32bits(g.Position.Y),
			uint32(g.Color),
		},
	}
}

// Encode encodes a Rect or Glyph. Any other primitive becomes a record
// that decodes to nothing.
func Encode(p Primitive) Cmd {
	switch v := p.(type) {
	case Rect:
		return EncodeRect(v)
	case Glyph:
		return EncodeGlyph(v)
	default:
		return Cmd{Tag: invalidTag}
	}
}

// Kind returns the record's tag as a Kind.
func (c Cmd) Kind() Kind {
	return Kind(c.Tag)
}

// Decode returns the primitive c describes. Unknown tags yield an error
// wrapping ErrUnknownCommand.
func (c Cmd) Decode() (Primitive, error) {
	switch c.Kind() {
	case KindRect:
		return c.rect(), nil
	case KindGlyph:
		return c.glyph(), nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrUnknownCommand, c.Tag)
	}
}

// DecodeRect decodes a rect record.
func (c Cmd) DecodeRect() (Rect, error) {
	if c.Kind() != KindRect {
		return Rect{}, fmt.Errorf("%w: want rect, got %v", ErrKindMismatch, c.Kind())
	}
	return c.rect(), nil
}

// DecodeGlyph decodes a glyph record.
func (c Cmd) DecodeGlyph() (Glyph, error) {
	if c.Kind() != KindGlyph {
		return Glyph{}, fmt.Errorf("%w: want glyph, got %v", ErrKindMismatch, c.Kind())
	}
	return c.glyph(), nil
}

func (c Cmd) rect() Rect {
	radii, border := UnpackRadii(c.Words[4])
	return Rect{
		Min:         Vec2{math.Float32frombits(c.Words[0]), math.Float32frombits(c.Words[1])},
		Max:         Vec2{math.Float32frombits(c.Words[2]), math.Float32frombits(c.Words[3])},
		Radii:       radii,
		BorderWidth: border,
		Border:      Color(c.Words[5]),
		Background:  Color(c.Words[6]),
	}
}

func (c Cmd) glyph() Glyph {
	return Glyph{
		Index:    c.Words[0],
		Position: Vec2{math.Float32frombits(c.Words[1]), math.Float32frombits(c.Words[2])},
		Color:    Color(c.Words[3]),
	}
}

// CommandList is the command-encoded form of a frame. It implements Source.
type CommandList []Cmd

// Len implements Source.
func (l CommandList) Len() int {
	return len(l)
}

// Primitive implements Source.
func (l CommandList) Primitive(i int) (Primitive, error) {
	return l[i].Decode()
}

// Words returns the records as a flat little-endian-ordered word slice,
// eight words per record. This is the GPU upload layout.
func (l CommandList) Words() []uint32 {
	out := make([]uint32, 0, len(l)*(1+CmdWords))
	for _, c := range l {
		out = append(out, c.Tag)
		out = append(out, c.Words[:]...)
	}
	return out
}

// Bytes returns the little-endian wire form of the list.
func (l CommandList) Bytes() []byte {
	buf := make([]byte, 0, len(l)*CmdBytes)
	for _, w := range l.Words() {
		buf = binary.LittleEndian.AppendUint32(buf, w)
	}
	return buf
}

// ParseCommands decodes the wire form produced by Bytes.
func ParseCommands(b []byte) (CommandList, error) {
	if len(b)%CmdBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortCommands, len(b))
	}
	le := binary.LittleEndian
	out := make(CommandList, len(b)/CmdBytes)
	for i := range out {
		rec := b[i*CmdBytes:]
		out[i].Tag = le.Uint32(rec)
		for w := range CmdWords {
			out[i].Words[w] = le.Uint32(rec[4+4*w:])
		}
	}
	return out, nil
}
