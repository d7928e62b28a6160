package tilebin

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for an instance whose kind is neither rect
	// nor glyph.
	ErrUnknownKind = errors.New("tilebin: unknown primitive kind")

	// ErrBadIndex is returned for an instance pointing past its array.
	ErrBadIndex = errors.New("tilebin: primitive index out of range")
)

// Source is a frame's primitive list in submission order. The binner reads
// it concurrently and never modifies it.
type Source interface {
	// Len returns the number of primitives.
	Len() int

	// Primitive returns primitive i. An error marks a primitive that cannot
	// be drawn; the binner treats it as covering nothing.
	Primitive(i int) (Primitive, error)
}

// Store is the typed-instance encoding of a frame: one array per primitive
// kind and a list of instances referencing them by kind and index.
// Submission order is instance order.
type Store struct {
	Rects     []Rect
	Glyphs    []Glyph
	Instances []Instance
}

// AddRect appends r and an instance for it, returning the instance index.
func (s *Store) AddRect(r Rect) int {
	s.Rects = append(s.Rects, r)
	s.Instances = append(s.Instances, Instance{Kind: KindRect, Index: uint32(len(s.Rects) - 1)})
	return len(s.Instances) - 1
}

// AddGlyph appends g and an instance for it, returning the instance index.
func (s *Store) AddGlyph(g Glyph) int {
	s.Glyphs = append(s.Glyphs, g)
	s.Instances = append(s.Instances, Instance{Kind: KindGlyph, Index: uint32(len(s.Glyphs) - 1)})
	return len(s.Instances) - 1
}

// Reset empties the store, keeping its capacity for the next frame.
func (s *Store) Reset() {
	s.Rects = s.Rects[:0]
	s.Glyphs = s.Glyphs[:0]
	s.Instances = s.Instances[:0]
}

// Len implements Source.
func (s *Store) Len() int {
	return len(s.Instances)
}

// Primitive implements Source.
func (s *Store) Primitive(i int) (Primitive, error) {
	inst := s.Instances[i]
	switch inst.Kind {
	case KindRect:
		if int64(inst.Index) >= int64(len(s.Rects)) {
			return nil, fmt.Errorf("%w: rect %d of %d", ErrBadIndex, inst.Index, len(s.Rects))
		}
		return s.Rects[inst.Index], nil
	case KindGlyph:
		if int64(inst.Index) >= int64(len(s.Glyphs)) {
			return nil, fmt.Errorf("%w: glyph %d of %d", ErrBadIndex, inst.Index, len(s.Glyphs))
		}
		return s.Glyphs[inst.Index], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint32(inst.Kind))
	}
}

// Commands encodes the store as a command list in instance order.
// Instances that cannot be resolved become unknown-tag records, which
// decode to nothing.
func (s *Store) Commands() CommandList {
	out := make(CommandList, len(s.Instances))
	for i := range s.Instances {
		p, err := s.Primitive(i)
		if err != nil {
			out[i] = Cmd{Tag: invalidTag}
			continue
		}
		out[i] = Encode(p)
	}
	return out
}
