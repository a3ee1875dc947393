// Package protocol implements the envelope that carries one message group value on the wire.
//
// A group is a named, ordered set of variants. Each variant has its own schema and is
// identified by its 0-based declaration ordinal, the discriminant:
//
//	0        1
//	┌────────┬──────────────────────────────────┐
//	│ disc   │ fields of schema[disc] ...       │
//	│ uint8  │ (codec framing)                  │
//	└────────┴──────────────────────────────────┘
//
// The discriminant is checked against the group size on both sides of the wire; a value
// read from a peer is never trusted to index the schema table.
package protocol

import (
	"github.com/cockroachdb/errors"

	"portal-rpc/codec"
	"portal-rpc/schema"
	"portal-rpc/transport"
)

var ErrBadDiscriminant = errors.New("protocol: discriminant out of range")

// Group is the schema table of one message group. T is the in-memory representation that
// holds every variant's payload.
type Group[T any] struct {
	name     string
	variants []*schema.Schema[T]
}

// NewGroup declares a group. Variant ordinals follow argument order.
func NewGroup[T any](name string, variants ...*schema.Schema[T]) *Group[T] {
	if len(variants) > 256 {
		panic("protocol: a group holds at most 256 variants")
	}
	return &Group[T]{name: name, variants: append([]*schema.Schema[T](nil), variants...)}
}

func (g *Group[T]) Name() string { return g.name }

// Len returns the variant count; valid discriminants are [0, Len()).
func (g *Group[T]) Len() int { return len(g.variants) }

// Schema returns the schema of variant d.
func (g *Group[T]) Schema(d uint8) (*schema.Schema[T], error) {
	if int(d) >= len(g.variants) {
		return nil, errors.Wrapf(ErrBadDiscriminant, "%s: %d >= %d", g.name, d, len(g.variants))
	}
	return g.variants[d], nil
}

// Lookup finds a variant by schema name.
func (g *Group[T]) Lookup(name string) (uint8, bool) {
	for i, s := range g.variants {
		if s.Name() == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Append encodes variant d of msg onto dst.
func (g *Group[T]) Append(dst []byte, d uint8, msg *T) ([]byte, error) {
	s, err := g.Schema(d)
	if err != nil {
		return dst, err
	}
	out, err := codec.AppendMessage(append(dst, d), s, msg)
	if err != nil {
		return dst, errors.Wrapf(err, "%s", g.name)
	}
	return out, nil
}

// Write encodes variant d of msg and sends it with a single WriteExact.
func (g *Group[T]) Write(w transport.ExactWriter, d uint8, msg *T) error {
	buf, err := g.Append(nil, d, msg)
	if err != nil {
		return err
	}
	return w.WriteExact(buf)
}

// Read decodes one envelope from r. The discriminant is validated before any payload byte is
// read, and msg is only assigned once the whole payload decoded, so a failed Read leaves msg
// untouched.
func (g *Group[T]) Read(r transport.ExactReader, msg *T) (uint8, error) {
	var tag [1]byte
	if err := r.ReadExact(tag[:]); err != nil {
		return 0, err
	}
	d := tag[0]
	s, err := g.Schema(d)
	if err != nil {
		return 0, err
	}
	var scratch T
	if err := codec.ReadMessage(r, s, &scratch); err != nil {
		return 0, errors.Wrapf(err, "%s", g.name)
	}
	*msg = scratch
	return d, nil
}

// EncodeJSON renders variant d of msg as a JSON object tagged with the variant name.
func (g *Group[T]) EncodeJSON(d uint8, msg *T) ([]byte, error) {
	s, err := g.Schema(d)
	if err != nil {
		return nil, err
	}
	return codec.EncodeJSON(s, msg)
}

// DecodeJSON selects the variant named by the object's type key and decodes it into msg.
// msg is untouched on error.
func (g *Group[T]) DecodeJSON(data []byte, msg *T) (uint8, error) {
	name, err := codec.PeekType(data)
	if err != nil {
		return 0, err
	}
	d, ok := g.Lookup(name)
	if !ok {
		return 0, errors.Wrapf(ErrBadDiscriminant, "%s: unknown variant %q", g.name, name)
	}
	var scratch T
	if err := codec.DecodeJSON(data, g.variants[d], &scratch); err != nil {
		return 0, errors.Wrapf(err, "%s", g.name)
	}
	*msg = scratch
	return d, nil
}
