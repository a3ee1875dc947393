// Package codec serializes schema-described payloads.
//
// Each field is framed independently and fields follow each other in schema order with no
// separator:
//
//	┌────────────┬──────────────────┬────────────┬─────
//	│ len "0005" │ text "pesos"     │ len "0004" │ ...
//	│ 4 digits   │ len bytes        │            │
//	└────────────┴──────────────────┴────────────┴─────
//
// The length is the byte count of the rendered scalar text, zero padded to four ASCII
// digits, so no field can exceed 9999 bytes.
package codec

import (
	"github.com/cockroachdb/errors"

	"portal-rpc/scalar"
	"portal-rpc/schema"
	"portal-rpc/transport"
)

const (
	LengthDigits = 4
	MaxFieldLen  = 9999
)

var (
	ErrBadLength     = errors.New("codec: length prefix is not 4 decimal digits")
	ErrFieldTooLarge = errors.New("codec: field exceeds 9999 bytes")
)

// AppendFrame appends the length prefix and text to dst.
func AppendFrame(dst, text []byte) ([]byte, error) {
	if len(text) > MaxFieldLen {
		return dst, errors.Wrapf(ErrFieldTooLarge, "%d bytes", len(text))
	}
	var prefix [LengthDigits]byte
	putLength(prefix[:], len(text))
	dst = append(dst, prefix[:]...)
	return append(dst, text...), nil
}

// AppendField renders v with the scalar codec and appends it as one frame.
func AppendField(dst []byte, v any) ([]byte, error) {
	size, err := scalar.Measure(v)
	if err != nil {
		return dst, err
	}
	text := make([]byte, size)
	n, err := scalar.Render(text, v)
	if err != nil {
		return dst, err
	}
	return AppendFrame(dst, text[:n])
}

// DecodeLength parses a 4-digit length prefix.
func DecodeLength(b []byte) (int, error) {
	if len(b) != LengthDigits {
		return 0, errors.Wrapf(ErrBadLength, "%d bytes", len(b))
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errors.Wrapf(ErrBadLength, "%q", b)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func putLength(b []byte, n int) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte('0' + n%10)
		n /= 10
	}
}

// AppendMessage appends every field of msg in schema order. On error dst is returned as it
// was before the call.
func AppendMessage[T any](dst []byte, s *schema.Schema[T], msg *T) ([]byte, error) {
	out := dst
	err := schema.ForEachConst(msg, s, func(field any, f schema.Field[T]) error {
		var err error
		out, err = AppendField(out, field)
		return err
	})
	if err != nil {
		return dst, err
	}
	return out, nil
}

// WriteMessage encodes msg and hands it to w in a single WriteExact call, so a failed encode
// never leaves a partial message on the wire.
func WriteMessage[T any](w transport.ExactWriter, s *schema.Schema[T], msg *T) error {
	buf, err := AppendMessage(nil, s, msg)
	if err != nil {
		return err
	}
	return w.WriteExact(buf)
}

// ReadMessage decodes the fields of s from r into msg. A failure at any field aborts the
// whole message; msg may then hold a mix of old and new values and must not be used.
func ReadMessage[T any](r transport.ExactReader, s *schema.Schema[T], msg *T) error {
	var prefix [LengthDigits]byte
	return schema.ForEach(msg, s, func(field any, f schema.Field[T]) error {
		if err := r.ReadExact(prefix[:]); err != nil {
			return err
		}
		n, err := DecodeLength(prefix[:])
		if err != nil {
			return err
		}
		if f.Type == scalar.Text && n > scalar.MaxLen {
			return errors.Wrapf(scalar.ErrTooLong, "declared %d bytes", n)
		}
		text := make([]byte, n)
		if err := r.ReadExact(text); err != nil {
			return err
		}
		return scalar.Parse(text, field)
	})
}
