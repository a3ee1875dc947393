// Package scalar converts the primitive field values carried by messages to and from their
// canonical wire text.
//
// Three scalar types exist:
//
//	Integer  int32    rendered with %d
//	Float    float32  rendered with %.4f, parsed from any float text
//	Text     String   bounded byte string, copied verbatim
//
// Rendering follows a two-pass protocol. Calling Render with an empty destination is the
// measurement mode: it returns the number of bytes the rendered text needs, including one
// terminator byte, and writes nothing. Callers size an exact buffer from that answer and
// render again.
package scalar

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Type identifies the scalar type of a message field.
type Type uint8

const (
	Integer Type = iota
	Float
	Text
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Text:
		return "string"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

var (
	ErrUnsupported = errors.New("scalar: unsupported value type")
	ErrNoSpace     = errors.New("scalar: destination too small")
	ErrParse       = errors.New("scalar: malformed text")
	ErrTooLong     = errors.New("scalar: string exceeds capacity")
	ErrNUL         = errors.New("scalar: string contains NUL byte")
)

// TypeOf reports the scalar type of v, which may be a supported value or a pointer to one.
func TypeOf(v any) (Type, error) {
	switch v.(type) {
	case int32, *int32:
		return Integer, nil
	case float32, *float32:
		return Float, nil
	case String, *String:
		return Text, nil
	default:
		return 0, errors.Wrapf(ErrUnsupported, "%T", v)
	}
}

// Render writes the canonical text of v into dst followed by a terminator byte and returns
// the text length. With an empty dst it returns the required size including the terminator.
func Render(dst []byte, v any) (int, error) {
	var scratch [32]byte
	text, err := appendText(scratch[:0], v)
	if err != nil {
		return 0, err
	}
	if len(dst) == 0 {
		return len(text) + 1, nil
	}
	if len(dst) <= len(text) {
		return 0, errors.Wrapf(ErrNoSpace, "need %d bytes, have %d", len(text)+1, len(dst))
	}
	n := copy(dst, text)
	dst[n] = 0
	return n, nil
}

// Measure returns the buffer size Render needs for v, terminator included.
func Measure(v any) (int, error) {
	return Render(nil, v)
}

// Format renders v into a freshly sized buffer using the measure-then-render protocol.
func Format(v any) (string, error) {
	size, err := Measure(v)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	n, err := Render(buf, v)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

func appendText(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case int32:
		return strconv.AppendInt(dst, int64(x), 10), nil
	case *int32:
		return strconv.AppendInt(dst, int64(*x), 10), nil
	case float32:
		return strconv.AppendFloat(dst, float64(x), 'f', 4, 32), nil
	case *float32:
		return strconv.AppendFloat(dst, float64(*x), 'f', 4, 32), nil
	case String:
		return x.Bytes(), nil
	case *String:
		return x.Bytes(), nil
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%T", v)
	}
}

// Parse converts text into the value dst points to. dst must be *int32, *float32 or *String.
func Parse(text []byte, dst any) error {
	switch x := dst.(type) {
	case *int32:
		i, err := strconv.ParseInt(string(text), 10, 32)
		if err != nil {
			return errors.Wrapf(ErrParse, "integer %q", text)
		}
		*x = int32(i)
		return nil
	case *float32:
		f, err := strconv.ParseFloat(string(text), 32)
		if err != nil {
			return errors.Wrapf(ErrParse, "float %q", text)
		}
		*x = float32(f)
		return nil
	case *String:
		return x.SetBytes(text)
	default:
		return errors.Wrapf(ErrUnsupported, "%T", dst)
	}
}
