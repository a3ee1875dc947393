package scalar

import (
	"bytes"

	"github.com/cockroachdb/errors"
)

const (
	// Capacity is the storage size of a String, terminator included.
	Capacity = 1024
	// MaxLen is the longest content a String can hold.
	MaxLen = Capacity - 1
)

// String is a fixed-capacity byte string. The zero value is the empty string.
// Strings are comparable with ==.
type String struct {
	buf [Capacity]byte
	n   int
}

// NewString copies s into a String. It fails when s is longer than MaxLen or holds a NUL.
func NewString(s string) (String, error) {
	var st String
	if err := st.Set(s); err != nil {
		return String{}, err
	}
	return st, nil
}

// MustString is NewString for literals known to fit.
func MustString(s string) String {
	st, err := NewString(s)
	if err != nil {
		panic(err)
	}
	return st
}

// Set replaces the content of st. st is left unchanged on error.
func (st *String) Set(s string) error {
	if len(s) > MaxLen {
		return errors.Wrapf(ErrTooLong, "%d bytes, max %d", len(s), MaxLen)
	}
	if i := indexNUL(s); i >= 0 {
		return errors.Wrapf(ErrNUL, "offset %d", i)
	}
	st.n = copy(st.buf[:], s)
	clear(st.buf[st.n:])
	return nil
}

// SetBytes is Set for a byte slice.
func (st *String) SetBytes(b []byte) error {
	if len(b) > MaxLen {
		return errors.Wrapf(ErrTooLong, "%d bytes, max %d", len(b), MaxLen)
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return errors.Wrapf(ErrNUL, "offset %d", i)
	}
	st.n = copy(st.buf[:], b)
	clear(st.buf[st.n:])
	return nil
}

func (st String) String() string { return string(st.buf[:st.n]) }

// Bytes returns the content. The slice aliases st when st is addressable.
func (st *String) Bytes() []byte { return st.buf[:st.n] }

func (st String) Len() int { return st.n }

func indexNUL(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return i
		}
	}
	return -1
}
