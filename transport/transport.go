// Package transport provides the exact-byte read and write primitives the message codec is
// built on.
//
// The codec never talks to a socket directly. It calls ReadExact and WriteExact on whatever
// it was handed: a TCP Conn, a Stream over a bytes.Buffer in tests, or a pair of closures.
//
//	codec ──WriteExact──► Conn ──► net.Conn
//	codec ◄──ReadExact─── Stream ◄── bytes.Buffer
package transport

import (
	"io"
	"syscall"

	"github.com/cockroachdb/errors"
)

// maxEmptyReads bounds how many consecutive (0, nil) reads are tolerated before giving up,
// matching the limit bufio uses for misbehaving readers.
const maxEmptyReads = 100

var ErrClosed = errors.New("transport: connection closed")

// ExactReader fills p completely or fails.
type ExactReader interface {
	ReadExact(p []byte) error
}

// ExactWriter writes all of p or fails.
type ExactWriter interface {
	WriteExact(p []byte) error
}

// ReadFunc adapts a closure to ExactReader.
type ReadFunc func(p []byte) error

func (f ReadFunc) ReadExact(p []byte) error { return f(p) }

// WriteFunc adapts a closure to ExactWriter.
type WriteFunc func(p []byte) error

func (f WriteFunc) WriteExact(p []byte) error { return f(p) }

// ReadExact reads exactly len(p) bytes from r. Interrupted calls and short reads without an
// error are retried. EOF before any byte is io.EOF, EOF part way is io.ErrUnexpectedEOF.
func ReadExact(r io.Reader, p []byte) error {
	read, empty := 0, 0
	for read < len(p) {
		n, err := r.Read(p[read:])
		read += n
		if read == len(p) {
			return nil
		}
		switch {
		case err == nil:
			if n > 0 {
				empty = 0
				continue
			}
			empty++
			if empty >= maxEmptyReads {
				return io.ErrNoProgress
			}
		case errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, io.EOF):
			if read == 0 {
				return io.EOF
			}
			return io.ErrUnexpectedEOF
		default:
			return errors.Wrapf(err, "read %d of %d bytes", read, len(p))
		}
	}
	return nil
}

// WriteExact writes all of p to w. Interrupted calls are retried, and a short write without an
// error resumes from where it stopped. A write that makes no progress fails with
// io.ErrShortWrite; a partial write is never reported as success.
func WriteExact(w io.Writer, p []byte) error {
	written := 0
	for written < len(p) {
		n, err := w.Write(p[written:])
		written += n
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return errors.Wrapf(err, "wrote %d of %d bytes", written, len(p))
		}
		if n == 0 {
			return errors.Wrapf(io.ErrShortWrite, "wrote %d of %d bytes", written, len(p))
		}
	}
	return nil
}

// Stream adapts an io.ReadWriter to ExactReader and ExactWriter.
type Stream struct {
	rw io.ReadWriter
}

func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{rw: rw}
}

func (s *Stream) ReadExact(p []byte) error  { return ReadExact(s.rw, p) }
func (s *Stream) WriteExact(p []byte) error { return WriteExact(s.rw, p) }
