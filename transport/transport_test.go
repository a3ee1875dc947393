package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

// trickleReader returns at most one byte per call and interleaves empty reads and EINTR.
type trickleReader struct {
	data  []byte
	calls int
}

func (r *trickleReader) Read(p []byte) (int, error) {
	r.calls++
	switch r.calls % 3 {
	case 1:
		return 0, nil
	case 2:
		return 0, syscall.EINTR
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReadExactRetriesShortAndInterruptedReads(t *testing.T) {
	r := &trickleReader{data: []byte("0005pesos")}
	buf := make([]byte, 9)
	if err := ReadExact(r, buf); err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if string(buf) != "0005pesos" {
		t.Fatalf("got %q", buf)
	}
}

func TestReadExactEOF(t *testing.T) {
	if err := ReadExact(bytes.NewReader(nil), make([]byte, 4)); err != io.EOF {
		t.Fatalf("empty source: expect io.EOF, got %v", err)
	}
	if err := ReadExact(bytes.NewReader([]byte("00")), make([]byte, 4)); err != io.ErrUnexpectedEOF {
		t.Fatalf("short source: expect io.ErrUnexpectedEOF, got %v", err)
	}
}

type stuckReader struct{}

func (stuckReader) Read(p []byte) (int, error) { return 0, nil }

func TestReadExactNoProgress(t *testing.T) {
	if err := ReadExact(stuckReader{}, make([]byte, 1)); err != io.ErrNoProgress {
		t.Fatalf("expect io.ErrNoProgress, got %v", err)
	}
}

// choppyWriter accepts at most max bytes per call and reports EINTR every other call.
type choppyWriter struct {
	bytes.Buffer
	max   int
	calls int
}

func (w *choppyWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls%2 == 0 {
		return 0, syscall.EINTR
	}
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.Buffer.Write(p)
}

func TestWriteExactResumesPartialWrites(t *testing.T) {
	w := &choppyWriter{max: 3}
	if err := WriteExact(w, []byte("0019Santiago del Estero")); err != nil {
		t.Fatalf("WriteExact: %v", err)
	}
	if w.String() != "0019Santiago del Estero" {
		t.Fatalf("got %q", w.String())
	}
}

type deadWriter struct{}

func (deadWriter) Write(p []byte) (int, error) { return 0, nil }

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 1, syscall.EPIPE }

func TestWriteExactFailures(t *testing.T) {
	if err := WriteExact(deadWriter{}, []byte("x")); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expect io.ErrShortWrite, got %v", err)
	}
	if err := WriteExact(brokenWriter{}, []byte("xyz")); !errors.Is(err, syscall.EPIPE) {
		t.Fatalf("expect EPIPE, got %v", err)
	}
}

func TestStreamAndFuncAdapters(t *testing.T) {
	var buf bytes.Buffer
	s := NewStream(&buf)
	if err := s.WriteExact([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 3)
	if err := s.ReadExact(out); err != nil || string(out) != "abc" {
		t.Fatalf("stream round trip: %v %q", err, out)
	}

	var got []byte
	w := WriteFunc(func(p []byte) error { got = append(got, p...); return nil })
	if err := w.WriteExact([]byte("hi")); err != nil || string(got) != "hi" {
		t.Fatalf("WriteFunc: %v %q", err, got)
	}
	r := ReadFunc(func(p []byte) error { return ReadExact(bytes.NewReader([]byte("ok")), p) })
	if err := r.ReadExact(out[:2]); err != nil || string(out[:2]) != "ok" {
		t.Fatalf("ReadFunc: %v %q", err, out[:2])
	}
}

func TestConnReadTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	c := NewConn(a, 20*time.Millisecond)
	err := c.ReadExact(make([]byte, 1))
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("expect timeout error, got %v", err)
	}
}

func TestConnClosed(t *testing.T) {
	a, b := net.Pipe()
	b.Close()
	a.Close()
	c := NewConn(a, 0)
	if err := c.WriteExact([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
}

func TestConnWatchContext(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	c := NewConn(a, 0)
	ctx, cancel := context.WithCancel(context.Background())
	stop := c.WatchContext(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- c.ReadExact(make([]byte, 1)) }()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expect read to fail after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("read was not unblocked by context cancel")
	}
}

func TestDialAndExchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := NewConn(conn, time.Second)
		buf := make([]byte, 4)
		if sc.ReadExact(buf) == nil {
			_ = sc.WriteExact(buf)
		}
	}()

	c, err := Dial(context.Background(), ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.WriteExact([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 4)
	if err := c.ReadExact(out); err != nil || string(out) != "ping" {
		t.Fatalf("echo: %v %q", err, out)
	}
}
