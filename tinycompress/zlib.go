// Package tinycompress writes zlib streams made of stored (uncompressed)
// DEFLATE blocks. Any zlib reader accepts them, and writing them needs no
// compression tables, which keeps the firmware small.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

const maxStoredBlock = 0xFFFF

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers everything written to it and emits the zlib stream on
// Close.
type Writer struct {
	w      io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer emitting to w. sizeHint preallocates the input
// buffer; allocation during Write can stall some TinyGo schedulers.
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, sizeHint)}
}

// Write buffers p.
func (z *Writer) Write(p []byte) (int, error) {
	if z.closed {
		return 0, ErrClosed
	}
	z.buf = append(z.buf, p...)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer.
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true

	out := make([]byte, 0, StoredSize(len(z.buf)))
	out = append(out, 0x78, 0x01)
	data := z.buf
	for {
		n := min(len(data), maxStoredBlock)
		final := byte(0)
		if n == len(data) {
			final = 1
		}
		l := uint16(n)
		out = append(out, final, byte(l), byte(l>>8), byte(^l), byte(^l>>8))
		out = append(out, data[:n]...)
		data = data[n:]
		if final == 1 {
			break
		}
	}
	sum := adler32.Checksum(z.buf)
	out = append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))

	_, err := z.w.Write(out)
	return err
}

// StoredSize returns the length of the stream holding n input bytes.
func StoredSize(n int) int {
	blocks := n/maxStoredBlock + 1
	if n > 0 && n%maxStoredBlock == 0 {
		blocks--
	}
	return 2 + blocks*5 + n + 4
}

// Compress returns data wrapped in a zlib stream.
func Compress(data []byte) []byte {
	var out sliceWriter
	z := NewWriter(&out, len(data))
	z.buf = append(z.buf, data...)
	_ = z.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
