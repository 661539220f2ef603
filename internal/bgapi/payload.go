package bgapi

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/thermo/internal/ncp"
)

// PayloadReader reads little-endian fields from a payload. The first short read
// sticks: later reads return zero values and Err reports ErrShortFrame.
type PayloadReader struct {
	b   []byte
	err error
}

// NewPayloadReader creates a reader over b.
func NewPayloadReader(b []byte) *PayloadReader {
	return &PayloadReader{b: b}
}

func (r *PayloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrShortFrame, n, len(r.b))
		return nil
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *PayloadReader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *PayloadReader) I8() int8 {
	return int8(r.U8())
}

func (r *PayloadReader) U16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *PayloadReader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// Address reads a 6-byte device address.
func (r *PayloadReader) Address() ncp.Address {
	var a ncp.Address
	if b := r.take(len(a)); b != nil {
		copy(a[:], b)
	}
	return a
}

// Array reads a uint8array: a length byte followed by that many bytes.
// The result is a copy.
func (r *PayloadReader) Array() []byte {
	n := int(r.U8())
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Err returns the first short-read error, if any.
func (r *PayloadReader) Err() error {
	return r.err
}

// PayloadWriter appends little-endian fields to a payload.
type PayloadWriter struct {
	b []byte
}

func (w *PayloadWriter) U8(v uint8) *PayloadWriter {
	w.b = append(w.b, v)
	return w
}

func (w *PayloadWriter) I8(v int8) *PayloadWriter {
	return w.U8(uint8(v))
}

func (w *PayloadWriter) U16(v uint16) *PayloadWriter {
	w.b = binary.LittleEndian.AppendUint16(w.b, v)
	return w
}

func (w *PayloadWriter) U32(v uint32) *PayloadWriter {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
	return w
}

func (w *PayloadWriter) Address(a ncp.Address) *PayloadWriter {
	w.b = append(w.b, a[:]...)
	return w
}

// Array appends a uint8array. Only the first 255 bytes of v fit.
func (w *PayloadWriter) Array(v []byte) *PayloadWriter {
	if len(v) > 0xff {
		v = v[:0xff]
	}
	w.b = append(w.b, uint8(len(v)))
	w.b = append(w.b, v...)
	return w
}

// Bytes returns the payload built so far.
func (w *PayloadWriter) Bytes() []byte {
	return w.b
}
