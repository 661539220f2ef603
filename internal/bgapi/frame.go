// Package bgapi speaks the binary command/event protocol of Silicon Labs
// Bluetooth NCP firmware.
//
// Every message is a frame: a 4-byte header followed by a little-endian
// payload.
//
//	byte 0: bit 7 event flag, bits 6..3 technology type, bits 2..0 length bits 10..8
//	byte 1: length bits 7..0
//	byte 2: class ID
//	byte 3: message ID
//
// Commands and their responses share a class/message ID; events have their own.
package bgapi

import (
	"errors"
	"fmt"
	"io"

	"github.com/smallnest/ringbuffer"
)

const (
	headerLen = 4

	// MaxPayloadLen is the largest payload the length field can carry.
	MaxPayloadLen = 0x7ff

	flagEvent      = 0x80
	techMask       = 0x78
	techBluetooth  = 0x20
	lengthHighMask = 0x07

	defaultReadChunk  = 512
	defaultBufferSize = 4096
)

// Frame is one BGAPI message.
type Frame struct {
	Event   bool
	ID      MessageID
	Payload []byte
}

// MarshalBinary encodes the frame with its header.
func (f Frame) MarshalBinary() ([]byte, error) {
	n := len(f.Payload)
	if n > MaxPayloadLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	b := make([]byte, headerLen+n)
	b[0] = techBluetooth | byte(n>>8)&lengthHighMask
	if f.Event {
		b[0] |= flagEvent
	}
	b[1] = byte(n)
	b[2] = f.ID.Class
	b[3] = f.ID.Message
	copy(b[headerLen:], f.Payload)
	return b, nil
}

func (f Frame) String() string {
	kind := "response"
	if f.Event {
		kind = "event"
	}
	return fmt.Sprintf("%s %s [% x]", kind, f.ID, f.Payload)
}

func validLeadByte(b byte) bool {
	return b&techMask == techBluetooth
}

// FrameReader splits a byte stream into frames.
//
// Reads from the underlying stream land in a ring buffer first, so frame
// boundaries need not line up with read boundaries. Bytes that cannot start a
// Bluetooth frame are skipped until the stream is back in sync.
type FrameReader struct {
	r     io.Reader
	buf   *ringbuffer.RingBuffer
	chunk []byte

	hdr     []byte
	dropped uint64
}

// NewFrameReader creates a FrameReader over r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:     r,
		buf:   ringbuffer.New(defaultBufferSize),
		chunk: make([]byte, defaultReadChunk),
		hdr:   make([]byte, 0, headerLen),
	}
}

// Dropped returns how many bytes were skipped while resynchronising.
func (fr *FrameReader) Dropped() uint64 {
	return fr.dropped
}

// fill performs one read from the underlying stream into the ring buffer.
func (fr *FrameReader) fill() error {
	n, err := fr.r.Read(fr.chunk)
	if n > 0 {
		// A read error that came with data is seen again on the next read.
		if _, werr := fr.buf.Write(fr.chunk[:n]); werr != nil {
			return fmt.Errorf("buffer frame bytes: %w", werr)
		}
		return nil
	}
	return err
}

// ReadFrame blocks until a complete frame is available.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	var one [1]byte
	for len(fr.hdr) < headerLen {
		if fr.buf.IsEmpty() {
			if err := fr.fill(); err != nil {
				return Frame{}, err
			}
			continue
		}
		if _, err := fr.buf.TryRead(one[:]); err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return Frame{}, err
		}
		if len(fr.hdr) == 0 && !validLeadByte(one[0]) {
			fr.dropped++
			continue
		}
		fr.hdr = append(fr.hdr, one[0])
	}

	n := int(fr.hdr[0]&lengthHighMask)<<8 | int(fr.hdr[1])
	for fr.buf.Length() < n {
		if err := fr.fill(); err != nil {
			return Frame{}, err
		}
	}

	f := Frame{
		Event: fr.hdr[0]&flagEvent != 0,
		ID:    MessageID{Class: fr.hdr[2], Message: fr.hdr[3]},
	}
	if n > 0 {
		f.Payload = make([]byte, n)
		if _, err := fr.buf.TryRead(f.Payload); err != nil {
			return Frame{}, err
		}
	}
	fr.hdr = fr.hdr[:0]
	return f, nil
}
