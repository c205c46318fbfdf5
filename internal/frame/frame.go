// Package frame implements the length-prefixed binary framing used on the
// wire: a 4-byte big-endian payload length followed by the payload bytes.
// The framing carries no semantics of its own; payload interpretation lives
// in the proto package.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxPayload bounds how large a single payload may be. Receivers
// reject any announced length above their cap before reading the body.
const DefaultMaxPayload = 64 * 1024

var (
	// ErrConnectionBroken is returned for any partial or failed I/O.
	// No partial frame is ever surfaced to the caller.
	ErrConnectionBroken = errors.New("connection broken")
	// ErrOversized is returned when a peer announces a payload length
	// above the receiver's cap. The body is never read.
	ErrOversized = errors.New("frame exceeds maximum payload length")
)

// Send writes payload as a single frame. A zero-length payload is valid and
// produces a header-only frame.
func Send(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("%w: write length: %v", ErrConnectionBroken, err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: write payload: %v", ErrConnectionBroken, err)
	}
	return nil
}

// Receive reads one frame and returns its payload. The announced length is
// checked against maxLen before any body bytes are read, so a hostile
// length prefix cannot force a large allocation.
func Receive(r io.Reader, maxLen uint32) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: read length: %v", ErrConnectionBroken, err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxLen {
		return nil, fmt.Errorf("%w: announced %d bytes, cap %d", ErrOversized, n, maxLen)
	}
	if n == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrConnectionBroken, err)
	}
	return payload, nil
}
