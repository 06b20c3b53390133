package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload to guard against a malformed
// or hostile peer forcing an unbounded allocation.
const MaxFrameSize = 16 << 20 // 16 MiB

// ErrFrameTooLarge is returned by ReadFrame when the advertised length
// exceeds MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("ipc: frame exceeds max size of %d bytes", MaxFrameSize)

// WriteFrame writes a single 4-byte big-endian length prefix followed by
// payload to w. It is the only synchronization primitive between the
// orchestrator and a worker: whatever writes a complete frame, the other
// side eventually reads a complete frame, and nothing in between is ever
// observed.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("ipc: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed frame from r. It blocks until a
// complete frame is available, the connection closes, or an error occurs.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if n == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("ipc: read frame payload: %w", err)
	}
	return payload, nil
}
