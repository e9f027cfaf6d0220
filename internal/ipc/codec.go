// Package ipc carries the biometrics capability over a byte stream. Each
// frame is a little-endian uint32 length followed by that many bytes of
// JSON, which is also the browser native messaging wire format.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame body.
const MaxFrameSize = 1 << 20

var (
	// ErrFrameTooLarge is returned for frames above MaxFrameSize. The
	// stream cannot be resynchronised afterwards.
	ErrFrameTooLarge = errors.New("ipc: frame too large")
	// ErrMalformed is returned when a complete frame is not valid JSON for
	// the expected message. The stream stays usable.
	ErrMalformed = errors.New("ipc: malformed frame")
)

// WriteFrame encodes v as JSON and writes it as one frame.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	frame := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame and decodes it into v. A stream that ends
// cleanly before a frame starts returns io.EOF.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read header: %w", err)
	}

	n := binary.LittleEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
