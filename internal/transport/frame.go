// Package transport carries protocol frames over TCP and websockets.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mcoot/relaygate/internal/protocol"
)

// ErrFrameTooLarge is returned when a length prefix exceeds protocol.MaxFrameSize
var ErrFrameTooLarge = errors.New("frame length exceeds maximum")

const lengthPrefixSize = 4

// WriteFrame writes frame to w behind a big-endian uint32 length prefix
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > protocol.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	buf := make([]byte, lengthPrefixSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[lengthPrefixSize:], frame)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame from r
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > protocol.MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
