package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame's payload to guard against a
// corrupted or adversarial length prefix exhausting memory.
const MaxFrameSize = 32 * 1024 * 1024

// Encode gob-encodes msg and returns it framed as a 4-byte big-endian
// length prefix followed by the payload (spec.md §6 "Wire frame").
func Encode(msg Message) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(msg); err != nil {
		return nil, fmt.Errorf("wire: encode message: %w", err)
	}

	frame := make([]byte, 4+payload.Len())
	binary.BigEndian.PutUint32(frame[:4], uint32(payload.Len()))
	copy(frame[4:], payload.Bytes())
	return frame, nil
}

// WriteMessage frames and writes msg to w in one call.
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one length-prefixed frame from r and decodes it. It
// blocks until a full frame is available, an error occurs, or r is closed.
func ReadMessage(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return Message{}, fmt.Errorf("wire: frame of %d bytes exceeds %d byte limit", length, MaxFrameSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, fmt.Errorf("wire: read frame payload: %w", err)
	}

	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("wire: decode message: %w", err)
	}
	return msg, nil
}
