package protocol

import (
	"bytes"
	"errors"
	"io"
)

const (
	// MaxFrameSize is the maximum allowed frame size (1 MB)
	MaxFrameSize = 1024 * 1024

	// ProtocolVersion is the current protocol version
	ProtocolVersion = 1
)

var (
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size (1 MB)")
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Frame represents one message on the wire.
// Format: [Length (4 bytes, big-endian)][Version (1 byte)][Type (1 byte)][Payload (N bytes)]
// The length covers version, type and payload.
type Frame struct {
	Version uint8
	Type    uint8
	Payload []byte
}

// EncodeFrame writes a frame to the writer. If the writer exposes
// Flush() error (e.g. *bufio.Writer), it is flushed after the frame
// so a complete frame is always on the wire when this returns.
func EncodeFrame(w io.Writer, f *Frame) error {
	// Length: version (1) + type (1) + payload (N)
	length := uint32(1 + 1 + len(f.Payload))

	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	if err := WriteUint32(w, length); err != nil {
		return err
	}
	if err := WriteUint8(w, f.Version); err != nil {
		return err
	}
	if err := WriteUint8(w, f.Type); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}

	type flusher interface {
		Flush() error
	}
	if fl, ok := w.(flusher); ok {
		return fl.Flush()
	}

	return nil
}

// DecodeFrame reads one frame from the reader. A clean peer close before
// any byte of a new frame surfaces as io.EOF; a close after the length
// prefix but before the full payload is a read error (mid-frame EOF).
func DecodeFrame(r io.Reader) (*Frame, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}

	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	// Length must cover at least version + type
	if length < 2 {
		return nil, ErrInvalidFrameLength
	}

	version, err := ReadUint8(r)
	if err != nil {
		return nil, midFrameErr(err)
	}

	msgType, err := ReadUint8(r)
	if err != nil {
		return nil, midFrameErr(err)
	}

	payloadLen := length - 2
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, midFrameErr(err)
		}
	}

	return &Frame{
		Version: version,
		Type:    msgType,
		Payload: payload,
	}, nil
}

// midFrameErr converts an EOF seen after the length prefix into
// io.ErrUnexpectedEOF so callers can distinguish it from a clean close.
func midFrameErr(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// EncodeMessage is a helper that encodes a frame to a byte slice.
func EncodeMessage(version, msgType uint8, payload []byte) ([]byte, error) {
	frame := &Frame{
		Version: version,
		Type:    msgType,
		Payload: payload,
	}

	buf := new(bytes.Buffer)
	if err := EncodeFrame(buf, frame); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeMessage is a helper that decodes a frame from a byte slice.
func DecodeMessage(data []byte) (*Frame, error) {
	buf := bytes.NewReader(data)
	return DecodeFrame(buf)
}
