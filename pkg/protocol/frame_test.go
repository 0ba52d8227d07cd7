package protocol

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{
			name: "valid frame - empty payload",
			frame: Frame{
				Version: 1,
				Type:    TypeListUsers,
				Payload: []byte{},
			},
			wantErr: false,
		},
		{
			name: "valid frame - with payload",
			frame: Frame{
				Version: 1,
				Type:    TypeRegister,
				Payload: []byte("alice"),
			},
			wantErr: false,
		},
		{
			name: "max payload size (1MB)",
			frame: Frame{
				Version: 1,
				Type:    TypeSendMessage,
				Payload: make([]byte, MaxFrameSize-2), // Subtract version, type
			},
			wantErr: false,
		},
		{
			name: "oversized payload (should fail)",
			frame: Frame{
				Version: 1,
				Type:    TypeSendMessage,
				Payload: make([]byte, MaxFrameSize),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Encode
			buf := new(bytes.Buffer)
			err := EncodeFrame(buf, &tt.frame)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, ErrFrameTooLarge, err)
				return
			}
			require.NoError(t, err)

			// Decode
			decoded, err := DecodeFrame(buf)
			require.NoError(t, err)

			// Verify round-trip
			assert.Equal(t, tt.frame.Version, decoded.Version)
			assert.Equal(t, tt.frame.Type, decoded.Type)
			assert.Equal(t, tt.frame.Payload, decoded.Payload)
		})
	}
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Run("clean EOF before any byte", func(t *testing.T) {
		buf := bytes.NewReader([]byte{})
		_, err := DecodeFrame(buf)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("oversized frame", func(t *testing.T) {
		// Length field indicates frame larger than MaxFrameSize
		buf := new(bytes.Buffer)
		WriteUint32(buf, MaxFrameSize+1)

		_, err := DecodeFrame(buf)
		assert.Equal(t, ErrFrameTooLarge, err)
	})

	t.Run("invalid frame length (too small)", func(t *testing.T) {
		// Length must be at least 2 (version + type)
		buf := new(bytes.Buffer)
		WriteUint32(buf, 1)

		_, err := DecodeFrame(buf)
		assert.Equal(t, ErrInvalidFrameLength, err)
	})

	t.Run("EOF after length prefix", func(t *testing.T) {
		buf := new(bytes.Buffer)
		WriteUint32(buf, 7) // Valid length, no data follows

		_, err := DecodeFrame(buf)
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("EOF mid-payload", func(t *testing.T) {
		buf := new(bytes.Buffer)
		WriteUint32(buf, 7)
		WriteUint8(buf, 1)            // Version
		WriteUint8(buf, TypeRegister) // Type
		buf.Write([]byte("al"))       // Payload cut short (5 expected)

		_, err := DecodeFrame(buf)
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("partial length prefix", func(t *testing.T) {
		buf := bytes.NewReader([]byte{0x00, 0x00})

		_, err := DecodeFrame(buf)
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})
}

func TestEncodeFrameFlushesBufferedWriter(t *testing.T) {
	var raw bytes.Buffer
	bw := bufio.NewWriterSize(&raw, 4096)

	frame := &Frame{Version: ProtocolVersion, Type: TypeListUsers, Payload: nil}
	require.NoError(t, EncodeFrame(bw, frame))

	// The frame must be fully on the wire without an explicit Flush
	decoded, err := DecodeFrame(&raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(TypeListUsers), decoded.Type)
}

func TestEncodeDecodeMessageHelpers(t *testing.T) {
	data, err := EncodeMessage(ProtocolVersion, TypeRegister, []byte("alice"))
	require.NoError(t, err)

	frame, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(ProtocolVersion), frame.Version)
	assert.Equal(t, uint8(TypeRegister), frame.Type)
	assert.Equal(t, []byte("alice"), frame.Payload)
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, EncodeFrame(buf, &Frame{Version: 1, Type: TypeRegister, Payload: []byte("a")}))
	require.NoError(t, EncodeFrame(buf, &Frame{Version: 1, Type: TypeListUsers}))
	require.NoError(t, EncodeFrame(buf, &Frame{Version: 1, Type: TypeGetMessages, Payload: []byte("bb")}))

	types := []uint8{}
	for {
		frame, err := DecodeFrame(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		types = append(types, frame.Type)
	}
	assert.Equal(t, []uint8{TypeRegister, TypeListUsers, TypeGetMessages}, types)
}
