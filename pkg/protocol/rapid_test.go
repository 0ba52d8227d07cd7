package protocol

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestStringRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringN(-1, -1, maxStringLen).Draw(t, "s")

		buf := new(bytes.Buffer)
		if err := WriteString(buf, s); err != nil {
			t.Fatalf("WriteString(%q): %v", s, err)
		}

		got, err := ReadString(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		if got != s {
			t.Fatalf("round-trip mismatch: wrote %q, read %q", s, got)
		}
	})
}

func TestFrameRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frame := &Frame{
			Version: rapid.Uint8().Draw(t, "version"),
			Type:    rapid.Uint8().Draw(t, "type"),
			Payload: rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "payload"),
		}

		buf := new(bytes.Buffer)
		if err := EncodeFrame(buf, frame); err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}

		decoded, err := DecodeFrame(buf)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		if decoded.Version != frame.Version || decoded.Type != frame.Type {
			t.Fatalf("header mismatch: wrote (%d,%d), read (%d,%d)",
				frame.Version, frame.Type, decoded.Version, decoded.Type)
		}
		if !bytes.Equal(decoded.Payload, frame.Payload) {
			t.Fatalf("payload mismatch: %d bytes in, %d bytes out",
				len(frame.Payload), len(decoded.Payload))
		}
		if buf.Len() != 0 {
			t.Fatalf("%d bytes left on the wire after one frame", buf.Len())
		}
	})
}

func TestSendMessageRoundTripProperty(t *testing.T) {
	handleGen := rapid.StringN(1, MaxHandleLength, MaxHandleLength)

	rapid.Check(t, func(t *rapid.T) {
		msg := &SendMessageMessage{
			Target:  handleGen.Draw(t, "target"),
			Content: rapid.StringN(1, 1024, 4096).Draw(t, "content"),
		}

		payload, err := msg.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		var decoded SendMessageMessage
		if err := decoded.Decode(payload); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.Target != msg.Target || decoded.Content != msg.Content {
			t.Fatalf("round-trip mismatch: %+v vs %+v", msg, decoded)
		}
	})
}

func TestChatMessagesRoundTripProperty(t *testing.T) {
	handleGen := rapid.StringN(1, MaxHandleLength, MaxHandleLength)
	messageGen := rapid.Custom(func(t *rapid.T) Message {
		return Message{
			Sender:  handleGen.Draw(t, "sender"),
			Content: rapid.StringN(0, 256, 1024).Draw(t, "content"),
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		msg := &ChatMessagesMessage{
			Partner:  handleGen.Draw(t, "partner"),
			Messages: rapid.SliceOfN(messageGen, 0, 32).Draw(t, "messages"),
		}

		payload, err := msg.Encode()
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}

		var decoded ChatMessagesMessage
		if err := decoded.Decode(payload); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if decoded.Partner != msg.Partner {
			t.Fatalf("partner mismatch: %q vs %q", msg.Partner, decoded.Partner)
		}
		if len(decoded.Messages) != len(msg.Messages) {
			t.Fatalf("message count mismatch: %d vs %d", len(msg.Messages), len(decoded.Messages))
		}
		for i := range msg.Messages {
			if decoded.Messages[i] != msg.Messages[i] {
				t.Fatalf("message %d mismatch: %+v vs %+v", i, msg.Messages[i], decoded.Messages[i])
			}
		}
	})
}
