package server

import (
	"errors"
	"fmt"

	"github.com/parleychat/parley/pkg/protocol"
)

var (
	// ErrHandleTaken is returned by Registry.Register when the handle is
	// bound to another live connection.
	ErrHandleTaken = errors.New("handle already taken")
)

// Client-visible error strings. The registration and unknown-target strings
// are part of the protocol contract and must not change.
const (
	errTextHandleTaken   = "Handle already taken"
	errTextUnknownTarget = "Target handle doesn't exist."
	errTextSelfChat      = "Cannot chat with yourself."
	errTextReregister    = "Already registered."
)

// handleMessage dispatches one frame from a registered session. Returning a
// non-nil error closes the connection; recoverable conditions are reported
// to the client via sendError and return nil.
func (s *Server) handleMessage(sess *Session, frame *protocol.Frame) error {
	switch frame.Type {
	case protocol.TypeRegister:
		// The handle was bound by the first frame; a second Register is a
		// client bug but not worth killing the connection over.
		return s.sendError(sess, errTextReregister)
	case protocol.TypeListUsers:
		return s.handleListUsers(sess, frame)
	case protocol.TypeSendMessage:
		return s.handleSendMessage(sess, frame)
	case protocol.TypeGetMessages:
		return s.handleGetMessages(sess, frame)
	default:
		s.recordDecodeError(sess, protocol.ErrUnknownType)
		return s.sendError(sess, fmt.Sprintf("Unsupported message type 0x%02X", frame.Type))
	}
}

// handleListUsers handles LIST_USERS: reply with a registry snapshot,
// including the caller.
func (s *Server) handleListUsers(sess *Session, frame *protocol.Frame) error {
	var msg protocol.ListUsersMessage
	if err := msg.Decode(frame.Payload); err != nil {
		return s.decodeErrorReply(sess, err)
	}

	return s.sendMessage(sess, protocol.TypeUserList, &protocol.UserListMessage{
		Users: s.registry.Handles(),
	})
}

// handleSendMessage handles SEND_MESSAGE: append to the pair's chat log,
// then relay to the target's live connection.
func (s *Server) handleSendMessage(sess *Session, frame *protocol.Frame) error {
	var msg protocol.SendMessageMessage
	if err := msg.Decode(frame.Payload); err != nil {
		return s.decodeErrorReply(sess, err)
	}

	if uint32(len(msg.Content)) > s.config.MaxMessageLength {
		return s.sendError(sess, fmt.Sprintf("Message exceeds maximum length (%d bytes)", s.config.MaxMessageLength))
	}

	sender := sess.Handle()
	key, err := NormalizeKey(sender, msg.Target)
	if err != nil {
		return s.sendError(sess, errTextSelfChat)
	}

	// Resolve the target before mutating anything: an unknown target must
	// leave the store untouched.
	target, ok := s.registry.Lookup(msg.Target)
	if !ok {
		return s.sendError(sess, errTextUnknownTarget)
	}

	s.store.Append(key, protocol.Message{Sender: sender, Content: msg.Content})

	// Relay outside every shared lock; only the target's own write mutex is
	// held during the socket write. Best effort: a dead target connection is
	// its own handler's problem, not the sender's.
	relay := &protocol.ChatMessageMessage{Sender: sender, Content: msg.Content}
	if err := s.sendMessage(target, protocol.TypeChatMessage, relay); err != nil {
		debugLog.Printf("Session %d: relay to %q (session %d) failed: %v", sess.ID, msg.Target, target.ID, err)
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordMessageRelayed()
	}
	return nil
}

// handleGetMessages handles GET_MESSAGES: reply with a snapshot of the log
// shared with the target. A pair with no history gets an empty list and no
// log is created.
func (s *Server) handleGetMessages(sess *Session, frame *protocol.Frame) error {
	var msg protocol.GetMessagesMessage
	if err := msg.Decode(frame.Payload); err != nil {
		return s.decodeErrorReply(sess, err)
	}

	key, err := NormalizeKey(sess.Handle(), msg.Target)
	if err != nil {
		return s.sendError(sess, errTextSelfChat)
	}

	return s.sendMessage(sess, protocol.TypeChatMessages, &protocol.ChatMessagesMessage{
		Partner:  msg.Target,
		Messages: s.store.GetLog(key),
	})
}

// decodeErrorReply reports a malformed payload back to a registered
// connection. The frame boundary is intact, so the stream can continue.
func (s *Server) decodeErrorReply(sess *Session, err error) error {
	s.recordDecodeError(sess, err)
	return s.sendError(sess, fmt.Sprintf("Malformed payload: %v", err))
}

func (s *Server) recordDecodeError(sess *Session, err error) {
	debugLog.Printf("Session %d: payload decode error: %v", sess.ID, err)
	if s.metrics != nil {
		s.metrics.RecordDecodeError()
	}
}

// sendMessage encodes a message and writes it as one frame to the session.
func (s *Server) sendMessage(sess *Session, msgType uint8, msg protocol.ProtocolMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	frame := &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Type:    msgType,
		Payload: payload,
	}

	debugLog.Printf("Session %d → SEND: Type=0x%02X (%s) PayloadLen=%d", sess.ID, msgType, protocol.MessageTypeName(msgType), len(payload))
	if err := sess.Conn.EncodeFrame(frame); err != nil {
		errorLog.Printf("Session %d: EncodeFrame failed (Type=0x%02X): %v", sess.ID, msgType, err)
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordMessageSent(protocol.MessageTypeName(msgType))
	}
	return nil
}

// sendError sends an ERROR message to a session.
func (s *Server) sendError(sess *Session, message string) error {
	return s.sendMessage(sess, protocol.TypeError, &protocol.ErrorMessage{Message: message})
}
