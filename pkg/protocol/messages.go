package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ProtocolMessage interface - all protocol messages must implement this
type ProtocolMessage interface {
	// Encode serializes the message to bytes (convenience wrapper)
	Encode() ([]byte, error)
	// EncodeTo serializes the message directly to a writer (efficient)
	EncodeTo(w io.Writer) error
	// Decode deserializes the message from bytes
	Decode(payload []byte) error
}

// Message type constants (Client → Server)
const (
	TypeRegister    = 0x01
	TypeListUsers   = 0x02
	TypeSendMessage = 0x03
	TypeGetMessages = 0x04
)

// Message type constants (Server → Client)
const (
	TypeRegistered   = 0x81
	TypeUserList     = 0x82
	TypeChatMessages = 0x83
	TypeChatMessage  = 0x84
	TypeError        = 0x85
)

// Handle and content limits enforced at the wire boundary. The server may
// configure a lower content limit; these are the hard protocol caps.
const (
	MaxHandleLength  = 32
	MaxContentLength = maxStringLen
)

var (
	ErrEmptyHandle   = errors.New("handle cannot be empty")
	ErrHandleTooLong = errors.New("handle exceeds maximum length (32 bytes)")
	ErrEmptyContent  = errors.New("message content cannot be empty")
	ErrTrailingBytes = errors.New("payload has trailing bytes")
	ErrUnknownType   = errors.New("unknown message type")
)

// MessageTypeName returns a human-readable name for a message type,
// used in logs and metric labels.
func MessageTypeName(msgType uint8) string {
	switch msgType {
	case TypeRegister:
		return "REGISTER"
	case TypeListUsers:
		return "LIST_USERS"
	case TypeSendMessage:
		return "SEND_MESSAGE"
	case TypeGetMessages:
		return "GET_MESSAGES"
	case TypeRegistered:
		return "REGISTERED"
	case TypeUserList:
		return "USER_LIST"
	case TypeChatMessages:
		return "CHAT_MESSAGES"
	case TypeChatMessage:
		return "CHAT_MESSAGE"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", msgType)
	}
}

// validateHandle checks handle constraints shared by encode and decode.
func validateHandle(handle string) error {
	if handle == "" {
		return ErrEmptyHandle
	}
	if len(handle) > MaxHandleLength {
		return ErrHandleTooLong
	}
	return nil
}

// checkDrained fails decoding when payload bytes remain after all fields
// were read. A well-formed peer never pads payloads.
func checkDrained(buf *bytes.Reader) error {
	if buf.Len() > 0 {
		return ErrTrailingBytes
	}
	return nil
}

// Message is one chat-log entry: who said what.
type Message struct {
	Sender  string
	Content string
}

func (m *Message) EncodeTo(w io.Writer) error {
	if err := WriteString(w, m.Sender); err != nil {
		return err
	}
	return WriteString(w, m.Content)
}

func (m *Message) decodeFrom(buf *bytes.Reader) error {
	sender, err := ReadString(buf)
	if err != nil {
		return err
	}
	content, err := ReadString(buf)
	if err != nil {
		return err
	}
	m.Sender = sender
	m.Content = content
	return nil
}

// RegisterMessage (0x01) - Claim a handle; must be the first frame on a connection
type RegisterMessage struct {
	Handle string
}

func (m *RegisterMessage) EncodeTo(w io.Writer) error {
	if err := validateHandle(m.Handle); err != nil {
		return err
	}
	return WriteString(w, m.Handle)
}

func (m *RegisterMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RegisterMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	handle, err := ReadString(buf)
	if err != nil {
		return err
	}
	if err := validateHandle(handle); err != nil {
		return err
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Handle = handle
	return nil
}

// ListUsersMessage (0x02) - Request the current registry snapshot
type ListUsersMessage struct{}

func (m *ListUsersMessage) EncodeTo(w io.Writer) error {
	return nil
}

func (m *ListUsersMessage) Encode() ([]byte, error) {
	return []byte{}, nil
}

func (m *ListUsersMessage) Decode(payload []byte) error {
	if len(payload) > 0 {
		return ErrTrailingBytes
	}
	return nil
}

// SendMessageMessage (0x03) - Send one chat message to a registered handle
type SendMessageMessage struct {
	Target  string
	Content string
}

func (m *SendMessageMessage) EncodeTo(w io.Writer) error {
	if err := validateHandle(m.Target); err != nil {
		return err
	}
	if m.Content == "" {
		return ErrEmptyContent
	}
	if err := WriteString(w, m.Target); err != nil {
		return err
	}
	return WriteString(w, m.Content)
}

func (m *SendMessageMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SendMessageMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	target, err := ReadString(buf)
	if err != nil {
		return err
	}
	content, err := ReadString(buf)
	if err != nil {
		return err
	}
	if err := validateHandle(target); err != nil {
		return err
	}
	if content == "" {
		return ErrEmptyContent
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Target = target
	m.Content = content
	return nil
}

// GetMessagesMessage (0x04) - Request the chat log shared with a partner
type GetMessagesMessage struct {
	Target string
}

func (m *GetMessagesMessage) EncodeTo(w io.Writer) error {
	if err := validateHandle(m.Target); err != nil {
		return err
	}
	return WriteString(w, m.Target)
}

func (m *GetMessagesMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *GetMessagesMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	target, err := ReadString(buf)
	if err != nil {
		return err
	}
	if err := validateHandle(target); err != nil {
		return err
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Target = target
	return nil
}

// RegisteredMessage (0x81) - Registration accepted
type RegisteredMessage struct {
	Handle string
}

func (m *RegisteredMessage) EncodeTo(w io.Writer) error {
	return WriteString(w, m.Handle)
}

func (m *RegisteredMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RegisteredMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	handle, err := ReadString(buf)
	if err != nil {
		return err
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Handle = handle
	return nil
}

// UserListMessage (0x82) - Snapshot of registered handles (includes the caller)
type UserListMessage struct {
	Users []string
}

func (m *UserListMessage) EncodeTo(w io.Writer) error {
	return WriteStringList(w, m.Users)
}

func (m *UserListMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *UserListMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	users, err := ReadStringList(buf)
	if err != nil {
		return err
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Users = users
	return nil
}

// ChatMessagesMessage (0x83) - Chat log shared with one partner
type ChatMessagesMessage struct {
	Partner  string
	Messages []Message
}

func (m *ChatMessagesMessage) EncodeTo(w io.Writer) error {
	if err := WriteString(w, m.Partner); err != nil {
		return err
	}
	if len(m.Messages) > maxStringLen {
		return ErrStringTooLong
	}
	if err := WriteUint16(w, uint16(len(m.Messages))); err != nil {
		return err
	}
	for i := range m.Messages {
		if err := m.Messages[i].EncodeTo(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *ChatMessagesMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ChatMessagesMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	partner, err := ReadString(buf)
	if err != nil {
		return err
	}
	count, err := ReadUint16(buf)
	if err != nil {
		return err
	}
	messages := make([]Message, 0, count)
	for i := 0; i < int(count); i++ {
		var msg Message
		if err := msg.decodeFrom(buf); err != nil {
			return err
		}
		messages = append(messages, msg)
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Partner = partner
	m.Messages = messages
	return nil
}

// ChatMessageMessage (0x84) - One relayed message, pushed to the target's connection
type ChatMessageMessage struct {
	Sender  string
	Content string
}

func (m *ChatMessageMessage) EncodeTo(w io.Writer) error {
	if err := WriteString(w, m.Sender); err != nil {
		return err
	}
	return WriteString(w, m.Content)
}

func (m *ChatMessageMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ChatMessageMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	sender, err := ReadString(buf)
	if err != nil {
		return err
	}
	content, err := ReadString(buf)
	if err != nil {
		return err
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Sender = sender
	m.Content = content
	return nil
}

// ErrorMessage (0x85) - Domain or decode error reported to the requester
type ErrorMessage struct {
	Message string
}

func (m *ErrorMessage) EncodeTo(w io.Writer) error {
	return WriteString(w, m.Message)
}

func (m *ErrorMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ErrorMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	message, err := ReadString(buf)
	if err != nil {
		return err
	}
	if err := checkDrained(buf); err != nil {
		return err
	}

	m.Message = message
	return nil
}
