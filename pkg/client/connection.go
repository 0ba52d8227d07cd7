// Package client provides a minimal connection library for the Parley wire
// protocol, used by the console client and end-to-end tests.
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/parleychat/parley/pkg/protocol"
)

var (
	// ErrClosed is returned by calls on a connection whose reader has exited.
	ErrClosed = errors.New("connection closed")
	// ErrTimeout is returned when the server does not reply in time.
	ErrTimeout = errors.New("timed out waiting for server reply")
)

// ServerError is a domain error reported by the server via an ERROR frame.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Conn is a registered client connection. A single reader goroutine decodes
// inbound frames and routes asynchronous CHAT_MESSAGE relays to Incoming;
// everything else is delivered to the request in flight. Requests are
// serialized: one ListUsers/GetMessages call at a time.
type Conn struct {
	conn   net.Conn
	handle string

	writeMu sync.Mutex // Serializes frame writes
	reqMu   sync.Mutex // Serializes request/reply exchanges

	incoming chan protocol.ChatMessageMessage
	replies  chan *protocol.Frame
	done     chan struct{}

	closeOnce sync.Once
	readErr   error
}

// Dial connects to a server and registers the given handle. It returns once
// the server has confirmed the registration.
func Dial(addr, handle string, timeout time.Duration) (*Conn, error) {
	netConn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	c := &Conn{
		conn:     netConn,
		handle:   handle,
		incoming: make(chan protocol.ChatMessageMessage, 64),
		replies:  make(chan *protocol.Frame, 8),
		done:     make(chan struct{}),
	}

	if err := c.writeFrame(protocol.TypeRegister, &protocol.RegisterMessage{Handle: handle}); err != nil {
		netConn.Close()
		return nil, err
	}

	// Registration reply is read synchronously, before the reader starts.
	netConn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := protocol.DecodeFrame(netConn)
	netConn.SetReadDeadline(time.Time{})
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("read registration reply: %w", err)
	}

	switch frame.Type {
	case protocol.TypeRegistered:
		var msg protocol.RegisteredMessage
		if err := msg.Decode(frame.Payload); err != nil {
			netConn.Close()
			return nil, err
		}
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := msg.Decode(frame.Payload); err != nil {
			netConn.Close()
			return nil, err
		}
		netConn.Close()
		return nil, &ServerError{Message: msg.Message}
	default:
		netConn.Close()
		return nil, fmt.Errorf("unexpected reply type 0x%02X to registration", frame.Type)
	}

	go c.readLoop()
	return c, nil
}

// Handle returns the handle this connection registered.
func (c *Conn) Handle() string {
	return c.handle
}

// Incoming delivers chat messages relayed to this handle. The channel is
// closed when the connection dies.
func (c *Conn) Incoming() <-chan protocol.ChatMessageMessage {
	return c.incoming
}

// Close tears down the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// ListUsers requests the current registry snapshot.
func (c *Conn) ListUsers(timeout time.Duration) ([]string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.writeFrame(protocol.TypeListUsers, &protocol.ListUsersMessage{}); err != nil {
		return nil, err
	}

	frame, err := c.awaitReply(protocol.TypeUserList, timeout)
	if err != nil {
		return nil, err
	}

	var msg protocol.UserListMessage
	if err := msg.Decode(frame.Payload); err != nil {
		return nil, err
	}
	return msg.Users, nil
}

// GetMessages requests the chat log shared with target.
func (c *Conn) GetMessages(target string, timeout time.Duration) ([]protocol.Message, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.writeFrame(protocol.TypeGetMessages, &protocol.GetMessagesMessage{Target: target}); err != nil {
		return nil, err
	}

	frame, err := c.awaitReply(protocol.TypeChatMessages, timeout)
	if err != nil {
		return nil, err
	}

	var msg protocol.ChatMessagesMessage
	if err := msg.Decode(frame.Payload); err != nil {
		return nil, err
	}
	return msg.Messages, nil
}

// SendMessage sends one chat message. The protocol has no positive
// acknowledgment; a rejection (e.g. unknown target) arrives as an ERROR
// frame, which the next awaitReply or ReadError will surface.
func (c *Conn) SendMessage(target, content string) error {
	return c.writeFrame(protocol.TypeSendMessage, &protocol.SendMessageMessage{
		Target:  target,
		Content: content,
	})
}

// ReadError drains one pending server ERROR frame, if any arrived.
func (c *Conn) ReadError() (string, bool) {
	select {
	case frame := <-c.replies:
		if frame.Type != protocol.TypeError {
			return "", false
		}
		var msg protocol.ErrorMessage
		if err := msg.Decode(frame.Payload); err != nil {
			return "", false
		}
		return msg.Message, true
	default:
		return "", false
	}
}

func (c *Conn) writeFrame(msgType uint8, msg protocol.ProtocolMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}

	frame := &protocol.Frame{
		Version: protocol.ProtocolVersion,
		Type:    msgType,
		Payload: payload,
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.EncodeFrame(c.conn, frame)
}

// awaitReply waits for a frame of the wanted type. An ERROR frame received
// while waiting is returned as a *ServerError.
func (c *Conn) awaitReply(wantType uint8, timeout time.Duration) (*protocol.Frame, error) {
	deadline := time.After(timeout)
	for {
		select {
		case frame, ok := <-c.replies:
			if !ok {
				return nil, c.closedErr()
			}
			if frame.Type == protocol.TypeError {
				var msg protocol.ErrorMessage
				if err := msg.Decode(frame.Payload); err != nil {
					return nil, err
				}
				return nil, &ServerError{Message: msg.Message}
			}
			if frame.Type != wantType {
				// Stale frame from an earlier exchange; drop it.
				continue
			}
			return frame, nil
		case <-c.done:
			return nil, c.closedErr()
		case <-deadline:
			return nil, ErrTimeout
		}
	}
}

func (c *Conn) closedErr() error {
	if c.readErr != nil && c.readErr != ErrClosed {
		return c.readErr
	}
	return ErrClosed
}

// readLoop is the single reader: relayed chat messages go to Incoming,
// everything else to the pending request.
func (c *Conn) readLoop() {
	defer func() {
		close(c.incoming)
		close(c.done)
		c.Close()
	}()

	for {
		frame, err := protocol.DecodeFrame(c.conn)
		if err != nil {
			c.readErr = err
			return
		}

		if frame.Type == protocol.TypeChatMessage {
			var msg protocol.ChatMessageMessage
			if err := msg.Decode(frame.Payload); err != nil {
				c.readErr = err
				return
			}
			select {
			case c.incoming <- msg:
			default:
				// Receiver is not draining; drop rather than stall the reader.
			}
			continue
		}

		select {
		case c.replies <- frame:
		default:
			// No request in flight and the buffer is full; drop.
		}
	}
}
