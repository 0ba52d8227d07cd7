package server

import (
	"io"
	"sync"

	"github.com/parleychat/parley/pkg/protocol"
)

// SafeConn wraps a connection stream with automatic write synchronization to
// prevent concurrent writes from corrupting the wire protocol frames.
//
// The handler goroutine that owns a connection writes replies to it, while
// relays triggered by other connections' handlers write to it concurrently.
// Without synchronization their frame bytes interleave on the wire.
//
// SafeConn encapsulates the stream and its write mutex, making it impossible
// to write without proper synchronization. Crucially, the mutex is
// per-connection: the shared registry/store locks are never held while a
// frame is written, so a stalled peer can only block writers to its own
// socket.
type SafeConn struct {
	rw io.ReadWriteCloser
	mu sync.Mutex // Protects writes to rw
}

// NewSafeConn wraps a stream with write synchronization.
func NewSafeConn(rw io.ReadWriteCloser) *SafeConn {
	return &SafeConn{
		rw: rw,
	}
}

// EncodeFrame encodes and sends a protocol frame with automatic write
// synchronization. This is the ONLY way to write frames to the connection -
// the raw stream is private.
func (sc *SafeConn) EncodeFrame(frame *protocol.Frame) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return protocol.EncodeFrame(sc.rw, frame)
}

// ReadFrame reads a protocol frame from the connection.
// Reads don't need write synchronization.
func (sc *SafeConn) ReadFrame() (*protocol.Frame, error) {
	return protocol.DecodeFrame(sc.rw)
}

// Close closes the underlying connection.
func (sc *SafeConn) Close() error {
	return sc.rw.Close()
}
