package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The binary protocol has no browser-credential surface; allow any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades an HTTP request and serves the wire protocol over
// it. Each protocol frame travels as exactly one binary WebSocket message;
// the same per-connection state machine handles both transports.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		debugLog.Printf("WebSocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	s.handleConnection(newWSStream(conn), r.RemoteAddr, "websocket")
}

// wsStream adapts a *websocket.Conn to the byte-stream contract the frame
// codec expects. Writes buffer until Flush, which sends the buffered bytes
// as one binary message; EncodeFrame calls Flush after each frame, so frame
// and message boundaries coincide. Reads drain one binary message before
// moving to the next.
type wsStream struct {
	conn   *websocket.Conn
	reader io.Reader
	wbuf   bytes.Buffer
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (ws *wsStream) Read(p []byte) (int, error) {
	for {
		if ws.reader == nil {
			msgType, r, err := ws.conn.NextReader()
			if err != nil {
				return 0, wsReadErr(err)
			}
			if msgType != websocket.BinaryMessage {
				// Text pings etc. are not part of the protocol; skip them.
				continue
			}
			ws.reader = r
		}

		n, err := ws.reader.Read(p)
		if err == io.EOF {
			// Current message drained; the next Read pulls the next message.
			ws.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (ws *wsStream) Write(p []byte) (int, error) {
	return ws.wbuf.Write(p)
}

// Flush sends the buffered frame as a single binary message.
func (ws *wsStream) Flush() error {
	if ws.wbuf.Len() == 0 {
		return nil
	}
	err := ws.conn.WriteMessage(websocket.BinaryMessage, ws.wbuf.Bytes())
	ws.wbuf.Reset()
	return err
}

func (ws *wsStream) Close() error {
	return ws.conn.Close()
}

// wsReadErr maps a clean WebSocket close onto io.EOF so the state machine
// treats both transports' disconnects identically.
func wsReadErr(err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			return io.EOF
		}
	}
	return err
}
