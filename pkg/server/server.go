package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parleychat/parley/pkg/protocol"
)

var (
	errorLog = log.New(io.Discard, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// InitLoggers directs the package loggers at the given writers. The server
// binary points errors at stderr; debug stays discarded unless enabled.
func InitLoggers(errorOut, debugOut io.Writer) {
	errorLog = log.New(errorOut, "ERROR: ", log.LstdFlags)
	debugLog = log.New(debugOut, "DEBUG: ", log.LstdFlags)
}

// Server accepts connections, owns the shared Registry and ChatStore, and
// runs one handler goroutine per connection.
type Server struct {
	registry      *Registry
	store         *ChatStore
	config        ServerConfig
	listener      net.Listener
	wsServer      *http.Server
	metricsServer *http.Server
	metrics       *Metrics
	shutdown      chan struct{}
	wg            sync.WaitGroup
	startTime     time.Time
}

// NewServer creates a server instance. Metrics may be nil (tests).
func NewServer(config ServerConfig, metrics *Metrics) *Server {
	registry := NewRegistry()
	registry.SetMetrics(metrics)

	store := NewChatStore()
	store.SetMetrics(metrics)

	return &Server{
		registry:  registry,
		store:     store,
		config:    config,
		metrics:   metrics,
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}
}

// Start begins listening on the configured ports. It returns once the
// listeners are up; serving happens on background goroutines.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)

	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("TCP listener on %s", listener.Addr())

	// Internal metrics server - never expose publicly
	if s.config.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.HandleFunc("/health", s.HealthHandler)
		s.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler: metricsMux,
		}
		go func() {
			log.Printf("Metrics server listening on :%d (/metrics, /health) - INTERNAL ONLY", s.config.MetricsPort)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// WebSocket transport carrying the same binary frames
	if s.config.WSPort > 0 {
		wsMux := http.NewServeMux()
		wsMux.HandleFunc("/ws", s.HandleWebSocket)
		s.wsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.WSPort),
			Handler: wsMux,
		}
		go func() {
			log.Printf("WebSocket server listening on :%d (/ws)", s.config.WSPort)
			if err := s.wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("WebSocket server error: %v", err)
			}
		}()
	}

	if s.config.SessionTimeoutSeconds > 0 {
		s.wg.Add(1)
		go s.idleSweepLoop()
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the TCP listener address (useful with port 0 in tests).
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server: no new connections, all sessions
// closed, background goroutines drained.
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	close(s.shutdown)

	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	if s.wsServer != nil {
		s.wsServer.Close()
		s.wsServer = nil
	}
	if s.metricsServer != nil {
		s.metricsServer.Close()
		s.metricsServer = nil
	}

	log.Println("Closing all client sessions...")
	s.registry.CloseAll()

	s.wg.Wait()

	log.Println("Graceful shutdown complete")
	return nil
}

// HealthHandler reports basic liveness for the internal HTTP listener.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok\nuptime: %s\nconnections: %d\nchat_logs: %d\n",
		time.Since(s.startTime).Round(time.Second),
		s.registry.CountConnections(),
		s.store.Count())
}

// acceptLoop accepts incoming TCP connections.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("Accept error: %v", err)
				continue
			}
		}

		// Disable Nagle's algorithm for immediate relays
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		go s.handleConnection(conn, conn.RemoteAddr().String(), "tcp")
	}
}

// handleConnection runs the per-connection state machine:
// AwaitingRegistration → Active → Closed. The deferred cleanup is the single
// place a session leaves the registry, so the handle is freed on clean EOF,
// transport error and protocol violation alike.
func (s *Server) handleConnection(rw io.ReadWriteCloser, remoteAddr, transport string) {
	if s.config.MaxConnections > 0 && s.registry.CountConnections() >= s.config.MaxConnections {
		log.Printf("Rejecting %s connection from %s: connection limit reached", transport, remoteAddr)
		rw.Close()
		return
	}

	sess := s.registry.CreateSession(rw, remoteAddr, transport)
	defer s.registry.RemoveSession(sess.ID)

	debugLog.Printf("New %s connection from %s (session %d)", transport, remoteAddr, sess.ID)
	sess.TouchActivity(time.Now().UnixMilli())

	if !s.awaitRegistration(sess) {
		return
	}

	s.messageLoop(sess)
}

// awaitRegistration reads exactly one frame and binds the session's handle.
// Returns false when the connection must close. Per the protocol contract,
// anything other than a well-formed Register closes without a reply; only
// domain rejections (taken, invalid handle) are reported.
func (s *Server) awaitRegistration(sess *Session) bool {
	frame, err := sess.Conn.ReadFrame()
	if err != nil {
		if err != io.EOF {
			debugLog.Printf("Session %d: read error before registration: %v", sess.ID, err)
		}
		return false
	}

	if s.metrics != nil {
		s.metrics.RecordMessageReceived(protocol.MessageTypeName(frame.Type))
	}

	if frame.Type != protocol.TypeRegister {
		debugLog.Printf("Session %d: protocol violation: first frame Type=0x%02X, want REGISTER", sess.ID, frame.Type)
		return false
	}

	var msg protocol.RegisterMessage
	if err := msg.Decode(frame.Payload); err != nil {
		debugLog.Printf("Session %d: malformed REGISTER payload: %v", sess.ID, err)
		return false
	}

	if len(msg.Handle) > s.config.MaxHandleLength {
		s.sendError(sess, fmt.Sprintf("Handle exceeds maximum length (%d bytes)", s.config.MaxHandleLength))
		return false
	}

	if err := s.registry.Register(msg.Handle, sess); err != nil {
		s.sendError(sess, errTextHandleTaken)
		return false
	}

	if err := s.sendMessage(sess, protocol.TypeRegistered, &protocol.RegisteredMessage{Handle: msg.Handle}); err != nil {
		return false
	}

	log.Printf("Session %d registered as %q (%s)", sess.ID, msg.Handle, sess.Transport)
	return true
}

// messageLoop serves a registered session until EOF or a fatal error. Each
// frame is handled to completion before the next read; there is no
// pipelining within a connection.
func (s *Server) messageLoop(sess *Session) {
	for {
		frame, err := sess.Conn.ReadFrame()
		if err != nil {
			if err == io.EOF {
				debugLog.Printf("Session %d: client disconnected", sess.ID)
			} else {
				// Mid-frame EOF or any other transport failure: the stream
				// has no frame boundary to resync on, so the connection is
				// done.
				debugLog.Printf("Session %d: read error: %v", sess.ID, err)
			}
			return
		}

		debugLog.Printf("Session %d ← RECV: Type=0x%02X (%s) PayloadLen=%d", sess.ID, frame.Type, protocol.MessageTypeName(frame.Type), len(frame.Payload))
		sess.TouchActivity(time.Now().UnixMilli())

		if s.metrics != nil {
			s.metrics.RecordMessageReceived(protocol.MessageTypeName(frame.Type))
		}

		if err := s.handleMessage(sess, frame); err != nil {
			errorLog.Printf("Session %d: handler failed: %v", sess.ID, err)
			return
		}
	}
}

// idleSweepLoop periodically drops sessions with no activity inside the
// configured timeout. Only runs when session_timeout_seconds > 0.
func (s *Server) idleSweepLoop() {
	defer s.wg.Done()

	timeout := time.Duration(s.config.SessionTimeoutSeconds) * time.Second
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-timeout).UnixMilli()
			for _, sess := range s.registry.GetAllSessions() {
				if sess.LastActivity() < cutoff {
					debugLog.Printf("Closing idle session %d (inactive for %v)", sess.ID, timeout)
					s.registry.RemoveSession(sess.ID)
				}
			}
		}
	}
}
