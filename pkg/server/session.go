package server

import (
	"io"
	"sort"
	"sync"
	"sync/atomic"
)

// Session represents one live client connection. It is created at accept
// time, before the peer has claimed a handle; the handle is bound exactly
// once, at registration, and never changes afterwards.
type Session struct {
	ID         uint64
	Conn       *SafeConn // Connection with automatic write synchronization
	RemoteAddr string
	Transport  string // "tcp" or "websocket", for logs and metrics

	mu     sync.RWMutex
	handle string // Empty until registered

	lastActivity atomic.Int64 // UnixMilli of the last frame read; for the idle sweep
}

// TouchActivity records that the session just read a frame.
func (s *Session) TouchActivity(nowMilli int64) {
	s.lastActivity.Store(nowMilli)
}

// LastActivity returns the UnixMilli timestamp of the last frame read.
func (s *Session) LastActivity() int64 {
	return s.lastActivity.Load()
}

// Handle returns the handle bound at registration, or "" before that.
func (s *Session) Handle() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *Session) setHandle(handle string) {
	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
}

// Registry tracks every live connection and maps registered handles to their
// sessions. Handle uniqueness is enforced by an atomic check-then-insert
// under the registry mutex; no partial state is ever visible to other
// callers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session // All live connections, registered or not
	handles  map[string]*Session // Registered handle -> session
	nextID   uint64
	metrics  *Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
		handles:  make(map[string]*Session),
		nextID:   1,
	}
}

// SetMetrics attaches metrics to the registry.
func (r *Registry) SetMetrics(metrics *Metrics) {
	r.metrics = metrics
}

// CreateSession tracks a freshly accepted connection.
func (r *Registry) CreateSession(rw io.ReadWriteCloser, remoteAddr, transport string) *Session {
	// Allocate session ID atomically (no lock needed)
	sessionID := atomic.AddUint64(&r.nextID, 1) - 1

	sess := &Session{
		ID:         sessionID,
		Conn:       NewSafeConn(rw),
		RemoteAddr: remoteAddr,
		Transport:  transport,
	}

	// Only acquire lock for map insertion (critical section)
	r.mu.Lock()
	r.sessions[sessionID] = sess
	sessionCount := len(r.sessions)
	r.mu.Unlock()

	// Update metrics outside lock
	if r.metrics != nil {
		r.metrics.RecordActiveConnections(sessionCount)
		r.metrics.RecordConnectionOpened(transport)
	}

	return sess
}

// Register binds a handle to a session. Returns ErrHandleTaken if another
// live session already holds the handle.
func (r *Registry) Register(handle string, sess *Session) error {
	r.mu.Lock()
	if _, taken := r.handles[handle]; taken {
		r.mu.Unlock()
		return ErrHandleTaken
	}
	r.handles[handle] = sess
	handleCount := len(r.handles)
	r.mu.Unlock()

	sess.setHandle(handle)

	if r.metrics != nil {
		r.metrics.RecordRegisteredHandles(handleCount)
	}
	return nil
}

// Unregister removes a handle binding. Idempotent: unregistering an absent
// handle is a no-op.
func (r *Registry) Unregister(handle string) {
	if handle == "" {
		return
	}

	r.mu.Lock()
	_, present := r.handles[handle]
	if present {
		delete(r.handles, handle)
	}
	handleCount := len(r.handles)
	r.mu.Unlock()

	if present && r.metrics != nil {
		r.metrics.RecordRegisteredHandles(handleCount)
	}
}

// Lookup returns the session currently bound to handle, if any. The caller
// does not own the session; it must only write through the session's
// SafeConn.
func (r *Registry) Lookup(handle string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.handles[handle]
	return sess, ok
}

// Handles returns a sorted point-in-time snapshot of registered handles.
// Later registrations or removals do not affect a returned snapshot.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	handles := make([]string, 0, len(r.handles))
	for handle := range r.handles {
		handles = append(handles, handle)
	}
	r.mu.RUnlock()

	sort.Strings(handles)
	return handles
}

// RemoveSession drops a session from tracking and closes its connection.
// The handle binding, if any, is removed as well, so the handle is free for
// re-registration the moment this returns.
func (r *Registry) RemoveSession(sessionID uint64) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)

	handle := sess.Handle()
	if handle != "" {
		// Only remove the binding if it still points at this session; a
		// replacement may have registered the handle after our socket died.
		if bound, present := r.handles[handle]; present && bound.ID == sessionID {
			delete(r.handles, handle)
		}
	}
	sessionCount := len(r.sessions)
	handleCount := len(r.handles)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordActiveConnections(sessionCount)
		r.metrics.RecordRegisteredHandles(handleCount)
		r.metrics.RecordConnectionClosed(sess.Transport)
	}

	sess.Conn.Close()
}

// GetAllSessions returns all live sessions, registered or not.
func (r *Registry) GetAllSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// CountConnections returns the number of live connections.
func (r *Registry) CountConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// CloseAll closes every connection and clears the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		sess.Conn.Close()
	}

	r.sessions = make(map[uint64]*Session)
	r.handles = make(map[string]*Session)
}
