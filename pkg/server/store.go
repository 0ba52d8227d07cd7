package server

import (
	"errors"
	"sync"

	"github.com/parleychat/parley/pkg/protocol"
)

var (
	// ErrSelfChat is returned when both sides of a chat key are the same
	// handle. A pair key needs two distinct participants.
	ErrSelfChat = errors.New("chat key requires two distinct handles")
)

// ChatKey identifies the log shared by two handles, independent of who
// messaged whom first. The pair is stored in lexicographic order so
// (alice,bob) and (bob,alice) resolve to the same key.
type ChatKey struct {
	low  string
	high string
}

// NormalizeKey builds the canonical key for a pair of handles.
func NormalizeKey(a, b string) (ChatKey, error) {
	if a == b {
		return ChatKey{}, ErrSelfChat
	}
	if a < b {
		return ChatKey{low: a, high: b}, nil
	}
	return ChatKey{low: b, high: a}, nil
}

// ChatStore holds the append-only message log for every pair of handles that
// has ever exchanged a message. Logs are created lazily on first append and
// survive both participants disconnecting; the whole store is rebuilt empty
// on process restart.
type ChatStore struct {
	mu      sync.RWMutex
	chats   map[ChatKey][]protocol.Message
	metrics *Metrics
}

// NewChatStore creates an empty chat store.
func NewChatStore() *ChatStore {
	return &ChatStore{
		chats: make(map[ChatKey][]protocol.Message),
	}
}

// SetMetrics attaches metrics to the store.
func (cs *ChatStore) SetMetrics(metrics *Metrics) {
	cs.metrics = metrics
}

// Append adds a message to the log for key, creating the log on first use.
// Creation-or-append is atomic under the store mutex, which also makes the
// append order for a key the total order observed by every reader.
func (cs *ChatStore) Append(key ChatKey, msg protocol.Message) {
	cs.mu.Lock()
	cs.chats[key] = append(cs.chats[key], msg)
	logCount := len(cs.chats)
	cs.mu.Unlock()

	if cs.metrics != nil {
		cs.metrics.RecordChatLogs(logCount)
	}
}

// GetLog returns a point-in-time copy of the log for key, or an empty slice
// if the pair has never exchanged a message. Reading never creates a log,
// and the returned slice is immune to later appends.
func (cs *ChatStore) GetLog(key ChatKey) []protocol.Message {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	log, ok := cs.chats[key]
	if !ok {
		return []protocol.Message{}
	}

	snapshot := make([]protocol.Message, len(log))
	copy(snapshot, log)
	return snapshot
}

// Count returns the number of chat logs in the store.
func (cs *ChatStore) Count() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return len(cs.chats)
}
