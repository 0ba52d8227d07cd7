package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleychat/parley/pkg/protocol"
)

func TestNormalizeKey(t *testing.T) {
	t.Run("symmetric", func(t *testing.T) {
		ab, err := NormalizeKey("alice", "bob")
		require.NoError(t, err)
		ba, err := NormalizeKey("bob", "alice")
		require.NoError(t, err)

		assert.Equal(t, ab, ba)
	})

	t.Run("distinct pairs get distinct keys", func(t *testing.T) {
		ab, err := NormalizeKey("alice", "bob")
		require.NoError(t, err)
		ac, err := NormalizeKey("alice", "carol")
		require.NoError(t, err)

		assert.NotEqual(t, ab, ac)
	})

	t.Run("rejects self chat", func(t *testing.T) {
		_, err := NormalizeKey("alice", "alice")
		assert.Equal(t, ErrSelfChat, err)
	})
}

func TestChatStoreAppendAndGet(t *testing.T) {
	store := NewChatStore()
	key, err := NormalizeKey("alice", "bob")
	require.NoError(t, err)

	store.Append(key, protocol.Message{Sender: "alice", Content: "hi bob"})
	store.Append(key, protocol.Message{Sender: "bob", Content: "hi alice"})
	store.Append(key, protocol.Message{Sender: "alice", Content: "how are you?"})

	log := store.GetLog(key)
	require.Len(t, log, 3)
	assert.Equal(t, "hi bob", log[0].Content)
	assert.Equal(t, "hi alice", log[1].Content)
	assert.Equal(t, "how are you?", log[2].Content)

	// Both orderings of the pair see the same log
	reversed, err := NormalizeKey("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, log, store.GetLog(reversed))
}

func TestChatStoreGetNeverCreates(t *testing.T) {
	store := NewChatStore()
	key, err := NormalizeKey("alice", "bob")
	require.NoError(t, err)

	log := store.GetLog(key)
	assert.Empty(t, log)
	assert.Equal(t, 0, store.Count())
}

func TestChatStoreSnapshotIsolation(t *testing.T) {
	store := NewChatStore()
	key, err := NormalizeKey("alice", "bob")
	require.NoError(t, err)

	store.Append(key, protocol.Message{Sender: "alice", Content: "first"})
	snapshot := store.GetLog(key)
	require.Len(t, snapshot, 1)

	// Neither a later append nor mutating the snapshot touches the other side
	store.Append(key, protocol.Message{Sender: "bob", Content: "second"})
	assert.Len(t, snapshot, 1)

	snapshot[0].Content = "mutated"
	assert.Equal(t, "first", store.GetLog(key)[0].Content)
}

func TestChatStorePairsAreIndependent(t *testing.T) {
	store := NewChatStore()
	ab, err := NormalizeKey("alice", "bob")
	require.NoError(t, err)
	ac, err := NormalizeKey("alice", "carol")
	require.NoError(t, err)

	store.Append(ab, protocol.Message{Sender: "alice", Content: "for bob"})
	store.Append(ac, protocol.Message{Sender: "alice", Content: "for carol"})

	require.Len(t, store.GetLog(ab), 1)
	require.Len(t, store.GetLog(ac), 1)
	assert.Equal(t, "for bob", store.GetLog(ab)[0].Content)
	assert.Equal(t, "for carol", store.GetLog(ac)[0].Content)
	assert.Equal(t, 2, store.Count())
}

func TestChatStoreConcurrentAppends(t *testing.T) {
	store := NewChatStore()
	key, err := NormalizeKey("alice", "bob")
	require.NoError(t, err)

	const writers = 8
	const perWriter = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				store.Append(key, protocol.Message{
					Sender:  "alice",
					Content: fmt.Sprintf("writer %d message %d", w, i),
				})
			}
		}(w)
	}
	wg.Wait()

	// No appends lost, and a single log for the pair
	assert.Len(t, store.GetLog(key), writers*perWriter)
	assert.Equal(t, 1, store.Count())
}
