package presence

import (
	"sync"
	"time"
)

// typingTTL caps how long a typing entry survives without a stop event.
// Clients auto-stop after ~900ms of idle; the server keeps a margin on top so
// a lost stop frame cannot pin an indicator forever.
const typingTTL = 3 * time.Second

type typingKey struct {
	conversationID string
	userID         string
}

type typingEntry struct {
	displayName string
	at          time.Time
}

// TypingTracker holds who is typing in which conversation. Ephemeral, never
// persisted; a room-join snapshot rebuilds client state.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[typingKey]typingEntry
	now     func() time.Time
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		entries: make(map[typingKey]typingEntry),
		now:     time.Now,
	}
}

func (t *TypingTracker) Start(conversationID, userID, displayName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[typingKey{conversationID, userID}] = typingEntry{
		displayName: displayName,
		at:          t.now(),
	}
}

func (t *TypingTracker) Stop(conversationID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, typingKey{conversationID, userID})
}

// TypingUser is one live entry of the per-conversation snapshot.
type TypingUser struct {
	UserID      string
	DisplayName string
}

// Active returns who is currently typing in the conversation, pruning stale
// entries as it goes.
func (t *TypingTracker) Active(conversationID string) []TypingUser {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-typingTTL)
	var users []TypingUser
	for key, entry := range t.entries {
		if entry.at.Before(cutoff) {
			delete(t.entries, key)
			continue
		}
		if key.conversationID != conversationID {
			continue
		}
		users = append(users, TypingUser{UserID: key.userID, DisplayName: entry.displayName})
	}
	return users
}
