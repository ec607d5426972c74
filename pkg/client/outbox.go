// Package client holds the device-side reconciliation layer: an optimistic
// message is rendered the moment the user hits send and later matched to the
// server's copy by correlation id, never by content.
package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// PendingMessage is one optimistic entry. The payload survives a failure so
// the user can retry without retyping.
type PendingMessage struct {
	ClientID       string
	ConversationID string
	Text           string
	Status         Status
	EnqueuedAt     time.Time
}

// Outbox is the correlation-id keyed pending table. Lookup is O(1); Confirm
// is stable against a broadcast racing ahead of the ack and against duplicate
// confirmations.
type Outbox struct {
	mu      sync.Mutex
	entries map[string]*PendingMessage
	now     func() time.Time
}

func NewOutbox() *Outbox {
	return &Outbox{
		entries: make(map[string]*PendingMessage),
		now:     time.Now,
	}
}

// Enqueue registers an optimistic message and returns its correlation id.
func (o *Outbox) Enqueue(conversationID, text string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	clientID := uuid.NewString()
	o.entries[clientID] = &PendingMessage{
		ClientID:       clientID,
		ConversationID: conversationID,
		Text:           text,
		Status:         StatusSending,
		EnqueuedAt:     o.now(),
	}
	return clientID
}

// Confirm resolves the entry for a server-confirmed message. Both the ack and
// the broadcast call it; whichever arrives first wins and the second is a
// no-op. Unknown ids are ignored, the message was confirmed on another run.
func (o *Outbox) Confirm(clientID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, clientID)
}

// Fail flags the entry after a rejected ack, an ack timeout, or a fallback
// failure. The payload stays so Retry can reuse it.
func (o *Outbox) Fail(clientID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if entry, ok := o.entries[clientID]; ok {
		entry.Status = StatusFailed
	}
}

// Retry moves a failed entry back to sending under the same correlation id,
// so a send that actually went through on the first try still reconciles to
// one message.
func (o *Outbox) Retry(clientID string) (*PendingMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[clientID]
	if !ok || entry.Status != StatusFailed {
		return nil, false
	}
	entry.Status = StatusSending
	copied := *entry
	return &copied, true
}

// Get returns a snapshot of one entry.
func (o *Outbox) Get(clientID string) (*PendingMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[clientID]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Pending snapshots every unresolved entry in enqueue order, for rendering.
func (o *Outbox) Pending() []PendingMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]PendingMessage, 0, len(o.entries))
	for _, entry := range o.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}
