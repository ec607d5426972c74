package models

import (
	"encoding/json"
	"time"
)

// Event names consumed from clients. The names are part of the wire protocol
// and must not change.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventConversationRead  = "conversation:read"
	EventTypingStart       = "typing:start"
	EventTypingStop        = "typing:stop"
	EventMessageSend       = "message:send"
	EventMessageEdit       = "message:edit"
	EventMessageRecall     = "message:recall"
	EventMessagePin        = "message:pin"
	EventMessageReact      = "message:react"
)

// Event names produced to clients.
const (
	EventPresenceState       = "presence:state"
	EventPresenceUpdate      = "presence:update"
	EventTypingUpdate        = "typing:update"
	EventMessageNew          = "message:new"
	EventMessageEdited       = "message:edited"
	EventMessageRecalled     = "message:recalled"
	EventMessagePinned       = "message:pinned"
	EventMessageReaction     = "message:reaction"
	EventConversationUpdated = "conversation:updated"
	EventConversationNew     = "conversation:new"
	EventAck                 = "ack"
)

// Frame is the websocket envelope in both directions. ID correlates a command
// with its ack and is absent on server-initiated events.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type PresenceStatePayload struct {
	OnlineUserIDs []string `json:"online_user_ids"`
}

type PresenceUpdatePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type TypingUpdatePayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name,omitempty"`
	Typing         bool   `json:"typing"`
}

type ConversationReadPayload struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	At             time.Time `json:"at"`
}

// MessagePatch is broadcast for edit/recall/pin mutations.
type MessagePatch struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Text           string     `json:"text,omitempty"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	IsRecalled     bool       `json:"is_recalled,omitempty"`
	RecalledAt     *time.Time `json:"recalled_at,omitempty"`
	RecalledBy     string     `json:"recalled_by,omitempty"`
	Pinned         *bool      `json:"pinned,omitempty"`
	PinnedAt       *time.Time `json:"pinned_at,omitempty"`
	PinnedBy       string     `json:"pinned_by,omitempty"`
}

// ReactionPatch carries the full resulting reactions array, never a delta, so
// clients replace instead of merging.
type ReactionPatch struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Reactions      []Reaction `json:"reactions"`
}

// ConversationUpdatedPayload refreshes a member's list entry after a new
// message. Unread counts stay client-computed from the read horizon.
type ConversationUpdatedPayload struct {
	Conversation *Conversation `json:"conversation"`
	LastMessage  *Message      `json:"last_message,omitempty"`
}

type SendAck struct {
	OK        bool      `json:"ok"`
	ID        string    `json:"id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
}
