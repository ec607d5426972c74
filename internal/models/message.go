package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MessageKindUser   = "user"
	MessageKindSystem = "system"
)

// RecalledText replaces the body of a recalled message.
const RecalledText = "This message was recalled"

type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id" validate:"required"`

	// SenderID is empty for system messages.
	SenderID string `bson:"sender_id,omitempty" json:"sender_id,omitempty"`
	Kind     string `bson:"kind" json:"kind"`

	Text        string              `bson:"text" json:"text"`
	Attachments []Attachment        `bson:"attachments,omitempty" json:"attachments,omitempty"`
	ReplyTo     *primitive.ObjectID `bson:"reply_to,omitempty" json:"reply_to,omitempty"`

	Reactions []Reaction `bson:"reactions" json:"reactions"`

	Pinned   bool       `bson:"pinned" json:"pinned"`
	PinnedAt *time.Time `bson:"pinned_at,omitempty" json:"pinned_at,omitempty"`
	PinnedBy string     `bson:"pinned_by,omitempty" json:"pinned_by,omitempty"`

	EditedAt *time.Time `bson:"edited_at,omitempty" json:"edited_at,omitempty"`

	IsRecalled bool       `bson:"is_recalled" json:"is_recalled"`
	RecalledAt *time.Time `bson:"recalled_at,omitempty" json:"recalled_at,omitempty"`
	RecalledBy string     `bson:"recalled_by,omitempty" json:"recalled_by,omitempty"`

	// ClientID is the client-generated correlation id, echoed back on the ack
	// and on every broadcast so devices can reconcile optimistic copies.
	ClientID string `bson:"client_id,omitempty" json:"client_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Reaction is one user's reaction. A user holds at most one entry per message;
// a new reaction replaces the previous one.
type Reaction struct {
	UserID string `bson:"user_id" json:"user_id"`
	Emoji  string `bson:"emoji" json:"emoji"`
}

// MessagePage is a history page, newest first, with a before-cursor.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}
