package models

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

type Conversation struct {
	ID   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind string             `bson:"kind" json:"kind" validate:"required,oneof=direct group"`

	// DirectKey is the sorted member pair for direct conversations. A unique
	// index on it guarantees at most one direct conversation per pair.
	DirectKey string `bson:"direct_key,omitempty" json:"-"`

	Name         string        `bson:"name,omitempty" json:"name,omitempty"`
	Members      []string      `bson:"members" json:"members" validate:"required,min=2"`
	Participants []Participant `bson:"participants" json:"participants"`
	HiddenFor    []string      `bson:"hidden_for" json:"-"`
	Admins       []string      `bson:"admins,omitempty" json:"admins,omitempty"`
	CreatedBy    string        `bson:"created_by,omitempty" json:"created_by,omitempty"`

	LastMessageAt time.Time `bson:"last_message_at" json:"last_message_at"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// Participant holds per-member read state. An entry may be absent for a member
// who never read anything; absence means "never read".
type Participant struct {
	UserID      string     `bson:"user_id" json:"user_id"`
	LastReadAt  *time.Time `bson:"last_read_at" json:"last_read_at"`
	ClearedAt   *time.Time `bson:"cleared_at" json:"cleared_at"`
	UnreadExtra int        `bson:"unread_extra" json:"unread_extra"`
}

// DirectKeyFor builds the deterministic key for an unordered user pair.
func DirectKeyFor(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) IsHiddenFor(userID string) bool {
	for _, u := range c.HiddenFor {
		if u == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) ParticipantFor(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// ReadHorizon returns the instant messages stop counting as unread for the
// user: max(lastReadAt, clearedAt), zero when the user never read nor cleared.
func (c *Conversation) ReadHorizon(userID string) time.Time {
	p := c.ParticipantFor(userID)
	if p == nil {
		return time.Time{}
	}
	var horizon time.Time
	if p.LastReadAt != nil {
		horizon = *p.LastReadAt
	}
	if p.ClearedAt != nil && p.ClearedAt.After(horizon) {
		horizon = *p.ClearedAt
	}
	return horizon
}

func (c *Conversation) UnreadExtraFor(userID string) int {
	if p := c.ParticipantFor(userID); p != nil {
		return p.UnreadExtra
	}
	return 0
}

// ConversationSummary is the list-view projection returned to clients.
type ConversationSummary struct {
	Conversation *Conversation `json:"conversation"`
	UnreadCount  int64         `json:"unread_count"`
}
