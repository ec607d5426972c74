package usecase

import (
	"context"

	"github.com/trungdq-ct/chat-core/internal/models"
)

// Broadcaster routes events to connected clients. Per-user delivery is the
// durable path; room delivery is the low-latency path for session-scoped
// signals only. Implemented by ws.Hub; usecases never import ws.
type Broadcaster interface {
	SendToUser(userID, event string, data any)
	SendToUsers(userIDs []string, event string, data any)
	SendToRoom(conversationID, event string, data any, exclude ...string)
	RoomViewers(conversationID string) []string
}

// PushNotifier delivers out-of-band notifications to members with no live
// connection. Best-effort; failures are logged by callers, never surfaced.
type PushNotifier interface {
	NotifyMessage(ctx context.Context, userIDs []string, conv *models.Conversation, message *models.Message) error
}

// OnlineChecker answers whether a user holds at least one live connection.
// Implemented by presence.Registry.
type OnlineChecker interface {
	IsOnline(userID string) bool
}
