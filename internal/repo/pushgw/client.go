// Package pushgw talks to the external push-notification gateway. Delivery is
// best-effort: members without a live connection get a nudge, nothing more.
package pushgw

import (
	"context"
	"fmt"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/go-resty/resty/v2"

	"github.com/trungdq-ct/chat-core/internal/config"
	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/usecase"
	"github.com/trungdq-ct/chat-core/pkg/util"
)

type Event struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Data   any    `json:"data"`
}

type sendEventsRequest struct {
	Events []Event `json:"events"`
}

type sendEventsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type client struct {
	http *resty.Client
}

func NewClient(conf *config.Config) usecase.PushNotifier {
	if !conf.Push.Enabled {
		return &noopNotifier{}
	}
	return &client{
		http: util.NewRestyClient().SetBaseURL(conf.Push.BaseURL),
	}
}

// NotifyMessage posts one event per offline recipient in a single batch.
func (c *client) NotifyMessage(ctx context.Context, userIDs []string, conv *models.Conversation, message *models.Message) error {
	if len(userIDs) == 0 {
		return nil
	}

	events := make([]Event, 0, len(userIDs))
	for _, userID := range userIDs {
		events = append(events, Event{
			UserID: userID,
			Name:   "message_received",
			Data: map[string]any{
				"conversation_id":   conv.ID.Hex(),
				"conversation_name": conv.Name,
				"sender_id":         message.SenderID,
				"preview":           message.Text,
				"created_at":        message.CreatedAt,
			},
		})
	}

	var result sendEventsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendEventsRequest{Events: events}).
		SetResult(&result).
		Post("/v1/events")
	if err != nil {
		return fmt.Errorf("failed to send push events: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("push gateway returned status %d", resp.StatusCode())
	}
	if !result.Success {
		return fmt.Errorf("push gateway rejected events: %s", result.Error)
	}

	log.Debugw(ctx, "sent push events", "event_count", len(events))
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyMessage(context.Context, []string, *models.Conversation, *models.Message) error {
	return nil
}
