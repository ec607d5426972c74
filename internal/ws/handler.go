package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/presence"
	"github.com/trungdq-ct/chat-core/internal/repo/mongodb"
	"github.com/trungdq-ct/chat-core/internal/usecase"
)

// commandTimeout bounds the store round trips behind one inbound frame.
const commandTimeout = 15 * time.Second

type Handler struct {
	hub      *Hub
	registry *presence.Registry
	typing   *presence.TypingTracker
	auth     usecase.AuthUsecase
	chat     usecase.ChatUsecase
	read     usecase.ReadUsecase
	mutation usecase.MutationUsecase
	convRepo mongodb.ConversationRepository
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHandler(
	hub *Hub,
	registry *presence.Registry,
	typing *presence.TypingTracker,
	auth usecase.AuthUsecase,
	chat usecase.ChatUsecase,
	read usecase.ReadUsecase,
	mutation usecase.MutationUsecase,
	convRepo mongodb.ConversationRepository,
) *Handler {
	h := &Handler{
		hub:      hub,
		registry: registry,
		typing:   typing,
		auth:     auth,
		chat:     chat,
		read:     read,
		mutation: mutation,
		convRepo: convRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.MustNamed("ws_handler"),
	}
	hub.OnOffline(h.broadcastOffline)
	return h
}

// ServeWS authenticates the handshake, upgrades, and runs the connection's
// command loop until the peer goes away.
func (h *Handler) ServeWS(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		token = strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	}
	ident, err := h.auth.ValidateToken(c.Request().Context(), token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := newClient(conn, uuid.NewString(), identity{
		userID:      ident.UserID,
		displayName: ident.DisplayName,
	})

	cameOnline := h.hub.Attach(client)
	go client.writePump()

	// full snapshot on every connect, so missed deltas never strand a client
	h.sendTo(client, "", models.EventPresenceState, models.PresenceStatePayload{
		OnlineUserIDs: h.registry.OnlineIDs(),
	})
	if cameOnline {
		h.hub.SendToAll(models.EventPresenceUpdate, models.PresenceUpdatePayload{
			UserID: client.userID,
			Online: true,
		})
	}

	client.readPump(h.handleFrame, h.disconnect)
	return nil
}

func (h *Handler) disconnect(c *Client) {
	if wentOffline := h.hub.Detach(c); wentOffline {
		h.broadcastOffline(c.userID)
	}
}

func (h *Handler) broadcastOffline(userID string) {
	h.hub.SendToAll(models.EventPresenceUpdate, models.PresenceUpdatePayload{
		UserID: userID,
		Online: false,
	})
}

type joinPayload struct {
	ConversationID string `json:"conversation_id"`
}

type readReqPayload struct {
	ConversationID string    `json:"conversation_id"`
	At             time.Time `json:"at"`
}

type sendPayload struct {
	ConversationID string              `json:"conversation_id"`
	Text           string              `json:"text"`
	Attachments    []models.Attachment `json:"attachments"`
	ClientID       string              `json:"client_id"`
	ReplyTo        string              `json:"reply_to"`
}

type editPayload struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

type recallPayload struct {
	MessageID string `json:"message_id"`
}

type pinPayload struct {
	MessageID string `json:"message_id"`
	Pinned    bool   `json:"pinned"`
}

type reactPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func (h *Handler) handleFrame(c *Client, payload []byte) {
	var frame models.Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		h.log.Debugw("dropping malformed frame", "user_id", c.userID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch frame.Event {
	case models.EventConversationJoin:
		h.handleJoin(ctx, c, frame)
	case models.EventConversationLeave:
		h.handleLeave(ctx, c, frame)
	case models.EventConversationRead:
		h.handleRead(ctx, c, frame)
	case models.EventTypingStart:
		h.handleTyping(ctx, c, frame, true)
	case models.EventTypingStop:
		h.handleTyping(ctx, c, frame, false)
	case models.EventMessageSend:
		h.handleSend(ctx, c, frame)
	case models.EventMessageEdit:
		h.handleEdit(ctx, c, frame)
	case models.EventMessageRecall:
		h.handleRecall(ctx, c, frame)
	case models.EventMessagePin:
		h.handlePin(ctx, c, frame)
	case models.EventMessageReact:
		h.handleReact(ctx, c, frame)
	default:
		h.nack(c, frame.ID, models.ErrInvalidArgument("unknown event %q", frame.Event))
	}
}

func (h *Handler) handleJoin(ctx context.Context, c *Client, frame models.Frame) {
	var req joinPayload
	convID, ok := h.bindConversation(c, frame, &req, &req.ConversationID)
	if !ok {
		return
	}

	conv, err := h.convRepo.GetByID(ctx, convID)
	if err != nil {
		h.nack(c, frame.ID, err)
		return
	}
	if !conv.HasMember(c.userID) {
		h.nack(c, frame.ID, models.ErrPermissionDenied("not a member of conversation %s", req.ConversationID))
		return
	}

	h.hub.JoinRoom(c, req.ConversationID)

	// room join comes with the current typing state, so a freshly opened
	// view never shows a stale or missing indicator
	for _, u := range h.typing.Active(req.ConversationID) {
		h.sendTo(c, "", models.EventTypingUpdate, models.TypingUpdatePayload{
			ConversationID: req.ConversationID,
			UserID:         u.UserID,
			DisplayName:    u.DisplayName,
			Typing:         true,
		})
	}
	h.ack(c, frame.ID, models.SendAck{OK: true})
}

func (h *Handler) handleLeave(_ context.Context, c *Client, frame models.Frame) {
	var req joinPayload
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.ConversationID == "" {
		h.nack(c, frame.ID, models.ErrInvalidArgument("invalid conversation id"))
		return
	}
	h.hub.LeaveRoom(c, req.ConversationID)
	h.ack(c, frame.ID, models.SendAck{OK: true})
}

func (h *Handler) handleRead(ctx context.Context, c *Client, frame models.Frame) {
	var req readReqPayload
	convID, ok := h.bindConversation(c, frame, &req, &req.ConversationID)
	if !ok {
		return
	}

	if err := h.read.MarkRead(ctx, convID, c.userID, req.At); err != nil {
		h.nack(c, frame.ID, err)
		return
	}
	h.ack(c, frame.ID, models.SendAck{OK: true})
}

func (h *Handler) handleTyping(_ context.Context, c *Client, frame models.Frame, start bool) {
	var req joinPayload
	if err := json.Unmarshal(frame.Data, &req); err != nil || req.ConversationID == "" {
		h.nack(c, frame.ID, models.ErrInvalidArgument("invalid conversation id"))
		return
	}
	// typing rides the room channel; joining it already proved membership
	if !h.hub.InRoom(c, req.ConversationID) {
		h.nack(c, frame.ID, models.ErrPermissionDenied("join the conversation first"))
		return
	}

	if start {
		h.typing.Start(req.ConversationID, c.userID, c.displayName)
	} else {
		h.typing.Stop(req.ConversationID, c.userID)
	}
	h.hub.SendToRoom(req.ConversationID, models.EventTypingUpdate, models.TypingUpdatePayload{
		ConversationID: req.ConversationID,
		UserID:         c.userID,
		DisplayName:    c.displayName,
		Typing:         start,
	}, c.userID)
}

func (h *Handler) handleSend(ctx context.Context, c *Client, frame models.Frame) {
	var req sendPayload
	convID, ok := h.bindConversation(c, frame, &req, &req.ConversationID)
	if !ok {
		return
	}

	params := usecase.SendMessageParams{
		ConversationID: convID,
		SenderID:       c.userID,
		Text:           req.Text,
		Attachments:    req.Attachments,
		ClientID:       req.ClientID,
	}
	if req.ReplyTo != "" {
		replyTo, err := primitive.ObjectIDFromHex(req.ReplyTo)
		if err != nil {
			h.nackSend(c, frame.ID, req.ClientID, models.ErrInvalidArgument("invalid reply_to id"))
			return
		}
		params.ReplyTo = &replyTo
	}

	message, err := h.chat.SendMessage(ctx, params)
	if err != nil {
		h.nackSend(c, frame.ID, req.ClientID, err)
		return
	}
	h.ack(c, frame.ID, models.SendAck{
		OK:        true,
		ID:        message.ID.Hex(),
		ClientID:  message.ClientID,
		CreatedAt: message.CreatedAt,
	})
}

func (h *Handler) handleEdit(ctx context.Context, c *Client, frame models.Frame) {
	var req editPayload
	msgID, ok := h.bindMessage(c, frame, &req, &req.MessageID)
	if !ok {
		return
	}
	if _, err := h.mutation.Edit(ctx, msgID, c.userID, req.Text); err != nil {
		h.nack(c, frame.ID, err)
		return
	}
	h.ack(c, frame.ID, models.SendAck{OK: true, ID: req.MessageID})
}

func (h *Handler) handleRecall(ctx context.Context, c *Client, frame models.Frame) {
	var req recallPayload
	msgID, ok := h.bindMessage(c, frame, &req, &req.MessageID)
	if !ok {
		return
	}
	if _, err := h.mutation.Recall(ctx, msgID, c.userID); err != nil {
		h.nack(c, frame.ID, err)
		return
	}
	h.ack(c, frame.ID, models.SendAck{OK: true, ID: req.MessageID})
}

func (h *Handler) handlePin(ctx context.Context, c *Client, frame models.Frame) {
	var req pinPayload
	msgID, ok := h.bindMessage(c, frame, &req, &req.MessageID)
	if !ok {
		return
	}
	if _, err := h.mutation.SetPinned(ctx, msgID, c.userID, req.Pinned); err != nil {
		h.nack(c, frame.ID, err)
		return
	}
	h.ack(c, frame.ID, models.SendAck{OK: true, ID: req.MessageID})
}

func (h *Handler) handleReact(ctx context.Context, c *Client, frame models.Frame) {
	var req reactPayload
	msgID, ok := h.bindMessage(c, frame, &req, &req.MessageID)
	if !ok {
		return
	}
	if _, err := h.mutation.React(ctx, msgID, c.userID, req.Emoji); err != nil {
		h.nack(c, frame.ID, err)
		return
	}
	h.ack(c, frame.ID, models.SendAck{OK: true, ID: req.MessageID})
}

// bindConversation unmarshals the frame and parses the conversation id field
// the request struct shares with it.
func (h *Handler) bindConversation(c *Client, frame models.Frame, req any, rawID *string) (primitive.ObjectID, bool) {
	if err := json.Unmarshal(frame.Data, req); err != nil {
		h.nack(c, frame.ID, models.ErrInvalidArgument("malformed payload"))
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(*rawID)
	if err != nil {
		h.nack(c, frame.ID, models.ErrInvalidArgument("invalid conversation id"))
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handler) bindMessage(c *Client, frame models.Frame, req any, rawID *string) (primitive.ObjectID, bool) {
	if err := json.Unmarshal(frame.Data, req); err != nil {
		h.nack(c, frame.ID, models.ErrInvalidArgument("malformed payload"))
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(*rawID)
	if err != nil {
		h.nack(c, frame.ID, models.ErrInvalidArgument("invalid message id"))
		return primitive.NilObjectID, false
	}
	return id, true
}

func (h *Handler) ack(c *Client, frameID string, ack models.SendAck) {
	if frameID == "" {
		return
	}
	h.sendTo(c, frameID, models.EventAck, ack)
}

func (h *Handler) nack(c *Client, frameID string, err error) {
	h.nackSend(c, frameID, "", err)
}

// nackSend rejects a command. The ack carries the grpc code name so clients
// can tell retryable failures from final ones, and the client id so a failed
// optimistic message can be flagged in place.
func (h *Handler) nackSend(c *Client, frameID, clientID string, err error) {
	if frameID == "" {
		return
	}
	h.sendTo(c, frameID, models.EventAck, models.SendAck{
		OK:       false,
		ClientID: clientID,
		Error:    err.Error(),
		Code:     models.CodeOf(err).String(),
	})
}

func (h *Handler) sendTo(c *Client, frameID, event string, data any) {
	payload, err := encodeFrame(frameID, event, data)
	if err != nil {
		h.log.Errorw("failed to encode frame", "event", event, "error", err)
		return
	}
	c.enqueue(payload)
}
