package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/server/middleware"
	"github.com/trungdq-ct/chat-core/internal/usecase"
)

// controller is the request/response fallback for clients without a durable
// connection. Every endpoint feeds the same usecases as the channel path and
// persists the identical shapes.
type controller struct {
	chat     usecase.ChatUsecase
	read     usecase.ReadUsecase
	mutation usecase.MutationUsecase
}

func NewController(
	chat usecase.ChatUsecase,
	read usecase.ReadUsecase,
	mutation usecase.MutationUsecase,
) Controller {
	return &controller{
		chat:     chat,
		read:     read,
		mutation: mutation,
	}
}

func (h *controller) ListConversations(c echo.Context) error {
	summaries, err := h.read.ListConversations(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": summaries})
}

type createDirectRequest struct {
	PeerID string `json:"peer_id" validate:"required"`
}

func (h *controller) CreateDirect(c echo.Context) error {
	var req createDirectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	conv, err := h.chat.CreateDirect(c.Request().Context(), middleware.GetUserID(c), req.PeerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

type createGroupRequest struct {
	Name      string   `json:"name" validate:"required"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1"`
}

func (h *controller) CreateGroup(c echo.Context) error {
	var req createGroupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	conv, err := h.chat.CreateGroup(c.Request().Context(), usecase.CreateGroupParams{
		Name:      req.Name,
		CreatedBy: middleware.GetUserID(c),
		MemberIDs: req.MemberIDs,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conv)
}

type addMembersRequest struct {
	MemberIDs []string `json:"member_ids" validate:"required,min=1"`
}

func (h *controller) AddMembers(c echo.Context) error {
	convID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req addMembersRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.chat.AddMembers(c.Request().Context(), convID, middleware.GetUserID(c), req.MemberIDs); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *controller) HideConversation(c echo.Context) error {
	convID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	if err := h.read.Hide(c.Request().Context(), convID, middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type listMessagesRequest struct {
	Before string `query:"before"`
	Limit  int    `query:"limit"`
}

func (h *controller) ListMessages(c echo.Context) error {
	convID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req listMessagesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query")
	}

	var before *time.Time
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339Nano, req.Before)
		if err != nil {
			return models.ErrInvalidArgument("before must be RFC3339")
		}
		before = &t
	}

	page, err := h.read.History(c.Request().Context(), convID, middleware.GetUserID(c), before, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

type sendMessageRequest struct {
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments"`
	ClientID    string              `json:"client_id"`
	ReplyTo     string              `json:"reply_to"`
}

func (h *controller) SendMessage(c echo.Context) error {
	convID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	params := usecase.SendMessageParams{
		ConversationID: convID,
		SenderID:       middleware.GetUserID(c),
		Text:           req.Text,
		Attachments:    req.Attachments,
		ClientID:       req.ClientID,
	}
	if req.ReplyTo != "" {
		replyTo, err := primitive.ObjectIDFromHex(req.ReplyTo)
		if err != nil {
			return models.ErrInvalidArgument("invalid reply_to id")
		}
		params.ReplyTo = &replyTo
	}

	message, err := h.chat.SendMessage(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, message)
}

type markReadRequest struct {
	At time.Time `json:"at"`
}

func (h *controller) MarkRead(c echo.Context) error {
	convID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.read.MarkRead(c.Request().Context(), convID, middleware.GetUserID(c), req.At); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *controller) ListPinned(c echo.Context) error {
	convID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	pinned, err := h.read.ListPinned(c.Request().Context(), convID, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": pinned})
}

type editMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *controller) EditMessage(c echo.Context) error {
	msgID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req editMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	message, err := h.mutation.Edit(c.Request().Context(), msgID, middleware.GetUserID(c), req.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message)
}

func (h *controller) RecallMessage(c echo.Context) error {
	msgID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	message, err := h.mutation.Recall(c.Request().Context(), msgID, middleware.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message)
}

type pinMessageRequest struct {
	Pinned bool `json:"pinned"`
}

func (h *controller) PinMessage(c echo.Context) error {
	msgID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req pinMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	message, err := h.mutation.SetPinned(c.Request().Context(), msgID, middleware.GetUserID(c), req.Pinned)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message)
}

type reactMessageRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

func (h *controller) ReactMessage(c echo.Context) error {
	msgID, err := pathObjectID(c, "id")
	if err != nil {
		return err
	}
	var req reactMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	message, err := h.mutation.React(c.Request().Context(), msgID, middleware.GetUserID(c), req.Emoji)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, message)
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func pathObjectID(c echo.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, models.ErrInvalidArgument("invalid %s", name)
	}
	return id, nil
}
