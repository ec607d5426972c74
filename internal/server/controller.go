package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Controller interface {
	Health(c echo.Context) error

	ListConversations(c echo.Context) error
	CreateDirect(c echo.Context) error
	CreateGroup(c echo.Context) error
	AddMembers(c echo.Context) error
	HideConversation(c echo.Context) error
	ListMessages(c echo.Context) error
	SendMessage(c echo.Context) error
	MarkRead(c echo.Context) error
	ListPinned(c echo.Context) error

	EditMessage(c echo.Context) error
	RecallMessage(c echo.Context) error
	PinMessage(c echo.Context) error
	ReactMessage(c echo.Context) error
}

func (h *controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "chat-core",
	})
}
