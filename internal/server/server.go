package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/labstack/echo/v4"
	echomdw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/trungdq-ct/chat-core/internal/config"
	pkgmdw "github.com/trungdq-ct/chat-core/internal/server/middleware"
	"github.com/trungdq-ct/chat-core/internal/usecase"
	"github.com/trungdq-ct/chat-core/internal/ws"
)

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	handler Controller,
	wsHandler *ws.Handler,
	auth usecase.AuthUsecase,
) {
	e := echo.New()
	e.HideBanner = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = errorHandler()

	logConfig := pkgmdw.LogRequestConfig{
		Logger: logger.MustNamed("http"),
		Enabled: func(c echo.Context) bool {
			uri := c.Request().RequestURI
			return uri != "/health" && uri != "/metrics"
		},
	}

	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(echomdw.RecoverWithConfig(echomdw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return nil
		},
	}))

	e.GET("/health", handler.Health)
	e.GET("/ws", wsHandler.ServeWS)

	api := e.Group("/api/v1", pkgmdw.JWTAuth(auth))
	api.GET("/conversations", handler.ListConversations)
	api.POST("/conversations", handler.CreateGroup)
	api.POST("/conversations/direct", handler.CreateDirect)
	api.POST("/conversations/:id/members", handler.AddMembers)
	api.DELETE("/conversations/:id", handler.HideConversation)
	api.GET("/conversations/:id/messages", handler.ListMessages)
	api.POST("/conversations/:id/messages", handler.SendMessage)
	api.POST("/conversations/:id/read", handler.MarkRead)
	api.GET("/conversations/:id/pins", handler.ListPinned)
	api.PATCH("/messages/:id", handler.EditMessage)
	api.POST("/messages/:id/recall", handler.RecallMessage)
	api.POST("/messages/:id/pin", handler.PinMessage)
	api.PUT("/messages/:id/reactions", handler.ReactMessage)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow(ctx, "starting HTTP server", "addr", conf.Server.Addr)
				if err := e.Start(conf.Server.Addr); !errors.Is(err, http.ErrServerClosed) {
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}
