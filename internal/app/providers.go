package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/trungdq-ct/chat-core/internal/config"
	"github.com/trungdq-ct/chat-core/internal/presence"
	"github.com/trungdq-ct/chat-core/internal/repo/mongodb"
	"github.com/trungdq-ct/chat-core/internal/usecase"
	"github.com/trungdq-ct/chat-core/internal/ws"
)

func newMongoDB(lc fx.Lifecycle, cfg *config.Config) (*mongodb.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := mongodb.NewConnection(ctx,
		cfg.Database.Hosts,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Database,
	)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close(ctx)
		},
	})
	return db, nil
}

func newAuthUsecase(cfg *config.Config) usecase.AuthUsecase {
	return usecase.NewAuthUsecase(cfg.Auth.JWTSecret)
}

func newChatOptions(cfg *config.Config) usecase.ChatOptions {
	return usecase.ChatOptions{
		TrustedGifDomains: cfg.Chat.TrustedGifDomains,
	}
}

func newBroadcaster(hub *ws.Hub) usecase.Broadcaster {
	return hub
}

func newOnlineChecker(registry *presence.Registry) usecase.OnlineChecker {
	return registry
}
