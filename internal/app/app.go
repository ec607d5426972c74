package app

import (
	"context"
	"fmt"

	"github.com/carousell/ct-go/pkg/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/trungdq-ct/chat-core/internal/config"
	"github.com/trungdq-ct/chat-core/internal/ingest"
	"github.com/trungdq-ct/chat-core/internal/presence"
	"github.com/trungdq-ct/chat-core/internal/repo/mongodb"
	"github.com/trungdq-ct/chat-core/internal/repo/pushgw"
	"github.com/trungdq-ct/chat-core/internal/server"
	"github.com/trungdq-ct/chat-core/internal/usecase"
	"github.com/trungdq-ct/chat-core/internal/ws"
)

func Invoke(funcs ...any) *fx.App {
	log := logger.MustNamed("app")
	conf, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}
	log.Debugw("config loaded", log.Reflect("config", conf))
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newMongoDB,
			newAuthUsecase,
			newChatOptions,
			newBroadcaster,
			newOnlineChecker,

			presence.NewRegistry,
			presence.NewTypingTracker,
			ws.NewHub,
			ws.NewHandler,

			mongodb.NewConversationRepository,
			mongodb.NewMessageRepository,

			pushgw.NewClient,

			usecase.NewChatUsecase,
			usecase.NewReadUsecase,
			usecase.NewMutationUsecase,

			ingest.NewConsumer,

			server.NewController,
		),
		fx.Supply(conf),
		fx.Invoke(EnsureIndexes),
		fx.Invoke(funcs...),
	)
}

// EnsureIndexes creates the collection indexes on startup, before the server
// starts taking traffic. The unique partial index on direct_key is what keeps
// direct conversations unique per pair.
func EnsureIndexes(
	lc fx.Lifecycle,
	convRepo mongodb.ConversationRepository,
	messageRepo mongodb.MessageRepository,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := convRepo.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure conversation indexes: %w", err)
			}
			if err := messageRepo.EnsureIndexes(ctx); err != nil {
				return fmt.Errorf("ensure message indexes: %w", err)
			}
			return nil
		},
	})
}
