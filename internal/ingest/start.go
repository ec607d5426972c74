package ingest

import (
	"context"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"go.uber.org/fx"
)

// StartConsumer ties the consumer loop to the fx lifecycle. A loop that exits
// with an error takes the whole process down so the orchestrator restarts it.
func StartConsumer(lc fx.Lifecycle, sd fx.Shutdowner, consumer Consumer) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := consumer.Start(runCtx); err != nil {
					log.Errorw(runCtx, "ingest consumer stopped", "error", err)
					sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return consumer.Stop(ctx)
		},
	})
}
