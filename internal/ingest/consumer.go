// Package ingest consumes message.sent events from external integrations
// (bots, system notifiers) and feeds them through the same delivery pipeline
// as interactive sends, so integrations get identical semantics.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carousell/ct-go/pkg/logger"
	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"

	"github.com/trungdq-ct/chat-core/internal/config"
	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/usecase"
	"github.com/trungdq-ct/chat-core/pkg/util"
)

type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// inboundEvent is the wire shape of a message.sent record.
type inboundEvent struct {
	Pattern string `json:"pattern"`
	Data    struct {
		ConversationID string              `json:"conversation_id"`
		SenderID       string              `json:"sender_id"`
		Kind           string              `json:"kind"`
		Text           string              `json:"text"`
		Attachments    []models.Attachment `json:"attachments"`
		ClientID       string              `json:"client_id"`
	} `json:"data"`
}

type kafkaConsumer struct {
	reader         *kafka.Reader
	metrics        *prometheus.HistogramVec
	consumeTimeout time.Duration
	chat           usecase.ChatUsecase
	done           chan struct{}
}

func NewConsumer(cfg *config.Config, chat usecase.ChatUsecase) (Consumer, error) {
	if !cfg.Ingest.Enabled {
		return &noopConsumer{}, nil
	}

	metrics, err := util.GetHistogramVec("ingest_messages_consumed", "status", "topic", "group")
	if err != nil {
		return nil, fmt.Errorf("get histogram vec: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Ingest.Brokers,
		Topic:       cfg.Ingest.Topic,
		GroupID:     cfg.Ingest.GroupID,
		StartOffset: kafka.LastOffset,
	})

	return &kafkaConsumer{
		reader:         reader,
		metrics:        metrics,
		consumeTimeout: 30 * time.Second,
		chat:           chat,
		done:           make(chan struct{}),
	}, nil
}

func (c *kafkaConsumer) Start(ctx context.Context) error {
	log.Infof(ctx, "Starting ingest consumer for topic: %s", c.reader.Config().Topic)
	groupID := c.reader.Config().GroupID

	for ctx.Err() == nil {
		select {
		case <-c.done:
			return nil
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			log.Errorw(ctx, "Error fetching message", "error", err)
			continue
		}

		c.processMessage(ctx, msg, groupID)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Errorw(ctx, "Failed to commit message", "error", err)
		}
	}
	return nil
}

func (c *kafkaConsumer) Stop(ctx context.Context) error {
	log.Infof(ctx, "Stopping ingest consumer")
	close(c.done)
	return c.reader.Close()
}

func (c *kafkaConsumer) processMessage(ctx context.Context, msg kafka.Message, groupID string) {
	start := time.Now()
	lagMs := start.Sub(msg.Time).Milliseconds()

	err := c.handle(ctx, msg)
	duration := time.Since(start)

	code := getCode(err)
	content := "success"
	if err != nil {
		content = err.Error()
	}

	log.Logw(ctx, getLogLevel(code), content,
		"code", code,
		"duration_ms", duration.Milliseconds(),
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"lag_ms", lagMs,
		"key", string(msg.Key),
	)

	c.metrics.
		WithLabelValues(code.String(), msg.Topic, groupID).
		Observe(duration.Seconds())
}

func (c *kafkaConsumer) handle(msgCtx context.Context, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC RECOVER: %+v", r)
		}
	}()

	var event inboundEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.Pattern != "message.sent" {
		log.Debugw(msgCtx, "Ignoring event", "pattern", event.Pattern)
		return nil
	}

	convID, err := primitive.ObjectIDFromHex(event.Data.ConversationID)
	if err != nil {
		return models.ErrInvalidArgument("invalid conversation id %q", event.Data.ConversationID)
	}

	ctx, cancel := context.WithTimeout(msgCtx, c.consumeTimeout)
	defer cancel()

	_, err = c.chat.SendMessage(ctx, usecase.SendMessageParams{
		ConversationID: convID,
		SenderID:       event.Data.SenderID,
		Kind:           event.Data.Kind,
		Text:           event.Data.Text,
		Attachments:    event.Data.Attachments,
		ClientID:       event.Data.ClientID,
	})
	return err
}

func getCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	return models.CodeOf(err)
}

// noopConsumer is used when ingestion is disabled.
type noopConsumer struct{}

func (n *noopConsumer) Start(ctx context.Context) error {
	log.Infof(ctx, "Ingest consumer is disabled")
	return nil
}

func (n *noopConsumer) Stop(context.Context) error {
	return nil
}

func getLogLevel(code codes.Code) logger.Level {
	switch code {
	case codes.OK:
		return logger.InfoLevel
	case codes.Canceled,
		codes.InvalidArgument,
		codes.NotFound,
		codes.PermissionDenied,
		codes.FailedPrecondition:
		return logger.WarnLevel
	default:
		return logger.ErrorLevel
	}
}
