package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/repo/mongodb"
	"github.com/trungdq-ct/chat-core/pkg/util"
)

type MutationUsecase interface {
	Edit(ctx context.Context, messageID primitive.ObjectID, userID, text string) (*models.Message, error)
	Recall(ctx context.Context, messageID primitive.ObjectID, userID string) (*models.Message, error)
	SetPinned(ctx context.Context, messageID primitive.ObjectID, userID string, pinned bool) (*models.Message, error)
	React(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Message, error)
}

type mutationUsecase struct {
	convRepo    mongodb.ConversationRepository
	messageRepo mongodb.MessageRepository
	broadcaster Broadcaster
}

func NewMutationUsecase(
	convRepo mongodb.ConversationRepository,
	messageRepo mongodb.MessageRepository,
	broadcaster Broadcaster,
) MutationUsecase {
	return &mutationUsecase{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		broadcaster: broadcaster,
	}
}

// load fetches the message and its conversation, then checks the caller's
// standing. senderOnly restricts the mutation to the original author.
func (uc *mutationUsecase) load(ctx context.Context, messageID primitive.ObjectID, userID string, senderOnly bool) (*models.Message, *models.Conversation, error) {
	message, err := uc.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load message: %w", err)
	}
	conv, err := uc.convRepo.GetByID(ctx, message.ConversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !conv.HasMember(userID) {
		return nil, nil, models.ErrPermissionDenied("user %s is not a member of conversation %s", userID, conv.ID.Hex())
	}
	if senderOnly && message.SenderID != userID {
		return nil, nil, models.ErrPermissionDenied("only the sender may modify message %s", message.ID.Hex())
	}
	return message, conv, nil
}

func (uc *mutationUsecase) Edit(ctx context.Context, messageID primitive.ObjectID, userID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrInvalidArgument("edited text must not be empty")
	}

	message, conv, err := uc.load(ctx, messageID, userID, true)
	if err != nil {
		return nil, err
	}
	if message.IsRecalled {
		return nil, models.ErrInvalidArgument("message %s is recalled", message.ID.Hex())
	}

	updated, err := uc.messageRepo.Edit(ctx, message.ID, text, time.Now())
	if models.IsNotFound(err) {
		// lost the race against a concurrent recall
		return nil, models.ErrInvalidArgument("message %s is recalled", message.ID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to edit message: %w", err)
	}

	uc.broadcaster.SendToUsers(conv.Members, models.EventMessageEdited, models.MessagePatch{
		MessageID:      updated.ID.Hex(),
		ConversationID: conv.ID.Hex(),
		Text:           updated.Text,
		EditedAt:       updated.EditedAt,
	})
	return updated, nil
}

// Recall tombstones the message for everyone. Terminal: a recalled message
// can never be edited, reacted to, or recalled again.
func (uc *mutationUsecase) Recall(ctx context.Context, messageID primitive.ObjectID, userID string) (*models.Message, error) {
	message, conv, err := uc.load(ctx, messageID, userID, true)
	if err != nil {
		return nil, err
	}
	if message.IsRecalled {
		return nil, models.ErrInvalidArgument("message %s is already recalled", message.ID.Hex())
	}

	updated, err := uc.messageRepo.Recall(ctx, message.ID, userID, time.Now())
	if models.IsNotFound(err) {
		return nil, models.ErrInvalidArgument("message %s is already recalled", message.ID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to recall message: %w", err)
	}

	uc.broadcaster.SendToUsers(conv.Members, models.EventMessageRecalled, models.MessagePatch{
		MessageID:      updated.ID.Hex(),
		ConversationID: conv.ID.Hex(),
		Text:           updated.Text,
		IsRecalled:     true,
		RecalledAt:     updated.RecalledAt,
		RecalledBy:     updated.RecalledBy,
	})
	return updated, nil
}

// SetPinned toggles the pin; any current member may. Idempotent in effect,
// re-pinning only refreshes pinned_at/pinned_by.
func (uc *mutationUsecase) SetPinned(ctx context.Context, messageID primitive.ObjectID, userID string, pinned bool) (*models.Message, error) {
	message, conv, err := uc.load(ctx, messageID, userID, false)
	if err != nil {
		return nil, err
	}
	if pinned && message.IsRecalled {
		return nil, models.ErrInvalidArgument("message %s is recalled", message.ID.Hex())
	}

	updated, err := uc.messageRepo.SetPinned(ctx, message.ID, pinned, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to set pinned: %w", err)
	}

	uc.broadcaster.SendToUsers(conv.Members, models.EventMessagePinned, models.MessagePatch{
		MessageID:      updated.ID.Hex(),
		ConversationID: conv.ID.Hex(),
		Pinned:         util.Ptr(updated.Pinned),
		PinnedAt:       updated.PinnedAt,
		PinnedBy:       updated.PinnedBy,
	})
	return updated, nil
}

// React upserts the caller's reaction; a second reaction replaces the first.
// The broadcast carries the full resulting array, never a delta.
func (uc *mutationUsecase) React(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*models.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, models.ErrInvalidArgument("emoji is required")
	}

	message, conv, err := uc.load(ctx, messageID, userID, false)
	if err != nil {
		return nil, err
	}
	if message.IsRecalled {
		return nil, models.ErrInvalidArgument("message %s is recalled", message.ID.Hex())
	}

	updated, err := uc.messageRepo.React(ctx, message.ID, userID, emoji)
	if models.IsNotFound(err) {
		return nil, models.ErrInvalidArgument("message %s is recalled", message.ID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to react: %w", err)
	}

	uc.broadcaster.SendToUsers(conv.Members, models.EventMessageReaction, models.ReactionPatch{
		MessageID:      updated.ID.Hex(),
		ConversationID: conv.ID.Hex(),
		Reactions:      updated.Reactions,
	})
	return updated, nil
}
