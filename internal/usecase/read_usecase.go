package usecase

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/repo/mongodb"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100

	// unreadConcurrency caps the parallel count queries behind ListConversations.
	unreadConcurrency = 8
)

type ReadUsecase interface {
	MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, at time.Time) error
	Hide(ctx context.Context, conversationID primitive.ObjectID, userID string) error
	ListConversations(ctx context.Context, userID string) ([]*models.ConversationSummary, error)
	History(ctx context.Context, conversationID primitive.ObjectID, userID string, before *time.Time, limit int) (*models.MessagePage, error)
	ListPinned(ctx context.Context, conversationID primitive.ObjectID, userID string) ([]*models.Message, error)
	UnreadCount(ctx context.Context, conv *models.Conversation, userID string) (int64, error)
}

type readUsecase struct {
	convRepo    mongodb.ConversationRepository
	messageRepo mongodb.MessageRepository
	broadcaster Broadcaster
}

func NewReadUsecase(
	convRepo mongodb.ConversationRepository,
	messageRepo mongodb.MessageRepository,
	broadcaster Broadcaster,
) ReadUsecase {
	return &readUsecase{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		broadcaster: broadcaster,
	}
}

// MarkRead moves the caller's read horizon forward, never backward, and fans
// the receipt out to every member. The caller's other devices learn about it
// through the same event.
func (uc *readUsecase) MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, at time.Time) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if !conv.HasMember(userID) {
		return models.ErrPermissionDenied("user %s is not a member of conversation %s", userID, conv.ID.Hex())
	}
	if at.IsZero() {
		at = time.Now()
	}

	if err := uc.convRepo.MarkRead(ctx, conv.ID, userID, at); err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}

	uc.broadcaster.SendToUsers(conv.Members, models.EventConversationRead, models.ConversationReadPayload{
		ConversationID: conv.ID.Hex(),
		UserID:         userID,
		At:             at,
	})
	return nil
}

// Hide is delete-for-self: the conversation disappears from the caller's list
// and their unread resets, while the shared messages stay untouched. A later
// message from anyone brings it back.
func (uc *readUsecase) Hide(ctx context.Context, conversationID primitive.ObjectID, userID string) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if !conv.HasMember(userID) {
		return models.ErrPermissionDenied("user %s is not a member of conversation %s", userID, conv.ID.Hex())
	}

	if err := uc.convRepo.Clear(ctx, conv.ID, userID, time.Now()); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

// UnreadCount implements the unread formula: user-kind messages from others
// past the read horizon, plus the manual extra applied on group join.
func (uc *readUsecase) UnreadCount(ctx context.Context, conv *models.Conversation, userID string) (int64, error) {
	count, err := uc.messageRepo.CountUnreadSince(ctx, conv.ID, userID, conv.ReadHorizon(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count + int64(conv.UnreadExtraFor(userID)), nil
}

func (uc *readUsecase) ListConversations(ctx context.Context, userID string) ([]*models.ConversationSummary, error) {
	convs, err := uc.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]*models.ConversationSummary, len(convs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(unreadConcurrency)
	for i, conv := range convs {
		eg.Go(func() error {
			unread, err := uc.UnreadCount(egCtx, conv, userID)
			if err != nil {
				return err
			}
			summaries[i] = &models.ConversationSummary{
				Conversation: conv,
				UnreadCount:  unread,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// History pages newest first. A cleared participant never sees pre-clear
// messages again, so their cleared_at becomes the lower bound.
func (uc *readUsecase) History(ctx context.Context, conversationID primitive.ObjectID, userID string, before *time.Time, limit int) (*models.MessagePage, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !conv.HasMember(userID) {
		return nil, models.ErrPermissionDenied("user %s is not a member of conversation %s", userID, conv.ID.Hex())
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var after time.Time
	if p := conv.ParticipantFor(userID); p != nil && p.ClearedAt != nil {
		after = *p.ClearedAt
	}

	page, err := uc.messageRepo.ListBefore(ctx, conv.ID, before, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return page, nil
}

func (uc *readUsecase) ListPinned(ctx context.Context, conversationID primitive.ObjectID, userID string) ([]*models.Message, error) {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !conv.HasMember(userID) {
		return nil, models.ErrPermissionDenied("user %s is not a member of conversation %s", userID, conv.ID.Hex())
	}
	return uc.messageRepo.ListPinned(ctx, conv.ID)
}
