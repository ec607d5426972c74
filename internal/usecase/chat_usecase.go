package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/carousell/ct-go/pkg/logger/log_context"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trungdq-ct/chat-core/internal/models"
	"github.com/trungdq-ct/chat-core/internal/repo/mongodb"
	"github.com/trungdq-ct/chat-core/pkg/util"
)

const pushTimeout = 10 * time.Second

type SendMessageParams struct {
	ConversationID primitive.ObjectID
	SenderID       string
	Kind           string
	Text           string
	Attachments    []models.Attachment
	ReplyTo        *primitive.ObjectID
	ClientID       string
}

type CreateGroupParams struct {
	Name      string
	CreatedBy string
	MemberIDs []string
}

type ChatUsecase interface {
	SendMessage(ctx context.Context, params SendMessageParams) (*models.Message, error)
	CreateDirect(ctx context.Context, userID, peerID string) (*models.Conversation, error)
	CreateGroup(ctx context.Context, params CreateGroupParams) (*models.Conversation, error)
	AddMembers(ctx context.Context, conversationID primitive.ObjectID, actorID string, memberIDs []string) error
}

// ChatOptions carries the tunables the send pipeline needs.
type ChatOptions struct {
	TrustedGifDomains []string
}

type chatUsecase struct {
	convRepo    mongodb.ConversationRepository
	messageRepo mongodb.MessageRepository
	broadcaster Broadcaster
	pusher      PushNotifier
	online      OnlineChecker
	opts        ChatOptions
}

func NewChatUsecase(
	convRepo mongodb.ConversationRepository,
	messageRepo mongodb.MessageRepository,
	broadcaster Broadcaster,
	pusher PushNotifier,
	online OnlineChecker,
	opts ChatOptions,
) ChatUsecase {
	return &chatUsecase{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		broadcaster: broadcaster,
		pusher:      pusher,
		online:      online,
		opts:        opts,
	}
}

// SendMessage validates, persists and fans out one message. Validation
// failures reject before anything is written; once the message is persisted
// every later step is best-effort and never fails the send.
func (uc *chatUsecase) SendMessage(ctx context.Context, params SendMessageParams) (*models.Message, error) {
	conv, err := uc.convRepo.GetByID(ctx, params.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	kind := params.Kind
	if kind == "" {
		kind = models.MessageKindUser
	}

	// system messages have no sender and skip the membership gate
	if kind != models.MessageKindSystem && !conv.HasMember(params.SenderID) {
		return nil, models.ErrPermissionDenied("user %s is not a member of conversation %s", params.SenderID, conv.ID.Hex())
	}

	if strings.TrimSpace(params.Text) == "" && len(params.Attachments) == 0 {
		return nil, models.ErrInvalidArgument("message has no text and no attachments")
	}

	attachments, err := models.SanitizeAttachments(params.Attachments, uc.opts.TrustedGifDomains)
	if err != nil {
		return nil, err
	}

	if params.ReplyTo != nil {
		parent, err := uc.messageRepo.GetByID(ctx, *params.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("failed to load reply target: %w", err)
		}
		if parent.ConversationID != conv.ID {
			return nil, models.ErrInvalidArgument("reply target belongs to another conversation")
		}
	}

	message := &models.Message{
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		Kind:           kind,
		Text:           params.Text,
		Attachments:    attachments,
		ReplyTo:        params.ReplyTo,
		ClientID:       params.ClientID,
	}
	if err := uc.messageRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	// from here on the send already succeeded; fanout problems are logged only
	if err := uc.convRepo.TouchLastMessage(ctx, conv.ID, message.CreatedAt); err != nil {
		log.Errorf(ctx, "failed to touch conversation %s: %v", conv.ID.Hex(), err)
	}
	if message.SenderID != "" {
		// sending implies having read up to this point
		if err := uc.convRepo.MarkRead(ctx, conv.ID, message.SenderID, message.CreatedAt); err != nil {
			log.Errorf(ctx, "failed to mark sender read: %v", err)
		}
	}

	uc.markViewersSeen(ctx, conv, message)
	uc.fanoutMessage(ctx, conv, message)
	uc.notifyOffline(ctx, conv, message)

	return message, nil
}

// markViewersSeen applies the instant-seen heuristic: members whose
// connections are joined to the conversation room are treated as having read
// the new message immediately, and the sender receives their read receipts.
func (uc *chatUsecase) markViewersSeen(ctx context.Context, conv *models.Conversation, message *models.Message) {
	for _, viewer := range uc.broadcaster.RoomViewers(conv.ID.Hex()) {
		if viewer == message.SenderID || !conv.HasMember(viewer) {
			continue
		}
		if err := uc.convRepo.MarkRead(ctx, conv.ID, viewer, message.CreatedAt); err != nil {
			log.Errorf(ctx, "failed to mark viewer %s read: %v", viewer, err)
			continue
		}
		if message.SenderID != "" {
			uc.broadcaster.SendToUser(message.SenderID, models.EventConversationRead, models.ConversationReadPayload{
				ConversationID: conv.ID.Hex(),
				UserID:         viewer,
				At:             message.CreatedAt,
			})
		}
	}
}

// fanoutMessage delivers to every member's per-user channel so all devices
// get it, open conversation or not.
func (uc *chatUsecase) fanoutMessage(ctx context.Context, conv *models.Conversation, message *models.Message) {
	conv.LastMessageAt = message.CreatedAt
	conv.HiddenFor = nil

	uc.broadcaster.SendToUsers(conv.Members, models.EventMessageNew, message)
	uc.broadcaster.SendToUsers(conv.Members, models.EventConversationUpdated, models.ConversationUpdatedPayload{
		Conversation: conv,
		LastMessage:  message,
	})
}

func (uc *chatUsecase) notifyOffline(ctx context.Context, conv *models.Conversation, message *models.Message) {
	var offline []string
	for _, member := range conv.Members {
		if member == message.SenderID || uc.online.IsOnline(member) {
			continue
		}
		offline = append(offline, member)
	}
	if len(offline) == 0 || uc.pusher == nil {
		return
	}

	go func() {
		pushCtx, cancel := util.NewTimeoutContext(ctx, pushTimeout)
		defer cancel()
		if err := uc.pusher.NotifyMessage(pushCtx, offline, conv, message); err != nil {
			log.Errorf(pushCtx, "failed to push message %s: %v", message.ID.Hex(), err)
		}
	}()
}

// CreateDirect finds or creates the unique direct conversation for the pair.
// Re-opening one the caller had hidden un-hides it for them.
func (uc *chatUsecase) CreateDirect(ctx context.Context, userID, peerID string) (*models.Conversation, error) {
	if peerID == "" || peerID == userID {
		return nil, models.ErrInvalidArgument("invalid peer id")
	}

	conv, created, err := uc.convRepo.FindOrCreateDirect(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create direct conversation: %w", err)
	}

	if created {
		uc.broadcaster.SendToUsers(conv.Members, models.EventConversationNew, conv)
		return conv, nil
	}

	if conv.IsHiddenFor(userID) {
		if err := uc.convRepo.Unhide(ctx, conv.ID, userID); err != nil {
			log.Errorf(ctx, "failed to unhide conversation %s: %v", conv.ID.Hex(), err)
		}
	}
	return conv, nil
}

func (uc *chatUsecase) CreateGroup(ctx context.Context, params CreateGroupParams) (*models.Conversation, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, models.ErrInvalidArgument("group name is required")
	}
	members := dedupe(append([]string{params.CreatedBy}, params.MemberIDs...))
	if len(members) < 2 {
		return nil, models.ErrInvalidArgument("a group needs at least two members")
	}

	conv, err := uc.convRepo.CreateGroup(ctx, params.Name, params.CreatedBy, members)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	uc.broadcaster.SendToUsers(conv.Members, models.EventConversationNew, conv)
	return conv, nil
}

// AddMembers joins users to a group and writes the system notice. New members
// carry unread_extra=1 so the notice counts as unread for them even though
// system messages are excluded from the unread query.
func (uc *chatUsecase) AddMembers(ctx context.Context, conversationID primitive.ObjectID, actorID string, memberIDs []string) error {
	conv, err := uc.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv.Kind != models.ConversationGroup {
		return models.ErrInvalidArgument("members can only be added to groups")
	}
	if !conv.HasMember(actorID) {
		return models.ErrPermissionDenied("user %s is not a member of conversation %s", actorID, conv.ID.Hex())
	}

	var added []string
	for _, id := range dedupe(memberIDs) {
		if id != "" && !conv.HasMember(id) {
			added = append(added, id)
		}
	}
	if len(added) == 0 {
		return nil
	}

	if err := uc.convRepo.AddMembers(ctx, conv.ID, added); err != nil {
		return fmt.Errorf("failed to add members: %w", err)
	}

	// reload so the broadcast carries the final member list
	if fresh, err := uc.convRepo.GetByID(ctx, conv.ID); err == nil {
		conv = fresh
	}
	uc.broadcaster.SendToUsers(added, models.EventConversationNew, conv)

	if _, err := uc.SendMessage(ctx, SendMessageParams{
		ConversationID: conv.ID,
		Kind:           models.MessageKindSystem,
		Text:           fmt.Sprintf("%s added %s to the group", actorID, strings.Join(added, ", ")),
	}); err != nil {
		log.Errorf(ctx, "failed to write member-added notice: %v", err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
