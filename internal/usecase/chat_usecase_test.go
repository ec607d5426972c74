package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trungdq-ct/chat-core/internal/models"
)

type chatFixture struct {
	convRepo    *fakeConvRepo
	messageRepo *fakeMessageRepo
	broadcaster *fakeBroadcaster
	pusher      *fakePusher
	online      *fakeOnline
	chat        ChatUsecase
	read        ReadUsecase
}

func newChatFixture(onlineUsers ...string) *chatFixture {
	f := &chatFixture{
		convRepo:    newFakeConvRepo(),
		messageRepo: newFakeMessageRepo(),
		broadcaster: newFakeBroadcaster(),
		pusher:      newFakePusher(),
		online:      newFakeOnline(onlineUsers...),
	}
	f.chat = NewChatUsecase(f.convRepo, f.messageRepo, f.broadcaster, f.pusher, f.online, ChatOptions{
		TrustedGifDomains: []string{"giphy.com"},
	})
	f.read = NewReadUsecase(f.convRepo, f.messageRepo, f.broadcaster)
	return f
}

func (f *chatFixture) directConv(t *testing.T, a, b string) *models.Conversation {
	t.Helper()
	conv, _, err := f.convRepo.FindOrCreateDirect(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects non-member without writing", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv := f.directConv(t, "alice", "bob")

		_, err := f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "mallory",
			Text:           "hi",
		})
		assert.True(t, models.IsPermissionDenied(err))
		assert.Empty(t, f.messageRepo.messages)
		assert.Empty(t, f.broadcaster.events)
	})

	t.Run("rejects empty text with no attachments", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv := f.directConv(t, "alice", "bob")

		_, err := f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Text:           "   ",
		})
		assert.True(t, models.IsInvalidArgument(err))
		assert.Empty(t, f.messageRepo.messages)
	})

	t.Run("rejects untrusted gif outright", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv := f.directConv(t, "alice", "bob")

		_, err := f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Attachments: []models.Attachment{
				{Kind: models.AttachmentGif, URL: "https://evil.example.com/cat.gif"},
			},
		})
		assert.True(t, models.IsInvalidArgument(err))
		assert.Empty(t, f.messageRepo.messages)
	})

	t.Run("persists and fans out to every member", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv := f.directConv(t, "alice", "bob")

		msg, err := f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Text:           "hi",
			ClientID:       "c1",
		})
		require.NoError(t, err)
		assert.False(t, msg.ID.IsZero())
		assert.Equal(t, "c1", msg.ClientID)

		news := f.broadcaster.byEvent(models.EventMessageNew)
		require.Len(t, news, 1)
		assert.ElementsMatch(t, []string{"alice", "bob"}, news[0].targets)
		assert.Equal(t, "c1", news[0].data.(*models.Message).ClientID)

		updated := f.broadcaster.byEvent(models.EventConversationUpdated)
		require.Len(t, updated, 1)
		assert.ElementsMatch(t, []string{"alice", "bob"}, updated[0].targets)

		// sending implies having read up to the message timestamp
		fresh, err := f.convRepo.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.CreatedAt, fresh.ReadHorizon("alice"))
		assert.True(t, fresh.ReadHorizon("bob").IsZero())
	})

	t.Run("instant seen from room viewers", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv := f.directConv(t, "alice", "bob")
		f.broadcaster.viewers[conv.ID.Hex()] = []string{"bob"}

		msg, err := f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Text:           "hi",
		})
		require.NoError(t, err)

		// bob never issued a read command, yet his horizon moved
		fresh, err := f.convRepo.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.CreatedAt, fresh.ReadHorizon("bob"))

		receipts := f.broadcaster.byEvent(models.EventConversationRead)
		require.Len(t, receipts, 1)
		assert.Equal(t, []string{"alice"}, receipts[0].targets)
		payload := receipts[0].data.(models.ConversationReadPayload)
		assert.Equal(t, "bob", payload.UserID)
	})

	t.Run("pushes offline members", func(t *testing.T) {
		f := newChatFixture("alice")
		conv := f.directConv(t, "alice", "bob")

		_, err := f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "alice",
			Text:           "hi",
		})
		require.NoError(t, err)

		select {
		case <-f.pusher.ch:
		case <-time.After(time.Second):
			t.Fatal("push never happened")
		}
		f.pusher.mu.Lock()
		defer f.pusher.mu.Unlock()
		require.Len(t, f.pusher.pushed, 1)
		assert.Equal(t, []string{"bob"}, f.pusher.pushed[0])
	})

	t.Run("new message un-hides for everyone", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv := f.directConv(t, "alice", "bob")

		require.NoError(t, f.read.Hide(ctx, conv.ID, "alice"))
		hidden, err := f.convRepo.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		require.True(t, hidden.IsHiddenFor("alice"))

		_, err = f.chat.SendMessage(ctx, SendMessageParams{
			ConversationID: conv.ID,
			SenderID:       "bob",
			Text:           "you there?",
		})
		require.NoError(t, err)

		fresh, err := f.convRepo.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, fresh.IsHiddenFor("alice"))

		// unread counts only messages after the clear point
		unread, err := f.read.UnreadCount(ctx, fresh, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)
	})
}

func TestCreateDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("same pair converges on one conversation", func(t *testing.T) {
		f := newChatFixture()

		first, err := f.chat.CreateDirect(ctx, "alice", "bob")
		require.NoError(t, err)
		second, err := f.chat.CreateDirect(ctx, "bob", "alice")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Len(t, f.broadcaster.byEvent(models.EventConversationNew), 1)
	})

	t.Run("re-opening un-hides", func(t *testing.T) {
		f := newChatFixture()
		conv, err := f.chat.CreateDirect(ctx, "alice", "bob")
		require.NoError(t, err)
		require.NoError(t, f.read.Hide(ctx, conv.ID, "alice"))

		_, err = f.chat.CreateDirect(ctx, "alice", "bob")
		require.NoError(t, err)

		fresh, err := f.convRepo.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.False(t, fresh.IsHiddenFor("alice"))
	})

	t.Run("rejects self conversation", func(t *testing.T) {
		f := newChatFixture()
		_, err := f.chat.CreateDirect(ctx, "alice", "alice")
		assert.True(t, models.IsInvalidArgument(err))
	})
}

func TestAddMembers(t *testing.T) {
	ctx := context.Background()

	t.Run("new member sees the join notice as unread", func(t *testing.T) {
		f := newChatFixture("alice", "bob")
		conv, err := f.chat.CreateGroup(ctx, CreateGroupParams{
			Name:      "team",
			CreatedBy: "alice",
			MemberIDs: []string{"bob"},
		})
		require.NoError(t, err)

		require.NoError(t, f.chat.AddMembers(ctx, conv.ID, "alice", []string{"carol"}))

		fresh, err := f.convRepo.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, fresh.HasMember("carol"))
		assert.Equal(t, 1, fresh.UnreadExtraFor("carol"))

		// system notice exists but does not feed the message-count term
		unread, err := f.read.UnreadCount(ctx, fresh, "carol")
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)

		news := f.broadcaster.byEvent(models.EventMessageNew)
		require.Len(t, news, 1)
		assert.Equal(t, models.MessageKindSystem, news[0].data.(*models.Message).Kind)
	})

	t.Run("outsider cannot add members", func(t *testing.T) {
		f := newChatFixture()
		conv, err := f.chat.CreateGroup(ctx, CreateGroupParams{
			Name:      "team",
			CreatedBy: "alice",
			MemberIDs: []string{"bob"},
		})
		require.NoError(t, err)

		err = f.chat.AddMembers(ctx, conv.ID, "mallory", []string{"carol"})
		assert.True(t, models.IsPermissionDenied(err))
	})

	t.Run("direct conversations never grow", func(t *testing.T) {
		f := newChatFixture()
		conv := f.directConv(t, "alice", "bob")

		err := f.chat.AddMembers(ctx, conv.ID, "alice", []string{"carol"})
		assert.True(t, models.IsInvalidArgument(err))
	})
}
