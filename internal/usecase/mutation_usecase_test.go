package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trungdq-ct/chat-core/internal/models"
)

type mutationFixture struct {
	*chatFixture
	mutation MutationUsecase
}

func newMutationFixture() *mutationFixture {
	f := newChatFixture("alice", "bob")
	return &mutationFixture{
		chatFixture: f,
		mutation:    NewMutationUsecase(f.convRepo, f.messageRepo, f.broadcaster),
	}
}

func (f *mutationFixture) sentMessage(t *testing.T) *models.Message {
	t.Helper()
	conv := f.directConv(t, "alice", "bob")
	msg, err := f.chat.SendMessage(context.Background(), SendMessageParams{
		ConversationID: conv.ID,
		SenderID:       "alice",
		Text:           "original",
	})
	require.NoError(t, err)
	return msg
}

func TestEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("sender edits and everyone gets the patch", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		updated, err := f.mutation.Edit(ctx, msg.ID, "alice", "fixed")
		require.NoError(t, err)
		assert.Equal(t, "fixed", updated.Text)
		require.NotNil(t, updated.EditedAt)

		patches := f.broadcaster.byEvent(models.EventMessageEdited)
		require.Len(t, patches, 1)
		assert.ElementsMatch(t, []string{"alice", "bob"}, patches[0].targets)
		patch := patches[0].data.(models.MessagePatch)
		assert.Equal(t, "fixed", patch.Text)
		assert.Equal(t, msg.ID.Hex(), patch.MessageID)
	})

	t.Run("only the sender may edit", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.Edit(ctx, msg.ID, "bob", "hijacked")
		assert.True(t, models.IsPermissionDenied(err))
	})

	t.Run("empty text rejected", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.Edit(ctx, msg.ID, "alice", "  ")
		assert.True(t, models.IsInvalidArgument(err))
	})
}

func TestRecall(t *testing.T) {
	ctx := context.Background()

	t.Run("tombstones the message", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		updated, err := f.mutation.Recall(ctx, msg.ID, "alice")
		require.NoError(t, err)
		assert.True(t, updated.IsRecalled)
		assert.Equal(t, models.RecalledText, updated.Text)
		assert.Empty(t, updated.Attachments)
		assert.Empty(t, updated.Reactions)

		patches := f.broadcaster.byEvent(models.EventMessageRecalled)
		require.Len(t, patches, 1)
		assert.True(t, patches[0].data.(models.MessagePatch).IsRecalled)
	})

	t.Run("recall is terminal for edits", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.Recall(ctx, msg.ID, "alice")
		require.NoError(t, err)

		_, err = f.mutation.Edit(ctx, msg.ID, "alice", "resurrect")
		assert.True(t, models.IsInvalidArgument(err))
	})

	t.Run("second recall rejected, never un-recalls", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.Recall(ctx, msg.ID, "alice")
		require.NoError(t, err)
		_, err = f.mutation.Recall(ctx, msg.ID, "alice")
		assert.True(t, models.IsInvalidArgument(err))

		fresh, err := f.messageRepo.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, fresh.IsRecalled)
	})

	t.Run("only the sender may recall", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.Recall(ctx, msg.ID, "bob")
		assert.True(t, models.IsPermissionDenied(err))
	})
}

func TestSetPinned(t *testing.T) {
	ctx := context.Background()

	t.Run("any member may pin and unpin", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		updated, err := f.mutation.SetPinned(ctx, msg.ID, "bob", true)
		require.NoError(t, err)
		assert.True(t, updated.Pinned)
		assert.Equal(t, "bob", updated.PinnedBy)

		updated, err = f.mutation.SetPinned(ctx, msg.ID, "alice", false)
		require.NoError(t, err)
		assert.False(t, updated.Pinned)
		assert.Nil(t, updated.PinnedAt)

		patches := f.broadcaster.byEvent(models.EventMessagePinned)
		assert.Len(t, patches, 2)
	})

	t.Run("outsider cannot pin", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.SetPinned(ctx, msg.ID, "mallory", true)
		assert.True(t, models.IsPermissionDenied(err))
	})
}

func TestReact(t *testing.T) {
	ctx := context.Background()

	t.Run("second reaction replaces the first", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.React(ctx, msg.ID, "bob", "👍")
		require.NoError(t, err)
		updated, err := f.mutation.React(ctx, msg.ID, "bob", "❤️")
		require.NoError(t, err)

		require.Len(t, updated.Reactions, 1)
		assert.Equal(t, "bob", updated.Reactions[0].UserID)
		assert.Equal(t, "❤️", updated.Reactions[0].Emoji)
	})

	t.Run("broadcast carries the full array", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.React(ctx, msg.ID, "alice", "👍")
		require.NoError(t, err)
		_, err = f.mutation.React(ctx, msg.ID, "bob", "😂")
		require.NoError(t, err)

		patches := f.broadcaster.byEvent(models.EventMessageReaction)
		require.Len(t, patches, 2)
		last := patches[1].data.(models.ReactionPatch)
		assert.Len(t, last.Reactions, 2)
	})

	t.Run("recalled messages cannot be reacted to", func(t *testing.T) {
		f := newMutationFixture()
		msg := f.sentMessage(t)

		_, err := f.mutation.Recall(ctx, msg.ID, "alice")
		require.NoError(t, err)
		_, err = f.mutation.React(ctx, msg.ID, "bob", "👍")
		assert.True(t, models.IsInvalidArgument(err))
	})
}
