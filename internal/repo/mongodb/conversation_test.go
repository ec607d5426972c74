package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/trungdq-ct/chat-core/internal/models"
)

func TestMarkRead(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	id := primitive.NewObjectID()
	at := time.Now()

	mt.Run("existing participant merges in one update", func(mt *mtest.T) {
		repo := &conversationRepo{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		require.NoError(mt, repo.MarkRead(context.Background(), id, "alice", at))
		assert.NotNil(mt, mt.GetStartedEvent())
		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("first read inserts the participant entry", func(mt *mtest.T) {
		repo := &conversationRepo{collection: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		require.NoError(mt, repo.MarkRead(context.Background(), id, "alice", at))
	})

	mt.Run("losing a first-read race falls back to the max merge", func(mt *mtest.T) {
		repo := &conversationRepo{collection: mt.Coll}
		// the max merge misses, the insert loses to a concurrent first
		// read, then the retried max merge lands on the fresh entry
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		require.NoError(mt, repo.MarkRead(context.Background(), id, "alice", at))
	})

	mt.Run("missing conversation is not found", func(mt *mtest.T) {
		repo := &conversationRepo{collection: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		err := repo.MarkRead(context.Background(), id, "alice", at)
		assert.ErrorIs(mt, err, models.ErrNotFound)
	})
}
