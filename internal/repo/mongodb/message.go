package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trungdq-ct/chat-core/internal/models"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	ListBefore(ctx context.Context, conversationID primitive.ObjectID, before *time.Time, after time.Time, limit int) (*models.MessagePage, error)
	ListPinned(ctx context.Context, conversationID primitive.ObjectID) ([]*models.Message, error)
	CountUnreadSince(ctx context.Context, conversationID primitive.ObjectID, userID string, after time.Time) (int64, error)
	Edit(ctx context.Context, id primitive.ObjectID, text string, at time.Time) (*models.Message, error)
	Recall(ctx context.Context, id primitive.ObjectID, by string, at time.Time) (*models.Message, error)
	SetPinned(ctx context.Context, id primitive.ObjectID, pinned bool, by string, at time.Time) (*models.Message, error)
	React(ctx context.Context, id primitive.ObjectID, userID, emoji string) (*models.Message, error)
	EnsureIndexes(ctx context.Context) error
}

type messageRepo struct {
	collection *mongo.Collection
}

func NewMessageRepository(db *DB) MessageRepository {
	return &messageRepo{
		collection: db.Database.Collection("messages"),
	}
}

func (r *messageRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "pinned", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}

func (r *messageRepo) Create(ctx context.Context, message *models.Message) error {
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	message.UpdatedAt = now
	if message.Reactions == nil {
		message.Reactions = []models.Reaction{}
	}

	if _, err := r.collection.InsertOne(ctx, message); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// ListBefore pages history newest first. It fetches one row past the limit to
// compute has_more without a second query. A non-zero after bound excludes
// messages from before the caller cleared their history.
func (r *messageRepo) ListBefore(ctx context.Context, conversationID primitive.ObjectID, before *time.Time, after time.Time, limit int) (*models.MessagePage, error) {
	filter := bson.M{"conversation_id": conversationID}
	created := bson.M{}
	if before != nil {
		created["$lt"] = *before
	}
	if !after.IsZero() {
		created["$gt"] = after
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit + 1))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	page := &models.MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		page.HasMore = true
	}
	return page, nil
}

func (r *messageRepo) ListPinned(ctx context.Context, conversationID primitive.ObjectID) ([]*models.Message, error) {
	filter := bson.M{"conversation_id": conversationID, "pinned": true}
	opts := options.Find().SetSort(bson.D{{Key: "pinned_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pinned messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode pinned messages: %w", err)
	}
	return messages, nil
}

func (r *messageRepo) CountUnreadSince(ctx context.Context, conversationID primitive.ObjectID, userID string, after time.Time) (int64, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"kind":            models.MessageKindUser,
		"sender_id":       bson.M{"$ne": userID},
	}
	if !after.IsZero() {
		filter["created_at"] = bson.M{"$gt": after}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// Edit rewrites the text. The is_recalled guard makes recall terminal even
// under a racing edit.
func (r *messageRepo) Edit(ctx context.Context, id primitive.ObjectID, text string, at time.Time) (*models.Message, error) {
	filter := bson.M{"_id": id, "is_recalled": false}
	update := bson.M{
		"$set": bson.M{
			"text":       text,
			"edited_at":  at,
			"updated_at": time.Now(),
		},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

// Recall tombstones the message: text, attachments and reactions are cleared
// irreversibly. The is_recalled filter makes a second recall a no-op error.
func (r *messageRepo) Recall(ctx context.Context, id primitive.ObjectID, by string, at time.Time) (*models.Message, error) {
	filter := bson.M{"_id": id, "is_recalled": false}
	update := bson.M{
		"$set": bson.M{
			"text":        models.RecalledText,
			"reactions":   []models.Reaction{},
			"is_recalled": true,
			"recalled_at": at,
			"recalled_by": by,
			"updated_at":  time.Now(),
		},
		"$unset": bson.M{"attachments": ""},
	}
	return r.findOneAndUpdate(ctx, filter, update)
}

func (r *messageRepo) SetPinned(ctx context.Context, id primitive.ObjectID, pinned bool, by string, at time.Time) (*models.Message, error) {
	update := bson.M{
		"$set": bson.M{
			"pinned":     pinned,
			"updated_at": time.Now(),
		},
	}
	if pinned {
		update["$set"].(bson.M)["pinned_at"] = at
		update["$set"].(bson.M)["pinned_by"] = by
	} else {
		update["$unset"] = bson.M{"pinned_at": "", "pinned_by": ""}
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
}

// React replaces the user's previous reaction, if any, with the new emoji.
// The rewrite is a single update so two devices reacting at once still leave
// at most one entry per user.
func (r *messageRepo) React(ctx context.Context, id primitive.ObjectID, userID, emoji string) (*models.Message, error) {
	filter := bson.M{"_id": id, "is_recalled": false}
	return r.findOneAndUpdate(ctx, filter, reactionPipeline(userID, emoji, time.Now()))
}

// reactionPipeline builds the aggregation-pipeline update that drops the
// user's existing reaction entry and appends the new one atomically.
func reactionPipeline(userID, emoji string, now time.Time) []bson.M {
	return []bson.M{{
		"$set": bson.M{
			"reactions": bson.M{
				"$concatArrays": bson.A{
					bson.M{"$filter": bson.M{
						"input": bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}},
						"as":    "reaction",
						"cond":  bson.M{"$ne": bson.A{"$$reaction.user_id", userID}},
					}},
					bson.A{bson.M{"user_id": userID, "emoji": emoji}},
				},
			},
			"updated_at": now,
		},
	}}
}

func (r *messageRepo) findOneAndUpdate(ctx context.Context, filter bson.M, update any) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var message models.Message
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&message)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return &message, nil
}
