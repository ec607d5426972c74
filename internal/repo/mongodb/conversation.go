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

type ConversationRepository interface {
	FindOrCreateDirect(ctx context.Context, userA, userB string) (*models.Conversation, bool, error)
	CreateGroup(ctx context.Context, name, createdBy string, memberIDs []string) (*models.Conversation, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	TouchLastMessage(ctx context.Context, id primitive.ObjectID, at time.Time) error
	MarkRead(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error
	Clear(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error
	Unhide(ctx context.Context, id primitive.ObjectID, userID string) error
	AddMembers(ctx context.Context, id primitive.ObjectID, userIDs []string) error
	EnsureIndexes(ctx context.Context) error
}

type conversationRepo struct {
	collection *mongo.Collection
}

func NewConversationRepository(db *DB) ConversationRepository {
	return &conversationRepo{
		collection: db.Database.Collection("conversations"),
	}
}

func (r *conversationRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// at most one direct conversation per unordered pair
			Keys: bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"kind": models.ConversationDirect}),
		},
		{
			Keys: bson.D{{Key: "members", Value: 1}, {Key: "last_message_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}
	return nil
}

// FindOrCreateDirect upserts on the direct key so two racing requests for the
// same pair converge on one conversation. The bool reports whether this call
// created it.
func (r *conversationRepo) FindOrCreateDirect(ctx context.Context, userA, userB string) (*models.Conversation, bool, error) {
	now := time.Now()
	filter := bson.M{
		"kind":       models.ConversationDirect,
		"direct_key": models.DirectKeyFor(userA, userB),
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"kind":            models.ConversationDirect,
			"direct_key":      models.DirectKeyFor(userA, userB),
			"members":         []string{userA, userB},
			"participants":    []models.Participant{},
			"hidden_for":      []string{},
			"last_message_at": now,
			"created_at":      now,
			"updated_at":      now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert direct conversation: %w", err)
	}

	var conv models.Conversation
	if err := r.collection.FindOne(ctx, filter).Decode(&conv); err != nil {
		return nil, false, fmt.Errorf("failed to load direct conversation: %w", err)
	}
	return &conv, result.UpsertedCount > 0, nil
}

func (r *conversationRepo) CreateGroup(ctx context.Context, name, createdBy string, memberIDs []string) (*models.Conversation, error) {
	now := time.Now()
	conv := &models.Conversation{
		ID:            primitive.NewObjectID(),
		Kind:          models.ConversationGroup,
		Name:          name,
		Members:       memberIDs,
		Participants:  []models.Participant{},
		HiddenFor:     []string{},
		Admins:        []string{createdBy},
		CreatedBy:     createdBy,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.collection.InsertOne(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create group conversation: %w", err)
	}
	return conv, nil
}

func (r *conversationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (r *conversationRepo) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	filter := bson.M{
		"members":    userID,
		"hidden_for": bson.M{"$ne": userID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var convs []*models.Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return convs, nil
}

// TouchLastMessage bumps the ordering timestamp and re-admits everyone who had
// hidden the conversation; a new message un-deletes it for all members.
func (r *conversationRepo) TouchLastMessage(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	update := bson.M{
		"$max": bson.M{"last_message_at": at},
		"$set": bson.M{
			"hidden_for": []string{},
			"updated_at": time.Now(),
		},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to touch last message: %w", err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkRead merges the participant's last_read_at with $max so a late or
// duplicated read event can never move it backwards.
func (r *conversationRepo) MarkRead(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error {
	matched, err := r.maxLastReadAt(ctx, id, userID, at)
	if err != nil {
		return err
	}
	if matched {
		return nil
	}

	// first read for this member: create the participant entry
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "participants.user_id": bson.M{"$ne": userID}},
		bson.M{
			"$push": bson.M{"participants": models.Participant{
				UserID:     userID,
				LastReadAt: &at,
			}},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to insert participant read state: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// neither branch matched: a concurrent first read inserted the entry
	// between the two updates, so the $max merge applies cleanly now
	matched, err = r.maxLastReadAt(ctx, id, userID, at)
	if err != nil {
		return err
	}
	if !matched {
		return models.ErrNotFound
	}
	return nil
}

func (r *conversationRepo) maxLastReadAt(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "participants.user_id": userID},
		bson.M{
			"$max": bson.M{"participants.$.last_read_at": at},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark read: %w", err)
	}
	return result.MatchedCount > 0, nil
}

// Clear hides the conversation for one user and moves their read horizon to
// now. A per-participant projection only; shared messages are untouched.
func (r *conversationRepo) Clear(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error {
	if err := r.MarkRead(ctx, id, userID, at); err != nil {
		return err
	}

	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "participants.user_id": userID},
		bson.M{
			"$set": bson.M{
				"participants.$.cleared_at":   at,
				"participants.$.unread_extra": 0,
				"updated_at":                  time.Now(),
			},
			"$addToSet": bson.M{"hidden_for": userID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

func (r *conversationRepo) Unhide(ctx context.Context, id primitive.ObjectID, userID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$pull": bson.M{"hidden_for": userID},
			"$set":  bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to unhide conversation: %w", err)
	}
	return nil
}

// AddMembers joins users to a group. Each new member gets unread_extra=1 so
// the system "added you" message counts as unread for them.
func (r *conversationRepo) AddMembers(ctx context.Context, id primitive.ObjectID, userIDs []string) error {
	for _, userID := range userIDs {
		_, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": id},
			bson.M{
				"$addToSet": bson.M{"members": userID},
				"$pull":     bson.M{"hidden_for": userID},
				"$set":      bson.M{"updated_at": time.Now()},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to add member %s: %w", userID, err)
		}

		_, err = r.collection.UpdateOne(ctx,
			bson.M{"_id": id, "participants.user_id": bson.M{"$ne": userID}},
			bson.M{"$push": bson.M{"participants": models.Participant{
				UserID:      userID,
				UnreadExtra: 1,
			}}},
		)
		if err != nil {
			return fmt.Errorf("failed to add participant %s: %w", userID, err)
		}
	}
	return nil
}
