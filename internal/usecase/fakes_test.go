package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/trungdq-ct/chat-core/internal/models"
)

// In-memory repositories mirroring the mongo semantics the usecases rely on:
// max-merge read marks, hidden_for reset on new messages, recall guards.

type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[primitive.ObjectID]*models.Conversation
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{convs: make(map[primitive.ObjectID]*models.Conversation)}
}

func (r *fakeConvRepo) put(conv *models.Conversation) *models.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv.ID.IsZero() {
		conv.ID = primitive.NewObjectID()
	}
	r.convs[conv.ID] = conv
	return conv
}

func (r *fakeConvRepo) FindOrCreateDirect(_ context.Context, userA, userB string) (*models.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := models.DirectKeyFor(userA, userB)
	for _, conv := range r.convs {
		if conv.Kind == models.ConversationDirect && conv.DirectKey == key {
			return conv, false, nil
		}
	}
	conv := &models.Conversation{
		ID:            primitive.NewObjectID(),
		Kind:          models.ConversationDirect,
		DirectKey:     key,
		Members:       []string{userA, userB},
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	r.convs[conv.ID] = conv
	return conv, true, nil
}

func (r *fakeConvRepo) CreateGroup(_ context.Context, name, createdBy string, memberIDs []string) (*models.Conversation, error) {
	conv := &models.Conversation{
		Kind:          models.ConversationGroup,
		Name:          name,
		Members:       memberIDs,
		Admins:        []string{createdBy},
		CreatedBy:     createdBy,
		LastMessageAt: time.Now(),
		CreatedAt:     time.Now(),
	}
	return r.put(conv), nil
}

func (r *fakeConvRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *conv
	return &clone, nil
}

func (r *fakeConvRepo) ListForUser(_ context.Context, userID string) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Conversation
	for _, conv := range r.convs {
		if conv.HasMember(userID) && !conv.IsHiddenFor(userID) {
			clone := *conv
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (r *fakeConvRepo) TouchLastMessage(_ context.Context, id primitive.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return models.ErrNotFound
	}
	if at.After(conv.LastMessageAt) {
		conv.LastMessageAt = at
	}
	conv.HiddenFor = nil
	return nil
}

func (r *fakeConvRepo) MarkRead(_ context.Context, id primitive.ObjectID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return models.ErrNotFound
	}
	p := conv.ParticipantFor(userID)
	if p == nil {
		conv.Participants = append(conv.Participants, models.Participant{UserID: userID, LastReadAt: &at})
		return nil
	}
	if p.LastReadAt == nil || at.After(*p.LastReadAt) {
		p.LastReadAt = &at
	}
	return nil
}

func (r *fakeConvRepo) Clear(ctx context.Context, id primitive.ObjectID, userID string, at time.Time) error {
	if err := r.MarkRead(ctx, id, userID, at); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv := r.convs[id]
	p := conv.ParticipantFor(userID)
	p.ClearedAt = &at
	p.UnreadExtra = 0
	if !conv.IsHiddenFor(userID) {
		conv.HiddenFor = append(conv.HiddenFor, userID)
	}
	return nil
}

func (r *fakeConvRepo) Unhide(_ context.Context, id primitive.ObjectID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return models.ErrNotFound
	}
	var remaining []string
	for _, u := range conv.HiddenFor {
		if u != userID {
			remaining = append(remaining, u)
		}
	}
	conv.HiddenFor = remaining
	return nil
}

func (r *fakeConvRepo) AddMembers(_ context.Context, id primitive.ObjectID, userIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return models.ErrNotFound
	}
	for _, userID := range userIDs {
		if !conv.HasMember(userID) {
			conv.Members = append(conv.Members, userID)
		}
		if conv.ParticipantFor(userID) == nil {
			conv.Participants = append(conv.Participants, models.Participant{UserID: userID, UnreadExtra: 1})
		}
	}
	return nil
}

func (r *fakeConvRepo) EnsureIndexes(context.Context) error { return nil }

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (r *fakeMessageRepo) Create(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.ID = primitive.NewObjectID()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	message.UpdatedAt = message.CreatedAt
	if message.Reactions == nil {
		message.Reactions = []models.Reaction{}
	}
	clone := *message
	r.messages = append(r.messages, &clone)
	return nil
}

func (r *fakeMessageRepo) find(id primitive.ObjectID) *models.Message {
	for _, m := range r.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(id)
	if m == nil {
		return nil, models.ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) ListBefore(_ context.Context, conversationID primitive.ObjectID, before *time.Time, after time.Time, limit int) (*models.MessagePage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		if !after.IsZero() && !m.CreatedAt.After(after) {
			continue
		}
		clone := *m
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &models.MessagePage{Messages: matched}
	if len(matched) > limit {
		page.Messages = matched[:limit]
		page.HasMore = true
	}
	return page, nil
}

func (r *fakeMessageRepo) ListPinned(_ context.Context, conversationID primitive.ObjectID) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID && m.Pinned {
			clone := *m
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) CountUnreadSince(_ context.Context, conversationID primitive.ObjectID, userID string, after time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.Kind != models.MessageKindUser || m.SenderID == userID {
			continue
		}
		if !after.IsZero() && !m.CreatedAt.After(after) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *fakeMessageRepo) Edit(_ context.Context, id primitive.ObjectID, text string, at time.Time) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(id)
	if m == nil || m.IsRecalled {
		return nil, models.ErrNotFound
	}
	m.Text = text
	m.EditedAt = &at
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) Recall(_ context.Context, id primitive.ObjectID, by string, at time.Time) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(id)
	if m == nil || m.IsRecalled {
		return nil, models.ErrNotFound
	}
	m.Text = models.RecalledText
	m.Attachments = nil
	m.Reactions = []models.Reaction{}
	m.IsRecalled = true
	m.RecalledAt = &at
	m.RecalledBy = by
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) SetPinned(_ context.Context, id primitive.ObjectID, pinned bool, by string, at time.Time) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(id)
	if m == nil {
		return nil, models.ErrNotFound
	}
	m.Pinned = pinned
	if pinned {
		m.PinnedAt = &at
		m.PinnedBy = by
	} else {
		m.PinnedAt = nil
		m.PinnedBy = ""
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) React(_ context.Context, id primitive.ObjectID, userID, emoji string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(id)
	if m == nil || m.IsRecalled {
		return nil, models.ErrNotFound
	}
	var kept []models.Reaction
	for _, reaction := range m.Reactions {
		if reaction.UserID != userID {
			kept = append(kept, reaction)
		}
	}
	m.Reactions = append(kept, models.Reaction{UserID: userID, Emoji: emoji})
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) EnsureIndexes(context.Context) error { return nil }

// sent is one recorded broadcast.
type sent struct {
	targets []string
	room    string
	event   string
	data    any
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	events  []sent
	viewers map[string][]string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{viewers: make(map[string][]string)}
}

func (b *fakeBroadcaster) SendToUser(userID, event string, data any) {
	b.record(sent{targets: []string{userID}, event: event, data: data})
}

func (b *fakeBroadcaster) SendToUsers(userIDs []string, event string, data any) {
	b.record(sent{targets: userIDs, event: event, data: data})
}

func (b *fakeBroadcaster) SendToRoom(conversationID, event string, data any, exclude ...string) {
	b.record(sent{room: conversationID, event: event, data: data})
}

func (b *fakeBroadcaster) RoomViewers(conversationID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewers[conversationID]
}

func (b *fakeBroadcaster) record(s sent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, s)
}

// byEvent returns the recorded broadcasts for one event name.
func (b *fakeBroadcaster) byEvent(event string) []sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sent
	for _, s := range b.events {
		if s.event == event {
			out = append(out, s)
		}
	}
	return out
}

type fakePusher struct {
	mu     sync.Mutex
	pushed [][]string
	ch     chan struct{}
}

func newFakePusher() *fakePusher {
	return &fakePusher{ch: make(chan struct{}, 8)}
}

func (p *fakePusher) NotifyMessage(_ context.Context, userIDs []string, _ *models.Conversation, _ *models.Message) error {
	p.mu.Lock()
	p.pushed = append(p.pushed, userIDs)
	p.mu.Unlock()
	p.ch <- struct{}{}
	return nil
}

type fakeOnline struct {
	mu     sync.Mutex
	online map[string]bool
}

func newFakeOnline(userIDs ...string) *fakeOnline {
	f := &fakeOnline{online: make(map[string]bool)}
	for _, id := range userIDs {
		f.online[id] = true
	}
	return f
}

func (f *fakeOnline) IsOnline(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}
