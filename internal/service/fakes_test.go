package service_test

import (
	"context"
	"sync"
	"time"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// 内存版仓库实现，用于状态机流程测试。
// 读写都基于副本，漏掉 Save 调用的业务代码会在断言时暴露出来。

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]domain.User)}
}

func (f *fakeUserRepo) add(user domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) Save(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = *user
	return nil
}

type fakeRelationshipRepo struct {
	mu            sync.Mutex
	relationships map[string]domain.Relationship
}

func newFakeRelationshipRepo() *fakeRelationshipRepo {
	return &fakeRelationshipRepo{relationships: make(map[string]domain.Relationship)}
}

func (f *fakeRelationshipRepo) FindByID(_ context.Context, id string) (*domain.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	relationship, ok := f.relationships[id]
	if !ok {
		return nil, repository.ErrRelationshipNotFound
	}
	return &relationship, nil
}

func (f *fakeRelationshipRepo) FindByUserPair(_ context.Context, u1, u2 string) (*domain.Relationship, error) {
	userA, userB := domain.CanonicalPair(u1, u2)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, relationship := range f.relationships {
		if relationship.UserAID == userA && relationship.UserBID == userB {
			r := relationship
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRelationshipRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]domain.Relationship, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Relationship
	for _, relationship := range f.relationships {
		if relationship.UserAID == userID || relationship.UserBID == userID {
			result = append(result, relationship)
		}
	}
	total := int64(len(result))
	if offset > len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (f *fakeRelationshipRepo) Save(_ context.Context, relationship *domain.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationships[relationship.ID] = *relationship
	return nil
}

func (f *fakeRelationshipRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.relationships)
}

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]domain.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]domain.Conversation)}
}

func (f *fakeConversationRepo) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation, ok := f.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return &conversation, nil
}

func (f *fakeConversationRepo) Save(_ context.Context, conversation *domain.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[conversation.ID] = *conversation
	return nil
}

func (f *fakeConversationRepo) UpdateHost(_ context.Context, conversationID, newHostID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conversation, ok := f.conversations[conversationID]
	if !ok {
		return repository.ErrConversationNotFound
	}
	conversation.HostID = newHostID
	f.conversations[conversationID] = conversation
	return nil
}

func (f *fakeConversationRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conversations)
}

type fakeMembershipRepo struct {
	mu            sync.Mutex
	memberships   map[string]domain.Membership
	conversations *fakeConversationRepo
}

func newFakeMembershipRepo(conversations *fakeConversationRepo) *fakeMembershipRepo {
	return &fakeMembershipRepo{
		memberships:   make(map[string]domain.Membership),
		conversations: conversations,
	}
}

func (f *fakeMembershipRepo) FindByID(_ context.Context, id string) (*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	membership, ok := f.memberships[id]
	if !ok {
		return nil, repository.ErrMembershipNotFound
	}
	return &membership, nil
}

func (f *fakeMembershipRepo) FindByUserAndConversation(_ context.Context, userID, conversationID string) (*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, membership := range f.memberships {
		if membership.UserID == userID && membership.ConversationID == conversationID {
			m := membership
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeMembershipRepo) FindDirectBetween(_ context.Context, userID, partnerID string) (*domain.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, membership := range f.memberships {
		if membership.UserID != userID || membership.PartnerID == nil || *membership.PartnerID != partnerID {
			continue
		}
		conversation, ok := f.conversations.conversations[membership.ConversationID]
		if ok && conversation.Type == domain.ConversationDirect {
			m := membership
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeMembershipRepo) ListByConversation(_ context.Context, conversationID string, offset, limit int) ([]domain.Membership, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Membership
	for _, membership := range f.memberships {
		if membership.ConversationID == conversationID && membership.Status == domain.StatusParticipating {
			result = append(result, membership)
		}
	}
	total := int64(len(result))
	if offset > len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (f *fakeMembershipRepo) ListByUser(_ context.Context, userID string, offset, limit int) ([]domain.Membership, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Membership
	for _, membership := range f.memberships {
		if membership.UserID == userID && membership.Status == domain.StatusParticipating {
			result = append(result, membership)
		}
	}
	total := int64(len(result))
	if offset > len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (f *fakeMembershipRepo) Save(_ context.Context, membership *domain.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.memberships {
		if existing.ID != membership.ID &&
			existing.UserID == membership.UserID &&
			existing.ConversationID == membership.ConversationID {
			return repository.ErrDuplicateEntry
		}
	}
	f.memberships[membership.ID] = *membership
	return nil
}

func (f *fakeMembershipRepo) CreateWithMembers(ctx context.Context, conversation *domain.Conversation, members ...*domain.Membership) error {
	if err := f.conversations.Save(ctx, conversation); err != nil {
		return err
	}
	for _, m := range members {
		if err := f.Save(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMembershipRepo) TransferHost(_ context.Context, conversationID, oldHostID, newHostID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var current, next *domain.Membership
	for id := range f.memberships {
		membership := f.memberships[id]
		if membership.ConversationID != conversationID {
			continue
		}
		switch membership.UserID {
		case oldHostID:
			current = &membership
		case newHostID:
			next = &membership
		}
	}
	if current == nil || next == nil || current.Role != domain.RoleHost {
		return repository.ErrMembershipNotFound
	}

	current.Role = domain.RoleMember
	next.Role = domain.RoleHost
	f.memberships[current.ID] = *current
	f.memberships[next.ID] = *next

	conversation, ok := f.conversations.conversations[conversationID]
	if !ok {
		return repository.ErrConversationNotFound
	}
	conversation.HostID = newHostID
	f.conversations.conversations[conversationID] = conversation
	return nil
}

type fakeStateRepo struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{seqs: make(map[string]uint64)}
}

func (f *fakeStateRepo) NextMessageSeq(_ context.Context, conversationID string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seqs[conversationID]++
	return f.seqs[conversationID], nil
}

func (f *fakeStateRepo) CheckRateLimit(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return false, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string]domain.Message)}
}

func (f *fakeMessageRepo) FindByID(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	message, ok := f.messages[id]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	return &message, nil
}

func (f *fakeMessageRepo) ListByConversation(_ context.Context, conversationID string, offset, limit int) ([]domain.Message, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Message
	for _, message := range f.messages {
		if message.ConversationID == conversationID {
			result = append(result, message)
		}
	}
	total := int64(len(result))
	if offset > len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (f *fakeMessageRepo) Save(_ context.Context, message *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[message.ID] = *message
	return nil
}

type broadcastCall struct {
	ConversationID string
	Event          string
	Payload        interface{}
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeBroadcaster) Broadcast(conversationID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{ConversationID: conversationID, Event: event, Payload: payload})
}

func (f *fakeBroadcaster) recorded() []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcastCall(nil), f.calls...)
}
