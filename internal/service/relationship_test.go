package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/service"
)

type relationshipFixture struct {
	relationshipRepo *fakeRelationshipRepo
	conversationRepo *fakeConversationRepo
	membershipRepo   *fakeMembershipRepo
	userRepo         *fakeUserRepo
	svc              *service.RelationshipService
}

func newRelationshipFixture(t *testing.T, userIDs ...string) *relationshipFixture {
	t.Helper()
	relationshipRepo := newFakeRelationshipRepo()
	conversationRepo := newFakeConversationRepo()
	membershipRepo := newFakeMembershipRepo(conversationRepo)
	userRepo := newFakeUserRepo()
	for _, id := range userIDs {
		userRepo.add(domain.User{ID: id, Username: "user-" + id})
	}
	return &relationshipFixture{
		relationshipRepo: relationshipRepo,
		conversationRepo: conversationRepo,
		membershipRepo:   membershipRepo,
		userRepo:         userRepo,
		svc:              service.NewRelationshipService(relationshipRepo, membershipRepo, userRepo),
	}
}

func TestRelationshipService_Request_CanonicalOrdering(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	// b1 发起，参数顺序是 (b1, a1)：存储仍按规范序 a1 < b1
	relationship, err := f.svc.Request(ctx, "b1", "a1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "a1", relationship.UserAID)
	assert.Equal(t, "b1", relationship.UserBID)
	assert.Equal(t, domain.RequestUserB, relationship.Status, "发起方是规范序中的 userB")

	// 换一个参数顺序再发起：命中同一条记录，不产生第二行
	_, err = f.svc.Request(ctx, "a1", "b1", "a1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAlreadyExists))
	assert.Equal(t, 1, f.relationshipRepo.count(), "同一用户对只能有一条记录")
}

func TestRelationshipService_Request_ConcurrentPairProducesSingleRow(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	// 双方同时发起：读-查-写窗口被按规范对加锁关闭，只能落下一行
	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.Request(ctx, "a1", "b1", "a1")
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := f.svc.Request(ctx, "b1", "a1", "b1")
		results <- err
	}()
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, service.ErrAlreadyExists):
			rejected++
		default:
			t.Fatalf("unexpected error from concurrent request: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "恰好一个请求成功")
	assert.Equal(t, 1, rejected, "另一个请求命中已存在的记录")
	assert.Equal(t, 1, f.relationshipRepo.count())
}

func TestRelationshipService_Request_SelfAndNonParty(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1", "c1")
	ctx := context.Background()

	_, err := f.svc.Request(ctx, "a1", "a1", "a1")
	assert.True(t, errors.Is(err, service.ErrInvalidTransition), "不能和自己建立关系")

	_, err = f.svc.Request(ctx, "a1", "b1", "c1")
	assert.True(t, errors.Is(err, service.ErrUnauthorized), "发起方必须是关系的一方")
}

func TestRelationshipService_Request_UnknownUser(t *testing.T) {
	f := newRelationshipFixture(t, "a1")
	ctx := context.Background()

	_, err := f.svc.Request(ctx, "a1", "ghost", "a1")
	assert.True(t, errors.Is(err, service.ErrUserNotFound))
}

func TestRelationshipService_Request_ReactivatesAwayRecord(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)
	originalID := relationship.ID

	_, err = f.svc.Remove(ctx, "a1", originalID)
	require.NoError(t, err)

	// AWAY 记录被新请求原地复活，ID 不变
	reactivated, err := f.svc.Request(ctx, "b1", "a1", "b1")
	require.NoError(t, err)
	assert.Equal(t, originalID, reactivated.ID)
	assert.Equal(t, domain.RequestUserB, reactivated.Status)
	assert.Equal(t, 1, f.relationshipRepo.count())
}

func TestRelationshipService_Accept_CreatesDirectConversation(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)

	accepted, err := f.svc.Accept(ctx, "b1", relationship.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Friends, accepted.Status)

	// DIRECT 会话已建立，群主是接受方
	require.Equal(t, 1, f.conversationRepo.count())
	membershipB, err := f.membershipRepo.FindDirectBetween(ctx, "b1", "a1")
	require.NoError(t, err)
	require.NotNil(t, membershipB)
	assert.Equal(t, domain.StatusParticipating, membershipB.Status)

	conversation, err := f.conversationRepo.FindByID(ctx, membershipB.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationDirect, conversation.Type)
	assert.Equal(t, "b1", conversation.HostID, "群主是接受请求的一方")

	// 对端成员记录互为 partner
	membershipA, err := f.membershipRepo.FindDirectBetween(ctx, "a1", "b1")
	require.NoError(t, err)
	require.NotNil(t, membershipA)
	assert.Equal(t, membershipB.ConversationID, membershipA.ConversationID)
}

func TestRelationshipService_Accept_IdempotentConversationCreation(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, "b1", relationship.ID)
	require.NoError(t, err)

	// 删除关系后重新请求再接受：不会产生第二个 DIRECT 会话
	_, err = f.svc.Remove(ctx, "b1", relationship.ID)
	require.NoError(t, err)
	_, err = f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)
	accepted, err := f.svc.Accept(ctx, "b1", relationship.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.Friends, accepted.Status)
	assert.Equal(t, 1, f.conversationRepo.count(), "同一用户对的 DIRECT 会话只创建一次")
}

func TestRelationshipService_Accept_RequesterCannotAccept(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1", "c1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, "a1", relationship.ID)
	assert.True(t, errors.Is(err, service.ErrUnauthorized), "发起方不能接受自己的请求")

	_, err = f.svc.Accept(ctx, "c1", relationship.ID)
	assert.True(t, errors.Is(err, service.ErrUnauthorized), "非当事人不能接受请求")

	assert.Equal(t, 0, f.conversationRepo.count())
}

func TestRelationshipService_Accept_InvalidStates(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, "b1", relationship.ID)
	require.NoError(t, err)

	// 已是好友，再接受是非法迁移
	_, err = f.svc.Accept(ctx, "b1", relationship.ID)
	assert.True(t, errors.Is(err, service.ErrInvalidTransition))
}

func TestRelationshipService_BlockAndUnblock(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, "b1", relationship.ID)
	require.NoError(t, err)

	// 只有实施者本人能发起屏蔽
	_, err = f.svc.Block(ctx, "a1", "b1", "a1")
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	blocked, err := f.svc.Block(ctx, "b1", "b1", "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.BlockedUserB, blocked.Status, "屏蔽状态标记实施方所在槽位")
	assert.NotNil(t, blocked.BlockedAt)

	// 已屏蔽不能重复屏蔽
	_, err = f.svc.Block(ctx, "b1", "b1", "a1")
	assert.True(t, errors.Is(err, service.ErrInvalidTransition))

	// 被屏蔽一方不能解除
	_, err = f.svc.Unblock(ctx, "a1", relationship.ID)
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	unblocked, err := f.svc.Unblock(ctx, "b1", relationship.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RelationshipAway, unblocked.Status)
	assert.Nil(t, unblocked.BlockedAt)
}

func TestRelationshipService_FindMine_PartyOnly(t *testing.T) {
	f := newRelationshipFixture(t, "a1", "b1", "c1")
	ctx := context.Background()

	relationship, err := f.svc.Request(ctx, "a1", "b1", "a1")
	require.NoError(t, err)

	_, err = f.svc.FindMine(ctx, relationship.ID, "c1")
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	found, err := f.svc.FindMine(ctx, relationship.ID, "a1")
	require.NoError(t, err)
	assert.Equal(t, relationship.ID, found.ID)
}
