package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// RelationshipService 负责两个用户之间好友关系状态机的业务逻辑。
// 用户对以规范序 (字典序较小者为 userA) 唯一存储，所有迁移集中在这里执行。
type RelationshipService struct {
	relationshipRepo repository.RelationshipRepository
	membershipRepo   repository.MembershipRepository
	userRepo         repository.UserRepository
	pairLocks        *keyedMutex
}

// NewRelationshipService 创建 RelationshipService 实例。
func NewRelationshipService(
	relationshipRepo repository.RelationshipRepository,
	membershipRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
) *RelationshipService {
	if relationshipRepo == nil || membershipRepo == nil || userRepo == nil {
		panic("all repositories must be non-nil for RelationshipService")
	}
	return &RelationshipService{
		relationshipRepo: relationshipRepo,
		membershipRepo:   membershipRepo,
		userRepo:         userRepo,
		pairLocks:        newKeyedMutex(),
	}
}

func pairLockKey(u1, u2 string) string {
	userA, userB := domain.CanonicalPair(u1, u2)
	return "relationship:" + userA + "|" + userB
}

// Request 处理好友请求。
// 不存在记录时按规范序插入新行；存在 AWAY 记录时原地重新激活 (绝不产生重复行)；
// 其他状态一律拒绝。
func (s *RelationshipService) Request(ctx context.Context, userAID, userBID, requestedBy string) (*domain.Relationship, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"user_a":       userAID,
		"user_b":       userBID,
		"requested_by": requestedBy,
	})

	if userAID == userBID {
		return nil, ErrInvalidTransition
	}
	if requestedBy != userAID && requestedBy != userBID {
		return nil, ErrUnauthorized
	}

	// 两个用户都必须存在
	for _, id := range []string{userAID, userBID} {
		if _, err := s.userRepo.FindByID(ctx, id); err != nil {
			if isRepoNotFound(err) {
				return nil, ErrUserNotFound
			}
			logCtx.WithError(err).Error("Failed to look up user for friend request")
			return nil, ErrInternalServer
		}
	}

	// 对规范化用户对加锁，关闭并发双请求的读-查-写窗口
	unlock := s.pairLocks.Lock(pairLockKey(userAID, userBID))
	defer unlock()

	existing, err := s.relationshipRepo.FindByUserPair(ctx, userAID, userBID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up existing relationship")
		return nil, ErrInternalServer
	}

	if existing != nil {
		if existing.Status != domain.RelationshipAway {
			logCtx.WithField("status", existing.Status).Warn("Friend request rejected: relationship already exists")
			return nil, ErrAlreadyExists
		}
		// AWAY 记录重新激活：复用规范槽位，保留屏蔽历史所在的行
		existing.Status = existing.RequestStatusFor(requestedBy)
		existing.BlockedAt = nil
		if err := s.relationshipRepo.Save(ctx, existing); err != nil {
			logCtx.WithError(err).Error("Failed to reactivate relationship")
			return nil, ErrInternalServer
		}
		logCtx.WithField("relationship_id", existing.ID).Info("Relationship reactivated by new friend request")
		return s.populate(ctx, existing.ID)
	}

	canonicalA, canonicalB := domain.CanonicalPair(userAID, userBID)
	relationship := &domain.Relationship{
		ID:      uuid.NewString(),
		UserAID: canonicalA,
		UserBID: canonicalB,
	}
	relationship.Status = relationship.RequestStatusFor(requestedBy)

	if err := s.relationshipRepo.Save(ctx, relationship); err != nil {
		logCtx.WithError(err).Error("Failed to create relationship")
		return nil, ErrInternalServer
	}
	logCtx.WithField("relationship_id", relationship.ID).Info("Friend request created")
	return s.populate(ctx, relationship.ID)
}

// Accept 处理好友请求的接受。
// 接受者必须是关系的一方，且必须不是发起请求的一方。成功后状态迁移到 FRIENDS，
// 并且 (仅当不存在时) 创建该用户对的 DIRECT 会话和两条互为 partner 的成员记录。
// DIRECT 会话只有这一条创建路径；重复接受不会产生第二个会话。
func (s *RelationshipService) Accept(ctx context.Context, acceptingUser, relationshipID string) (*domain.Relationship, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"relationship_id": relationshipID,
		"accepting_user":  acceptingUser,
	})

	relationship, err := s.relationshipRepo.FindByID(ctx, relationshipID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrRelationshipNotFound
		}
		logCtx.WithError(err).Error("Failed to look up relationship")
		return nil, ErrInternalServer
	}
	if !relationship.IsParty(acceptingUser) {
		return nil, ErrUnauthorized
	}

	unlock := s.pairLocks.Lock(pairLockKey(relationship.UserAID, relationship.UserBID))
	defer unlock()

	// 加锁后重读，避免基于过期状态做迁移
	relationship, err = s.relationshipRepo.FindByID(ctx, relationshipID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrRelationshipNotFound
		}
		logCtx.WithError(err).Error("Failed to re-read relationship")
		return nil, ErrInternalServer
	}

	switch relationship.Status {
	case domain.Friends:
		return nil, ErrInvalidTransition
	case domain.BlockedUserA, domain.BlockedUserB:
		return nil, ErrInvalidTransition
	case domain.RelationshipAway:
		return nil, ErrInvalidTransition
	}
	// 接受者必须是非请求方
	if relationship.Requester() == acceptingUser {
		logCtx.Warn("Accept rejected: requester cannot accept own friend request")
		return nil, ErrUnauthorized
	}

	partner := relationship.UserAID
	if acceptingUser == relationship.UserAID {
		partner = relationship.UserBID
	}

	// 幂等检查：该用户对的 DIRECT 会话是否已存在
	existingDirect, err := s.membershipRepo.FindDirectBetween(ctx, acceptingUser, partner)
	if err != nil {
		logCtx.WithError(err).Error("Failed to check for existing direct conversation")
		return nil, ErrInternalServer
	}
	if existingDirect == nil {
		now := time.Now()
		conversation := &domain.Conversation{
			ID:     uuid.NewString(),
			Name:   "direct:" + relationship.UserAID + ":" + relationship.UserBID,
			HostID: acceptingUser, // 群主是接受请求的一方
			Type:   domain.ConversationDirect,
		}
		accepterMembership := &domain.Membership{
			ID:             uuid.NewString(),
			UserID:         acceptingUser,
			ConversationID: conversation.ID,
			Role:           domain.RoleMember,
			Status:         domain.StatusParticipating,
			PartnerID:      &partner,
			CreatedAt:      now,
		}
		requesterID := partner
		partnerMembership := &domain.Membership{
			ID:             uuid.NewString(),
			UserID:         requesterID,
			ConversationID: conversation.ID,
			Role:           domain.RoleMember,
			Status:         domain.StatusParticipating,
			PartnerID:      &acceptingUser,
			CreatedAt:      now,
		}
		if err := s.membershipRepo.CreateWithMembers(ctx, conversation, accepterMembership, partnerMembership); err != nil {
			logCtx.WithError(err).Error("Failed to create direct conversation pair")
			return nil, ErrInternalServer
		}
		logCtx.WithField("conversation_id", conversation.ID).Info("Direct conversation created for new friends")
	}

	relationship.Status = domain.Friends
	if err := s.relationshipRepo.Save(ctx, relationship); err != nil {
		logCtx.WithError(err).Error("Failed to mark relationship as friends")
		return nil, ErrInternalServer
	}
	logCtx.Info("Friend request accepted")
	return s.populate(ctx, relationship.ID)
}

// Block 处理屏蔽操作。状态按实施方所在的规范槽位打上 BLOCKED_USER_A/B 标记，
// 并记录 blockedAt。已屏蔽的关系不能再次屏蔽。
func (s *RelationshipService) Block(ctx context.Context, requestedUser, blockedBy, targetUser string) (*domain.Relationship, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"blocked_by": blockedBy,
		"target":     targetUser,
	})

	if blockedBy != requestedUser {
		return nil, ErrUnauthorized
	}
	for _, id := range []string{blockedBy, targetUser} {
		if _, err := s.userRepo.FindByID(ctx, id); err != nil {
			if isRepoNotFound(err) {
				return nil, ErrUserNotFound
			}
			logCtx.WithError(err).Error("Failed to look up user for block")
			return nil, ErrInternalServer
		}
	}

	unlock := s.pairLocks.Lock(pairLockKey(blockedBy, targetUser))
	defer unlock()

	relationship, err := s.relationshipRepo.FindByUserPair(ctx, blockedBy, targetUser)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up relationship for block")
		return nil, ErrInternalServer
	}
	if relationship == nil {
		return nil, ErrRelationshipNotFound
	}
	if relationship.IsBlocked() {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	relationship.Status = relationship.BlockStatusFor(blockedBy)
	relationship.BlockedAt = &now
	if err := s.relationshipRepo.Save(ctx, relationship); err != nil {
		logCtx.WithError(err).Error("Failed to block relationship")
		return nil, ErrInternalServer
	}
	logCtx.WithField("relationship_id", relationship.ID).Info("User blocked")
	return s.populate(ctx, relationship.ID)
}

// Unblock 解除屏蔽。只有实施屏蔽的一方可以解除；解除后状态回到 AWAY。
func (s *RelationshipService) Unblock(ctx context.Context, requestedBy, relationshipID string) (*domain.Relationship, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"relationship_id": relationshipID,
		"requested_by":    requestedBy,
	})

	relationship, err := s.relationshipRepo.FindByID(ctx, relationshipID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrRelationshipNotFound
		}
		logCtx.WithError(err).Error("Failed to look up relationship for unblock")
		return nil, ErrInternalServer
	}
	if !relationship.IsParty(requestedBy) {
		return nil, ErrUnauthorized
	}
	if !relationship.IsBlocked() {
		return nil, ErrInvalidTransition
	}
	if relationship.Blocker() != requestedBy {
		// 解除屏蔽必须由实施屏蔽的同一方执行
		return nil, ErrUnauthorized
	}

	unlock := s.pairLocks.Lock(pairLockKey(relationship.UserAID, relationship.UserBID))
	defer unlock()

	relationship.Status = domain.RelationshipAway
	relationship.BlockedAt = nil
	if err := s.relationshipRepo.Save(ctx, relationship); err != nil {
		logCtx.WithError(err).Error("Failed to unblock relationship")
		return nil, ErrInternalServer
	}
	logCtx.Info("User unblocked")
	return s.populate(ctx, relationship.ID)
}

// Remove 删除关系 ("setAway")。记录不移除，状态迁移到 AWAY，
// 保留规范槽位使该用户对无法绕过屏蔽历史重新发起请求。
func (s *RelationshipService) Remove(ctx context.Context, requestedBy, relationshipID string) (*domain.Relationship, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"relationship_id": relationshipID,
		"requested_by":    requestedBy,
	})

	relationship, err := s.relationshipRepo.FindByID(ctx, relationshipID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrRelationshipNotFound
		}
		logCtx.WithError(err).Error("Failed to look up relationship for removal")
		return nil, ErrInternalServer
	}
	if !relationship.IsParty(requestedBy) {
		return nil, ErrUnauthorized
	}

	unlock := s.pairLocks.Lock(pairLockKey(relationship.UserAID, relationship.UserBID))
	defer unlock()

	relationship.Status = domain.RelationshipAway
	if err := s.relationshipRepo.Save(ctx, relationship); err != nil {
		logCtx.WithError(err).Error("Failed to set relationship away")
		return nil, ErrInternalServer
	}
	logCtx.Info("Relationship removed (set away)")
	return s.populate(ctx, relationship.ID)
}

// FindMine 查找关系并校验调用者是当事人。
func (s *RelationshipService) FindMine(ctx context.Context, relationshipID, requestedUser string) (*domain.Relationship, error) {
	relationship, err := s.populate(ctx, relationshipID)
	if err != nil {
		return nil, err
	}
	if !relationship.IsParty(requestedUser) {
		return nil, ErrUnauthorized
	}
	return relationship, nil
}

// ListForUser 分页列出用户参与的关系。
func (s *RelationshipService) ListForUser(ctx context.Context, userID string, page, size int) ([]domain.Relationship, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	relationships, total, err := s.relationshipRepo.ListByUser(ctx, userID, (page-1)*size, size)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list relationships")
		return nil, 0, ErrInternalServer
	}
	return relationships, total, nil
}

// populate 重新读取带用户信息的关系记录
func (s *RelationshipService) populate(ctx context.Context, relationshipID string) (*domain.Relationship, error) {
	relationship, err := s.relationshipRepo.FindByID(ctx, relationshipID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrRelationshipNotFound
		}
		return nil, ErrInternalServer
	}
	return relationship, nil
}

func isRepoNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
