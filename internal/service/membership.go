package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/authz"
	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// MembershipService 负责会话成员资格状态机的业务逻辑。
// 所有管理操作 (添加、封禁、移除、交接群主) 均为 host-only；
// 成员记录从不物理删除，退出路径一律是状态迁移。
type MembershipService struct {
	membershipRepo   repository.MembershipRepository
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	memberLocks      *keyedMutex
}

// NewMembershipService 创建 MembershipService 实例。
func NewMembershipService(
	membershipRepo repository.MembershipRepository,
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
) *MembershipService {
	if membershipRepo == nil || conversationRepo == nil || userRepo == nil {
		panic("all repositories must be non-nil for MembershipService")
	}
	return &MembershipService{
		membershipRepo:   membershipRepo,
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		memberLocks:      newKeyedMutex(),
	}
}

// RegisterAuthz 在授权桥上注册成员资格查询的响应者。
// 启动时调用一次；重复注册说明接线有误，错误向上传播以便立即失败。
func (s *MembershipService) RegisterAuthz(bridge *authz.Bridge) error {
	return bridge.Register(authz.RequestFindByUserAndConversation,
		func(ctx context.Context, query authz.MembershipQuery) (*domain.Membership, error) {
			return s.membershipRepo.FindByUserAndConversation(ctx, query.UserID, query.ConversationID)
		})
}

func memberLockKey(conversationID, userID string) string {
	return "membership:" + conversationID + "|" + userID
}

func conversationLockKey(conversationID string) string {
	return "conversation:" + conversationID
}

// AddMember 由群主向群聊添加成员。
// 不存在记录时新建 MEMBER/PARTICIPATING；存在 AWAY 或 REMOVED 记录时原地
// 重新激活；BANNED 成员只能通过解除封禁回归，这里一律拒绝。
func (s *MembershipService) AddMember(ctx context.Context, requestedBy, conversationID, targetUserID string) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"target_user":     targetUserID,
		"requested_by":    requestedBy,
	})

	conversation, err := s.conversationRepo.FindByID(ctx, conversationID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrConversationNotFound
		}
		logCtx.WithError(err).Error("Failed to look up conversation")
		return nil, ErrInternalServer
	}
	if conversation.Type != domain.ConversationGroup {
		// DIRECT 会话的成员固定为建立好友关系的双方
		return nil, ErrInvalidTransition
	}
	if err := s.requireHost(ctx, requestedBy, conversationID); err != nil {
		return nil, err
	}
	if _, err := s.userRepo.FindByID(ctx, targetUserID); err != nil {
		if isRepoNotFound(err) {
			return nil, ErrUserNotFound
		}
		logCtx.WithError(err).Error("Failed to look up target user")
		return nil, ErrInternalServer
	}

	unlock := s.memberLocks.Lock(memberLockKey(conversationID, targetUserID))
	defer unlock()

	existing, err := s.membershipRepo.FindByUserAndConversation(ctx, targetUserID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up existing membership")
		return nil, ErrInternalServer
	}

	if existing != nil {
		switch existing.Status {
		case domain.StatusParticipating:
			return nil, ErrAlreadyExists
		case domain.StatusBanned:
			logCtx.Warn("Add member rejected: user is banned from conversation")
			return nil, ErrInvalidTransition
		}
		existing.Status = domain.StatusParticipating
		existing.Role = domain.RoleMember
		if err := s.membershipRepo.Save(ctx, existing); err != nil {
			logCtx.WithError(err).Error("Failed to reactivate membership")
			return nil, ErrInternalServer
		}
		logCtx.WithField("membership_id", existing.ID).Info("Membership reactivated")
		return existing, nil
	}

	membership := &domain.Membership{
		ID:             uuid.NewString(),
		UserID:         targetUserID,
		ConversationID: conversationID,
		Role:           domain.RoleMember,
		Status:         domain.StatusParticipating,
	}
	if err := s.membershipRepo.Save(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to create membership")
		return nil, ErrInternalServer
	}
	logCtx.WithField("membership_id", membership.ID).Info("Member added to conversation")
	return membership, nil
}

// FindByUserAndConversation 查找 (user, conversation) 的成员记录。
func (s *MembershipService) FindByUserAndConversation(ctx context.Context, userID, conversationID string) (*domain.Membership, error) {
	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, userID, conversationID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":         userID,
			"conversation_id": conversationID,
		}).Error("Failed to look up membership")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	return membership, nil
}

// ListMembers 分页列出会话中参与中的成员。调用者本人必须是参与中的成员。
func (s *MembershipService) ListMembers(ctx context.Context, requestedBy, conversationID string, page, size int) ([]domain.Membership, int64, error) {
	caller, err := s.membershipRepo.FindByUserAndConversation(ctx, requestedBy, conversationID)
	if err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).Error("Failed to check caller membership")
		return nil, 0, ErrInternalServer
	}
	if caller == nil || !caller.IsParticipating() {
		return nil, 0, ErrUnauthorized
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	members, total, err := s.membershipRepo.ListByConversation(ctx, conversationID, (page-1)*size, size)
	if err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).Error("Failed to list members")
		return nil, 0, ErrInternalServer
	}
	return members, total, nil
}

// ListConversationsForUser 分页列出用户参与中的成员记录 (含会话信息)。
func (s *MembershipService) ListConversationsForUser(ctx context.Context, userID string, page, size int) ([]domain.Membership, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	memberships, total, err := s.membershipRepo.ListByUser(ctx, userID, (page-1)*size, size)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list conversations for user")
		return nil, 0, ErrInternalServer
	}
	return memberships, total, nil
}

// ChangeHost 交接群主。调用者必须是当前群主，新群主必须是参与中的成员；
// 降级、升级和会话 host 指针更新在一个事务里原子完成。
func (s *MembershipService) ChangeHost(ctx context.Context, requestedBy, conversationID, newHostID string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"old_host":        requestedBy,
		"new_host":        newHostID,
	})

	if requestedBy == newHostID {
		return ErrInvalidTransition
	}

	unlock := s.memberLocks.Lock(conversationLockKey(conversationID))
	defer unlock()

	if err := s.requireHost(ctx, requestedBy, conversationID); err != nil {
		return err
	}
	target, err := s.membershipRepo.FindByUserAndConversation(ctx, newHostID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up new host membership")
		return ErrInternalServer
	}
	if target == nil {
		return ErrMembershipNotFound
	}
	if !target.IsParticipating() {
		return ErrInvalidTransition
	}

	if err := s.membershipRepo.TransferHost(ctx, conversationID, requestedBy, newHostID); err != nil {
		if isRepoNotFound(err) {
			return ErrMembershipNotFound
		}
		logCtx.WithError(err).Error("Failed to transfer host")
		return ErrInternalServer
	}
	logCtx.Info("Conversation host transferred")
	return nil
}

// Ban 由群主封禁成员。被封禁者必须处于参与状态，群主不能封禁自己。
func (s *MembershipService) Ban(ctx context.Context, requestedBy, conversationID, targetUserID string) (*domain.Membership, error) {
	if requestedBy == targetUserID {
		return nil, ErrInvalidTransition
	}
	if err := s.requireHost(ctx, requestedBy, conversationID); err != nil {
		return nil, err
	}
	return s.banMember(ctx, conversationID, targetUserID, "host")
}

// BanBySystem 由内容审核流水线封禁成员，绕过群主检查。
// 这是审核 worker 的唯一入口，不暴露为 HTTP 操作。
func (s *MembershipService) BanBySystem(ctx context.Context, conversationID, targetUserID string) (*domain.Membership, error) {
	return s.banMember(ctx, conversationID, targetUserID, "system")
}

func (s *MembershipService) banMember(ctx context.Context, conversationID, targetUserID, bannedBy string) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"target_user":     targetUserID,
		"banned_by":       bannedBy,
	})

	unlock := s.memberLocks.Lock(memberLockKey(conversationID, targetUserID))
	defer unlock()

	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, targetUserID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up membership for ban")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	if membership.Role == domain.RoleHost {
		return nil, ErrInvalidTransition
	}
	if !membership.CanTransitionTo(domain.StatusBanned) {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	membership.Status = domain.StatusBanned
	membership.Role = domain.RoleGuest
	membership.BannedAt = &now
	if err := s.membershipRepo.Save(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to ban member")
		return nil, ErrInternalServer
	}
	logCtx.Info("Member banned from conversation")
	return membership, nil
}

// Unban 由群主解除封禁。只有 BANNED 成员可以解除，回到 PARTICIPATING。
func (s *MembershipService) Unban(ctx context.Context, requestedBy, conversationID, targetUserID string) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"target_user":     targetUserID,
		"requested_by":    requestedBy,
	})

	if err := s.requireHost(ctx, requestedBy, conversationID); err != nil {
		return nil, err
	}

	unlock := s.memberLocks.Lock(memberLockKey(conversationID, targetUserID))
	defer unlock()

	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, targetUserID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up membership for unban")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	if membership.Status != domain.StatusBanned {
		return nil, ErrInvalidTransition
	}

	membership.Status = domain.StatusParticipating
	membership.Role = domain.RoleMember
	membership.BannedAt = nil
	if err := s.membershipRepo.Save(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to unban member")
		return nil, ErrInternalServer
	}
	logCtx.Info("Member unbanned")
	return membership, nil
}

// Leave 成员主动离开会话，状态迁移到 AWAY。
// 群主必须先交接群主身份才能离开。
func (s *MembershipService) Leave(ctx context.Context, userID, conversationID string) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"user_id":         userID,
	})

	unlock := s.memberLocks.Lock(memberLockKey(conversationID, userID))
	defer unlock()

	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, userID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up membership for leave")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	if membership.Role == domain.RoleHost {
		logCtx.Warn("Leave rejected: host must transfer ownership first")
		return nil, ErrInvalidTransition
	}
	if !membership.CanTransitionTo(domain.StatusAway) {
		return nil, ErrInvalidTransition
	}

	membership.Status = domain.StatusAway
	membership.Role = domain.RoleGuest
	if err := s.membershipRepo.Save(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to set membership away")
		return nil, ErrInternalServer
	}
	logCtx.Info("Member left conversation")
	return membership, nil
}

// Remove 由群主将成员移出会话，状态迁移到 REMOVED。群主不能移除自己。
func (s *MembershipService) Remove(ctx context.Context, requestedBy, conversationID, targetUserID string) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"target_user":     targetUserID,
		"requested_by":    requestedBy,
	})

	if requestedBy == targetUserID {
		return nil, ErrInvalidTransition
	}
	if err := s.requireHost(ctx, requestedBy, conversationID); err != nil {
		return nil, err
	}

	unlock := s.memberLocks.Lock(memberLockKey(conversationID, targetUserID))
	defer unlock()

	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, targetUserID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up membership for removal")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	if !membership.CanTransitionTo(domain.StatusRemoved) {
		return nil, ErrInvalidTransition
	}

	membership.Status = domain.StatusRemoved
	if err := s.membershipRepo.Save(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to remove member")
		return nil, ErrInternalServer
	}
	logCtx.Info("Member removed from conversation")
	return membership, nil
}

// UpdateRole 由群主调整成员的 MEMBER/GUEST 角色。
// HOST 角色不能通过这里授予或撤销，群主交接走 ChangeHost。
func (s *MembershipService) UpdateRole(ctx context.Context, requestedBy, conversationID, targetUserID string, role domain.MembershipRole) (*domain.Membership, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"target_user":     targetUserID,
		"role":            role,
	})

	if role != domain.RoleMember && role != domain.RoleGuest {
		return nil, ErrInvalidTransition
	}
	if err := s.requireHost(ctx, requestedBy, conversationID); err != nil {
		return nil, err
	}

	unlock := s.memberLocks.Lock(memberLockKey(conversationID, targetUserID))
	defer unlock()

	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, targetUserID, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to look up membership for role update")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}
	if membership.Role == domain.RoleHost {
		return nil, ErrInvalidTransition
	}
	if !membership.IsParticipating() {
		return nil, ErrInvalidTransition
	}

	membership.Role = role
	if err := s.membershipRepo.Save(ctx, membership); err != nil {
		logCtx.WithError(err).Error("Failed to update member role")
		return nil, ErrInternalServer
	}
	logCtx.Info("Member role updated")
	return membership, nil
}

// requireHost 校验调用者是会话中参与状态的群主。
func (s *MembershipService) requireHost(ctx context.Context, userID, conversationID string) error {
	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, userID, conversationID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":         userID,
			"conversation_id": conversationID,
		}).Error("Failed to check host membership")
		return ErrInternalServer
	}
	if membership == nil || !membership.IsParticipating() || membership.Role != domain.RoleHost {
		return ErrUnauthorized
	}
	return nil
}
