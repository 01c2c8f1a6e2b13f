package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// ConversationService 负责会话本身的创建和查询。
// 这里只创建 GROUP 会话；DIRECT 会话唯一的创建路径是好友请求被接受。
type ConversationService struct {
	conversationRepo repository.ConversationRepository
	membershipRepo   repository.MembershipRepository
	userRepo         repository.UserRepository
}

// NewConversationService 创建 ConversationService 实例。
func NewConversationService(
	conversationRepo repository.ConversationRepository,
	membershipRepo repository.MembershipRepository,
	userRepo repository.UserRepository,
) *ConversationService {
	if conversationRepo == nil || membershipRepo == nil || userRepo == nil {
		panic("all repositories must be non-nil for ConversationService")
	}
	return &ConversationService{
		conversationRepo: conversationRepo,
		membershipRepo:   membershipRepo,
		userRepo:         userRepo,
	}
}

// CreateGroup 创建群聊。创建者自动成为 HOST/PARTICIPATING 成员。
func (s *ConversationService) CreateGroup(ctx context.Context, hostID, name string) (*domain.Conversation, error) {
	logCtx := logrus.WithFields(logrus.Fields{"host_id": hostID, "name": name})

	if name == "" {
		return nil, ErrInvalidTransition
	}
	if _, err := s.userRepo.FindByID(ctx, hostID); err != nil {
		if isRepoNotFound(err) {
			return nil, ErrUserNotFound
		}
		logCtx.WithError(err).Error("Failed to look up host user")
		return nil, ErrInternalServer
	}

	conversation := &domain.Conversation{
		ID:     uuid.NewString(),
		Name:   name,
		HostID: hostID,
		Type:   domain.ConversationGroup,
	}
	hostMembership := &domain.Membership{
		ID:             uuid.NewString(),
		UserID:         hostID,
		ConversationID: conversation.ID,
		Role:           domain.RoleHost,
		Status:         domain.StatusParticipating,
	}
	// 会话和群主成员记录在一个事务中落库，不存在没有 HOST 的会话
	if err := s.membershipRepo.CreateWithMembers(ctx, conversation, hostMembership); err != nil {
		logCtx.WithError(err).Error("Failed to create group conversation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("conversation_id", conversation.ID).Info("Group conversation created")
	return conversation, nil
}

// FindByID 查找会话。调用者必须是该会话的成员 (任意状态)。
func (s *ConversationService) FindByID(ctx context.Context, requestedBy, conversationID string) (*domain.Conversation, error) {
	membership, err := s.membershipRepo.FindByUserAndConversation(ctx, requestedBy, conversationID)
	if err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).Error("Failed to check membership")
		return nil, ErrInternalServer
	}
	if membership == nil {
		return nil, ErrUnauthorized
	}

	conversation, err := s.conversationRepo.FindByID(ctx, conversationID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrConversationNotFound
		}
		logrus.WithError(err).WithField("conversation_id", conversationID).Error("Failed to find conversation")
		return nil, ErrInternalServer
	}
	return conversation, nil
}
