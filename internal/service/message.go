package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/authz"
	"group-chat-server/internal/domain"
	"group-chat-server/internal/hub"
	"group-chat-server/internal/repository"
)

// Broadcaster 向会话房间推送实时事件。房间为空时推送是空操作。
type Broadcaster interface {
	Broadcast(conversationID, event string, payload interface{})
}

// MessageService 负责消息的发送和查询。
// 成员资格校验通过授权桥进行，桥上没有响应者或查不到记录时一律拒绝。
type MessageService struct {
	messageRepo repository.MessageRepository
	stateRepo   repository.StateRepository
	bridge      *authz.Bridge
	broadcaster Broadcaster
}

// NewMessageService 创建 MessageService 实例。
func NewMessageService(
	messageRepo repository.MessageRepository,
	stateRepo repository.StateRepository,
	bridge *authz.Bridge,
	broadcaster Broadcaster,
) *MessageService {
	if messageRepo == nil || stateRepo == nil || bridge == nil || broadcaster == nil {
		panic("all dependencies must be non-nil for MessageService")
	}
	return &MessageService{
		messageRepo: messageRepo,
		stateRepo:   stateRepo,
		bridge:      bridge,
		broadcaster: broadcaster,
	}
}

// Create 发送消息。发送者必须是调用者本人，且必须是会话中参与状态的成员。
// 消息持久化后向会话房间广播 newMessage 事件。
func (s *MessageService) Create(ctx context.Context, requestedBy, conversationID, senderID, content string) (*domain.Message, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"sender_id":       senderID,
	})

	if senderID != requestedBy {
		return nil, ErrUnauthorized
	}
	if content == "" {
		return nil, ErrInvalidTransition
	}
	if err := requireParticipant(ctx, s.bridge, senderID, conversationID); err != nil {
		return nil, err
	}

	seq, err := s.stateRepo.NextMessageSeq(ctx, conversationID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to allocate message sequence number")
		return nil, ErrInternalServer
	}

	message := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Seq:            seq,
	}
	if err := s.messageRepo.Save(ctx, message); err != nil {
		logCtx.WithError(err).Error("Failed to save message")
		return nil, ErrInternalServer
	}

	s.broadcaster.Broadcast(conversationID, hub.EventNewMessage, message)
	logCtx.WithFields(logrus.Fields{"message_id": message.ID, "seq": seq}).Info("Message created and broadcast")
	return message, nil
}

// FindByID 查找消息。调用者必须是消息所在会话的参与成员。
func (s *MessageService) FindByID(ctx context.Context, requestedBy, messageID string) (*domain.Message, error) {
	message, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrMessageNotFound
		}
		logrus.WithError(err).WithField("message_id", messageID).Error("Failed to find message")
		return nil, ErrInternalServer
	}
	if err := requireParticipant(ctx, s.bridge, requestedBy, message.ConversationID); err != nil {
		return nil, err
	}
	return message, nil
}

// ListByConversation 分页列出会话中的消息，按序号升序。
func (s *MessageService) ListByConversation(ctx context.Context, requestedBy, conversationID string, page, size int) ([]domain.Message, int64, error) {
	if err := requireParticipant(ctx, s.bridge, requestedBy, conversationID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	messages, total, err := s.messageRepo.ListByConversation(ctx, conversationID, (page-1)*size, size)
	if err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).Error("Failed to list messages")
		return nil, 0, ErrInternalServer
	}
	return messages, total, nil
}

// requireParticipant 通过授权桥校验用户是会话中参与状态的成员。
// 桥上没有响应者、查不到记录或成员非参与状态时一律返回 ErrUnauthorized。
func requireParticipant(ctx context.Context, bridge *authz.Bridge, userID, conversationID string) error {
	membership, err := bridge.Membership(ctx, authz.MembershipQuery{
		UserID:         userID,
		ConversationID: conversationID,
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":         userID,
			"conversation_id": conversationID,
		}).Error("Membership check through authz bridge failed")
		return ErrInternalServer
	}
	if membership == nil || !membership.IsParticipating() {
		return ErrUnauthorized
	}
	return nil
}
