package repository

import (
	"context"

	"group-chat-server/internal/domain"
)

// ConversationRepository 定义了会话数据的存储和检索操作。
type ConversationRepository interface {
	// FindByID 根据会话 ID 查找会话。
	// 如果会话不存在，应返回 repository.ErrConversationNotFound。
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)

	// Save 保存会话信息。
	Save(ctx context.Context, conversation *domain.Conversation) error

	// UpdateHost 更新会话的群主指针。
	UpdateHost(ctx context.Context, conversationID, newHostID string) error
}
