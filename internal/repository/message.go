package repository

import (
	"context"

	"group-chat-server/internal/domain"
)

// MessageRepository 定义了消息的存储和检索操作。
type MessageRepository interface {
	// FindByID 根据消息 ID 查找 (含发送者与会话信息)。
	// 不存在时返回 repository.ErrMessageNotFound。
	FindByID(ctx context.Context, id string) (*domain.Message, error)

	// ListByConversation 按创建时间倒序分页列出会话消息。
	ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]domain.Message, int64, error)

	// Save 保存消息。
	Save(ctx context.Context, message *domain.Message) error
}

// MediaRepository 定义了媒体描述符的存储和检索操作。
type MediaRepository interface {
	// FindByID 根据媒体 ID 查找。
	// 不存在时返回 repository.ErrMediaNotFound。
	FindByID(ctx context.Context, id string) (*domain.Media, error)

	// ListByConversation 分页列出会话中的媒体。
	ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]domain.Media, int64, error)

	// Save 保存媒体描述符。
	Save(ctx context.Context, media *domain.Media) error
}
