package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// FindByID 实现根据消息 ID 查找 (含发送者与会话信息)
func (r *GormMessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	var message domain.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").Preload("Conversation").
		Where("id = ? AND deleted_at IS NULL", id).
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: find message by id %s: %w", id, err)
	}
	return &message, nil
}

// ListByConversation 实现按创建时间倒序分页列出会话消息
func (r *GormMessageRepository) ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]domain.Message, int64, error) {
	var messages []domain.Message
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND deleted_at IS NULL", conversationID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count messages for conversation %s: %w", conversationID, err)
	}
	err := query.Preload("Sender").
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&messages).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list messages for conversation %s: %w", conversationID, err)
	}
	return messages, total, nil
}

// Save 实现保存消息
func (r *GormMessageRepository) Save(ctx context.Context, message *domain.Message) error {
	err := r.db.WithContext(ctx).Save(message).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save message (id: %s): %w", message.ID, err)
	}
	return nil
}
