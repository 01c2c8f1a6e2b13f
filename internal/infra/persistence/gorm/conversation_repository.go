package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// GormConversationRepository 是 ConversationRepository 接口的 GORM 实现
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建 GormConversationRepository 实例
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	if db == nil {
		panic("database connection cannot be nil for GormConversationRepository")
	}
	return &GormConversationRepository{db: db}
}

// FindByID 实现根据会话 ID 查找会话
func (r *GormConversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var conversation domain.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrConversationNotFound
		}
		return nil, fmt.Errorf("gorm: find conversation by id %s: %w", id, err)
	}
	return &conversation, nil
}

// Save 实现保存会话信息（创建或更新）
func (r *GormConversationRepository) Save(ctx context.Context, conversation *domain.Conversation) error {
	err := r.db.WithContext(ctx).Save(conversation).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save conversation (id: %s): %w", conversation.ID, err)
	}
	return nil
}

// UpdateHost 实现更新会话的群主指针
func (r *GormConversationRepository) UpdateHost(ctx context.Context, conversationID, newHostID string) error {
	result := r.db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", conversationID).
		Update("host_id", newHostID)
	if result.Error != nil {
		return fmt.Errorf("gorm: update host for conversation %s: %w", conversationID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrConversationNotFound
	}
	return nil
}
