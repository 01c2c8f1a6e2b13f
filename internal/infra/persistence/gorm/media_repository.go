package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// GormMediaRepository 是 MediaRepository 接口的 GORM 实现
type GormMediaRepository struct {
	db *gorm.DB
}

// NewGormMediaRepository 创建 GormMediaRepository 实例
func NewGormMediaRepository(db *gorm.DB) *GormMediaRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMediaRepository")
	}
	return &GormMediaRepository{db: db}
}

// FindByID 实现根据媒体 ID 查找
func (r *GormMediaRepository) FindByID(ctx context.Context, id string) (*domain.Media, error) {
	var media domain.Media
	err := r.db.WithContext(ctx).
		Preload("Uploader").Preload("Conversation").
		Where("id = ?", id).First(&media).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMediaNotFound
		}
		return nil, fmt.Errorf("gorm: find media by id %s: %w", id, err)
	}
	return &media, nil
}

// ListByConversation 实现分页列出会话中的媒体
func (r *GormMediaRepository) ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]domain.Media, int64, error) {
	var mediaList []domain.Media
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Media{}).
		Where("conversation_id = ?", conversationID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count media for conversation %s: %w", conversationID, err)
	}
	err := query.Preload("Uploader").
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&mediaList).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list media for conversation %s: %w", conversationID, err)
	}
	return mediaList, total, nil
}

// Save 实现保存媒体描述符
func (r *GormMediaRepository) Save(ctx context.Context, media *domain.Media) error {
	err := r.db.WithContext(ctx).Save(media).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save media (id: %s): %w", media.ID, err)
	}
	return nil
}
