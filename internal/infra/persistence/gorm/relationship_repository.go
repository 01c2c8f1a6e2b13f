package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// GormRelationshipRepository 是 RelationshipRepository 接口的 GORM 实现
type GormRelationshipRepository struct {
	db *gorm.DB
}

// NewGormRelationshipRepository 创建 GormRelationshipRepository 实例
func NewGormRelationshipRepository(db *gorm.DB) *GormRelationshipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRelationshipRepository")
	}
	return &GormRelationshipRepository{db: db}
}

// FindByID 实现根据关系 ID 查找
func (r *GormRelationshipRepository) FindByID(ctx context.Context, id string) (*domain.Relationship, error) {
	var relationship domain.Relationship
	err := r.db.WithContext(ctx).
		Preload("UserA").Preload("UserB").
		Where("id = ?", id).First(&relationship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRelationshipNotFound
		}
		return nil, fmt.Errorf("gorm: find relationship by id %s: %w", id, err)
	}
	return &relationship, nil
}

// FindByUserPair 实现按规范序查找用户对的关系记录。
// 缺失返回 (nil, nil)。
func (r *GormRelationshipRepository) FindByUserPair(ctx context.Context, u1, u2 string) (*domain.Relationship, error) {
	userA, userB := domain.CanonicalPair(u1, u2)
	var relationship domain.Relationship
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", userA, userB).
		First(&relationship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("gorm: find relationship by pair (%s, %s): %w", userA, userB, err)
	}
	return &relationship, nil
}

// ListByUser 实现分页列出用户参与的所有关系记录
func (r *GormRelationshipRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Relationship, int64, error) {
	var relationships []domain.Relationship
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Relationship{}).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count relationships for user %s: %w", userID, err)
	}
	err := query.Preload("UserA").Preload("UserB").
		Offset(offset).Limit(limit).
		Order("updated_at DESC").
		Find(&relationships).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list relationships for user %s: %w", userID, err)
	}
	return relationships, total, nil
}

// Save 实现保存关系记录
func (r *GormRelationshipRepository) Save(ctx context.Context, relationship *domain.Relationship) error {
	err := r.db.WithContext(ctx).Save(relationship).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save relationship (id: %s): %w", relationship.ID, err)
	}
	return nil
}
