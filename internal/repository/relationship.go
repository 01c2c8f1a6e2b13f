package repository

import (
	"context"

	"group-chat-server/internal/domain"
)

// RelationshipRepository 定义了好友关系的存储和检索操作。
// 每个无序用户对最多一行，(userA, userB) 以规范序存储。
type RelationshipRepository interface {
	// FindByID 根据关系 ID 查找。
	// 不存在时返回 repository.ErrRelationshipNotFound。
	FindByID(ctx context.Context, id string) (*domain.Relationship, error)

	// FindByUserPair 按规范序查找用户对的关系记录。
	// 调用前无需排序，实现内部负责规范化；不存在时返回 (nil, nil)。
	FindByUserPair(ctx context.Context, u1, u2 string) (*domain.Relationship, error)

	// ListByUser 分页列出用户参与的所有关系记录。
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Relationship, int64, error)

	// Save 保存关系记录。
	Save(ctx context.Context, relationship *domain.Relationship) error
}
