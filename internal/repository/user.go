package repository

import (
	"context"

	"group-chat-server/internal/domain"
)

// UserRepository 定义了用户数据的存储和检索操作。
type UserRepository interface {
	// FindByID 根据用户 ID 查找用户。
	// 如果用户不存在，应返回 repository.ErrUserNotFound。
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// FindByUsername 根据用户名查找用户。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindByEmail 根据邮箱查找用户。
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// Save 保存用户信息。如果用户已存在 (基于 ID)，则更新；否则创建。
	Save(ctx context.Context, user *domain.User) error
}
