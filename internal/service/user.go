package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// UserService 提供用户档案的查询和更新。
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService 创建 UserService 实例。
func NewUserService(userRepo repository.UserRepository) *UserService {
	if userRepo == nil {
		panic("UserRepository cannot be nil for UserService")
	}
	return &UserService{userRepo: userRepo}
}

// FindByID 根据 ID 查找用户，返回前清除密码哈希。
func (s *UserService) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to find user")
		return nil, ErrInternalServer
	}
	user.Password = ""
	return user, nil
}

// FindByEmail 根据邮箱查找用户。
func (s *UserService) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("email", email).Error("Failed to find user by email")
		return nil, ErrInternalServer
	}
	user.Password = ""
	return user, nil
}

// UpdateProfile 更新用户自己的档案字段。只有本人可以更新。
func (s *UserService) UpdateProfile(ctx context.Context, requestedBy, userID, username, email string) (*domain.User, error) {
	if requestedBy != userID {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to find user for update")
		return nil, ErrInternalServer
	}

	if username != "" {
		user.Username = username
	}
	if email != "" {
		user.Email = email
	}

	if err := s.userRepo.Save(ctx, user); err != nil {
		if isRepoDuplicate(err) {
			return nil, ErrAlreadyExists
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to update user profile")
		return nil, ErrInternalServer
	}
	user.Password = ""
	return user, nil
}
