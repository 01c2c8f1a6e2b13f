package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
)

// GormMembershipRepository 是 MembershipRepository 接口的 GORM 实现
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository 创建 GormMembershipRepository 实例
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

// FindByID 实现根据成员记录 ID 查找
func (r *GormMembershipRepository) FindByID(ctx context.Context, id string) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Preload("User").Preload("Conversation").
		Where("id = ?", id).First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership by id %s: %w", id, err)
	}
	return &membership, nil
}

// FindByUserAndConversation 实现 (user, conversation) 对查找。
// 缺失返回 (nil, nil)，由调用方决定是否视为未授权。
func (r *GormMembershipRepository) FindByUserAndConversation(ctx context.Context, userID, conversationID string) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("gorm: find membership by user %s and conversation %s: %w", userID, conversationID, err)
	}
	return &membership, nil
}

// FindDirectBetween 实现查找两个用户之间 DIRECT 会话的成员记录
func (r *GormMembershipRepository) FindDirectBetween(ctx context.Context, userID, partnerID string) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Joins("JOIN conversations ON conversations.id = memberships.conversation_id AND conversations.type = ?", domain.ConversationDirect).
		Where("memberships.user_id = ? AND memberships.partner_id = ?", userID, partnerID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("gorm: find direct membership between %s and %s: %w", userID, partnerID, err)
	}
	return &membership, nil
}

// ListByConversation 实现分页列出会话中参与中的成员
func (r *GormMembershipRepository) ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]domain.Membership, int64, error) {
	var memberships []domain.Membership
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("conversation_id = ? AND status = ?", conversationID, domain.StatusParticipating)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count memberships for conversation %s: %w", conversationID, err)
	}
	err := query.Preload("User").
		Offset(offset).Limit(limit).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list memberships for conversation %s: %w", conversationID, err)
	}
	return memberships, total, nil
}

// ListByUser 实现分页列出用户参与中的成员记录
func (r *GormMembershipRepository) ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Membership, int64, error) {
	var memberships []domain.Membership
	var total int64

	query := r.db.WithContext(ctx).Model(&domain.Membership{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusParticipating)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("gorm: count memberships for user %s: %w", userID, err)
	}
	err := query.Preload("Conversation").
		Offset(offset).Limit(limit).
		Order("updated_at DESC").
		Find(&memberships).Error
	if err != nil {
		return nil, 0, fmt.Errorf("gorm: list memberships for user %s: %w", userID, err)
	}
	return memberships, total, nil
}

// Save 实现保存成员记录
func (r *GormMembershipRepository) Save(ctx context.Context, membership *domain.Membership) error {
	err := r.db.WithContext(ctx).Save(membership).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save membership (id: %s): %w", membership.ID, err)
	}
	return nil
}

// CreateWithMembers 在单个事务中创建会话及其初始成员记录
func (r *GormMembershipRepository) CreateWithMembers(ctx context.Context, conversation *domain.Conversation, members ...*domain.Membership) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conversation).Error; err != nil {
			return err
		}
		for _, m := range members {
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create conversation %s with members: %w", conversation.ID, err)
	}
	return nil
}

// TransferHost 在单个事务中原子地完成群主交接。
// 对两条成员记录加 FOR UPDATE 行锁，确保并发交接不会产生零个或两个 HOST。
func (r *GormMembershipRepository) TransferHost(ctx context.Context, conversationID, oldHostID, newHostID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var members []domain.Membership
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ? AND user_id IN ?", conversationID, []string{oldHostID, newHostID}).
			Find(&members).Error; err != nil {
			return err
		}
		if len(members) != 2 {
			return repository.ErrMembershipNotFound
		}

		var current, next *domain.Membership
		for i := range members {
			switch members[i].UserID {
			case oldHostID:
				current = &members[i]
			case newHostID:
				next = &members[i]
			}
		}
		if current == nil || next == nil || current.Role != domain.RoleHost {
			// 锁定后复核角色，防止并发交接已经改变了局面
			return repository.ErrMembershipNotFound
		}

		if err := tx.Model(&domain.Membership{}).
			Where("id = ?", current.ID).
			Update("role", domain.RoleMember).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Membership{}).
			Where("id = ?", next.ID).
			Update("role", domain.RoleHost).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Update("host_id", newHostID).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("gorm: transfer host of conversation %s from %s to %s: %w", conversationID, oldHostID, newHostID, err)
	}
	return nil
}
