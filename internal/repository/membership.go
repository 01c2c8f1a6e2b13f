package repository

import (
	"context"

	"group-chat-server/internal/domain"
)

// MembershipRepository 定义了会话成员资格的存储和检索操作。
// 成员记录从不物理删除，所有退出路径都是状态更新。
type MembershipRepository interface {
	// FindByID 根据成员记录 ID 查找。
	// 不存在时返回 repository.ErrMembershipNotFound。
	FindByID(ctx context.Context, id string) (*domain.Membership, error)

	// FindByUserAndConversation 查找 (user, conversation) 对应的成员记录。
	// 不存在时返回 (nil, nil) —— 缺失不是错误，由调用方决定其含义。
	FindByUserAndConversation(ctx context.Context, userID, conversationID string) (*domain.Membership, error)

	// FindDirectBetween 查找 user 与 partner 之间 DIRECT 会话的成员记录。
	// 用于好友接受路径的幂等检查；不存在时返回 (nil, nil)。
	FindDirectBetween(ctx context.Context, userID, partnerID string) (*domain.Membership, error)

	// ListByConversation 分页列出会话中处于 PARTICIPATING 状态的成员。
	ListByConversation(ctx context.Context, conversationID string, offset, limit int) ([]domain.Membership, int64, error)

	// ListByUser 分页列出用户参与中的所有成员记录 (含会话信息)。
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Membership, int64, error)

	// Save 保存成员记录。
	Save(ctx context.Context, membership *domain.Membership) error

	// CreateWithMembers 在单个事务中创建会话及其初始成员记录。
	// 群聊创建写入会话加群主一条记录；好友接受写入 DIRECT 会话加两条互为
	// partner 的记录，且好友接受是 DIRECT 会话唯一的创建路径。
	CreateWithMembers(ctx context.Context, conversation *domain.Conversation, members ...*domain.Membership) error

	// TransferHost 在单个事务中原子地完成群主交接：
	// 原群主角色降为 MEMBER，新群主角色升为 HOST，会话的 host 指针更新。
	// 三个更新视为一个单元，加行锁防止并发交接产生零个或两个 HOST。
	TransferHost(ctx context.Context, conversationID, oldHostID, newHostID string) error
}
