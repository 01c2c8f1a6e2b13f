// Package authz 提供消息/媒体子系统与成员子系统之间的授权桥。
//
// MessageService 和 MediaService 需要校验会话成员资格，但直接依赖成员子系统会
// 形成模块环。桥是一个注入的协作者：成员子系统在启动时注册唯一的响应者，
// 调用方只依赖桥本身。桥不做重试、不做排队，只是进程内的调用/返回。
package authz

import (
	"context"
	"fmt"
	"sync"

	"group-chat-server/internal/domain"
)

// RequestFindByUserAndConversation 是成员资格校验请求的名称。
const RequestFindByUserAndConversation = "FIND_BY_USER_AND_CONVERSATION"

// MembershipQuery 是成员资格校验请求的载荷。
type MembershipQuery struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// MembershipHandler 回答一个成员资格校验请求。
// 缺失成员时返回 (nil, nil)；由调用方按"未授权"处理 (fail closed)。
type MembershipHandler func(ctx context.Context, query MembershipQuery) (*domain.Membership, error)

// Bridge 持有按请求名注册的响应者。每个请求名在一个进程内至多注册一个响应者。
type Bridge struct {
	mu       sync.RWMutex
	handlers map[string]MembershipHandler
}

// NewBridge 创建一个空的授权桥。
func NewBridge() *Bridge {
	return &Bridge{
		handlers: make(map[string]MembershipHandler),
	}
}

// Register 为请求名注册唯一的响应者。
// 重复注册是接线错误，返回 error 以便启动时立即失败。
func (b *Bridge) Register(name string, handler MembershipHandler) error {
	if handler == nil {
		return fmt.Errorf("authz: handler for %q cannot be nil", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("authz: handler for %q already registered", name)
	}
	b.handlers[name] = handler
	return nil
}

// Membership 发起成员资格校验并等待响应。
// 没有注册响应者时返回 (nil, nil)，与"非成员"等同 —— 失败关闭是安全默认值。
func (b *Bridge) Membership(ctx context.Context, query MembershipQuery) (*domain.Membership, error) {
	b.mu.RLock()
	handler, ok := b.handlers[RequestFindByUserAndConversation]
	b.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return handler(ctx, query)
}
