package domain

import "time"

// ConversationType 表示会话的类型。
type ConversationType string

const (
	// ConversationDirect 一对一私聊会话，只能通过好友请求被接受时创建
	ConversationDirect ConversationType = "DIRECT"
	// ConversationGroup 群聊会话，由任意用户通过 API 创建
	ConversationGroup ConversationType = "GROUP"
)

// Conversation 表示一个会话（私聊或群聊）。
// Host 指向当前群主的用户 ID，群主变更时必须与 Membership 的角色一起原子更新。
type Conversation struct {
	ID        string           `gorm:"primaryKey;size:36" json:"id"`
	Name      string           `gorm:"type:varchar(191);not null" json:"name"`
	HostID    string           `gorm:"size:36;index;not null" json:"host"`
	Type      ConversationType `gorm:"type:varchar(20);not null" json:"type"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`
}
