package domain

import "time"

// Message 表示会话中的一条消息记录。
// Seq 是由 Redis 原子递增分配的会话内序号，保证单一事件源内的顺序。
type Message struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string     `gorm:"size:36;index;not null" json:"conversation"`
	SenderID       string     `gorm:"size:36;index;not null" json:"sendBy"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Seq            uint64     `gorm:"not null" json:"seq"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt      *time.Time `json:"-"`

	Sender       *User         `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversationInfo,omitempty"`
}
