package domain

import "time"

// ModerationStatus 表示媒体内容审核的结果状态。
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "PENDING"
	ModerationApproved ModerationStatus = "APPROVED"
	ModerationRejected ModerationStatus = "REJECTED"
)

// Media 表示上传到会话中的媒体描述符。
// 文件本体由外部存储保存，这里只记录元数据；审核由后台任务异步完成，
// 审核拒绝会触发上传者在该会话中被封禁。
type Media struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string           `gorm:"size:36;index;not null" json:"conversation"`
	UploaderID     string           `gorm:"size:36;index;not null" json:"uploadedBy"`
	FileName       string           `gorm:"type:varchar(255);not null" json:"fileName"`
	ContentType    string           `gorm:"type:varchar(100);not null" json:"contentType"`
	URL            string           `gorm:"type:text;not null" json:"url"`
	Moderation     ModerationStatus `gorm:"type:varchar(20);not null" json:"moderation"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`

	Uploader     *User         `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversationInfo,omitempty"`
}
