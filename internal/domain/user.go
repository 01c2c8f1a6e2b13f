// Package domain 定义了应用程序中使用的数据结构 (数据库模型) 及状态机。
package domain

import "time"

// User 表示应用程序中的用户。
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // UUID 主键
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // 存储的是哈希后的密码，不能为空
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
