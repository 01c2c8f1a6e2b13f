package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"group-chat-server/internal/domain"
)

// MigrateDB handles all database migrations using the provided GORM DB instance.
// 所有 ID 均为 36 字符 UUID 字符串，列宽已在模型 tag 中限定，AutoMigrate 可以
// 直接处理唯一索引，无需 MySQL TEXT/BLOB 索引长度的特殊处理。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	err := db.AutoMigrate(
		&domain.User{},
		&domain.Conversation{},
		&domain.Membership{},
		&domain.Relationship{},
		&domain.Message{},
		&domain.Media{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}
