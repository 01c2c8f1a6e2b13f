package repository

import (
	"context"
	"time"
)

// StateRepository 定义了与实时状态相关的计数操作，由 Redis 实现。
type StateRepository interface {
	// NextMessageSeq 原子地递增并返回会话的消息序号。
	// 序号保证单一会话内消息的全序。
	NextMessageSeq(ctx context.Context, conversationID string) (uint64, error)

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 如果超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
