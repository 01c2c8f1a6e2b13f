// Package redisstate 提供 StateRepository 接口的 Redis 实现。
package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "gc:" // 默认前缀 "gc:" (group chat)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) conversationSeqKey(conversationID string) string {
	return fmt.Sprintf("%sconversation:%s:seq", r.keyPrefix, conversationID)
}

func (r *RedisStateRepository) rateLimitKey(key string) string {
	return fmt.Sprintf("%sratelimit:%s", r.keyPrefix, key)
}

// NextMessageSeq 原子地递增并返回会话的消息序号。
func (r *RedisStateRepository) NextMessageSeq(ctx context.Context, conversationID string) (uint64, error) {
	key := r.conversationSeqKey(conversationID)
	seq, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to increment message seq for conversation %s: %w", conversationID, err)
	}
	return uint64(seq), nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
// 使用 Pipeline 执行 INCR + EXPIRE，减少检查计数与设置过期之间的竞争窗口。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := r.rateLimitKey(key)

	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: rate limit pipeline failed for key %s: %w", fullKey, err)
	}

	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get rate limit count for key %s: %w", fullKey, err)
	}
	return count > int64(limit), nil
}
