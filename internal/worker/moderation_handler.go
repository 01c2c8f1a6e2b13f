package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/service"
	"group-chat-server/internal/tasks"
)

// ModerationClient 调用外部内容审核服务对媒体文件进行判定。
type ModerationClient interface {
	// Classify 返回 true 表示内容违规。
	Classify(ctx context.Context, url string) (violation bool, err error)
}

// MediaModerationHandler 处理媒体内容审核任务。
// 违规媒体标记为 REJECTED，上传者由系统封禁出所在会话。
type MediaModerationHandler struct {
	mediaService      *service.MediaService
	membershipService *service.MembershipService
	moderationClient  ModerationClient
}

// NewMediaModerationHandler 创建 Handler 实例
func NewMediaModerationHandler(
	mediaService *service.MediaService,
	membershipService *service.MembershipService,
	moderationClient ModerationClient,
) *MediaModerationHandler {
	if mediaService == nil {
		panic("MediaService cannot be nil for MediaModerationHandler")
	}
	if membershipService == nil {
		panic("MembershipService cannot be nil for MediaModerationHandler")
	}
	if moderationClient == nil {
		panic("ModerationClient cannot be nil for MediaModerationHandler")
	}
	return &MediaModerationHandler{
		mediaService:      mediaService,
		membershipService: membershipService,
		moderationClient:  moderationClient,
	}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *MediaModerationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)

	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})
	logCtx.Info("Processing media moderation task...")

	var payload tasks.MediaModerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{
		"media_id":        payload.MediaID,
		"conversation_id": payload.ConversationID,
	})

	violation, err := h.moderationClient.Classify(ctx, payload.URL)
	if err != nil {
		logCtx.WithError(err).Error("Moderation classification failed")
		return fmt.Errorf("classify media %s: %w", payload.MediaID, err)
	}

	verdict := domain.ModerationApproved
	if violation {
		verdict = domain.ModerationRejected
	}
	if _, err := h.mediaService.ApplyModerationResult(ctx, payload.MediaID, verdict); err != nil {
		if errors.Is(err, service.ErrMediaNotFound) {
			// 媒体记录已不存在，重试没有意义
			logCtx.Warn("Media record not found, skipping moderation result")
			return fmt.Errorf("media %s not found: %w", payload.MediaID, asynq.SkipRetry)
		}
		logCtx.WithError(err).Error("Failed to apply moderation result")
		return fmt.Errorf("apply moderation result for media %s: %w", payload.MediaID, err)
	}

	if violation {
		if _, err := h.membershipService.BanBySystem(ctx, payload.ConversationID, payload.UploaderID); err != nil {
			// 已封禁或已退出时迁移会被拒绝，这不是任务失败
			if errors.Is(err, service.ErrInvalidTransition) || errors.Is(err, service.ErrMembershipNotFound) {
				logCtx.WithError(err).Warn("Uploader not banned: membership not in a bannable state")
			} else {
				logCtx.WithError(err).Error("Failed to ban uploader after rejected media")
				return fmt.Errorf("ban uploader %s: %w", payload.UploaderID, err)
			}
		} else {
			logCtx.WithField("uploader_id", payload.UploaderID).Info("Uploader banned after rejected media")
		}
	}

	logCtx.WithField("verdict", verdict).Info("Media moderation task processed successfully")
	return nil
}
