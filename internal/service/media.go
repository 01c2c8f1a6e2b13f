package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/authz"
	"group-chat-server/internal/domain"
	"group-chat-server/internal/hub"
	"group-chat-server/internal/repository"
	"group-chat-server/internal/tasks"
)

// TaskEnqueuer 向后台任务队列投递任务。*asynq.Client 满足该接口。
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MediaService 负责会话内媒体附件的上传登记和查询。
// 新媒体以 PENDING 状态落库并投递审核任务，审核结论由后台 worker 回写。
type MediaService struct {
	mediaRepo   repository.MediaRepository
	bridge      *authz.Bridge
	broadcaster Broadcaster
	enqueuer    TaskEnqueuer
}

// NewMediaService 创建 MediaService 实例。
func NewMediaService(
	mediaRepo repository.MediaRepository,
	bridge *authz.Bridge,
	broadcaster Broadcaster,
	enqueuer TaskEnqueuer,
) *MediaService {
	if mediaRepo == nil || bridge == nil || broadcaster == nil || enqueuer == nil {
		panic("all dependencies must be non-nil for MediaService")
	}
	return &MediaService{
		mediaRepo:   mediaRepo,
		bridge:      bridge,
		broadcaster: broadcaster,
		enqueuer:    enqueuer,
	}
}

// Create 登记媒体附件。上传者必须是调用者本人且是会话中参与状态的成员。
// 记录以 PENDING 状态保存，广播 newMedia 事件，并投递后台审核任务。
func (s *MediaService) Create(ctx context.Context, requestedBy, conversationID, uploaderID, fileName, contentType, url string) (*domain.Media, error) {
	logCtx := logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"uploader_id":     uploaderID,
		"file_name":       fileName,
	})

	if uploaderID != requestedBy {
		return nil, ErrUnauthorized
	}
	if fileName == "" || url == "" {
		return nil, ErrInvalidTransition
	}
	if err := requireParticipant(ctx, s.bridge, uploaderID, conversationID); err != nil {
		return nil, err
	}

	media := &domain.Media{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UploaderID:     uploaderID,
		FileName:       fileName,
		ContentType:    contentType,
		URL:            url,
		Moderation:     domain.ModerationPending,
	}
	if err := s.mediaRepo.Save(ctx, media); err != nil {
		logCtx.WithError(err).Error("Failed to save media record")
		return nil, ErrInternalServer
	}

	s.broadcaster.Broadcast(conversationID, hub.EventNewMedia, media)

	task, err := tasks.NewMediaModerationTask(tasks.MediaModerationPayload{
		MediaID:        media.ID,
		ConversationID: conversationID,
		UploaderID:     uploaderID,
		URL:            url,
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to build media moderation task")
		return nil, ErrInternalServer
	}
	if _, err := s.enqueuer.Enqueue(task); err != nil {
		// 审核任务投递失败不回滚媒体记录，记录保持 PENDING 等待重新投递
		logCtx.WithError(err).Error("Failed to enqueue media moderation task")
	} else {
		logCtx.WithField("media_id", media.ID).Info("Media created, moderation task enqueued")
	}
	return media, nil
}

// FindByID 查找媒体记录。调用者必须是所在会话的参与成员。
func (s *MediaService) FindByID(ctx context.Context, requestedBy, mediaID string) (*domain.Media, error) {
	media, err := s.mediaRepo.FindByID(ctx, mediaID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrMediaNotFound
		}
		logrus.WithError(err).WithField("media_id", mediaID).Error("Failed to find media")
		return nil, ErrInternalServer
	}
	if err := requireParticipant(ctx, s.bridge, requestedBy, media.ConversationID); err != nil {
		return nil, err
	}
	return media, nil
}

// ListByConversation 分页列出会话中的媒体附件。
func (s *MediaService) ListByConversation(ctx context.Context, requestedBy, conversationID string, page, size int) ([]domain.Media, int64, error) {
	if err := requireParticipant(ctx, s.bridge, requestedBy, conversationID); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	media, total, err := s.mediaRepo.ListByConversation(ctx, conversationID, (page-1)*size, size)
	if err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).Error("Failed to list media")
		return nil, 0, ErrInternalServer
	}
	return media, total, nil
}

// ApplyModerationResult 由审核 worker 回写审核结论。
// 拒绝的媒体会触发上传者被系统封禁出该会话。
func (s *MediaService) ApplyModerationResult(ctx context.Context, mediaID string, status domain.ModerationStatus) (*domain.Media, error) {
	logCtx := logrus.WithFields(logrus.Fields{"media_id": mediaID, "moderation": status})

	media, err := s.mediaRepo.FindByID(ctx, mediaID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, ErrMediaNotFound
		}
		logCtx.WithError(err).Error("Failed to find media for moderation result")
		return nil, ErrInternalServer
	}
	if media.Moderation != domain.ModerationPending {
		// 结论只写一次，重复投递的任务直接返回现状
		return media, nil
	}

	media.Moderation = status
	if err := s.mediaRepo.Save(ctx, media); err != nil {
		logCtx.WithError(err).Error("Failed to save moderation result")
		return nil, ErrInternalServer
	}
	logCtx.Info("Moderation result applied")
	return media, nil
}
