package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/hub"
	"group-chat-server/internal/repository"
	"group-chat-server/internal/service"
	"group-chat-server/internal/tasks"
)

type fakeMediaRepo struct {
	mu    sync.Mutex
	media map[string]domain.Media
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{media: make(map[string]domain.Media)}
}

func (f *fakeMediaRepo) FindByID(_ context.Context, id string) (*domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	media, ok := f.media[id]
	if !ok {
		return nil, repository.ErrMediaNotFound
	}
	return &media, nil
}

func (f *fakeMediaRepo) ListByConversation(_ context.Context, conversationID string, offset, limit int) ([]domain.Media, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []domain.Media
	for _, media := range f.media {
		if media.ConversationID == conversationID {
			result = append(result, media)
		}
	}
	total := int64(len(result))
	if offset > len(result) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], total, nil
}

func (f *fakeMediaRepo) Save(_ context.Context, media *domain.Media) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media[media.ID] = *media
	return nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []*asynq.Task
	failWith error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

func (f *fakeEnqueuer) tasks() []*asynq.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*asynq.Task(nil), f.enqueued...)
}

type mediaFixture struct {
	*messageFixture
	mediaRepo *fakeMediaRepo
	enqueuer  *fakeEnqueuer
	media     *service.MediaService
}

func newMediaFixture(t *testing.T, userIDs ...string) *mediaFixture {
	t.Helper()
	base := newMessageFixture(t, userIDs...)
	mediaRepo := newFakeMediaRepo()
	enqueuer := &fakeEnqueuer{}
	return &mediaFixture{
		messageFixture: base,
		mediaRepo:      mediaRepo,
		enqueuer:       enqueuer,
		media:          service.NewMediaService(mediaRepo, base.bridge, base.broadcaster, enqueuer),
	}
}

func TestMediaService_Create_PendingBroadcastAndEnqueue(t *testing.T) {
	f := newMediaFixture(t, "host", "member")
	ctx := context.Background()
	conversationID := f.seedGroup(t, "host")
	_, err := f.svc.AddMember(ctx, "host", conversationID, "member")
	require.NoError(t, err)

	media, err := f.media.Create(ctx, "member", conversationID, "member", "cat.png", "image/png", "https://cdn.example.com/cat.png")
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationPending, media.Moderation, "新媒体先以待审状态落库")

	calls := f.broadcaster.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, hub.EventNewMedia, calls[0].Event)
	assert.Equal(t, conversationID, calls[0].ConversationID)

	enqueued := f.enqueuer.tasks()
	require.Len(t, enqueued, 1)
	assert.Equal(t, tasks.TypeMediaModeration, enqueued[0].Type())
}

func TestMediaService_Create_EnqueueFailureKeepsRecordPending(t *testing.T) {
	f := newMediaFixture(t, "host")
	ctx := context.Background()
	conversationID := f.seedGroup(t, "host")
	f.enqueuer.failWith = errors.New("broker unavailable")

	media, err := f.media.Create(ctx, "host", conversationID, "host", "cat.png", "image/png", "https://cdn.example.com/cat.png")
	require.NoError(t, err, "投递失败不回滚媒体记录")

	saved, err := f.mediaRepo.FindByID(ctx, media.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationPending, saved.Moderation)
}

func TestMediaService_Create_UploaderGates(t *testing.T) {
	f := newMediaFixture(t, "host", "member", "outsider")
	ctx := context.Background()
	conversationID := f.seedGroup(t, "host")
	_, err := f.svc.AddMember(ctx, "host", conversationID, "member")
	require.NoError(t, err)

	// 不能以他人身份上传
	_, err = f.media.Create(ctx, "member", conversationID, "host", "a.png", "image/png", "https://cdn.example.com/a.png")
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	// 非成员不能上传
	_, err = f.media.Create(ctx, "outsider", conversationID, "outsider", "a.png", "image/png", "https://cdn.example.com/a.png")
	assert.True(t, errors.Is(err, service.ErrUnauthorized))

	assert.Empty(t, f.enqueuer.tasks())
}

func TestMediaService_ApplyModerationResult_WritesOnce(t *testing.T) {
	f := newMediaFixture(t, "host")
	ctx := context.Background()
	conversationID := f.seedGroup(t, "host")

	media, err := f.media.Create(ctx, "host", conversationID, "host", "cat.png", "image/png", "https://cdn.example.com/cat.png")
	require.NoError(t, err)

	rejected, err := f.media.ApplyModerationResult(ctx, media.ID, domain.ModerationRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationRejected, rejected.Moderation)

	// 重复投递的任务不覆盖已有结论
	again, err := f.media.ApplyModerationResult(ctx, media.ID, domain.ModerationApproved)
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationRejected, again.Moderation)

	_, err = f.media.ApplyModerationResult(ctx, "missing", domain.ModerationApproved)
	assert.True(t, errors.Is(err, service.ErrMediaNotFound))
}
