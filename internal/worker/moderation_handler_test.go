package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-chat-server/internal/authz"
	"group-chat-server/internal/domain"
	"group-chat-server/internal/repository"
	"group-chat-server/internal/service"
	"group-chat-server/internal/tasks"
	"group-chat-server/internal/worker"
)

// 精简的内存仓库，只覆盖审核流水线触及的路径

type memMediaRepo struct {
	mu    sync.Mutex
	media map[string]domain.Media
}

func (r *memMediaRepo) FindByID(_ context.Context, id string) (*domain.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	media, ok := r.media[id]
	if !ok {
		return nil, repository.ErrMediaNotFound
	}
	return &media, nil
}

func (r *memMediaRepo) ListByConversation(_ context.Context, _ string, _, _ int) ([]domain.Media, int64, error) {
	return nil, 0, nil
}

func (r *memMediaRepo) Save(_ context.Context, media *domain.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[media.ID] = *media
	return nil
}

type memMembershipRepo struct {
	mu          sync.Mutex
	memberships map[string]domain.Membership
}

func (r *memMembershipRepo) FindByID(_ context.Context, id string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	membership, ok := r.memberships[id]
	if !ok {
		return nil, repository.ErrMembershipNotFound
	}
	return &membership, nil
}

func (r *memMembershipRepo) FindByUserAndConversation(_ context.Context, userID, conversationID string) (*domain.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, membership := range r.memberships {
		if membership.UserID == userID && membership.ConversationID == conversationID {
			m := membership
			return &m, nil
		}
	}
	return nil, nil
}

func (r *memMembershipRepo) FindDirectBetween(_ context.Context, _, _ string) (*domain.Membership, error) {
	return nil, nil
}

func (r *memMembershipRepo) ListByConversation(_ context.Context, _ string, _, _ int) ([]domain.Membership, int64, error) {
	return nil, 0, nil
}

func (r *memMembershipRepo) ListByUser(_ context.Context, _ string, _, _ int) ([]domain.Membership, int64, error) {
	return nil, 0, nil
}

func (r *memMembershipRepo) Save(_ context.Context, membership *domain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memberships[membership.ID] = *membership
	return nil
}

func (r *memMembershipRepo) CreateWithMembers(_ context.Context, _ *domain.Conversation, _ ...*domain.Membership) error {
	return nil
}

func (r *memMembershipRepo) TransferHost(_ context.Context, _, _, _ string) error {
	return nil
}

type memConversationRepo struct {
	conversations map[string]domain.Conversation
}

func (r *memConversationRepo) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	conversation, ok := r.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return &conversation, nil
}

func (r *memConversationRepo) Save(_ context.Context, conversation *domain.Conversation) error {
	r.conversations[conversation.ID] = *conversation
	return nil
}

func (r *memConversationRepo) UpdateHost(_ context.Context, _, _ string) error { return nil }

type memUserRepo struct{}

func (r *memUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id}, nil
}
func (r *memUserRepo) FindByUsername(_ context.Context, _ string) (*domain.User, error) {
	return nil, repository.ErrUserNotFound
}
func (r *memUserRepo) FindByEmail(_ context.Context, _ string) (*domain.User, error) {
	return nil, repository.ErrUserNotFound
}
func (r *memUserRepo) Save(_ context.Context, _ *domain.User) error { return nil }

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(_, _ string, _ interface{}) {}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(_ *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{}, nil
}

type stubModerationClient struct {
	violation bool
	err       error
}

func (c *stubModerationClient) Classify(_ context.Context, _ string) (bool, error) {
	return c.violation, c.err
}

type pipelineFixture struct {
	mediaRepo      *memMediaRepo
	membershipRepo *memMembershipRepo
	mediaService   *service.MediaService
	handler        *worker.MediaModerationHandler
	client         *stubModerationClient
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	mediaRepo := &memMediaRepo{media: make(map[string]domain.Media)}
	membershipRepo := &memMembershipRepo{memberships: make(map[string]domain.Membership)}
	conversationRepo := &memConversationRepo{conversations: make(map[string]domain.Conversation)}

	mediaService := service.NewMediaService(mediaRepo, authz.NewBridge(), noopBroadcaster{}, noopEnqueuer{})
	membershipService := service.NewMembershipService(membershipRepo, conversationRepo, &memUserRepo{})
	client := &stubModerationClient{}

	return &pipelineFixture{
		mediaRepo:      mediaRepo,
		membershipRepo: membershipRepo,
		mediaService:   mediaService,
		handler:        worker.NewMediaModerationHandler(mediaService, membershipService, client),
		client:         client,
	}
}

func (f *pipelineFixture) seed(t *testing.T) (mediaID string) {
	t.Helper()
	require.NoError(t, f.mediaRepo.Save(context.Background(), &domain.Media{
		ID:             "media-1",
		ConversationID: "conv-1",
		UploaderID:     "uploader",
		URL:            "https://cdn.example.com/file.png",
		Moderation:     domain.ModerationPending,
	}))
	require.NoError(t, f.membershipRepo.Save(context.Background(), &domain.Membership{
		ID:             "m-uploader",
		UserID:         "uploader",
		ConversationID: "conv-1",
		Role:           domain.RoleMember,
		Status:         domain.StatusParticipating,
	}))
	return "media-1"
}

func moderationTask(t *testing.T, mediaID string) *asynq.Task {
	t.Helper()
	task, err := tasks.NewMediaModerationTask(tasks.MediaModerationPayload{
		MediaID:        mediaID,
		ConversationID: "conv-1",
		UploaderID:     "uploader",
		URL:            "https://cdn.example.com/file.png",
	})
	require.NoError(t, err)
	return task
}

func TestMediaModerationHandler_ApprovesCleanMedia(t *testing.T) {
	f := newPipelineFixture(t)
	mediaID := f.seed(t)
	ctx := context.Background()

	err := f.handler.ProcessTask(ctx, moderationTask(t, mediaID))
	require.NoError(t, err)

	media, err := f.mediaRepo.FindByID(ctx, mediaID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationApproved, media.Moderation)

	membership, err := f.membershipRepo.FindByUserAndConversation(ctx, "uploader", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusParticipating, membership.Status, "合规媒体不触发封禁")
}

func TestMediaModerationHandler_RejectsAndBansUploader(t *testing.T) {
	f := newPipelineFixture(t)
	mediaID := f.seed(t)
	f.client.violation = true
	ctx := context.Background()

	err := f.handler.ProcessTask(ctx, moderationTask(t, mediaID))
	require.NoError(t, err)

	media, err := f.mediaRepo.FindByID(ctx, mediaID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationRejected, media.Moderation)

	membership, err := f.membershipRepo.FindByUserAndConversation(ctx, "uploader", "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBanned, membership.Status, "违规媒体的上传者被系统封禁")
}

func TestMediaModerationHandler_RedeliveryIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	mediaID := f.seed(t)
	f.client.violation = true
	ctx := context.Background()

	require.NoError(t, f.handler.ProcessTask(ctx, moderationTask(t, mediaID)))

	// 同一任务被重复投递：结论不变，已封禁的成员不导致任务失败
	f.client.violation = false
	require.NoError(t, f.handler.ProcessTask(ctx, moderationTask(t, mediaID)))

	media, err := f.mediaRepo.FindByID(ctx, mediaID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModerationRejected, media.Moderation)
}

func TestMediaModerationHandler_ClassifierErrorIsRetryable(t *testing.T) {
	f := newPipelineFixture(t)
	mediaID := f.seed(t)
	f.client.err = errors.New("moderation service unavailable")

	err := f.handler.ProcessTask(context.Background(), moderationTask(t, mediaID))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "外部服务故障应重试")
}

func TestMediaModerationHandler_MissingMediaSkipsRetry(t *testing.T) {
	f := newPipelineFixture(t)

	err := f.handler.ProcessTask(context.Background(), moderationTask(t, "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestMediaModerationHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	f := newPipelineFixture(t)

	err := f.handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeMediaModeration, []byte("not-json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
