package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 定义任务类型常量
const (
	TypeMediaModeration = "media:moderate" // 媒体内容审核任务类型
)

// MediaModerationPayload 定义了媒体审核任务的数据结构
type MediaModerationPayload struct {
	MediaID        string `json:"mediaId"`
	ConversationID string `json:"conversationId"`
	UploaderID     string `json:"uploaderId"`
	URL            string `json:"url"`
}

// NewMediaModerationTask 创建一个新的媒体审核任务
func NewMediaModerationTask(payload MediaModerationPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMediaModeration, payloadBytes), nil
}
