package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/service"
)

// ConversationHandler 封装了会话相关的 HTTP 处理逻辑
type ConversationHandler struct {
	conversationService *service.ConversationService
}

// NewConversationHandler 创建 ConversationHandler 实例
func NewConversationHandler(conversationService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// CreateGroupRequest 定义创建群聊请求的结构体
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// CreateGroup 处理创建群聊。创建者自动成为群主。
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateGroup: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	conversation, err := h.conversationService.CreateGroup(c.Request.Context(), userID, req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{"conversation_id": conversation.ID, "host_id": userID}).
		Info("Handler.CreateGroup: Group conversation created")
	SuccessResponse(c, http.StatusOK, conversation)
}

// GetByID 返回单个会话，调用者必须是成员
func (h *ConversationHandler) GetByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversation, err := h.conversationService.FindByID(c.Request.Context(), userID, c.Param("conversationId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, conversation)
}
