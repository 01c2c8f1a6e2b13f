package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/service"
)

// MessageHandler 封装了消息相关的 HTTP 处理逻辑
type MessageHandler struct {
	messageService *service.MessageService
}

// NewMessageHandler 创建 MessageHandler 实例
func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// CreateMessageRequest 定义发送消息请求的结构体
type CreateMessageRequest struct {
	SendBy  string `json:"sendBy" binding:"required"`
	Content string `json:"content" binding:"required,max=2000"`
}

// Create 处理发送消息
func (h *MessageHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateMessage: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: sendBy and content are required")
		return
	}

	message, err := h.messageService.Create(c.Request.Context(), userID, c.Param("conversationId"), req.SendBy, req.Content)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, message)
}

// GetByID 返回单条消息，调用者必须是所在会话的成员
func (h *MessageHandler) GetByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	message, err := h.messageService.FindByID(c.Request.Context(), userID, c.Param("messageId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, message)
}

// ListByConversation 分页列出会话中的消息
func (h *MessageHandler) ListByConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, size := pageParams(c)
	messages, total, err := h.messageService.ListByConversation(c.Request.Context(), userID, c.Param("conversationId"), page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, PagedResponse{
		Data:  messages,
		Total: total,
		Page:  page,
		Size:  size,
	})
}
