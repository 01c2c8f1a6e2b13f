package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/service"
)

// MediaHandler 封装了媒体附件相关的 HTTP 处理逻辑
type MediaHandler struct {
	mediaService *service.MediaService
}

// NewMediaHandler 创建 MediaHandler 实例
func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// CreateMediaRequest 定义登记媒体附件请求的结构体
type CreateMediaRequest struct {
	FileName    string `json:"fileName" binding:"required,max=255"`
	ContentType string `json:"contentType" binding:"omitempty,max=100"`
	URL         string `json:"url" binding:"required,url"`
}

// Create 处理登记媒体附件。记录以待审核状态保存。
func (h *MediaHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateMedia: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: fileName and url are required")
		return
	}

	media, err := h.mediaService.Create(c.Request.Context(), userID, c.Param("conversationId"), userID, req.FileName, req.ContentType, req.URL)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, media)
}

// GetByID 返回单条媒体记录，调用者必须是所在会话的成员
func (h *MediaHandler) GetByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	media, err := h.mediaService.FindByID(c.Request.Context(), userID, c.Param("mediaId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, media)
}

// ListByConversation 分页列出会话中的媒体附件
func (h *MediaHandler) ListByConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, size := pageParams(c)
	media, total, err := h.mediaService.ListByConversation(c.Request.Context(), userID, c.Param("conversationId"), page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, PagedResponse{
		Data:  media,
		Total: total,
		Page:  page,
		Size:  size,
	})
}
