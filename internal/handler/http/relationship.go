package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/service"
)

// RelationshipHandler 封装了好友关系相关的 HTTP 处理逻辑
type RelationshipHandler struct {
	relationshipService *service.RelationshipService
}

// NewRelationshipHandler 创建 RelationshipHandler 实例
func NewRelationshipHandler(relationshipService *service.RelationshipService) *RelationshipHandler {
	return &RelationshipHandler{relationshipService: relationshipService}
}

// RequestFriendshipRequest 定义好友请求的结构体
type RequestFriendshipRequest struct {
	UserA string `json:"userA" binding:"required"`
	UserB string `json:"userB" binding:"required"`
}

// Request 处理发起好友请求。发起方固定为当前登录用户。
func (h *RelationshipHandler) Request(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req RequestFriendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.RequestFriendship: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: userA and userB are required")
		return
	}

	relationship, err := h.relationshipService.Request(c.Request.Context(), req.UserA, req.UserB, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, relationship)
}

// Accept 处理接受好友请求
func (h *RelationshipHandler) Accept(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	relationship, err := h.relationshipService.Accept(c.Request.Context(), userID, c.Param("relationshipId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, relationship)
}

// BlockRequest 定义屏蔽请求的结构体
type BlockRequest struct {
	BlockedBy string `json:"blockedBy" binding:"required"`
	Target    string `json:"target" binding:"required"`
}

// Block 处理屏蔽用户
func (h *RelationshipHandler) Block(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Block: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: blockedBy and target are required")
		return
	}

	relationship, err := h.relationshipService.Block(c.Request.Context(), userID, req.BlockedBy, req.Target)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, relationship)
}

// Unblock 处理解除屏蔽
func (h *RelationshipHandler) Unblock(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	relationship, err := h.relationshipService.Unblock(c.Request.Context(), userID, c.Param("relationshipId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, relationship)
}

// Remove 处理删除好友关系
func (h *RelationshipHandler) Remove(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	relationship, err := h.relationshipService.Remove(c.Request.Context(), userID, c.Param("relationshipId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, relationship)
}

// GetByID 返回单条关系记录，调用者必须是当事人
func (h *RelationshipHandler) GetByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	relationship, err := h.relationshipService.FindMine(c.Request.Context(), c.Param("relationshipId"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, relationship)
}

// ListMine 分页列出当前用户参与的关系
func (h *RelationshipHandler) ListMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, size := pageParams(c)
	relationships, total, err := h.relationshipService.ListForUser(c.Request.Context(), userID, page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, PagedResponse{
		Data:  relationships,
		Total: total,
		Page:  page,
		Size:  size,
	})
}
