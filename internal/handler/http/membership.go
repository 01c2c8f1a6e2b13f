package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"group-chat-server/internal/domain"
	"group-chat-server/internal/service"
)

// MembershipHandler 封装了会话成员管理相关的 HTTP 处理逻辑
type MembershipHandler struct {
	membershipService *service.MembershipService
}

// NewMembershipHandler 创建 MembershipHandler 实例
func NewMembershipHandler(membershipService *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{membershipService: membershipService}
}

// AddMemberRequest 定义添加成员请求的结构体
type AddMemberRequest struct {
	UserID string `json:"user" binding:"required"`
}

// AddMember 处理群主向群聊添加成员
func (h *MembershipHandler) AddMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.AddMember: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: user is required")
		return
	}

	membership, err := h.membershipService.AddMember(c.Request.Context(), userID, c.Param("conversationId"), req.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}

// GetMine 返回当前用户在指定会话中的成员记录
func (h *MembershipHandler) GetMine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	membership, err := h.membershipService.FindByUserAndConversation(c.Request.Context(), userID, c.Param("conversationId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}

// ListMembers 分页列出会话中的参与成员
func (h *MembershipHandler) ListMembers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, size := pageParams(c)
	members, total, err := h.membershipService.ListMembers(c.Request.Context(), userID, c.Param("conversationId"), page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, PagedResponse{
		Data:  members,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// ListMyConversations 分页列出当前用户参与中的会话
func (h *MembershipHandler) ListMyConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, size := pageParams(c)
	memberships, total, err := h.membershipService.ListConversationsForUser(c.Request.Context(), userID, page, size)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, PagedResponse{
		Data:  memberships,
		Total: total,
		Page:  page,
		Size:  size,
	})
}

// ChangeHostRequest 定义群主交接请求的结构体
type ChangeHostRequest struct {
	NewHost string `json:"newHost" binding:"required"`
}

// ChangeHost 处理群主交接
func (h *MembershipHandler) ChangeHost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ChangeHostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.ChangeHost: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: newHost is required")
		return
	}

	if err := h.membershipService.ChangeHost(c.Request.Context(), userID, c.Param("conversationId"), req.NewHost); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Host changed successfully"})
}

// Ban 处理群主封禁成员
func (h *MembershipHandler) Ban(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	membership, err := h.membershipService.Ban(c.Request.Context(), userID, c.Param("conversationId"), c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}

// Unban 处理群主解除封禁
func (h *MembershipHandler) Unban(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	membership, err := h.membershipService.Unban(c.Request.Context(), userID, c.Param("conversationId"), c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}

// Leave 处理成员主动离开会话
func (h *MembershipHandler) Leave(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	membership, err := h.membershipService.Leave(c.Request.Context(), userID, c.Param("conversationId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}

// RemoveMember 处理群主移除成员
func (h *MembershipHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	membership, err := h.membershipService.Remove(c.Request.Context(), userID, c.Param("conversationId"), c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}

// UpdateRoleRequest 定义成员角色调整请求的结构体
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=MEMBER GUEST"`
}

// UpdateRole 处理群主调整成员角色
func (h *MembershipHandler) UpdateRole(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.UpdateRole: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: role must be MEMBER or GUEST")
		return
	}

	membership, err := h.membershipService.UpdateRole(c.Request.Context(), userID, c.Param("conversationId"), c.Param("userId"), domain.MembershipRole(req.Role))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, membership)
}
