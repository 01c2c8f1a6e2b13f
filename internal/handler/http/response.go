package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// PagedResponse 是分页列表的统一响应结构
type PagedResponse struct {
	Data  interface{} `json:"data"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// currentUserID 从 Gin 上下文取出 Auth 中间件设置的用户 ID。
// 取不到说明中间件缺失或失败，直接以 401 终止请求。
func currentUserID(c *gin.Context) (string, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		logrus.Warn("Handler: User ID not found in context, middleware missing or failed?")
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	userID, ok := userIDAny.(string)
	if !ok || userID == "" {
		logrus.Error("Handler: User ID in context is not a string")
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error processing user ID")
		return "", false
	}
	return userID, true
}

// pageParams 解析 page/size 查询参数，非法值回落到默认值。
func pageParams(c *gin.Context) (page, size int) {
	page = intQuery(c, "page", 1)
	size = intQuery(c, "size", 10)
	return page, size
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
