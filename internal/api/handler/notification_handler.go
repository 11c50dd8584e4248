package handler

import (
	"CornerstoneClient/internal/api/dto"
	"CornerstoneClient/internal/pkg/response"
	"CornerstoneClient/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifications service.NotificationService
}

func NewNotificationHandler(notifications service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// GetStatus 连接诊断信息
func (s *NotificationHandler) GetStatus(c *gin.Context) {
	response.Success(c, s.notifications.ConnStatus())
}

// GetUnread 未读概要
func (s *NotificationHandler) GetUnread(c *gin.Context) {
	response.Success(c, &dto.UnreadSummaryDTO{
		UniqueSenders: s.notifications.UnreadCount(),
		Senders:       s.notifications.SenderCounts(),
		Messages:      s.notifications.Messages(),
	})
}

// GetPresence 用户在线状态
func (s *NotificationHandler) GetPresence(c *gin.Context) {
	response.Success(c, s.notifications.UserStatuses())
}

// Refresh 主动索取一次全量快照
func (s *NotificationHandler) Refresh(c *gin.Context) {
	s.notifications.RefreshNotifications()
	response.Success(c, nil)
}

// SetForeground 前后台切换上报
func (s *NotificationHandler) SetForeground(c *gin.Context) {
	foreground, err := strconv.ParseBool(c.Query("foreground"))
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	s.notifications.SetForeground(foreground)
	response.Success(c, nil)
}
