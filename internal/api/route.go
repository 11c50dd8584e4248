package api

import (
	"CornerstoneClient/internal/api/middleware"
	"CornerstoneClient/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter 本地状态 API，供旧版 Web 前端与调试工具访问
func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		notifyGroup := apiGroup.Group("/notifications")
		{
			notifyGroup.GET("/status", group.NotificationHandler.GetStatus)
			notifyGroup.GET("/unread", group.NotificationHandler.GetUnread)
			notifyGroup.GET("/presence", group.NotificationHandler.GetPresence)
			notifyGroup.POST("/refresh", group.NotificationHandler.Refresh)
			notifyGroup.POST("/foreground", group.NotificationHandler.SetForeground)
		}

		cacheGroup := apiGroup.Group("/cache")
		{
			cacheGroup.GET("/stats", group.CacheHandler.GetStats)
			cacheGroup.GET("/resolve", group.CacheHandler.Resolve)
			cacheGroup.POST("/clear", group.CacheHandler.Clear)
		}

		chatGroup := apiGroup.Group("/chat")
		{
			chatGroup.POST("/join", group.ChatHandler.Join)
			chatGroup.POST("/send", group.ChatHandler.Send)
			chatGroup.DELETE("/room/:room_id", group.ChatHandler.Leave)
		}
	}

	return r
}
