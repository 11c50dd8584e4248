package api

import "CornerstoneClient/internal/api/handler"

// HandlersGroup 封装了所有已初始化的 Handler 实例
type HandlersGroup struct {
	NotificationHandler *handler.NotificationHandler
	CacheHandler        *handler.CacheHandler
	ChatHandler         *handler.ChatHandler
}
