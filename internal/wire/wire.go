package wire

import (
	"CornerstoneClient/internal/api"
	"CornerstoneClient/internal/api/config"
	"CornerstoneClient/internal/api/handler"
	"CornerstoneClient/internal/job"
	"CornerstoneClient/internal/pkg/cron"
	"CornerstoneClient/internal/pkg/imagecache"
	"CornerstoneClient/internal/pkg/notify"
	"CornerstoneClient/internal/pkg/security"
	"CornerstoneClient/internal/pkg/ws"
	"CornerstoneClient/internal/service"
	log "log/slog"

	"github.com/gin-gonic/gin"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router        *gin.Engine
	Notifications service.NotificationService
	Chat          service.ChatService
	ImageCache    *imagecache.Cache
	CronMgr       *cron.Manager
}

func BuildApplication(cfg *config.Config) (*ApplicationContainer, error) {
	var tokens security.TokenStore
	switch cfg.Auth.Store {
	case "redis":
		tokens = security.NewRedisTokenStore()
	default:
		tokens = security.NewFileTokenStore(cfg.Auth.TokenPath)
	}

	var notifier notify.Notifier
	if cfg.Alert.Enabled {
		notifier = notify.NewDesktopNotifier(cfg.Alert.Command)
	} else {
		notifier = notify.NewLogNotifier()
	}

	alertEnabled := cfg.Alert.Enabled
	alerts := service.NewAlertService(notifier,
		func() bool { return alertEnabled },
		func() {
			// 权限申请由外部设置界面承接，这里只留痕
			log.Info("本地提醒未授权，等待用户在设置中开启")
		})

	notifyConn := ws.NewConn(cfg.Server.WsBaseURL+cfg.Server.NotifyPath, tokens)
	notifications := service.NewNotificationService(notifyConn, alerts)

	chat := service.NewChatService(func(roomID string) string {
		return cfg.Server.WsBaseURL + cfg.Server.ChatPath + "/" + roomID
	}, tokens)

	cache := imagecache.New(cfg.Cache)
	if err := cache.Initialize(); err != nil {
		return nil, err
	}

	cronMgr := cron.NewCronManager(job.NewCacheCleanupJob(cache))

	handlers := &api.HandlersGroup{
		NotificationHandler: handler.NewNotificationHandler(notifications),
		CacheHandler:        handler.NewCacheHandler(cache),
		ChatHandler:         handler.NewChatHandler(chat),
	}

	router := api.SetupRouter(handlers)

	return &ApplicationContainer{
		Router:        router,
		Notifications: notifications,
		Chat:          chat,
		ImageCache:    cache,
		CronMgr:       cronMgr,
	}, nil
}
