package job

import (
	"CornerstoneClient/internal/pkg/imagecache"
	log "log/slog"
)

// CacheCleanupJob 周期性清理过期的图片缓存条目。
// 过期条目在启动时已经清过一轮，这里兜底长时间运行的进程。
type CacheCleanupJob struct {
	cache *imagecache.Cache
}

func NewCacheCleanupJob(cache *imagecache.Cache) *CacheCleanupJob {
	return &CacheCleanupJob{cache: cache}
}

func (s *CacheCleanupJob) Run() {
	log.Info("start image cache cleanup job")

	count := s.cache.PurgeExpired()
	if count > 0 {
		stats := s.cache.GetCacheStats()
		log.Info("image cache cleanup job finished",
			"cleaned_count", count, "remaining", stats.Count, "size", stats.Size)
	}
}
