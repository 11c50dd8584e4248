package handler

import (
	"CornerstoneClient/internal/api/dto"
	"CornerstoneClient/internal/pkg/imagecache"
	"CornerstoneClient/internal/pkg/response"
	"CornerstoneClient/internal/service"

	"github.com/gin-gonic/gin"
)

type CacheHandler struct {
	cache *imagecache.Cache
}

func NewCacheHandler(cache *imagecache.Cache) *CacheHandler {
	return &CacheHandler{cache: cache}
}

// GetStats 缓存统计
func (s *CacheHandler) GetStats(c *gin.Context) {
	stats := s.cache.GetCacheStats()
	response.Success(c, &dto.CacheStatsDTO{Count: stats.Count, Size: stats.Size})
}

// Resolve 解析某个远端图片的本地缓存路径，未命中时触发下载
func (s *CacheHandler) Resolve(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	path, ok := s.cache.CacheImage(c.Request.Context(), url)
	if !ok {
		// 未能缓存时退回远端直连，由前端直接加载原始 URL
		response.Success(c, gin.H{"cached": false, "url": url})
		return
	}
	response.Success(c, gin.H{"cached": true, "path": path})
}

// Clear 清空缓存
func (s *CacheHandler) Clear(c *gin.Context) {
	if err := s.cache.ClearCache(); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
