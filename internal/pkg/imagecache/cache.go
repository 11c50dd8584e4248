package imagecache

import (
	"CornerstoneClient/internal/api/config"
	"context"
	"crypto/md5"
	"encoding/hex"
	log "log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	metadataFile     = "metadata.json"
	evictTargetPct   = 80
	downloadTimeout  = 30 * time.Second
	defaultExtension = ".img"
)

// Entry 一条缓存记录，按 URL 哈希作键持久化在元数据文件中
type Entry struct {
	LocalPath string `json:"localPath"`
	Timestamp int64  `json:"timestamp"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// Stats 缓存统计
type Stats struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// Cache 远端图片的本地磁盘直通缓存。
// 首次请求时下载落盘，之后直接命中本地文件；
// 总量受预算约束，超限时按时间淘汰最旧条目。
type Cache struct {
	dir      string
	metaPath string
	budget   int64
	ttl      time.Duration
	http     *resty.Client
	group    singleflight.Group
	now      func() time.Time

	initOnce sync.Once
	initErr  error

	mu      sync.Mutex
	entries map[string]*Entry
}

func New(cfg config.CacheConfig) *Cache {
	return &Cache{
		dir:      cfg.Dir,
		metaPath: filepath.Join(cfg.Dir, metadataFile),
		budget:   cfg.MaxBytes,
		ttl:      time.Duration(cfg.TTLHours) * time.Hour,
		http: resty.New().
			SetTimeout(downloadTimeout).
			SetHeader("User-Agent", "CornerstoneClient/1.0"),
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
}

// Initialize 幂等初始化：建目录、加载持久化元数据、清理过期条目。
// 各操作入口会惰性调用，外部也可以显式预热。
func (c *Cache) Initialize() error {
	c.initOnce.Do(func() {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			c.initErr = errors.Wrap(err, "创建缓存目录失败")
			return
		}

		// 启动清理必须内联完成，PurgeExpired 会回到 Initialize，
		// 在 once 体内调用它会自锁
		c.mu.Lock()
		c.loadMetadataLocked()
		if n := c.purgeExpiredEntriesLocked(); n > 0 {
			c.saveMetadataLocked()
			log.Info("启动时清理过期缓存", "purged", n)
		}
		c.mu.Unlock()
	})
	return c.initErr
}

// loadMetadataLocked 加载元数据，损坏或缺失时从空白开始
func (c *Cache) loadMetadataLocked() {
	data, err := os.ReadFile(c.metaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("读取缓存元数据失败，重建索引", "err", err)
		}
		c.entries = make(map[string]*Entry)
		return
	}

	entries := make(map[string]*Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn("缓存元数据损坏，重建索引", "err", err)
		entries = make(map[string]*Entry)
	}
	c.entries = entries
}

// GetCachedImage 精确按 URL 命中。条目须未过期且文件确实在盘上。
func (c *Cache) GetCachedImage(rawURL string) (string, bool) {
	if err := c.Initialize(); err != nil {
		return "", false
	}

	key := entryKey(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}

	if c.expiredLocked(entry) {
		c.dropEntryLocked(key, entry)
		c.saveMetadataLocked()
		return "", false
	}

	if _, err := os.Stat(entry.LocalPath); err != nil {
		// 文件被外部删除，元数据跟着失效
		delete(c.entries, key)
		c.saveMetadataLocked()
		return "", false
	}

	return entry.LocalPath, true
}

// CacheImage 直通缓存：命中返回现有路径，未命中则下载落盘并记账。
// 同一 URL 的并发请求会被合并为一次下载。下载失败返回零值，
// 调用方应退回直接使用远端 URL。
func (c *Cache) CacheImage(ctx context.Context, rawURL string) (string, bool) {
	if err := c.Initialize(); err != nil {
		return "", false
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", false
	}

	if path, ok := c.GetCachedImage(rawURL); ok {
		return path, true
	}

	key := entryKey(rawURL)
	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		// 合并窗口内可能已有同 URL 请求完成落盘
		if path, ok := c.GetCachedImage(rawURL); ok {
			return path, nil
		}
		return c.download(ctx, key, rawURL)
	})
	if err != nil {
		log.Warn("图片缓存失败，回退为远端直连", "url", rawURL, "err", err)
		return "", false
	}
	return result.(string), true
}

func (c *Cache) download(ctx context.Context, key, rawURL string) (string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return "", errors.Wrap(err, "下载图片失败")
	}
	if !resp.IsSuccess() {
		return "", errors.Errorf("下载图片失败: HTTP %d", resp.StatusCode())
	}

	body := resp.Body()
	if int64(len(body)) > c.budget {
		// 单张就超出整个预算的图片不进缓存，由调用方远端直连
		return "", errors.Errorf("图片体积超出缓存预算: %d 字节", len(body))
	}

	localPath := filepath.Join(c.dir, key+inferExtension(rawURL))
	if err := os.WriteFile(localPath, body, 0o644); err != nil {
		return "", errors.Wrap(err, "缓存文件写入失败")
	}

	entry := &Entry{
		LocalPath: localPath,
		Timestamp: c.now().Unix(),
		Size:      int64(len(body)),
		URL:       rawURL,
	}

	c.mu.Lock()
	c.entries[key] = entry
	c.enforceBudgetLocked(key)
	c.saveMetadataLocked()
	c.mu.Unlock()

	return localPath, nil
}

// enforceBudgetLocked 超出预算时按时间从最旧开始淘汰，
// 直至用量回落到预算的 80% 以内。keep 指向刚落盘的条目，
// 不参与淘汰，其路径已经返回给调用方。
func (c *Cache) enforceBudgetLocked(keep string) {
	total := c.totalSizeLocked()
	if total <= c.budget {
		return
	}

	target := c.budget * evictTargetPct / 100

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].Timestamp < c.entries[keys[j]].Timestamp
	})

	evicted := 0
	for _, k := range keys {
		if total <= target {
			break
		}
		if k == keep {
			continue
		}
		entry := c.entries[k]
		total -= entry.Size
		c.dropEntryLocked(k, entry)
		evicted++
	}

	if evicted > 0 {
		log.Info("缓存超出预算，已淘汰最旧条目", "evicted", evicted, "size", total)
	}
}

// PurgeExpired 清理超过 TTL 的条目，返回清理数量。
// 启动时及定时任务会调用。
func (c *Cache) PurgeExpired() int {
	if err := c.Initialize(); err != nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	purged := c.purgeExpiredEntriesLocked()
	if purged > 0 {
		c.saveMetadataLocked()
	}
	return purged
}

func (c *Cache) purgeExpiredEntriesLocked() int {
	purged := 0
	for key, entry := range c.entries {
		if c.expiredLocked(entry) {
			c.dropEntryLocked(key, entry)
			purged++
		}
	}
	return purged
}

// ClearCache 无条件删除全部缓存文件并清空元数据
func (c *Cache) ClearCache() error {
	if err := c.Initialize(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		c.dropEntryLocked(key, entry)
	}
	c.entries = make(map[string]*Entry)
	c.saveMetadataLocked()

	log.Info("图片缓存已清空")
	return nil
}

// GetCacheStats 当前元数据维度的统计
func (c *Cache) GetCacheStats() Stats {
	if err := c.Initialize(); err != nil {
		return Stats{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Count: len(c.entries), Size: c.totalSizeLocked()}
}

func (c *Cache) totalSizeLocked() int64 {
	var total int64
	for _, entry := range c.entries {
		total += entry.Size
	}
	return total
}

func (c *Cache) expiredLocked(entry *Entry) bool {
	return c.now().Sub(time.Unix(entry.Timestamp, 0)) > c.ttl
}

func (c *Cache) dropEntryLocked(key string, entry *Entry) {
	if err := os.Remove(entry.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Warn("删除缓存文件失败", "path", entry.LocalPath, "err", err)
	}
	delete(c.entries, key)
}

// saveMetadataLocked 整体重写元数据文件。写入在锁内串行化，
// 避免并发 CacheImage 互相覆盖对方的记账。
func (c *Cache) saveMetadataLocked() {
	data, err := json.Marshal(c.entries)
	if err != nil {
		log.Warn("缓存元数据序列化失败", "err", err)
		return
	}

	tmp := c.metaPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn("缓存元数据写入失败", "err", err)
		return
	}
	if err := os.Rename(tmp, c.metaPath); err != nil {
		log.Warn("缓存元数据落盘失败", "err", err)
	}
}

func entryKey(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// inferExtension 从 URL 路径推断文件扩展名
func inferExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultExtension
	}
	ext := filepath.Ext(u.Path)
	if ext == "" || len(ext) > 8 {
		return defaultExtension
	}
	return ext
}
