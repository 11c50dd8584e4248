package security

import (
	"CornerstoneClient/internal/pkg/consts"
	"CornerstoneClient/internal/pkg/redis"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// TokenStore 凭据存储。Token 缺失时返回空串而非错误，
// 传输层会以匿名方式尝试连接。
type TokenStore interface {
	Token(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// FileTokenStore 基于本地 JSON 文件的凭据存储
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	var blob map[string]string
	if err := json.Unmarshal(data, &blob); err != nil {
		return "", err
	}
	return blob[consts.AuthTokenKey], nil
}

func (s *FileTokenStore) SaveToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(map[string]string{consts.AuthTokenKey: token})
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileTokenStore) ClearToken(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RedisTokenStore 基于 Redis 的凭据存储，供多进程共享凭据的部署使用
type RedisTokenStore struct{}

func NewRedisTokenStore() *RedisTokenStore {
	return &RedisTokenStore{}
}

func (s *RedisTokenStore) Token(ctx context.Context) (string, error) {
	return redis.GetValue(ctx, consts.AuthTokenKey)
}

func (s *RedisTokenStore) SaveToken(ctx context.Context, token string) error {
	return redis.SetValue(ctx, consts.AuthTokenKey, token)
}

func (s *RedisTokenStore) ClearToken(ctx context.Context) error {
	return redis.DeleteKey(ctx, consts.AuthTokenKey)
}
