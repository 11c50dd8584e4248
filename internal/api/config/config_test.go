package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadConfigFrom(t *testing.T) {
	dir := writeConfig(t, `
server:
  ws_base_url: "wss://api.example.com"
  api_port: 9000
auth:
  store: "redis"
cache:
  max_bytes: 1048576
  ttl_hours: 6
alert:
  enabled: false
`)

	require.NoError(t, LoadConfigFrom(dir))
	require.NotNil(t, Cfg)

	assert.Equal(t, "wss://api.example.com", Cfg.Server.WsBaseURL)
	assert.Equal(t, 9000, Cfg.Server.ApiPort)
	assert.Equal(t, "redis", Cfg.Auth.Store)
	assert.Equal(t, int64(1048576), Cfg.Cache.MaxBytes)
	assert.Equal(t, 6, Cfg.Cache.TTLHours)
	assert.False(t, Cfg.Alert.Enabled)
	// 未显式给出的项落到默认值
	assert.Equal(t, "/api/im", Cfg.Server.NotifyPath)
	assert.Equal(t, "./data/auth.json", Cfg.Auth.TokenPath)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  ws_base_url: "wss://api.example.com"
`)

	require.NoError(t, LoadConfigFrom(dir))

	assert.Equal(t, 8090, Cfg.Server.ApiPort)
	assert.Equal(t, "file", Cfg.Auth.Store)
	assert.Equal(t, int64(100*1024*1024), Cfg.Cache.MaxBytes)
	assert.Equal(t, 24, Cfg.Cache.TTLHours)
	assert.True(t, Cfg.Alert.Enabled)
}

func TestLoadConfigRequiresBaseURL(t *testing.T) {
	dir := writeConfig(t, `
server:
  api_port: 8090
`)

	err := LoadConfigFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WsBaseURL")
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	dir := writeConfig(t, `
server:
  ws_base_url: "wss://api.example.com"
auth:
  store: "etcd"
`)

	err := LoadConfigFrom(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Store")
}
