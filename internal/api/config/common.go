package config

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Logstash LogstashConfig `mapstructure:"logstash"`
}

// ServerConfig 服务端连接与本地 API 配置
type ServerConfig struct {
	// WsBaseURL 后端 WebSocket 基地址，例如 wss://api.cornerstone.app
	WsBaseURL  string `mapstructure:"ws_base_url" validate:"required"`
	NotifyPath string `mapstructure:"notify_path"`
	ChatPath   string `mapstructure:"chat_path"`
	ApiPort    int    `mapstructure:"api_port" validate:"gt=0,lte=65535"`
}

// AuthConfig 凭据存储配置
type AuthConfig struct {
	Store     string `mapstructure:"store" validate:"oneof=file redis"`
	TokenPath string `mapstructure:"token_path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig 图片缓存配置
type CacheConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes" validate:"gt=0"`
	TTLHours int    `mapstructure:"ttl_hours" validate:"gt=0"`
}

// AlertConfig 本地提醒配置
type AlertConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
}

// LogstashConfig 日志上报配置
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}
