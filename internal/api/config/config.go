package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

var validate = validator.New()

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	return LoadConfigFrom("./configs")
}

// LoadConfigFrom 从指定目录加载配置
func LoadConfigFrom(dir string) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			first := vErrs[0]
			return fmt.Errorf("配置项 [%s] 校验失败，规则 [%s]", first.Namespace(), first.Tag())
		}
		return err
	}

	Cfg = &cfg

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.api_port", 8090)
	v.SetDefault("server.notify_path", "/api/im")
	v.SetDefault("server.chat_path", "/api/im/room")
	v.SetDefault("auth.store", "file")
	v.SetDefault("auth.token_path", "./data/auth.json")
	v.SetDefault("cache.dir", "./data/cache/images")
	v.SetDefault("cache.max_bytes", 100*1024*1024)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("alert.enabled", true)
	v.SetDefault("alert.command", "notify-send")
}
