package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"buddy-match/internal/lock"
	"buddy-match/internal/matching"
	"buddy-match/internal/notifier"
	"buddy-match/internal/scheduler"
	"buddy-match/internal/storage"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// AppConfig 应用配置。
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Database  storage.Config       `yaml:"database"`
	Log       LogConfig            `yaml:"log"`
	Matching  matching.Config      `yaml:"matching"`
	Scheduler scheduler.Config     `yaml:"scheduler"`
	Lock      LockConfig           `yaml:"lock"`
	Email     notifier.EmailConfig `yaml:"email"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LockConfig 选择单飞保护后端：local 为进程内，redis 为跨实例租约。
type LockConfig struct {
	Backend          string `yaml:"backend"`
	lock.RedisConfig `yaml:",inline"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Server:    ServerConfig{Addr: ":8080"},
		Database:  storage.Config{Driver: "sqlite", Path: "matches.db"},
		Log:       LogConfig{Level: "info"},
		Matching:  matching.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Lock:      LockConfig{Backend: "local"},
	}
}

// loadConfig 读取 YAML 配置。未显式指定且默认文件不存在时使用默认值。
func loadConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return AppConfig{}, err
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	switch c.Lock.Backend {
	case "", "local":
		c.Lock.Backend = "local"
	case "redis":
		if c.Lock.Addr == "" {
			return fmt.Errorf("lock backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unsupported lock backend %q", c.Lock.Backend)
	}
	if err := c.Matching.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return nil
}
