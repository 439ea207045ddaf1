package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Daily         DailyConfig         `mapstructure:"daily"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath   string `mapstructure:"db_path"`
	StateDir string `mapstructure:"state_dir"` // 持久化中间件的 KV 快照目录
}

// SyncConfig 状态同步配置
type SyncConfig struct {
	DebounceMs        int `mapstructure:"debounce_ms"`
	PersistDebounceMs int `mapstructure:"persist_debounce_ms"` // 0 表示每次变更同步写快照
}

// DailyConfig 每日抽牌配置
type DailyConfig struct {
	DefaultDeck  string `mapstructure:"default_deck"`
	RolloverCron string `mapstructure:"rollover_cron"`
	CacheSize    int    `mapstructure:"cache_size"`
}

// ObservabilityConfig 指标配置
type ObservabilityConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"` // 为空则不暴露 /metrics
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	loadDotEnv(configPath)

	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 默认查找路径
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 支持环境变量
	v.SetEnvPrefix("ARCANA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configPath != "" && errors.Is(err, os.ErrNotExist)) {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理相对路径
	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)
	cfg.Storage.StateDir = resolvePath(cfg.Storage.StateDir)
	if cfg.App.LogPath != "" {
		cfg.App.LogPath = resolvePath(cfg.App.LogPath)
	}
	if cfg.Sync.DebounceMs <= 0 {
		cfg.Sync.DebounceMs = 500
	}
	if cfg.Daily.CacheSize <= 0 {
		cfg.Daily.CacheSize = 64
	}

	return &cfg, nil
}

// Default 返回默认配置（用于首次启动写入配置文件）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		return &Config{}
	}
	return cfg
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "arcana")
	v.SetDefault("app.version", "0.3.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Storage
	v.SetDefault("storage.db_path", "./data/arcana.db")
	v.SetDefault("storage.state_dir", "./data/state")

	// Sync
	v.SetDefault("sync.debounce_ms", 500)
	v.SetDefault("sync.persist_debounce_ms", 0)

	// Daily
	v.SetDefault("daily.default_deck", "classic")
	v.SetDefault("daily.rollover_cron", "5 0 * * *")
	v.SetDefault("daily.cache_size", 64)

	// Observability
	v.SetDefault("observability.metrics_addr", "")
}

// loadDotEnv 预加载 .env（存在时），供 ARCANA_* 环境变量覆盖使用
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		// 已存在的环境变量优先，不覆盖
		if err := godotenv.Load(p); err != nil {
			slog.Warn("加载 .env 失败", "path", p, "error", err)
			continue
		}
		slog.Debug("加载 .env", "path", p)
		return
	}
}

// resolvePath 解析相对路径为绝对路径
func resolvePath(path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") || filepath.IsAbs(path) {
		return path
	}

	// 获取可执行文件目录
	exe, err := os.Executable()
	if err != nil {
		return path
	}

	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, path)
}
