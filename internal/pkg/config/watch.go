package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch 监听配置文件变更，重新解析后回调 onChange
// 仅用于可热更新的字段（如日志级别），存储路径等字段变更需重启生效。
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		return fmt.Errorf("configPath 不能为空")
	}
	if onChange == nil {
		return fmt.Errorf("onChange 不能为空")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			slog.Warn("配置热更新解析失败", "path", e.Name, "error", err)
			return
		}
		slog.Info("配置文件已变更", "path", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
