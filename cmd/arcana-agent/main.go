package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuqie6/Arcana/internal/bootstrap"
	"github.com/yuqie6/Arcana/internal/eventbus"
	"github.com/yuqie6/Arcana/internal/observability"
	"github.com/yuqie6/Arcana/internal/pkg/buildinfo"
	"github.com/yuqie6/Arcana/internal/pkg/config"
	"github.com/yuqie6/Arcana/internal/pkg/instance"
)

func main() {
	var cfgFile string
	rootCmd := &cobra.Command{
		Use:           "arcana-agent",
		Short:         "Arcana Agent - 后台日切与状态同步",
		Version:       fmt.Sprintf("%s (%s, %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Mode),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfgFile)
		},
	}
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("Agent 异常退出", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	if cfgPath == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			cfgPath = p
		}
	}
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
			_ = config.WriteFile(cfgPath, config.Default())
		}
	}

	core, err := bootstrap.NewCore(ctx, cfgPath, bootstrap.Options{})
	if err != nil {
		return fmt.Errorf("启动 Agent 失败: %w", err)
	}

	// 单实例：同一数据库只允许一个 Agent 写入
	lock, err := instance.Acquire(filepath.Dir(core.Cfg.Storage.DBPath), "ArcanaAgentSingleton")
	if err != nil {
		_ = core.Close()
		if errors.Is(err, instance.ErrAlreadyRunning) {
			slog.Info("Agent 已在运行，退出")
			return nil
		}
		return fmt.Errorf("获取单实例锁失败: %w", err)
	}
	defer lock.Release()
	defer core.Close()

	slog.Info("Arcana Agent 启动中...", "version", buildinfo.Version, "mode", buildinfo.Mode, "db", core.DB.Path())

	go logEvents(ctx, core.Hub)

	if err := core.OpenToday(ctx); err != nil {
		slog.Warn("生成今日会话失败", "error", err)
	}

	rollover, err := core.NewRollover()
	if err != nil {
		return fmt.Errorf("创建日切任务失败: %w", err)
	}
	rollover.Start()
	slog.Info("日切任务已启动", "next", rollover.Next())

	if cfgPath != "" {
		if err := config.Watch(cfgPath, func(cfg *config.Config) {
			config.SetLogLevel(cfg.App.LogLevel)
			core.Hub.Publish(eventbus.Event{
				Type: eventbus.TypeConfigReloaded,
				Data: map[string]any{"log_level": cfg.App.LogLevel},
			})
		}); err != nil {
			slog.Warn("配置热更新不可用", "error", err)
		}
	}

	var metricsServer *http.Server
	if addr := core.Cfg.Observability.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("指标服务异常退出", "error", err)
			}
		}()
		slog.Info("指标服务已启动", "addr", addr)
	}

	slog.Info("Arcana Agent 已启动")
	<-ctx.Done()
	slog.Info("正在关闭...")

	<-rollover.Stop().Done()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	slog.Info("Arcana Agent 已退出")
	return nil
}

// logEvents 把总线事件写入日志
func logEvents(ctx context.Context, hub *eventbus.Hub) {
	for evt := range hub.Subscribe(ctx, 16) {
		slog.Debug("事件", "type", evt.Type, "data", evt.Data)
	}
}
