package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuqie6/Arcana/internal/bootstrap"
	"github.com/yuqie6/Arcana/internal/pkg/buildinfo"
)

// 不自动迁移的命令（迁移本身由命令控制）
const annotationSkipMigrate = "skip-migrate"

var (
	cfgFile string
	core    *bootstrap.Core
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "arcana",
		Short:         "Arcana - 每日塔罗本地数据工具",
		Long:          `Arcana CLI 管理本地数据库：迁移、查看每日会话、备注、牌阵与设置。`,
		Version:       fmt.Sprintf("%s (%s, %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Mode),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			core, err = bootstrap.NewCore(cmd.Context(), cfgFile, bootstrap.Options{
				SkipMigrate: cmd.Annotations[annotationSkipMigrate] == "true",
			})
			if err != nil {
				return fmt.Errorf("初始化失败: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if core == nil {
				return nil
			}
			err := core.Close()
			core = nil
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rollbackCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(dailyCmd())
	rootCmd.AddCommand(memoCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(spreadsCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(resetCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		if core != nil {
			_ = core.Close()
		}
		os.Exit(1)
	}
}

func skipMigrate() map[string]string {
	return map[string]string{annotationSkipMigrate: "true"}
}
