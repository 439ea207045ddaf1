package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "升级数据库结构",
		Annotations: skipMigrate(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var err error
			if to > 0 {
				err = core.Migrator.MigrateTo(ctx, to)
			} else {
				err = core.Migrator.Migrate(ctx)
			}
			if err != nil {
				return err
			}
			v, err := core.Migrator.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("✅ 当前结构版本: v%d\n", v)
			return nil
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "目标版本（默认最新）")

	cmd.AddCommand(&cobra.Command{
		Use:         "clear-failure VERSION",
		Short:       "清除失败的迁移记录以便重试",
		Args:        cobra.ExactArgs(1),
		Annotations: skipMigrate(),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("版本号无效: %s", args[0])
			}
			if err := core.Migrator.ClearFailure(cmd.Context(), v); err != nil {
				return err
			}
			fmt.Printf("✅ 已清除 v%d 的失败记录\n", v)
			return nil
		},
	})
	return cmd
}

func rollbackCmd() *cobra.Command {
	var to int

	cmd := &cobra.Command{
		Use:         "rollback",
		Short:       "回滚数据库结构（仅开发构建）",
		Annotations: skipMigrate(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.Migrator.Rollback(cmd.Context(), to); err != nil {
				return err
			}
			fmt.Printf("✅ 已回滚到 v%d\n", to)
			return nil
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "回滚到的版本")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "查看数据库状态与迁移历史",
		Annotations: skipMigrate(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := core.Migrator.CurrentVersion(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("📦 数据库: %s (%s, %s)\n", core.DB.Path(), core.DB.State(), humanize.Bytes(uint64(core.DB.SizeBytes())))
			fmt.Printf("🧱 结构版本: v%d / v%d\n", current, core.Migrator.Latest())
			if current < core.Migrator.Latest() {
				fmt.Println("   运行 'arcana migrate' 升级")
			}

			history, err := core.Migrator.History(ctx)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				return nil
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Version", "Description", "Applied", "Result")
			for _, h := range history {
				result := "ok"
				if !h.Success {
					result = "FAILED"
				}
				table.Append([]string{
					strconv.Itoa(h.Version),
					h.Description,
					humanize.Time(h.AppliedAt),
					result,
				})
			}
			table.Render()
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:         "reset",
		Short:       "删除全部表（仅开发构建）",
		Annotations: skipMigrate(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("需要 --yes 确认")
			}
			if err := core.DB.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("✅ 数据库已清空，运行 'arcana migrate' 重建")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "确认删除")
	return cmd
}
