package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/yuqie6/Arcana/internal/appstate"
	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
)

func spreadsCmd() *cobra.Command {
	var search string
	var limit int

	cmd := &cobra.Command{
		Use:   "spreads",
		Short: "列出或搜索保存的牌阵",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			page := repository.Page{Limit: limit}
			var list []schema.Spread
			var err error
			if search != "" {
				list, err = core.Repos.Spread.Search(ctx, search, page)
			} else {
				list, err = core.Repos.Spread.List(ctx, page)
			}
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("📭 还没有保存的牌阵")
				return nil
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("ID", "Type", "Deck", "Title", "Created")
			for _, sp := range list {
				title := ""
				if sp.Title != nil {
					title = *sp.Title
				}
				table.Append([]string{sp.ID[:8], sp.SpreadType, sp.DeckID, title, humanize.Time(sp.CreatedAt)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "按标题/类型搜索")
	cmd.Flags().IntVar(&limit, "limit", repository.DefaultPageLimit, "数量")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "删除牌阵",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.Repos.Spread.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("✅ 已删除")
			return nil
		},
	})
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "查看或修改设置",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "列出全部设置",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := core.Repos.Setting.All(cmd.Context())
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("Key", "Value", "Updated")
			for _, s := range all {
				table.Append([]string{s.Key, s.Value, humanize.Time(s.UpdatedAt)})
			}
			table.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get KEY",
		Short: "读取设置",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok, err := core.Repos.Setting.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("设置 %s 不存在", args[0])
			}
			fmt.Println(v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "写入设置（已知 key 经由设置容器同步）",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			key, value := args[0], args[1]
			st := core.Stores.Settings

			switch key {
			case appstate.KeySelectedDeck:
				if _, err := core.Decks.Get(value); err != nil {
					return err
				}
				st.SelectDeck(value)
			case appstate.KeyLocale:
				st.SetLocale(value)
			case appstate.KeyReversedCards, appstate.KeyHourlyReminder:
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("%s 需要布尔值: %w", key, err)
				}
				if key == appstate.KeyReversedCards {
					st.SetReversedCards(b)
				} else {
					st.SetHourlyReminder(b)
				}
			default:
				return core.Repos.Setting.Set(ctx, key, value)
			}
			return st.Flush(ctx)
		},
	})
	return cmd
}
