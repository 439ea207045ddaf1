package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
)

func dailyCmd() *cobra.Command {
	var date string
	var deckID string
	var regenerate bool

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "查看（必要时生成）某天的 24 张牌",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if date == "" {
				date = time.Now().Format(time.DateOnly)
			}
			if deckID == "" {
				deckID = core.SelectedDeck()
			}

			var session *schema.DailySession
			var err error
			if regenerate {
				session, err = core.Services.Daily.Regenerate(ctx, date, deckID)
			} else {
				session, err = core.Services.Daily.Open(ctx, date, deckID)
			}
			if err != nil {
				return err
			}
			core.Stores.Daily.Load(session)

			fmt.Printf("🔮 %s · %s\n", session.Date, session.DeckID)
			if session.GeneratedAt != nil {
				fmt.Printf("   生成于 %s\n", humanize.Time(*session.GeneratedAt))
			}
			printCards(session.Cards, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "日期 (YYYY-MM-DD)，默认今天")
	cmd.Flags().StringVar(&deckID, "deck", "", "牌组，默认当前设置")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "重新生成（保留未变化卡槽的备注）")
	return cmd
}

func printCards(cards []schema.DailyCard, now time.Time) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Hour", "Card", "Keywords", "Memo")
	for _, c := range cards {
		hour := fmt.Sprintf("%02d:00", c.Hour)
		if c.Hour == now.Hour() {
			hour = "▶ " + hour
		}
		memo := ""
		if c.Memo != nil {
			memo = *c.Memo
		}
		table.Append([]string{hour, c.DisplayName, strings.Join(c.Keywords, ", "), memo})
	}
	table.Render()
}

func memoCmd() *cobra.Command {
	var date string
	var hour int
	var text string

	cmd := &cobra.Command{
		Use:   "memo",
		Short: "为某小时的牌写备注（空文本清除）",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if date == "" {
				date = time.Now().Format(time.DateOnly)
			}
			session, err := core.Services.Daily.Open(ctx, date, core.SelectedDeck())
			if err != nil {
				return err
			}
			core.Stores.Daily.Load(session)
			if err := core.Stores.Daily.SetMemo(hour, text); err != nil {
				return err
			}
			if err := core.Stores.Daily.Flush(ctx); err != nil {
				return err
			}
			fmt.Printf("✅ 已保存 %s %02d:00 的备注\n", session.Date, hour)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "日期 (YYYY-MM-DD)，默认今天")
	cmd.Flags().IntVar(&hour, "hour", -1, "小时 (0-23)")
	cmd.Flags().StringVar(&text, "text", "", "备注内容")
	_ = cmd.MarkFlagRequired("hour")
	return cmd
}

func historyCmd() *cobra.Command {
	var search string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "浏览历史会话或搜索卡牌/备注",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			page := repository.Page{Limit: limit, Offset: offset}

			if search != "" {
				hits, err := core.Repos.Daily.SearchCards(ctx, search, page)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Println("📭 没有匹配的卡牌")
					return nil
				}
				table := tablewriter.NewWriter(os.Stdout)
				table.Header("Date", "Hour", "Card", "Memo")
				for _, h := range hits {
					memo := ""
					if h.Memo != nil {
						memo = *h.Memo
					}
					table.Append([]string{h.Date, fmt.Sprintf("%02d:00", h.Hour), h.DisplayName, memo})
				}
				table.Render()
				return nil
			}

			sessions, err := core.Repos.Daily.ListSessions(ctx, page)
			if err != nil {
				return err
			}
			total, err := core.Repos.Daily.CountSessions(ctx)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("ID", "Date", "Deck", "Created")
			for _, s := range sessions {
				table.Append([]string{
					strconv.FormatInt(s.ID, 10),
					s.Date,
					s.DeckID,
					humanize.Time(s.CreatedAt),
				})
			}
			table.Render()
			fmt.Printf("共 %s 个会话\n", humanize.Comma(total))
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "按牌名/关键词/备注搜索")
	cmd.Flags().IntVar(&limit, "limit", repository.DefaultPageLimit, "每页数量")
	cmd.Flags().IntVar(&offset, "offset", 0, "偏移量")
	return cmd
}
