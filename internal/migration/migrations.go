package migration

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// All 已注册的全部迁移，按版本升序
func All() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "daily sessions, daily cards, settings",
			Up: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`CREATE TABLE daily_sessions (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						date         TEXT NOT NULL UNIQUE,
						seed         TEXT NOT NULL,
						deck_id      TEXT NOT NULL,
						created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						generated_at DATETIME
					)`,
					`CREATE TABLE daily_cards (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						session_id   INTEGER NOT NULL REFERENCES daily_sessions(id) ON DELETE CASCADE,
						hour         INTEGER NOT NULL CHECK (hour BETWEEN 0 AND 23),
						content_key  TEXT NOT NULL,
						display_name TEXT NOT NULL DEFAULT '',
						keywords     TEXT NOT NULL DEFAULT '[]',
						memo         TEXT,
						created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						UNIQUE (session_id, hour)
					)`,
					`CREATE TABLE settings (
						key        TEXT PRIMARY KEY,
						value      TEXT NOT NULL,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
				)
			},
			Down: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`DROP TABLE IF EXISTS daily_cards`,
					`DROP TABLE IF EXISTS daily_sessions`,
					`DROP TABLE IF EXISTS settings`,
				)
			},
		},
		{
			Version:     2,
			Description: "spreads and spread cards",
			Up: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`CREATE TABLE spreads (
						id          TEXT PRIMARY KEY,
						spread_type TEXT NOT NULL,
						deck_id     TEXT NOT NULL DEFAULT '',
						title       TEXT,
						image_uri   TEXT,
						created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE spread_cards (
						id             INTEGER PRIMARY KEY AUTOINCREMENT,
						spread_id      TEXT NOT NULL REFERENCES spreads(id) ON DELETE CASCADE,
						position_index INTEGER NOT NULL,
						content_key    TEXT NOT NULL,
						reversed       BOOLEAN NOT NULL DEFAULT 0,
						x REAL NOT NULL CHECK (x BETWEEN 0 AND 1),
						y REAL NOT NULL CHECK (y BETWEEN 0 AND 1),
						w REAL NOT NULL CHECK (w BETWEEN 0 AND 1),
						h REAL NOT NULL CHECK (h BETWEEN 0 AND 1),
						UNIQUE (spread_id, position_index)
					)`,
				)
			},
			Down: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`DROP TABLE IF EXISTS spread_cards`,
					`DROP TABLE IF EXISTS spreads`,
				)
			},
		},
		{
			Version:     3,
			Description: "purchases",
			Up: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`CREATE TABLE purchases (
						id            TEXT PRIMARY KEY,
						product_id    TEXT NOT NULL UNIQUE,
						purchase_date DATETIME NOT NULL,
						platform      TEXT NOT NULL DEFAULT '',
						is_active     BOOLEAN NOT NULL DEFAULT 1
					)`,
				)
			},
			Down: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx, `DROP TABLE IF EXISTS purchases`)
			},
		},
		{
			Version:     4,
			Description: "history and search indexes",
			Up: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`CREATE INDEX IF NOT EXISTS idx_daily_sessions_created ON daily_sessions(created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_daily_cards_content ON daily_cards(content_key)`,
					`CREATE INDEX IF NOT EXISTS idx_spreads_created ON spreads(created_at)`,
					`CREATE INDEX IF NOT EXISTS idx_purchases_active ON purchases(is_active)`,
				)
			},
			Down: func(ctx context.Context, tx *gorm.DB) error {
				return execAll(tx,
					`DROP INDEX IF EXISTS idx_daily_sessions_created`,
					`DROP INDEX IF EXISTS idx_daily_cards_content`,
					`DROP INDEX IF EXISTS idx_spreads_created`,
					`DROP INDEX IF EXISTS idx_purchases_active`,
				)
			},
		},
	}
}

func execAll(tx *gorm.DB, stmts ...string) error {
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("执行迁移语句失败: %w", err)
		}
	}
	return nil
}
