package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yuqie6/Arcana/internal/appstate"
	"github.com/yuqie6/Arcana/internal/daily"
	"github.com/yuqie6/Arcana/internal/deck"
	"github.com/yuqie6/Arcana/internal/eventbus"
	"github.com/yuqie6/Arcana/internal/migration"
	"github.com/yuqie6/Arcana/internal/pkg/buildinfo"
	"github.com/yuqie6/Arcana/internal/pkg/config"
	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
	"github.com/yuqie6/Arcana/internal/service"
	"github.com/yuqie6/Arcana/internal/store"
)

// Options 构建 Core 的可选项
type Options struct {
	// SkipMigrate 不自动迁移（CLI 的 migrate/status 命令自行控制迁移）
	SkipMigrate bool
	// Config 非空时直接使用，不再从 cfgPath 读取（测试使用）
	Config *config.Config
}

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	Migrator  *migration.Runner
	Hub       *eventbus.Hub
	Decks     *deck.Catalog
	LogCloser io.Closer

	Repos struct {
		Daily    *repository.DailyRepository
		Spread   *repository.SpreadRepository
		Setting  *repository.SettingRepository
		Purchase *repository.PurchaseRepository
	}

	Services struct {
		Daily *service.DailyService
	}

	Stores struct {
		Settings  *appstate.SettingsStore
		Daily     *appstate.DailyStore
		Purchases *appstate.PurchasesStore
	}
}

// NewCore 构建核心依赖：打开数据库、迁移、挂载状态容器
func NewCore(ctx context.Context, cfgPath string, opts Options) (*Core, error) {
	cfg := opts.Config
	var logCloser io.Closer
	if cfg == nil {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		logCloser, _ = config.SetupLogger(config.LoggerOptions{
			Level:     cfg.App.LogLevel,
			Path:      cfg.App.LogPath,
			Component: filepath.Base(os.Args[0]),
		})
	}

	c := &Core{Cfg: cfg, LogCloser: logCloser, Hub: eventbus.NewHub()}

	if cfg.Storage.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
			c.Close()
			return nil, err
		}
	}
	c.DB = repository.NewDatabase(repository.Options{
		Path:       cfg.Storage.DBPath,
		Production: buildinfo.IsProduction(),
	})
	if _, err := c.DB.Initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}

	migrator, err := migration.NewRunner(c.DB, migration.All(), migration.WithRollback(!buildinfo.IsProduction()))
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Migrator = migrator
	if !opts.SkipMigrate {
		if err := migrator.Initialize(ctx); err != nil {
			c.Close()
			return nil, err
		}
		v, _ := migrator.CurrentVersion(ctx)
		c.Hub.Publish(eventbus.Event{Type: eventbus.TypeSchemaMigrated, Data: map[string]any{"version": v}})
	}

	// Repos
	c.Repos.Daily = repository.NewDailyRepository(c.DB)
	c.Repos.Spread = repository.NewSpreadRepository(c.DB)
	c.Repos.Setting = repository.NewSettingRepository(c.DB)
	c.Repos.Purchase = repository.NewPurchaseRepository(c.DB)

	// Services
	decks, err := deck.Builtin()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Decks = decks
	gen, err := daily.NewCache(cfg.Daily.CacheSize)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Services.Daily = service.NewDailyService(c.Repos.Daily, gen, decks, c.Hub)

	if opts.SkipMigrate {
		// 未迁移时表可能不存在，不挂载同步中间件
		return c, nil
	}
	if err := c.mountStores(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Core) mountStores() error {
	var storage store.Storage
	if c.Cfg.Storage.StateDir == "" {
		storage = store.NewMemoryStorage()
	} else {
		fs, err := store.NewFileStorage(nil, c.Cfg.Storage.StateDir)
		if err != nil {
			return err
		}
		storage = fs
	}

	deps := appstate.Deps{
		Storage:         storage,
		DB:              c.DB,
		Settings:        c.Repos.Setting,
		Memos:           c.Repos.Daily,
		Purchases:       c.Repos.Purchase,
		SyncDebounce:    time.Duration(c.Cfg.Sync.DebounceMs) * time.Millisecond,
		PersistDebounce: time.Duration(c.Cfg.Sync.PersistDebounceMs) * time.Millisecond,
		OnSyncError: func(e store.SyncError) {
			slog.Warn("状态同步失败", "store", e.Store, "field", e.Field, "error", e.Err)
			c.Hub.Publish(eventbus.Event{
				Type: eventbus.TypeSyncError,
				Data: map[string]any{"store": e.Store, "field": e.Field, "error": e.Err.Error()},
			})
		},
	}

	var err error
	if c.Stores.Settings, err = appstate.NewSettingsStore(deps, c.Cfg.Daily.DefaultDeck); err != nil {
		return err
	}
	if c.Stores.Daily, err = appstate.NewDailyStore(deps); err != nil {
		return err
	}
	if c.Stores.Purchases, err = appstate.NewPurchasesStore(deps); err != nil {
		return err
	}
	return nil
}

// SelectedDeck 当前选择的牌组（状态容器未挂载时使用配置默认值）
func (c *Core) SelectedDeck() string {
	if c.Stores.Settings != nil {
		if id := c.Stores.Settings.Get().SelectedDeck; id != "" {
			return id
		}
	}
	return c.Cfg.Daily.DefaultDeck
}

// OpenToday 打开今天的会话并载入当日阅读容器
func (c *Core) OpenToday(ctx context.Context) error {
	_, err := c.openToday(ctx)
	return err
}

func (c *Core) openToday(ctx context.Context) (*schema.DailySession, error) {
	session, err := c.Services.Daily.Today(ctx, c.SelectedDeck())
	if err != nil {
		return nil, err
	}
	if c.Stores.Daily != nil {
		c.Stores.Daily.Load(session)
	}
	return session, nil
}

// NewRollover 创建日切任务；每次日切都经 OpenToday 载入当日阅读容器
func (c *Core) NewRollover() (*service.Rollover, error) {
	return service.NewRollover(c.Cfg.Daily.RolloverCron, c.openToday)
}

// Flush 立即落盘全部状态容器
func (c *Core) Flush(ctx context.Context) error {
	var errs []error
	if c.Stores.Settings != nil {
		errs = append(errs, c.Stores.Settings.Flush(ctx))
	}
	if c.Stores.Daily != nil {
		errs = append(errs, c.Stores.Daily.Flush(ctx))
	}
	if c.Stores.Purchases != nil {
		errs = append(errs, c.Stores.Purchases.Flush(ctx))
	}
	return errors.Join(errs...)
}

// Close 刷新并关闭状态容器，再关闭数据库
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.DB != nil && c.DB.Ready() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Flush(ctx); err != nil {
			slog.Warn("关闭前同步状态失败", "error", err)
		}
		cancel()
	}
	if c.Stores.Settings != nil {
		c.Stores.Settings.Close()
	}
	if c.Stores.Daily != nil {
		c.Stores.Daily.Close()
	}
	if c.Stores.Purchases != nil {
		c.Stores.Purchases.Close()
	}

	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
