package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/glebarez/sqlite" // 纯 Go SQLite 驱动
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type dbState int

const (
	stateUninitialized dbState = iota
	stateReady
	stateClosed
)

func (s dbState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Options 数据库选项
type Options struct {
	Path        string        // 数据库文件路径，测试可用 ":memory:"
	Production  bool          // 生产构建禁止 Reset
	BusyTimeout time.Duration // 默认 5s
}

// Database 数据库管理器：持有唯一的嵌入式数据库句柄。
// 生命周期 uninitialized → ready → closed；Close 后需重新 Initialize。
type Database struct {
	opts Options

	mu    sync.RWMutex
	state dbState
	db    *gorm.DB
	sqlDB *sql.DB
}

// Row 查询结果行（列名 → 值）
type Row map[string]any

// Result 单条语句的执行结果
type Result struct {
	Rows         []Row
	InsertID     int64
	HasInsertID  bool
	RowsAffected int64
}

// Statement 事务中的一条语句
type Statement struct {
	SQL  string
	Args []any
}

// NewDatabase 创建数据库管理器（不打开连接）
func NewDatabase(opts Options) *Database {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	return &Database{opts: opts}
}

// Initialize 打开数据库并配置 pragma；重复调用直接返回已缓存的句柄
func (d *Database) Initialize(ctx context.Context) (*gorm.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateReady {
		return d.db, nil
	}
	path := d.opts.Path
	if path == "" {
		return nil, &ConnectionError{Op: "open", Err: errors.New("path 不能为空")}
	}

	// 确保目录存在
	if !isMemoryPath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &ConnectionError{Path: path, Op: "mkdir", Err: err}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &ConnectionError{Path: path, Op: "open", Err: err}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, &ConnectionError{Path: path, Op: "open", Err: err}
	}

	// 单连接：访问在驱动层串行化，pragma 对唯一连接持续生效，:memory: 库也不会被拆分
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, &ConnectionError{Path: path, Op: "ping", Err: err}
	}
	if err := configureDB(ctx, db, d.opts.BusyTimeout); err != nil {
		_ = sqlDB.Close()
		return nil, &ConnectionError{Path: path, Op: "pragma", Err: err}
	}

	d.db = db
	d.sqlDB = sqlDB
	d.state = stateReady
	slog.Info("数据库初始化成功", "path", path)
	return db, nil
}

// configureDB 配置 SQLite 参数：外键约束 + WAL
func configureDB(ctx context.Context, db *gorm.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",   // 启用 WAL 模式，支持并发读写
		"PRAGMA synchronous = NORMAL", // 平衡性能与安全
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA temp_store = MEMORY", // 临时表使用内存
	}

	for _, pragma := range pragmas {
		if err := db.WithContext(ctx).Exec(pragma).Error; err != nil {
			return fmt.Errorf("执行 %s 失败: %w", pragma, err)
		}
	}

	var fk int
	if err := db.WithContext(ctx).Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		return fmt.Errorf("读取 foreign_keys 失败: %w", err)
	}
	if fk != 1 {
		return errors.New("foreign_keys 未生效")
	}
	return nil
}

// Ready 连接是否可用
func (d *Database) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == stateReady
}

// State 生命周期状态（用于诊断输出）
func (d *Database) State() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state.String()
}

// Path 数据库文件路径
func (d *Database) Path() string {
	return d.opts.Path
}

// SizeBytes 数据库主文件大小（内存库返回 0）
func (d *Database) SizeBytes() int64 {
	if isMemoryPath(d.opts.Path) {
		return 0
	}
	info, err := os.Stat(d.opts.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Session 返回绑定 ctx 的 gorm 会话，供仓储使用
func (d *Database) Session(ctx context.Context) (*gorm.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state != stateReady {
		return nil, ErrNotReady
	}
	return d.db.WithContext(ctx), nil
}

// Query 执行单条语句。读语句返回结果行；写语句返回影响行数，INSERT 额外返回自增 ID。
func (d *Database) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	db, err := d.Session(ctx)
	if err != nil {
		return nil, err
	}
	return runStatement(ctx, db.Statement.ConnPool, query, args)
}

// QueryFirst 返回第一行；无结果返回 nil（不是错误）
func (d *Database) QueryFirst(ctx context.Context, query string, args ...any) (Row, error) {
	res, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return res.Rows[0], nil
}

// Transaction 原子执行一组语句，任一失败则整体回滚
func (d *Database) Transaction(ctx context.Context, stmts []Statement) ([]*Result, error) {
	results := make([]*Result, 0, len(stmts))
	failedAt := -1
	err := d.withTx(ctx, func(tx *gorm.DB) error {
		for i, st := range stmts {
			res, err := runStatement(ctx, tx.Statement.ConnPool, st.SQL, st.Args)
			if err != nil {
				failedAt = i
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotReady) && failedAt < 0 {
			return nil, err
		}
		return nil, &TransactionError{Index: failedAt, Err: err}
	}
	return results, nil
}

// RunInTx 在事务中执行回调。
// 回调内只能使用 tx：连接池只有一个连接，再经 Database 访问会死锁。
func (d *Database) RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	called := false
	err := d.withTx(ctx, func(tx *gorm.DB) error {
		called = true
		return fn(tx)
	})
	if err == nil {
		return nil
	}
	if !called && errors.Is(err, ErrNotReady) {
		return err
	}
	return &TransactionError{Index: -1, Err: err}
}

func (d *Database) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	db, err := d.Session(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(fn)
}

// Reset 删除全部非系统表，仅限开发构建
func (d *Database) Reset(ctx context.Context) error {
	if d.opts.Production {
		return &PermissionError{Op: "reset"}
	}
	db, err := d.Session(ctx)
	if err != nil {
		return err
	}

	var tables []string
	if err := db.Table("sqlite_master").
		Where("type = ? AND name NOT LIKE ?", "table", "sqlite_%").
		Pluck("name", &tables).Error; err != nil {
		return &QueryError{SQL: "SELECT name FROM sqlite_master", Err: err}
	}

	if err := db.Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
		return &QueryError{SQL: "PRAGMA foreign_keys = OFF", Err: err}
	}
	defer func() {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			slog.Error("恢复 foreign_keys 失败", "error", err)
		}
	}()

	for _, table := range tables {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %q", table)
		if err := db.Exec(stmt).Error; err != nil {
			return &QueryError{SQL: stmt, Err: err}
		}
	}
	slog.Warn("数据库已重置", "tables", len(tables))
	return nil
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateReady {
		d.state = stateClosed
		return nil
	}
	d.state = stateClosed
	err := d.sqlDB.Close()
	d.db = nil
	d.sqlDB = nil
	return err
}

func runStatement(ctx context.Context, pool gorm.ConnPool, query string, args []any) (*Result, error) {
	if isReadStatement(query) {
		rows, err := pool.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &QueryError{SQL: query, Args: args, Err: err}
		}
		defer rows.Close()

		out, err := scanRows(rows)
		if err != nil {
			return nil, &QueryError{SQL: query, Args: args, Err: err}
		}
		return &Result{Rows: out}, nil
	}

	res, err := pool.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &QueryError{SQL: query, Args: args, Err: err}
	}
	out := &Result{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if kw := firstKeyword(query); kw == "INSERT" || kw == "REPLACE" {
		if id, err := res.LastInsertId(); err == nil {
			out.InsertID = id
			out.HasInsertID = true
		}
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func firstKeyword(query string) string {
	q := strings.TrimLeft(query, " \t\r\n(")
	if i := strings.IndexFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	}); i >= 0 {
		q = q[:i]
	}
	return strings.ToUpper(q)
}

func isReadStatement(query string) bool {
	switch firstKeyword(query) {
	case "SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES":
		return true
	}
	// RETURNING 前后可能是任意空白或括号
	for _, tok := range strings.FieldsFunc(query, func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == ')' || r == ',' || r == ';'
	}) {
		if strings.EqualFold(tok, "RETURNING") {
			return true
		}
	}
	return false
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:") || strings.Contains(path, "mode=memory")
}
