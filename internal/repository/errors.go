package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady 连接尚未初始化或已关闭
	ErrNotReady = errors.New("数据库未就绪")
	// ErrNotFound 记录不存在（用于更新类操作）
	ErrNotFound = errors.New("记录不存在")
)

// ConnectionError 无法打开或配置数据库，对启动流程是致命错误
type ConnectionError struct {
	Path string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("数据库连接失败 (%s, path=%s): %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError 单条语句执行失败
type QueryError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("执行 SQL 失败: %s (args=%v): %v", e.SQL, e.Args, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// TransactionError 事务失败，整个批次已回滚。
// Index 为失败语句的下标；由回调式事务产生时为 -1。
type TransactionError struct {
	Index int
	Err   error
}

func (e *TransactionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("事务已回滚 (第 %d 条语句失败): %v", e.Index, e.Err)
	}
	return fmt.Sprintf("事务已回滚: %v", e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// PermissionError 生产构建中禁止的操作
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("生产构建禁止执行 %s", e.Op)
}
