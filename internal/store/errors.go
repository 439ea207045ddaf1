package store

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionTooNew 持久化快照来自更新的版本，已丢弃
	ErrVersionTooNew = errors.New("持久化版本高于当前版本")
	// ErrDatabaseNotReady 数据库未就绪，本轮同步已跳过
	ErrDatabaseNotReady = errors.New("数据库未就绪，跳过同步")
)

// StoreError 持久化读写失败（不回滚内存状态）
type StoreError struct {
	Store  string
	Action string // read / write / decode / migrate / merge
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s 失败: %v", e.Store, e.Action, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SyncError 单个字段的同步策略失败
type SyncError struct {
	Store string
	Field string
	Value any
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("store %s 字段 %s 同步失败: %v", e.Store, e.Field, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
