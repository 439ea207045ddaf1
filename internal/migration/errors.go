package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrDowngrade Migrate 只能向前，回退需使用 Rollback
	ErrDowngrade = errors.New("目标版本低于当前版本")
	// ErrUnknownVersion 目标版本未注册
	ErrUnknownVersion = errors.New("目标版本未注册")
	// ErrBlocked 存在失败记录，需先 ClearFailure
	ErrBlocked = errors.New("存在失败的迁移记录，已阻止继续迁移")
	// ErrRollbackDisabled 生产构建禁止回滚
	ErrRollbackDisabled = errors.New("当前构建禁止回滚")
	// ErrInvalidTarget 回滚目标必须严格低于当前版本
	ErrInvalidTarget = errors.New("回滚目标版本无效")
)

// MigrationError 迁移失败，对启动流程是致命错误
type MigrationError struct {
	Version     int
	Description string
	Err         error
}

func (e *MigrationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("迁移 v%d (%s) 失败: %v", e.Version, e.Description, e.Err)
	}
	return fmt.Sprintf("迁移 v%d 失败: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
