// Package instance 单实例锁：避免多个 Agent 同时写同一个数据库
package instance

import "errors"

// ErrAlreadyRunning 已有实例持有锁
var ErrAlreadyRunning = errors.New("已有实例在运行")

// Lock 已持有的单实例锁
type Lock interface {
	Release() error
}
