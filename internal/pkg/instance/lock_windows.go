//go:build windows

package instance

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type mutexLock struct {
	h windows.Handle
}

// Acquire 以 name 获取单实例锁；Local\ 限定在当前会话，dir 不使用
func Acquire(_ string, name string) (Lock, error) {
	h, err := windows.CreateMutex(nil, false, windows.StringToUTF16Ptr(`Local\`+name))
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		_ = windows.CloseHandle(h)
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("创建互斥量失败: %w", err)
	}
	return &mutexLock{h: h}, nil
}

func (l *mutexLock) Release() error {
	return windows.CloseHandle(l.h)
}
