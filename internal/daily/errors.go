package daily

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate 日期不是合法的 YYYY-MM-DD
	ErrInvalidDate = errors.New("日期格式无效")
	// ErrDeckTooSmall 牌组不足以产生 24 张互不相同的牌
	ErrDeckTooSmall = errors.New("牌组数量不足")
)

// GenerationError 无法生成当日卡槽
type GenerationError struct {
	Date     string
	DeckSize int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("生成 %s 的卡槽失败 (deckSize=%d): %v", e.Date, e.DeckSize, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
