package repository

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
)

// Page 分页参数；Limit<=0 使用默认值，超过上限截断
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern 构造子串匹配模式，转义通配符；配合 ESCAPE '\' 使用
func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// NormalizeDate 校验并规范化 YYYY-MM-DD 日期
func NormalizeDate(date string) (string, error) {
	t, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), time.Local)
	if err != nil {
		return "", fmt.Errorf("解析日期失败: %w", err)
	}
	return t.Format(time.DateOnly), nil
}
