package daily

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Cache 缓存 Generate 的结果。生成是纯函数，缓存只省计算，不影响结果。
type Cache struct {
	lru *lru.Cache
}

type cacheKey struct {
	date     string
	deckSize int
}

// NewCache 创建容量为 size 的缓存
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("创建生成缓存失败: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Generate 同 daily.Generate；返回副本，调用方可随意修改
func (c *Cache) Generate(date string, deckSize int) ([]int, error) {
	key := cacheKey{date: date, deckSize: deckSize}
	if v, ok := c.lru.Get(key); ok {
		return append([]int(nil), v.([]int)...), nil
	}
	out, err := Generate(date, deckSize)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, append([]int(nil), out...))
	return out, nil
}

// Len 当前缓存条目数
func (c *Cache) Len() int {
	return c.lru.Len()
}
