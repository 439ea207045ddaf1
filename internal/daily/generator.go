// Package daily 每日卡槽的确定性生成：同一日期与牌组大小永远得到同样的 24 个索引。
package daily

import (
	"strconv"
	"time"
)

// Slots 每日卡槽数量（一小时一张）
const Slots = 24

// Generate 为 date 生成 24 个互不相同的 [0, deckSize) 索引，按小时排列。
// 不依赖随机源、时钟或内存地址，跨进程、跨平台结果一致。
func Generate(date string, deckSize int) ([]int, error) {
	seed, err := canonicalDate(date)
	if err != nil {
		return nil, &GenerationError{Date: date, DeckSize: deckSize, Err: err}
	}
	if deckSize < Slots {
		return nil, &GenerationError{Date: date, DeckSize: deckSize, Err: ErrDeckTooSmall}
	}
	return generate(seed, deckSize), nil
}

// GenerateFor 以 t 所在的本地日期生成
func GenerateFor(t time.Time, deckSize int) ([]int, error) {
	return Generate(t.Format(time.DateOnly), deckSize)
}

func canonicalDate(date string) (string, error) {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return "", ErrInvalidDate
	}
	// 拒绝 "2025-3-4" 之类可被解析但不规范的写法
	if s := t.Format(time.DateOnly); s != date {
		return "", ErrInvalidDate
	}
	return date, nil
}

func generate(seed string, deckSize int) []int {
	picked := make([]int, 0, Slots)
	used := make([]bool, deckSize)
	n := uint32(deckSize)
	maxProbe := deckSize * 4

	for hour := 0; hour < Slots; hour++ {
		idx := -1
		for attempt := 0; attempt < maxProbe; attempt++ {
			key := seed + strconv.Itoa(hour+len(picked)+attempt)
			if c := int(hash(key) % n); !used[c] {
				idx = c
				break
			}
		}
		if idx < 0 {
			// 探测上限内未命中：从该小时的起点线性扫描
			start := int(hash(seed+strconv.Itoa(hour)) % n)
			for i := 0; i < deckSize; i++ {
				if c := (start + i) % deckSize; !used[c] {
					idx = c
					break
				}
			}
		}
		used[idx] = true
		picked = append(picked, idx)
	}
	return picked
}

// hash 32 位多项式滚动哈希（基数 31），末尾做一次混合使相邻后缀分散
func hash(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
