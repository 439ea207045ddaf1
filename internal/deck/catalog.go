// Package deck 内置牌组目录：把生成器给出的索引映射为具体的牌。
package deck

import (
	_ "embed"
	"errors"
	"fmt"

	"go.yaml.in/yaml/v3"
)

//go:embed decks.yaml
var builtin []byte

// ErrUnknownDeck 牌组未注册
var ErrUnknownDeck = errors.New("未知牌组")

// Card 一张牌
type Card struct {
	Key      string   `json:"key"` // major-00 / cups-03
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Suit     string   `json:"suit,omitempty"` // 大阿卡纳为空
}

// Deck 有序牌组；索引即生成器输出的下标
type Deck struct {
	ID    string
	Name  string
	Cards []Card
}

// Size 牌数
func (d *Deck) Size() int { return len(d.Cards) }

// Card 按索引取牌
func (d *Deck) Card(index int) (Card, error) {
	if index < 0 || index >= len(d.Cards) {
		return Card{}, fmt.Errorf("牌组 %s 索引越界: %d (size=%d)", d.ID, index, len(d.Cards))
	}
	return d.Cards[index], nil
}

// Catalog 牌组目录
type Catalog struct {
	decks map[string]*Deck
	order []string
}

type entry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type suitEntry struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type deckEntry struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	MajorArcana []entry     `yaml:"major_arcana"`
	Suits       []suitEntry `yaml:"suits"`
	Ranks       []entry     `yaml:"ranks"`
}

type catalogFile struct {
	Decks []deckEntry `yaml:"decks"`
}

// Builtin 解析内置目录
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// Parse 解析 YAML 目录
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析牌组目录失败: %w", err)
	}
	c := &Catalog{decks: make(map[string]*Deck, len(f.Decks))}
	for _, de := range f.Decks {
		if de.ID == "" {
			return nil, fmt.Errorf("牌组缺少 id")
		}
		if _, dup := c.decks[de.ID]; dup {
			return nil, fmt.Errorf("牌组 id 重复: %s", de.ID)
		}
		d := build(de)
		if d.Size() == 0 {
			return nil, fmt.Errorf("牌组 %s 为空", de.ID)
		}
		c.decks[de.ID] = d
		c.order = append(c.order, de.ID)
	}
	return c, nil
}

func build(de deckEntry) *Deck {
	d := &Deck{ID: de.ID, Name: de.Name}
	for i, m := range de.MajorArcana {
		d.Cards = append(d.Cards, Card{
			Key:      fmt.Sprintf("major-%02d", i),
			Name:     m.Name,
			Keywords: append([]string(nil), m.Keywords...),
		})
	}
	for _, s := range de.Suits {
		for i, r := range de.Ranks {
			kw := make([]string, 0, len(s.Keywords)+len(r.Keywords))
			kw = append(kw, r.Keywords...)
			kw = append(kw, s.Keywords...)
			d.Cards = append(d.Cards, Card{
				Key:      fmt.Sprintf("%s-%02d", s.ID, i+1),
				Name:     r.Name + " of " + s.Name,
				Keywords: kw,
				Suit:     s.ID,
			})
		}
	}
	return d
}

// Get 按 id 获取牌组
func (c *Catalog) Get(id string) (*Deck, error) {
	d, ok := c.decks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeck, id)
	}
	return d, nil
}

// IDs 按声明顺序返回全部牌组 id
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}
