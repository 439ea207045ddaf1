package appstate

import (
	"context"

	"github.com/yuqie6/Arcana/internal/store"
)

// 设置表中的 key
const (
	KeySelectedDeck   = "selected_deck"
	KeyReversedCards  = "reversed_cards"
	KeyHourlyReminder = "hourly_reminder"
	KeyLocale         = "locale"
)

// Settings 用户设置
type Settings struct {
	SelectedDeck   string `json:"selectedDeck"`
	ReversedCards  bool   `json:"reversedCards"`
	HourlyReminder bool   `json:"hourlyReminder"`
	Locale         string `json:"locale"`
	PanelOpen      bool   `json:"-"` // 瞬态 UI 标记，不持久化
}

// DefaultSettings 默认设置
func DefaultSettings(defaultDeck string) Settings {
	if defaultDeck == "" {
		defaultDeck = "classic"
	}
	return Settings{SelectedDeck: defaultDeck, Locale: "en"}
}

// SettingsStore 设置容器
type SettingsStore struct {
	*Bound[Settings]
}

// NewSettingsStore 创建设置容器并从快照恢复
func NewSettingsStore(deps Deps, defaultDeck string) (*SettingsStore, error) {
	w := deps.Settings
	setString := func(key string) store.Strategy[string] {
		return func(ctx context.Context, next, _ string) error { return w.Set(ctx, key, next) }
	}
	setBool := func(key string) store.Strategy[bool] {
		return func(ctx context.Context, next, _ bool) error { return w.SetBool(ctx, key, next) }
	}

	fields := []store.Field[Settings]{
		store.SyncField(KeySelectedDeck, func(s Settings) string { return s.SelectedDeck }, setString(KeySelectedDeck)),
		store.SyncField(KeyReversedCards, func(s Settings) bool { return s.ReversedCards }, setBool(KeyReversedCards)),
		store.SyncField(KeyHourlyReminder, func(s Settings) bool { return s.HourlyReminder }, setBool(KeyHourlyReminder)),
		store.SyncField(KeyLocale, func(s Settings) string { return s.Locale }, setString(KeyLocale)),
	}
	b, err := bind("settings", DefaultSettings(defaultDeck), deps, store.PersistOptions[Settings]{
		Version: 1,
		Partialize: func(s Settings) any {
			return struct {
				SelectedDeck   string `json:"selectedDeck"`
				ReversedCards  bool   `json:"reversedCards"`
				HourlyReminder bool   `json:"hourlyReminder"`
				Locale         string `json:"locale"`
			}{s.SelectedDeck, s.ReversedCards, s.HourlyReminder, s.Locale}
		},
	}, fields)
	if err != nil {
		return nil, err
	}
	return &SettingsStore{Bound: b}, nil
}

func (s *SettingsStore) SelectDeck(id string) {
	s.Set(func(st Settings) Settings { st.SelectedDeck = id; return st })
}

func (s *SettingsStore) SetReversedCards(v bool) {
	s.Set(func(st Settings) Settings { st.ReversedCards = v; return st })
}

func (s *SettingsStore) SetHourlyReminder(v bool) {
	s.Set(func(st Settings) Settings { st.HourlyReminder = v; return st })
}

func (s *SettingsStore) SetLocale(locale string) {
	s.Set(func(st Settings) Settings { st.Locale = locale; return st })
}

func (s *SettingsStore) TogglePanel() {
	s.Set(func(st Settings) Settings { st.PanelOpen = !st.PanelOpen; return st })
}
