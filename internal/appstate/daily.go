package appstate

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/yuqie6/Arcana/internal/schema"
	"github.com/yuqie6/Arcana/internal/store"
)

// ErrNoSession 尚未载入当日会话，备注无法落库
var ErrNoSession = errors.New("尚未载入当日会话")

// Reading 当日阅读状态
type Reading struct {
	Date         string         `json:"date"`
	SessionID    int64          `json:"sessionId"`
	DeckID       string         `json:"deckId"`
	Memos        map[int]string `json:"memos"`
	SelectedHour int            `json:"-"`
}

// memoSet 备注同步的比较单元：会话变化时需要整体重写
type memoSet struct {
	SessionID int64          `json:"sessionId"`
	Memos     map[int]string `json:"memos"`
}

// DailyStore 当日阅读容器
type DailyStore struct {
	*Bound[Reading]
}

// NewDailyStore 创建当日阅读容器并从快照恢复
func NewDailyStore(deps Deps) (*DailyStore, error) {
	w := deps.Memos
	fields := []store.Field[Reading]{
		store.SyncField("memos",
			func(r Reading) memoSet { return memoSet{SessionID: r.SessionID, Memos: r.Memos} },
			func(ctx context.Context, next, prev memoSet) error {
				return syncMemos(ctx, w, next, prev)
			}),
	}
	b, err := bind("daily", Reading{}, deps, store.PersistOptions[Reading]{Version: 1}, fields)
	if err != nil {
		return nil, err
	}
	return &DailyStore{Bound: b}, nil
}

// syncMemos 只写变化的小时；会话切换时写入新会话的全部备注
func syncMemos(ctx context.Context, w MemoWriter, next, prev memoSet) error {
	if next.SessionID == 0 {
		if len(next.Memos) == 0 {
			return nil
		}
		return ErrNoSession
	}
	if next.SessionID != prev.SessionID {
		prev = memoSet{SessionID: next.SessionID}
	}

	var errs []error
	for hour, text := range next.Memos {
		if old, ok := prev.Memos[hour]; ok && old == text {
			continue
		}
		memo := text
		if err := w.UpdateMemo(ctx, next.SessionID, hour, &memo); err != nil {
			errs = append(errs, fmt.Errorf("hour %d: %w", hour, err))
		}
	}
	for hour := range prev.Memos {
		if _, ok := next.Memos[hour]; ok {
			continue
		}
		if err := w.UpdateMemo(ctx, next.SessionID, hour, nil); err != nil {
			errs = append(errs, fmt.Errorf("hour %d: %w", hour, err))
		}
	}
	return errors.Join(errs...)
}

// Load 载入会话（来自数据库）。同一会话下尚未落库的本地备注优先于数据库的值。
func (d *DailyStore) Load(session *schema.DailySession) {
	if session == nil {
		return
	}
	memos := make(map[int]string)
	for _, c := range session.Cards {
		if c.Memo != nil && *c.Memo != "" {
			memos[c.Hour] = *c.Memo
		}
	}
	synced := d.lastSynced()
	d.Set(func(r Reading) Reading {
		if r.SessionID == session.ID {
			overlayUnsynced(memos, r.Memos, synced, session.ID)
		}
		r.Date = session.Date
		r.SessionID = session.ID
		r.DeckID = session.DeckID
		r.Memos = memos
		return r
	})
}

func (d *DailyStore) lastSynced() memoSet {
	v, _ := d.syncer.Synced("memos")
	m, _ := v.(memoSet)
	return m
}

// overlayUnsynced 把 local 相对上次落库值的改动叠加到 db 上。
// 该会话从未落库时（例如重启后）local 的备注全部视为未落库。
func overlayUnsynced(db, local map[int]string, synced memoSet, sessionID int64) {
	if synced.SessionID != sessionID {
		maps.Copy(db, local)
		return
	}
	for hour, text := range local {
		if old, ok := synced.Memos[hour]; !ok || old != text {
			db[hour] = text
		}
	}
	for hour := range synced.Memos {
		if _, ok := local[hour]; !ok {
			delete(db, hour)
		}
	}
}

// SetMemo 设置某小时的备注，空字符串表示清除
func (d *DailyStore) SetMemo(hour int, text string) error {
	if hour < 0 || hour >= schema.SlotsPerSession {
		return fmt.Errorf("小时超出范围: %d", hour)
	}
	d.Set(func(r Reading) Reading {
		memos := maps.Clone(r.Memos)
		if memos == nil {
			memos = make(map[int]string)
		}
		if text == "" {
			delete(memos, hour)
		} else {
			memos[hour] = text
		}
		r.Memos = memos
		return r
	})
	return nil
}

// SelectHour 切换当前查看的小时（瞬态）
func (d *DailyStore) SelectHour(hour int) {
	d.Set(func(r Reading) Reading { r.SelectedHour = hour; return r })
}
