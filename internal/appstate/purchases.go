package appstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/yuqie6/Arcana/internal/repository"
	"github.com/yuqie6/Arcana/internal/schema"
	"github.com/yuqie6/Arcana/internal/store"
)

// Entitlement 一项已购权益
type Entitlement struct {
	ProductID   string    `json:"productId"`
	Platform    string    `json:"platform"`
	PurchasedAt time.Time `json:"purchasedAt"`
	Active      bool      `json:"active"`
}

func (e Entitlement) same(o Entitlement) bool {
	return e.ProductID == o.ProductID && e.Platform == o.Platform && e.Active == o.Active && e.PurchasedAt.Equal(o.PurchasedAt)
}

// Purchases 内购权益状态
type Purchases struct {
	Entitlements map[string]Entitlement `json:"entitlements"`
	Restoring    bool                   `json:"-"`
}

const purchasesVersion = 2

// PurchasesStore 内购权益容器
type PurchasesStore struct {
	*Bound[Purchases]
}

// NewPurchasesStore 创建内购容器并从快照恢复（兼容 v1 快照）
func NewPurchasesStore(deps Deps) (*PurchasesStore, error) {
	w := deps.Purchases
	fields := []store.Field[Purchases]{
		store.SyncField("entitlements",
			func(p Purchases) map[string]Entitlement { return p.Entitlements },
			func(ctx context.Context, next, prev map[string]Entitlement) error {
				return syncEntitlements(ctx, w, next, prev)
			}),
	}
	b, err := bind("purchases", Purchases{}, deps, store.PersistOptions[Purchases]{
		Version: purchasesVersion,
		Migrate: migratePurchases,
	}, fields)
	if err != nil {
		return nil, err
	}
	return &PurchasesStore{Bound: b}, nil
}

// migratePurchases v1 只记录了商品 ID 列表：{"productIds": [...]}
func migratePurchases(raw json.RawMessage, from int) (json.RawMessage, error) {
	if from != 1 {
		return nil, fmt.Errorf("不支持的内购快照版本: %d", from)
	}
	var v1 struct {
		ProductIDs []string `json:"productIds"`
	}
	if err := json.Unmarshal(raw, &v1); err != nil {
		return nil, err
	}
	ents := make(map[string]Entitlement, len(v1.ProductIDs))
	for _, id := range v1.ProductIDs {
		ents[id] = Entitlement{ProductID: id, Platform: "unknown", Active: true}
	}
	return json.Marshal(Purchases{Entitlements: ents})
}

func syncEntitlements(ctx context.Context, w PurchaseWriter, next, prev map[string]Entitlement) error {
	var errs []error
	for id, e := range next {
		if old, ok := prev[id]; ok && old.same(e) {
			continue
		}
		p := &schema.Purchase{
			ProductID:    id,
			PurchaseDate: e.PurchasedAt,
			Platform:     e.Platform,
			IsActive:     e.Active,
		}
		if err := w.Upsert(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	for id := range prev {
		if _, ok := next[id]; ok {
			continue
		}
		if err := w.Deactivate(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Grant 记录一次购买
func (p *PurchasesStore) Grant(productID, platform string, at time.Time) {
	p.Set(func(s Purchases) Purchases {
		ents := maps.Clone(s.Entitlements)
		if ents == nil {
			ents = make(map[string]Entitlement)
		}
		ents[productID] = Entitlement{ProductID: productID, Platform: platform, PurchasedAt: at, Active: true}
		s.Entitlements = ents
		return s
	})
}

// Revoke 撤销权益（退款）；记录保留为失效状态
func (p *PurchasesStore) Revoke(productID string) {
	p.Set(func(s Purchases) Purchases {
		e, ok := s.Entitlements[productID]
		if !ok {
			return s
		}
		ents := maps.Clone(s.Entitlements)
		e.Active = false
		ents[productID] = e
		s.Entitlements = ents
		return s
	})
}

// Has 是否拥有有效权益
func (p *PurchasesStore) Has(productID string) bool {
	e, ok := p.Get().Entitlements[productID]
	return ok && e.Active
}
