package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dtroode/storefront-client/internal/model"
)

// GuestKey holds the anonymous cart; it is discarded after a successful merge.
const GuestKey = "cart:guest"

// UserKey returns the key of a user's cached authenticated cart.
func UserKey(userID string) string {
	return "cart:user:" + userID
}

// MirrorStore persists cart mirrors as JSON item lists.
type MirrorStore struct {
	kv model.KVStore
}

func NewMirrorStore(kv model.KVStore) *MirrorStore {
	return &MirrorStore{kv: kv}
}

// LoadGuest returns the persisted guest items; absent means empty.
func (s *MirrorStore) LoadGuest(ctx context.Context) ([]model.CartItem, error) {
	return s.load(ctx, GuestKey)
}

func (s *MirrorStore) SaveGuest(ctx context.Context, items []model.CartItem) error {
	return s.save(ctx, GuestKey, items)
}

func (s *MirrorStore) DiscardGuest(ctx context.Context) error {
	if err := s.kv.Delete(ctx, GuestKey); err != nil {
		return fmt.Errorf("failed to discard guest cart: %w", err)
	}
	return nil
}

func (s *MirrorStore) LoadUser(ctx context.Context, userID string) ([]model.CartItem, error) {
	return s.load(ctx, UserKey(userID))
}

func (s *MirrorStore) SaveUser(ctx context.Context, userID string, items []model.CartItem) error {
	return s.save(ctx, UserKey(userID), items)
}

func (s *MirrorStore) load(ctx context.Context, key string) ([]model.CartItem, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart %q: %w", key, err)
	}

	var items []model.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart %q: %w", key, err)
	}
	return sanitize(items), nil
}

func (s *MirrorStore) save(ctx context.Context, key string, items []model.CartItem) error {
	if items == nil {
		items = []model.CartItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save cart %q: %w", key, err)
	}
	return nil
}

// sanitize drops invalid rows and restores the item invariants of data
// written by older clients.
func sanitize(items []model.CartItem) []model.CartItem {
	out := make([]model.CartItem, 0, len(items))
	seen := make(map[int64]int, len(items))
	for _, it := range items {
		if it.ProductID <= 0 {
			continue
		}
		if i, ok := seen[it.ProductID]; ok {
			out[i].Quantity = clamp(out[i].Quantity+it.Quantity, out[i])
			continue
		}
		it.Quantity = clamp(it.Quantity, it)
		seen[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out
}

// clamp bounds qty to [1, known positive stock].
func clamp(qty int, item model.CartItem) int {
	if qty < 1 {
		qty = 1
	}
	if limit, ok := item.StockLimit(); ok && qty > limit {
		qty = limit
	}
	return qty
}
