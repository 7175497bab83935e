// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nutrinexas/adserve/pkg/ids"
)

// Store is the persistence interface for ads. Update must apply the
// mutation atomically so concurrent spend updates cannot interleave.
type Store interface {
	Get(ctx context.Context, id ids.ID) (*Ad, error)
	Put(ctx context.Context, ad *Ad) error
	Update(ctx context.Context, id ids.ID, mutate func(*Ad) error) (*Ad, error)

	// ActiveProductAds returns servable internal product ads at t
	ActiveProductAds(ctx context.Context, t time.Time) ([]*Ad, error)

	// ActiveBanners returns servable external banners, optionally filtered
	// by slot key and tier; banners without image or link are excluded
	ActiveBanners(ctx context.Context, t time.Time, slotKey, tier string) ([]*Ad, error)
}

// MemoryStore is an in-memory Store guarded by a mutex
type MemoryStore struct {
	mu  sync.RWMutex
	ads map[ids.ID]*Ad
}

// NewMemoryStore creates an empty in-memory ad store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ads: make(map[ids.ID]*Ad)}
}

func (s *MemoryStore) Get(ctx context.Context, id ids.ID) (*Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ad, ok := s.ads[id]
	if !ok {
		return nil, ErrAdNotFound
	}
	cp := *ad
	return &cp, nil
}

func (s *MemoryStore) Put(ctx context.Context, ad *Ad) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ad
	cp.UpdatedAt = time.Now()
	s.ads[ad.ID] = &cp
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id ids.ID, mutate func(*Ad) error) (*Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		return nil, ErrAdNotFound
	}
	if err := mutate(ad); err != nil {
		return nil, err
	}
	ad.UpdatedAt = time.Now()
	cp := *ad
	return &cp, nil
}

func (s *MemoryStore) ActiveProductAds(ctx context.Context, t time.Time) ([]*Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Ad, 0)
	for _, ad := range s.ads {
		if ad.Type != TypeProductInternal || !ad.Servable(t) {
			continue
		}
		cp := *ad
		out = append(out, &cp)
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (s *MemoryStore) ActiveBanners(ctx context.Context, t time.Time, slotKey, tier string) ([]*Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Ad, 0)
	for _, ad := range s.ads {
		if ad.Type != TypeBannerExternal || !ad.Servable(t) {
			continue
		}
		if ad.BannerImage == "" || ad.BannerLink == "" {
			continue
		}
		if slotKey != "" && ad.SlotKey != slotKey {
			continue
		}
		if tier != "" && ad.Tier != tier {
			continue
		}
		cp := *ad
		out = append(out, &cp)
	}
	sortByCreatedDesc(out)
	return out, nil
}

func sortByCreatedDesc(list []*Ad) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.Compare(list[j].ID) < 0
	})
}
