// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package banner serves external banner ads. Banners are sold per slot in
// fixed tiers, rotate randomly among the slot's eligible ads, and are
// metered for reach but never billed per event.
package banner

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/log"
)

var (
	ErrUnknownSlot = errors.New("unknown banner slot")
	ErrNoBanner    = errors.New("no eligible banner for slot")
)

// Display time bounds for the rotating hero strip, in seconds
const (
	minDisplaySeconds = 30
	maxDisplaySeconds = 300
)

// Placement is a banner selected for rendering
type Placement struct {
	Ad             *ads.Ad
	DisplaySeconds int
}

// Service selects banners for slots and the rotating strip
type Service struct {
	ads ads.Store
	rng *rand.Rand
	log log.Logger
	now func() time.Time
}

// NewService creates a banner service. seed fixes rotation for tests; pass
// 0 for time-seeded rotation.
func NewService(store ads.Store, seed int64, logger log.Logger) *Service {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Service{
		ads: store,
		rng: rand.New(rand.NewSource(seed)),
		log: logger,
		now: time.Now,
	}
}

// BannerForSlot returns one banner for the slot, chosen uniformly among the
// slot's eligible ads of the slot's tier. Pure rotation, no bid ordering:
// every paid banner in a slot gets equal exposure.
func (s *Service) BannerForSlot(ctx context.Context, slotKey string) (*ads.Ad, error) {
	slot, ok := SlotByKey(slotKey)
	if !ok {
		return nil, ErrUnknownSlot
	}

	banners, err := s.ads.ActiveBanners(ctx, s.now(), slotKey, slot.Tier)
	if err != nil {
		return nil, err
	}
	if len(banners) == 0 {
		return nil, ErrNoBanner
	}

	return banners[s.rng.Intn(len(banners))], nil
}

// RotationStrip returns the highest-bidding banners for the rotating hero
// strip, each with its bid-derived display time
func (s *Service) RotationStrip(ctx context.Context, limit int) ([]Placement, error) {
	banners, err := s.ads.ActiveBanners(ctx, s.now(), "", "")
	if err != nil {
		return nil, err
	}

	sortByBidDesc(banners)
	if limit > 0 && len(banners) > limit {
		banners = banners[:limit]
	}

	placements := make([]Placement, len(banners))
	for i, b := range banners {
		placements[i] = Placement{
			Ad:             b,
			DisplaySeconds: DisplaySeconds(b.BidAmount),
		}
	}
	return placements, nil
}

// DisplaySeconds converts a bid into strip display time: one minute per 100
// of bid, clamped to [30s, 5m]
func DisplaySeconds(bid decimal.Decimal) int {
	seconds := bid.Div(decimal.NewFromInt(100)).Mul(decimal.NewFromInt(60))
	val := int(seconds.IntPart())
	if val < minDisplaySeconds {
		return minDisplaySeconds
	}
	if val > maxDisplaySeconds {
		return maxDisplaySeconds
	}
	return val
}

func sortByBidDesc(banners []*ads.Ad) {
	sort.SliceStable(banners, func(i, j int) bool {
		cmp := banners[i].BidAmount.Cmp(banners[j].BidAmount)
		if cmp != 0 {
			return cmp > 0
		}
		return banners[i].CreatedAt.After(banners[j].CreatedAt)
	})
}
