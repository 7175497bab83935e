// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package banner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
)

func bannerAd(slotKey, tier string, bid int64) *ads.Ad {
	now := time.Now()
	return &ads.Ad{
		ID:          ids.GenerateTestID(),
		SellerID:    ids.GenerateTestID(),
		Type:        ads.TypeBannerExternal,
		Mode:        ads.BillingFixedBid,
		BidAmount:   decimal.NewFromInt(bid),
		Status:      ads.StatusActive,
		Approved:    true,
		StartDate:   now.Add(-24 * time.Hour),
		EndDate:     now.Add(6 * 24 * time.Hour),
		CreatedAt:   now,
		SlotKey:     slotKey,
		Tier:        tier,
		BannerImage: "https://cdn.example.com/banner.png",
		BannerLink:  "https://example.com",
	}
}

func TestBannerForSlot(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := ads.NewMemoryStore()
	ad := bannerAd("slot_home_top", "tier1", 10000)
	require.NoError(store.Put(ctx, ad))

	svc := NewService(store, 1, log.NoOp())

	got, err := svc.BannerForSlot(ctx, "slot_home_top")
	require.NoError(err)
	require.Equal(ad.ID, got.ID)
}

func TestBannerForSlotUnknown(t *testing.T) {
	require := require.New(t)

	svc := NewService(ads.NewMemoryStore(), 1, log.NoOp())

	_, err := svc.BannerForSlot(context.Background(), "slot_bogus")
	require.ErrorIs(err, ErrUnknownSlot)
}

func TestBannerForSlotEmpty(t *testing.T) {
	require := require.New(t)

	svc := NewService(ads.NewMemoryStore(), 1, log.NoOp())

	_, err := svc.BannerForSlot(context.Background(), "slot_home_top")
	require.ErrorIs(err, ErrNoBanner)
}

func TestBannerForSlotIgnoresOtherSlots(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := ads.NewMemoryStore()
	require.NoError(store.Put(ctx, bannerAd("slot_search_top", "tier1", 10000)))

	svc := NewService(store, 1, log.NoOp())

	_, err := svc.BannerForSlot(ctx, "slot_home_top")
	require.ErrorIs(err, ErrNoBanner)
}

func TestRotationStripBidOrder(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := ads.NewMemoryStore()
	low := bannerAd("slot_home_top", "tier1", 2500)
	high := bannerAd("slot_search_top", "tier1", 10000)
	mid := bannerAd("slot_home_mid", "tier2", 5000)
	for _, b := range []*ads.Ad{low, high, mid} {
		require.NoError(store.Put(ctx, b))
	}

	svc := NewService(store, 1, log.NoOp())

	strip, err := svc.RotationStrip(ctx, 0)
	require.NoError(err)
	require.Len(strip, 3)
	require.Equal(high.ID, strip[0].Ad.ID)
	require.Equal(mid.ID, strip[1].Ad.ID)
	require.Equal(low.ID, strip[2].Ad.ID)
}

func TestRotationStripLimit(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := ads.NewMemoryStore()
	require.NoError(store.Put(ctx, bannerAd("slot_home_top", "tier1", 10000)))
	require.NoError(store.Put(ctx, bannerAd("slot_search_top", "tier1", 5000)))

	svc := NewService(store, 1, log.NoOp())

	strip, err := svc.RotationStrip(ctx, 1)
	require.NoError(err)
	require.Len(strip, 1)
}

func TestDisplaySeconds(t *testing.T) {
	require := require.New(t)

	// One minute per 100 of bid
	require.Equal(60, DisplaySeconds(decimal.NewFromInt(100)))
	require.Equal(120, DisplaySeconds(decimal.NewFromInt(200)))

	// Clamped to [30s, 5m]
	require.Equal(30, DisplaySeconds(decimal.NewFromInt(10)))
	require.Equal(30, DisplaySeconds(decimal.Zero))
	require.Equal(300, DisplaySeconds(decimal.NewFromInt(100000)))
}

func TestTiersAndSlots(t *testing.T) {
	require := require.New(t)

	tier, ok := Tiers["tier1"]
	require.True(ok)
	require.True(tier.Price.Equal(decimal.NewFromInt(10000)))
	require.Equal(7, tier.DurationDays)

	slot, ok := SlotByKey("slot_home_top")
	require.True(ok)
	require.Equal("tier1", slot.Tier)

	_, ok = SlotByKey("slot_bogus")
	require.False(ok)
}
