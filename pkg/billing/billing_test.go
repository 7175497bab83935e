// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package billing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metering"
	"github.com/nutrinexas/adserve/pkg/metric"
	"github.com/nutrinexas/adserve/pkg/wallet"
)

type fixture struct {
	svc    *Service
	store  ads.Store
	wallet wallet.Wallet
	audit  metering.AuditLog
}

func newFixture(t *testing.T, capEnabled bool) *fixture {
	metrics, err := metric.NewMetrics()
	require.NoError(t, err)

	store := ads.NewMemoryStore()
	w := wallet.NewMemoryWallet()
	audit := metering.NewMemoryAuditLog()
	return &fixture{
		svc:    NewService(store, w, audit, capEnabled, log.NoOp(), metrics),
		store:  store,
		wallet: w,
		audit:  audit,
	}
}

func perClickAd() *ads.Ad {
	now := time.Now()
	return &ads.Ad{
		ID:              ids.GenerateTestID(),
		SellerID:        ids.GenerateTestID(),
		ProductID:       ids.GenerateTestID(),
		Type:            ads.TypeProductInternal,
		Mode:            ads.BillingPerClick,
		BidAmount:       decimal.NewFromInt(500),
		Rate:            decimal.NewFromInt(100),
		DailyBudget:     decimal.NewFromInt(1000),
		LastSpendReset:  now.Truncate(24 * time.Hour),
		RemainingClicks: -1,
		Status:          ads.StatusActive,
		Approved:        true,
		StartDate:       now.Add(-24 * time.Hour),
		EndDate:         now.Add(24 * time.Hour),
		CreatedAt:       now,
	}
}

func (f *fixture) fund(t *testing.T, sellerID ids.ID, amount int64) {
	_, err := f.wallet.Credit(context.Background(), sellerID, decimal.NewFromInt(amount), "top-up")
	require.NoError(t, err)
}

func TestChargeClickDebitsWalletAndSpend(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.True(charge.Charged)
	require.True(charge.Amount.Equal(decimal.NewFromInt(100)))

	balance, err := f.wallet.Balance(ctx, ad.SellerID)
	require.NoError(err)
	require.True(balance.Equal(decimal.NewFromInt(900)))

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.True(got.DailySpend.Equal(decimal.NewFromInt(100)))
	require.Equal(ads.StatusActive, got.Status)
}

func TestChargeSkippedWhenRateExceedsRemainingBudget(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.DailySpend = decimal.NewFromInt(950)
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 10000)

	// Remaining budget is 50, rate is 100: no partial charge of 50
	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.False(charge.Charged)
	require.Equal(ReasonBudgetExhausted, charge.Reason)
	require.True(charge.Amount.IsZero())

	balance, err := f.wallet.Balance(ctx, ad.SellerID)
	require.NoError(err)
	require.True(balance.Equal(decimal.NewFromInt(10000)))

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(ads.StatusPaused, got.Status)
	require.True(got.AutoPaused)
	require.True(got.DailySpend.Equal(decimal.NewFromInt(950)))
}

func TestChargeExactRemainingBudgetPausesAfter(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.DailySpend = decimal.NewFromInt(900)
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	// Remaining budget exactly equals the rate: charge goes through, then
	// the exhausted ad pauses
	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.True(charge.Charged)

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.True(got.DailySpend.Equal(decimal.NewFromInt(1000)))
	require.Equal(ads.StatusPaused, got.Status)
	require.True(got.AutoPaused)
}

// contendedStore injects a competing spend ahead of the first Update, the
// way another replica's charge lands between a pre-check read and the
// row-locked write
type contendedStore struct {
	ads.Store
	spend decimal.Decimal
	once  sync.Once
}

func (s *contendedStore) Update(ctx context.Context, id ids.ID, mutate func(*ads.Ad) error) (*ads.Ad, error) {
	s.once.Do(func() {
		_, _ = s.Store.Update(ctx, id, func(a *ads.Ad) error {
			a.DailySpend = a.DailySpend.Add(s.spend)
			return nil
		})
	})
	return s.Store.Update(ctx, id, mutate)
}

func TestChargeBudgetRevalidatedUnderLock(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	metrics, err := metric.NewMetrics()
	require.NoError(err)

	inner := ads.NewMemoryStore()
	store := &contendedStore{Store: inner, spend: decimal.NewFromInt(100)}
	w := wallet.NewMemoryWallet()
	svc := NewService(store, w, metering.NewMemoryAuditLog(), false, log.NoOp(), metrics)

	ad := perClickAd()
	ad.DailySpend = decimal.NewFromInt(900)
	require.NoError(inner.Put(ctx, ad))
	_, err = w.Credit(ctx, ad.SellerID, decimal.NewFromInt(1000), "top-up")
	require.NoError(err)

	// The pre-check sees 100 of headroom, but the competing spend consumes
	// it before the locked write; the charge must skip and refund, never
	// push spend past the budget
	charge, err := svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.False(charge.Charged)
	require.Equal(ReasonBudgetExhausted, charge.Reason)

	got, err := inner.Get(ctx, ad.ID)
	require.NoError(err)
	require.True(got.DailySpend.Equal(decimal.NewFromInt(1000)))
	require.True(got.DailySpend.LessThanOrEqual(got.DailyBudget))
	require.Equal(ads.StatusPaused, got.Status)
	require.True(got.AutoPaused)

	balance, err := w.Balance(ctx, ad.SellerID)
	require.NoError(err)
	require.True(balance.Equal(decimal.NewFromInt(1000)))
}

func TestChargeInsufficientFundsPauses(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 40)

	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.False(charge.Charged)
	require.Equal(ReasonInsufficientFunds, charge.Reason)

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(ads.StatusPaused, got.Status)

	balance, err := f.wallet.Balance(ctx, ad.SellerID)
	require.NoError(err)
	require.True(balance.Equal(decimal.NewFromInt(40)))
}

func TestChargeBannerNeverBilled(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.Type = ads.TypeBannerExternal
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.False(charge.Charged)
	require.Equal(ReasonNotChargeable, charge.Reason)

	balance, err := f.wallet.Balance(ctx, ad.SellerID)
	require.NoError(err)
	require.True(balance.Equal(decimal.NewFromInt(1000)))
}

func TestChargeModeKindMismatchIsFree(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	// Impressions on a per-click ad cost nothing
	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindImpression)
	require.NoError(err)
	require.False(charge.Charged)
	require.Equal(ReasonNotChargeable, charge.Reason)
}

func TestChargeInactiveAdSkipped(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.Status = ads.StatusPaused
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.False(charge.Charged)
	require.Equal(ReasonAdInactive, charge.Reason)
}

func TestChargeDailySpendResetsNextDay(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.DailySpend = decimal.NewFromInt(1000)
	ad.LastSpendReset = time.Now().Add(-48 * time.Hour).Truncate(24 * time.Hour)
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	// Yesterday's spend saturated the budget, but today is a fresh day
	charge, err := f.svc.ChargeEvent(ctx, ad.ID, "10.0.0.1", metering.KindClick)
	require.NoError(err)
	require.True(charge.Charged)

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.True(got.DailySpend.Equal(decimal.NewFromInt(100)))
}

func TestChargeRemainingClicksExhaust(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.DailyBudget = decimal.Zero
	ad.RemainingClicks = 2
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 10000)

	for i := 0; i < 2; i++ {
		charge, err := f.svc.ChargeEvent(ctx, ad.ID, fmt.Sprintf("10.0.0.%d", i), metering.KindClick)
		require.NoError(err)
		require.True(charge.Charged)
	}

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(0, got.RemainingClicks)
	require.Equal(ads.StatusPaused, got.Status)
}

func TestChargeIPDailyCap(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, true)
	f.svc.SetIPDailyCap(2)

	const fp = "10.0.0.1"
	seller := ids.GenerateTestID()
	f.fund(t, seller, 100000)

	charged := 0
	for i := 0; i < 3; i++ {
		ad := perClickAd()
		ad.SellerID = seller
		require.NoError(f.store.Put(ctx, ad))

		// The metering ledger appends the audit event before billing runs
		require.NoError(f.audit.Append(ctx, &metering.Event{
			AdID:        ad.ID,
			Fingerprint: fp,
			Kind:        metering.KindClick,
			Timestamp:   time.Now(),
			Counted:     true,
		}))

		charge, err := f.svc.ChargeEvent(ctx, ad.ID, fp, metering.KindClick)
		require.NoError(err)
		if i < 2 {
			require.True(charge.Charged)
			charged++
		} else {
			require.False(charge.Charged)
			require.Equal(ReasonIPCapExceeded, charge.Reason)
		}
	}
	require.Equal(2, charged)
}

func TestResume(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	ad.Status = ads.StatusPaused
	ad.AutoPaused = true
	require.NoError(f.store.Put(ctx, ad))

	// Unfunded seller cannot resume
	_, err := f.svc.Resume(ctx, ad.ID)
	require.ErrorIs(err, wallet.ErrInsufficientFunds)

	f.fund(t, ad.SellerID, 1000)
	resumed, err := f.svc.Resume(ctx, ad.ID)
	require.NoError(err)
	require.Equal(ads.StatusActive, resumed.Status)
	require.False(resumed.AutoPaused)
}

func TestResumeRequiresAutoPause(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	require.NoError(f.store.Put(ctx, ad))

	_, err := f.svc.Resume(ctx, ad.ID)
	require.ErrorIs(err, ErrNotAutoPaused)
}

func TestCanShow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	f := newFixture(t, false)
	ad := perClickAd()
	require.NoError(f.store.Put(ctx, ad))
	f.fund(t, ad.SellerID, 1000)

	ok, _, err := f.svc.CanShow(ctx, ad.ID)
	require.NoError(err)
	require.True(ok)

	// Exhaust the budget: the ad is no longer offered and auto-pauses
	_, err = f.store.Update(ctx, ad.ID, func(a *ads.Ad) error {
		a.DailySpend = decimal.NewFromInt(950)
		return nil
	})
	require.NoError(err)

	ok, reason, err := f.svc.CanShow(ctx, ad.ID)
	require.NoError(err)
	require.False(ok)
	require.Equal(ReasonBudgetExhausted, reason)

	got, err := f.store.Get(ctx, ad.ID)
	require.NoError(err)
	require.True(got.AutoPaused)
}
