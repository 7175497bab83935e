// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package billing debits seller wallets for chargeable ad events and
// enforces daily budgets and per-address caps. Charging is all-or-nothing:
// the wallet debit, the daily-spend increment and any auto-pause happen
// together or not at all. When a charge would push an ad past its remaining
// daily budget the charge is skipped entirely and the ad auto-paused; ads
// are never partially charged.
package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metering"
	"github.com/nutrinexas/adserve/pkg/metric"
	"github.com/nutrinexas/adserve/pkg/wallet"
)

var (
	ErrBudgetExhausted = errors.New("daily budget exhausted")
	ErrIPCapExceeded   = errors.New("per-address daily ad cap exceeded")
	ErrNotAutoPaused   = errors.New("ad is not auto-paused")
)

// DefaultIPDailyCap is the number of distinct ads one address may produce
// chargeable clicks for per day
const DefaultIPDailyCap = 10

// SkipReason explains why a charge was not applied
type SkipReason string

const (
	ReasonAdInactive        SkipReason = "ad_inactive"
	ReasonNotChargeable     SkipReason = "not_chargeable"
	ReasonBudgetExhausted   SkipReason = "budget_exhausted"
	ReasonInsufficientFunds SkipReason = "insufficient_funds"
	ReasonIPCapExceeded     SkipReason = "ip_cap_exceeded"
	ReasonClicksExhausted   SkipReason = "clicks_exhausted"
)

// Charge is the outcome of a charge attempt
type Charge struct {
	Charged bool
	Amount  decimal.Decimal
	Reason  SkipReason
}

func skipped(reason SkipReason) *Charge {
	return &Charge{Reason: reason, Amount: decimal.Zero}
}

// Service debits seller wallets for metered events
type Service struct {
	mu sync.Mutex

	ads     ads.Store
	wallet  wallet.Wallet
	audit   metering.AuditLog
	log     log.Logger
	metrics *metric.Metrics

	capEnabled bool
	ipDailyCap int
	now        func() time.Time
}

// NewService creates a billing service. capEnabled gates the per-address
// daily cap the same way the marketplace's IP-limit flag does.
func NewService(store ads.Store, w wallet.Wallet, audit metering.AuditLog, capEnabled bool, logger log.Logger, metrics *metric.Metrics) *Service {
	return &Service{
		ads:        store,
		wallet:     w,
		audit:      audit,
		log:        logger,
		metrics:    metrics,
		capEnabled: capEnabled,
		ipDailyCap: DefaultIPDailyCap,
		now:        time.Now,
	}
}

// SetIPDailyCap overrides the per-address daily unique-ad cap
func (s *Service) SetIPDailyCap(cap int) {
	if cap > 0 {
		s.ipDailyCap = cap
	}
}

// ChargeEvent charges one accepted metering event. Callers must only invoke
// it for events the metering ledger recorded as counted; dedup of repeat
// events within the window happens there, which is what makes this call
// idempotent per underlying interaction.
func (s *Service) ChargeEvent(ctx context.Context, adID ids.ID, fingerprint string, kind metering.EventKind) (*Charge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, err := s.ads.Get(ctx, adID)
	if err != nil {
		return nil, err
	}

	now := s.now()

	if ad.Type == ads.TypeBannerExternal {
		// Banners are sold per slot, never billed per event
		return skipped(ReasonNotChargeable), nil
	}

	if !ad.Servable(now) {
		return s.skip(ReasonAdInactive), nil
	}

	if ad.ResetDailySpendIfNeeded(now) {
		if ad, err = s.ads.Update(ctx, adID, func(a *ads.Ad) error {
			a.ResetDailySpendIfNeeded(now)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	if !ad.Mode.Chargeable() {
		return s.skip(ReasonNotChargeable), nil
	}

	// Impression events charge per-impression ads, click events per-click
	// ads; the other combination is free by definition.
	switch {
	case kind == metering.KindClick && ad.Mode != ads.BillingPerClick:
		return s.skip(ReasonNotChargeable), nil
	case kind == metering.KindImpression && ad.Mode != ads.BillingPerImpression:
		return s.skip(ReasonNotChargeable), nil
	}

	if kind == metering.KindClick && s.capEnabled {
		startOfDay := now.Truncate(24 * time.Hour)
		unique, err := s.audit.UniqueAds(ctx, fingerprint, metering.KindClick, startOfDay)
		if err != nil {
			return nil, err
		}
		// The current click is already in the audit log, so it is part of
		// the count.
		if unique > s.ipDailyCap {
			s.log.Warn("address exceeded daily ad cap",
				log.String("fingerprint", fingerprint),
				log.Int("unique_ads", unique))
			return s.skip(ReasonIPCapExceeded), nil
		}
	}

	rate := ad.Rate
	if !rate.IsPositive() {
		return s.skip(ReasonNotChargeable), nil
	}

	if kind == metering.KindClick && ad.RemainingClicks == 0 {
		s.autoPause(ctx, adID, "all clicks exhausted")
		return s.skip(ReasonClicksExhausted), nil
	}

	if ad.DailyBudget.IsPositive() && rate.GreaterThan(ad.RemainingBudget()) {
		s.autoPause(ctx, adID, "daily budget exhausted")
		return s.skip(ReasonBudgetExhausted), nil
	}

	balance, err := s.wallet.Balance(ctx, ad.SellerID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(rate) {
		s.autoPause(ctx, adID, "insufficient wallet balance")
		return s.skip(ReasonInsufficientFunds), nil
	}

	entry, err := s.wallet.Debit(ctx, ad.SellerID, rate, "Ad "+adID.String()+" - "+string(kind)+" charge")
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			s.autoPause(ctx, adID, "insufficient wallet balance")
			return s.skip(ReasonInsufficientFunds), nil
		}
		return nil, err
	}

	if _, err := s.ads.Update(ctx, adID, func(a *ads.Ad) error {
		// Re-validate under the row lock: another replica may have spent
		// against the same budget since the pre-check read the ad.
		a.ResetDailySpendIfNeeded(now)
		if a.DailyBudget.IsPositive() && rate.GreaterThan(a.RemainingBudget()) {
			return ErrBudgetExhausted
		}
		a.DailySpend = a.DailySpend.Add(rate)
		if kind == metering.KindClick && a.RemainingClicks > 0 {
			a.RemainingClicks--
			if a.RemainingClicks == 0 {
				a.AutoPause("all clicks exhausted")
			}
		}
		if a.DailyBudget.IsPositive() && !a.DailySpend.LessThan(a.DailyBudget) {
			a.AutoPause("daily budget exhausted")
		}
		return nil
	}); err != nil {
		// Roll the debit back so wallet and spend never diverge
		if _, cerr := s.wallet.Credit(ctx, ad.SellerID, rate, "Ad "+adID.String()+" - charge reversal"); cerr != nil {
			s.log.Error("charge reversal failed",
				log.String("ad", adID.String()),
				log.Error(cerr))
		}
		if errors.Is(err, ErrBudgetExhausted) {
			s.autoPause(ctx, adID, "daily budget exhausted")
			return s.skip(ReasonBudgetExhausted), nil
		}
		return nil, err
	}

	amount, _ := rate.Float64()
	s.metrics.ChargesApplied.Inc()
	s.metrics.RevenueCharged.Add(amount)
	s.log.Debug("event charged",
		log.String("ad", adID.String()),
		log.String("entry", entry.ID),
		log.String("amount", rate.String()))

	return &Charge{Charged: true, Amount: rate}, nil
}

// CanShow re-validates an ad before it is offered a sponsored slot: it must
// be servable and its seller able to fund at least one chargeable event.
// Budget or balance exhaustion auto-pauses the ad as a side effect.
func (s *Service) CanShow(ctx context.Context, adID ids.ID) (bool, SkipReason, error) {
	ad, err := s.ads.Get(ctx, adID)
	if err != nil {
		if errors.Is(err, ads.ErrAdNotFound) {
			return false, ReasonAdInactive, nil
		}
		return false, "", err
	}

	now := s.now()
	if !ad.Servable(now) {
		return false, ReasonAdInactive, nil
	}

	if ad.ResetDailySpendIfNeeded(now) {
		if ad, err = s.ads.Update(ctx, adID, func(a *ads.Ad) error {
			a.ResetDailySpendIfNeeded(now)
			return nil
		}); err != nil {
			return false, "", err
		}
	}

	if !ad.Mode.Chargeable() {
		// Fixed-bid campaigns are prepaid; nothing left to validate
		return true, "", nil
	}

	if !ad.Rate.IsPositive() {
		return false, ReasonNotChargeable, nil
	}
	if ad.DailyBudget.IsPositive() && ad.Rate.GreaterThan(ad.RemainingBudget()) {
		s.autoPause(ctx, adID, "daily budget exhausted")
		return false, ReasonBudgetExhausted, nil
	}

	balance, err := s.wallet.Balance(ctx, ad.SellerID)
	if err != nil {
		return false, "", err
	}
	if balance.LessThan(ad.Rate) {
		s.autoPause(ctx, adID, "insufficient wallet balance")
		return false, ReasonInsufficientFunds, nil
	}

	return true, "", nil
}

// Resume clears an auto-pause after re-checking the seller can fund the ad
func (s *Service) Resume(ctx context.Context, adID ids.ID) (*ads.Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, err := s.ads.Get(ctx, adID)
	if err != nil {
		return nil, err
	}
	if !ad.AutoPaused {
		return nil, ErrNotAutoPaused
	}

	if ad.Mode.Chargeable() {
		balance, err := s.wallet.Balance(ctx, ad.SellerID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(ad.Rate) {
			return nil, wallet.ErrInsufficientFunds
		}
	}

	resumed, err := s.ads.Update(ctx, adID, func(a *ads.Ad) error {
		a.Status = ads.StatusActive
		a.AutoPaused = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("ad resumed", log.String("ad", adID.String()))
	return resumed, nil
}

func (s *Service) skip(reason SkipReason) *Charge {
	s.metrics.ChargesSkipped.WithLabelValues(string(reason)).Inc()
	return skipped(reason)
}

func (s *Service) autoPause(ctx context.Context, adID ids.ID, reason string) {
	if _, err := s.ads.Update(ctx, adID, func(a *ads.Ad) error {
		if a.Status == ads.StatusActive {
			a.AutoPause(reason)
		}
		return nil
	}); err != nil {
		s.log.Error("auto-pause failed", log.String("ad", adID.String()), log.Error(err))
		return
	}
	s.metrics.AdsAutoPaused.Inc()
	s.log.Info("ad auto-paused",
		log.String("ad", adID.String()),
		log.String("reason", reason))
}
