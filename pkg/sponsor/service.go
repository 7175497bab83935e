// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sponsor ties the ad engine together: it selects and ranks
// sponsored products for listings, interleaves them with organic results,
// and routes view/click interactions through metering, fraud screening and
// billing.
package sponsor

import (
	"context"
	"errors"
	"time"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/billing"
	"github.com/nutrinexas/adserve/pkg/catalog"
	"github.com/nutrinexas/adserve/pkg/fraud"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metering"
	"github.com/nutrinexas/adserve/pkg/metric"
	"github.com/nutrinexas/adserve/pkg/placement"
	"github.com/nutrinexas/adserve/pkg/ranking"
)

// DefaultSearchLimit caps how many sponsored products one listing may carry
const DefaultSearchLimit = 20

// Service orchestrates ranking, placement, metering and billing
type Service struct {
	store   ads.Store
	catalog catalog.Reader
	engine  *ranking.Engine
	ledger  *metering.Ledger
	billing *billing.Service
	fraud   *fraud.Detector
	log     log.Logger
	metrics *metric.Metrics

	searchLimit int
	now         func() time.Time
}

// NewService wires the engine components together
func NewService(
	store ads.Store,
	cat catalog.Reader,
	engine *ranking.Engine,
	ledger *metering.Ledger,
	bill *billing.Service,
	detector *fraud.Detector,
	logger log.Logger,
	metrics *metric.Metrics,
) *Service {
	return &Service{
		store:       store,
		catalog:     cat,
		engine:      engine,
		ledger:      ledger,
		billing:     bill,
		fraud:       detector,
		log:         logger,
		metrics:     metrics,
		searchLimit: DefaultSearchLimit,
		now:         time.Now,
	}
}

// SetSearchLimit overrides the sponsored supply cap per listing
func (s *Service) SetSearchLimit(limit int) {
	if limit > 0 {
		s.searchLimit = limit
	}
}

// SponsoredForSearch returns the ranked sponsored candidates matching a
// search keyword, best first, capped at limit
func (s *Service) SponsoredForSearch(ctx context.Context, keyword string, limit int) ([]ranking.RankedCandidate, error) {
	return s.sponsoredFor(ctx, ranking.Context{Keyword: keyword, Now: s.now()}, limit)
}

// SponsoredForCategory returns the ranked sponsored candidates for a
// category listing
func (s *Service) SponsoredForCategory(ctx context.Context, category, subtype string, limit int) ([]ranking.RankedCandidate, error) {
	return s.sponsoredFor(ctx, ranking.Context{Category: category, Subtype: subtype, Now: s.now()}, limit)
}

func (s *Service) sponsoredFor(ctx context.Context, rctx ranking.Context, limit int) ([]ranking.RankedCandidate, error) {
	active, err := s.store.ActiveProductAds(ctx, rctx.Now)
	if err != nil {
		return nil, err
	}

	candidates := make([]ranking.Candidate, 0, len(active))
	for _, ad := range active {
		product, err := s.catalog.Product(ctx, ad.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				continue
			}
			return nil, err
		}
		candidates = append(candidates, ranking.Candidate{Ad: ad, Product: product})
	}

	ranked, err := s.engine.Rank(ctx, candidates, rctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SearchListing merges sponsored products into organic search results. Any
// failure selecting or ranking sponsored candidates degrades to the
// organic-only listing; it never fails the request.
func (s *Service) SearchListing(ctx context.Context, keyword string, organic []placement.Entry) []placement.Entry {
	ranked, err := s.SponsoredForSearch(ctx, keyword, s.searchLimit)
	if err != nil {
		s.log.Error("sponsored selection failed, serving organic only",
			log.String("keyword", keyword),
			log.Error(err))
		return organic
	}
	return s.merge(organic, ranked, placement.Interleave)
}

// CategoryListing merges sponsored products into a category listing
func (s *Service) CategoryListing(ctx context.Context, category, subtype string, organic []placement.Entry) []placement.Entry {
	ranked, err := s.SponsoredForCategory(ctx, category, subtype, s.searchLimit)
	if err != nil {
		s.log.Error("sponsored selection failed, serving organic only",
			log.String("category", category),
			log.Error(err))
		return organic
	}
	return s.merge(organic, ranked, placement.InterleaveCategory)
}

func (s *Service) merge(organic []placement.Entry, ranked []ranking.RankedCandidate, interleave func([]placement.Entry, []placement.Entry) []placement.Entry) []placement.Entry {
	if len(ranked) == 0 {
		return organic
	}

	sponsored := make([]placement.Entry, len(ranked))
	for i, rc := range ranked {
		sponsored[i] = placement.Entry{Product: rc.Product, AdID: rc.Ad.ID}
	}

	merged := interleave(organic, sponsored)
	s.metrics.SponsoredInserted.Add(float64(len(merged) - len(organic)))
	return merged
}

// ViewResult reports how a view interaction was handled
type ViewResult struct {
	Outcome metering.Outcome
	Charge  *billing.Charge
}

// LogView meters one ad view and charges it when the metering ledger
// counted it. Banner views are metered only, never billed.
func (s *Service) LogView(ctx context.Context, adID ids.ID, fingerprint string) (*ViewResult, error) {
	ad, err := s.store.Get(ctx, adID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.ledger.RecordEvent(ctx, adID, fingerprint, metering.KindImpression)
	if err != nil {
		return nil, err
	}
	res := &ViewResult{Outcome: outcome}

	if outcome != metering.OutcomeRecorded || ad.Type == ads.TypeBannerExternal {
		return res, nil
	}

	charge, err := s.billing.ChargeEvent(ctx, adID, fingerprint, metering.KindImpression)
	if err != nil {
		return nil, err
	}
	res.Charge = charge
	return res, nil
}

// ClickResult reports how a click interaction was handled
type ClickResult struct {
	Outcome metering.Outcome
	Charge  *billing.Charge
	Fraud   *fraud.Result
	Blocked bool
}

// LogClick screens, meters and charges one ad click. A click blocked by
// fraud screening is neither logged nor charged; a click deduplicated by
// the metering window stays in the audit trail but does not count or
// charge.
func (s *Service) LogClick(ctx context.Context, adID ids.ID, fingerprint string) (*ClickResult, error) {
	ad, err := s.store.Get(ctx, adID)
	if err != nil {
		return nil, err
	}

	check, err := s.fraud.CheckClick(ctx, adID, fingerprint)
	if err != nil {
		return nil, err
	}
	if check.Blocked() {
		s.metrics.ClicksBlocked.Inc()
		if check.ShouldSuspend {
			s.suspend(ctx, adID, check)
		}
		s.log.Warn("click blocked",
			log.String("ad", adID.String()),
			log.Int("score", check.Score))
		return &ClickResult{Fraud: check, Blocked: true}, nil
	}

	outcome, err := s.ledger.RecordEvent(ctx, adID, fingerprint, metering.KindClick)
	if err != nil {
		return nil, err
	}
	res := &ClickResult{Outcome: outcome, Fraud: check}

	if check.ShouldSuspend {
		s.suspend(ctx, adID, check)
		return res, nil
	}

	if outcome != metering.OutcomeRecorded || ad.Type == ads.TypeBannerExternal {
		return res, nil
	}

	charge, err := s.billing.ChargeEvent(ctx, adID, fingerprint, metering.KindClick)
	if err != nil {
		return nil, err
	}
	res.Charge = charge
	return res, nil
}

func (s *Service) suspend(ctx context.Context, adID ids.ID, check *fraud.Result) {
	reason := "click fraud threshold exceeded"
	if len(check.Indicators) > 0 {
		reason = check.Indicators[len(check.Indicators)-1]
	}
	if _, err := s.store.Update(ctx, adID, func(a *ads.Ad) error {
		if a.Status != ads.StatusSuspended {
			a.Suspend(reason)
		}
		return nil
	}); err != nil {
		s.log.Error("suspend failed", log.String("ad", adID.String()), log.Error(err))
		return
	}
	s.metrics.AdsSuspended.Inc()
	s.log.Warn("ad suspended for click fraud", log.String("ad", adID.String()))
}

// Statistics are an ad's reach and click aggregates
type Statistics struct {
	Reach       uint64
	Clicks      uint64
	TotalReach  int
	TotalClicks int
	TodayReach  int
	TodayClicks int
}

// Statistics reports counter values alongside audit-trail aggregates
func (s *Service) Statistics(ctx context.Context, adID ids.ID) (*Statistics, error) {
	ad, err := s.store.Get(ctx, adID)
	if err != nil {
		return nil, err
	}

	audit := s.ledger.Audit()
	startOfDay := s.now().Truncate(24 * time.Hour)

	totalReach, err := audit.CountEvents(ctx, adID, metering.KindImpression, time.Time{})
	if err != nil {
		return nil, err
	}
	totalClicks, err := audit.CountEvents(ctx, adID, metering.KindClick, time.Time{})
	if err != nil {
		return nil, err
	}
	todayReach, err := audit.CountEvents(ctx, adID, metering.KindImpression, startOfDay)
	if err != nil {
		return nil, err
	}
	todayClicks, err := audit.CountEvents(ctx, adID, metering.KindClick, startOfDay)
	if err != nil {
		return nil, err
	}

	return &Statistics{
		Reach:       ad.Reach,
		Clicks:      ad.Clicks,
		TotalReach:  totalReach,
		TotalClicks: totalClicks,
		TodayReach:  todayReach,
		TodayClicks: todayClicks,
	}, nil
}
