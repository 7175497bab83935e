// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ranking orders sponsored candidates for a single request. Scores
// combine the bid with product quality signals, each min-max normalized
// over the candidate set, so rankings are comparable within one request but
// legitimately drift between requests as bids and stats change.
package ranking

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/catalog"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metric"
)

var ErrInvalidCandidateSet = errors.New("invalid candidate set")

// Weights configure the composite score. They are tunable policy, not code.
type Weights struct {
	Bid     float64
	Rating  float64
	Sales   float64
	Recency float64
}

// DefaultWeights favor the bid while letting quality signals break through
func DefaultWeights() Weights {
	return Weights{Bid: 0.5, Rating: 0.2, Sales: 0.2, Recency: 0.1}
}

// Candidate pairs an ad with the product it promotes
type Candidate struct {
	Ad      *ads.Ad
	Product *catalog.Product
}

// RankedCandidate is a candidate with its request-scoped score
type RankedCandidate struct {
	Candidate
	Score float64
}

// Context carries the listing context eligibility is judged against
type Context struct {
	Keyword  string
	Category string
	Subtype  string
	Now      time.Time
}

// Eligibility is the CanShow hook billing contributes: a final wallet and
// budget check before a candidate is offered a slot
type Eligibility func(ctx context.Context, c Candidate) bool

// Engine filters and scores sponsored candidates
type Engine struct {
	weights  Weights
	eligible Eligibility
	log      log.Logger
	metrics  *metric.Metrics
}

// NewEngine creates a ranking engine. eligible may be nil when no external
// funding check applies.
func NewEngine(weights Weights, eligible Eligibility, logger log.Logger, metrics *metric.Metrics) *Engine {
	return &Engine{
		weights:  weights,
		eligible: eligible,
		log:      logger,
		metrics:  metrics,
	}
}

// Rank filters candidates for eligibility, scores the survivors and returns
// them ordered best first. An empty candidate set returns an empty slice,
// never an error; a malformed set (nil ad or product) is rejected.
func (e *Engine) Rank(ctx context.Context, candidates []Candidate, rctx Context) ([]RankedCandidate, error) {
	start := time.Now()
	defer func() {
		e.metrics.RankingDuration.Observe(time.Since(start).Seconds())
	}()

	for _, c := range candidates {
		if c.Ad == nil || c.Product == nil {
			return nil, ErrInvalidCandidateSet
		}
	}

	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !e.isEligible(ctx, c, rctx) {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return []RankedCandidate{}, nil
	}

	ranked := e.ScoreCandidates(eligible)
	e.metrics.CandidatesScored.Add(float64(len(ranked)))
	return ranked, nil
}

// isEligible applies the pre-filter: servable ad, active product, context
// match, and the external funding check when configured
func (e *Engine) isEligible(ctx context.Context, c Candidate, rctx Context) bool {
	now := rctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	if c.Ad.Type != ads.TypeProductInternal || !c.Ad.Servable(now) {
		return false
	}
	if !c.Product.Active {
		return false
	}
	switch {
	case rctx.Keyword != "":
		if !c.Product.MatchesKeyword(rctx.Keyword) {
			return false
		}
	case rctx.Category != "":
		if !c.Product.MatchesCategory(rctx.Category, rctx.Subtype) {
			return false
		}
	}
	if e.eligible != nil && !e.eligible(ctx, c) {
		return false
	}
	return true
}

// ScoreCandidates computes the composite score for each candidate and
// returns them ordered by score descending. Ties break on higher raw bid,
// then lower ad ID, so the ordering is fully deterministic.
func (e *Engine) ScoreCandidates(candidates []Candidate) []RankedCandidate {
	if len(candidates) == 0 {
		return []RankedCandidate{}
	}

	bids := make([]float64, len(candidates))
	ratings := make([]float64, len(candidates))
	sales := make([]float64, len(candidates))
	recency := make([]float64, len(candidates))
	for i, c := range candidates {
		bids[i], _ = c.Ad.BidAmount.Float64()
		ratings[i] = c.Product.Rating
		sales[i] = float64(c.Product.MonthlySales)
		recency[i] = float64(c.Ad.CreatedAt.Unix())
	}

	normBid := minMaxNormalize(bids)
	normRating := minMaxNormalize(ratings)
	normSales := minMaxNormalize(sales)
	normRecency := minMaxNormalize(recency)

	ranked := make([]RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedCandidate{
			Candidate: c,
			Score: normBid[i]*e.weights.Bid +
				normRating[i]*e.weights.Rating +
				normSales[i]*e.weights.Sales +
				normRecency[i]*e.weights.Recency,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		cmp := ranked[i].Ad.BidAmount.Cmp(ranked[j].Ad.BidAmount)
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].Ad.ID.Compare(ranked[j].Ad.ID) < 0
	})

	return ranked
}

// minMaxNormalize scales values into [0,1] relative to the set. When every
// value is equal the signal carries no information and everyone gets 1.
func minMaxNormalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}
