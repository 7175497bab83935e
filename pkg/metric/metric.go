// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the ad engine
type Metrics struct {
	registry *prometheus.Registry

	// Metering metrics
	ImpressionsRecorded prometheus.Counter
	ClicksRecorded      prometheus.Counter
	EventsDeduplicated  *prometheus.CounterVec
	EventsRejected      prometheus.Counter
	EventsDegraded      prometheus.Counter

	// Billing metrics
	ChargesApplied prometheus.Counter
	ChargesSkipped *prometheus.CounterVec
	RevenueCharged prometheus.Counter
	AdsAutoPaused  prometheus.Counter

	// Fraud metrics
	ClicksBlocked prometheus.Counter
	AdsSuspended  prometheus.Counter

	// Ranking and placement metrics
	CandidatesScored  prometheus.Counter
	SponsoredInserted prometheus.Counter
	RankingDuration   prometheus.Histogram

	// API metrics
	RequestsProcessed *prometheus.CounterVec
}

// NewMetrics creates a new metrics instance on its own registry
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ImpressionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "impressions_recorded_total",
			Help:      "Total number of counted ad impressions",
		}),
		ClicksRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "clicks_recorded_total",
			Help:      "Total number of counted ad clicks",
		}),
		EventsDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "events_deduplicated_total",
			Help:      "Total number of metering events suppressed by the dedup window",
		}, []string{"kind"}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "events_rejected_total",
			Help:      "Total number of metering events dropped for unknown ads",
		}),
		EventsDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "events_degraded_total",
			Help:      "Total number of interactions left uncounted after audit write failures",
		}),

		ChargesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "charges_applied_total",
			Help:      "Total number of billing charges applied",
		}),
		ChargesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "charges_skipped_total",
			Help:      "Total number of billing charges skipped by reason",
		}, []string{"reason"}),
		RevenueCharged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "revenue_charged_total",
			Help:      "Total amount charged to seller wallets",
		}),
		AdsAutoPaused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "ads_auto_paused_total",
			Help:      "Total number of ads auto-paused by billing enforcement",
		}),

		ClicksBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "fraud_clicks_blocked_total",
			Help:      "Total number of clicks blocked by fraud detection",
		}),
		AdsSuspended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "fraud_ads_suspended_total",
			Help:      "Total number of ads suspended for click fraud",
		}),

		CandidatesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "ranking_candidates_scored_total",
			Help:      "Total number of sponsored candidates scored",
		}),
		SponsoredInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "placement_sponsored_inserted_total",
			Help:      "Total number of sponsored items interleaved into listings",
		}),
		RankingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adserve",
			Name:      "ranking_duration_seconds",
			Help:      "Time to filter, score and order sponsored candidates",
			Buckets:   prometheus.DefBuckets,
		}),

		RequestsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adserve",
			Name:      "api_requests_processed_total",
			Help:      "Total number of API requests processed",
		}, []string{"method", "status"}),
	}

	collectors := []prometheus.Collector{
		m.ImpressionsRecorded,
		m.ClicksRecorded,
		m.EventsDeduplicated,
		m.EventsRejected,
		m.EventsDegraded,
		m.ChargesApplied,
		m.ChargesSkipped,
		m.RevenueCharged,
		m.AdsAutoPaused,
		m.ClicksBlocked,
		m.AdsSuspended,
		m.CandidatesScored,
		m.SponsoredInserted,
		m.RankingDuration,
		m.RequestsProcessed,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultRegisterer
}
