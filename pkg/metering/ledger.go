// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metering records ad impressions and clicks exactly once per
// visitor per rolling window. Every observed event lands in the audit log;
// only the first occurrence inside the window increments the ad's
// denormalized counters or reaches billing.
package metering

import (
	"context"
	"errors"
	"time"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metric"
)

// DefaultWindow is the rolling dedup window for reach and click counting
const DefaultWindow = 24 * time.Hour

// Outcome is the result of recording an event
type Outcome int

const (
	// OutcomeRecorded means the event counted and is eligible for billing
	OutcomeRecorded Outcome = iota
	// OutcomeDeduplicated means the event was audit-logged only
	OutcomeDeduplicated
	// OutcomeRejected means the event was dropped, e.g. unknown ad
	OutcomeRejected
	// OutcomeDegraded means the audit store was unavailable; the event is
	// uncounted and unbilled but the interaction itself succeeded
	OutcomeDegraded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeDeduplicated:
		return "deduplicated"
	case OutcomeDegraded:
		return "degraded"
	default:
		return "rejected"
	}
}

// Ledger meters impression and click events against the dedup window
type Ledger struct {
	ads     ads.Store
	window  WindowStore
	audit   AuditLog
	span    time.Duration
	log     log.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

// NewLedger creates a metering ledger with the default 24h window
func NewLedger(store ads.Store, window WindowStore, audit AuditLog, logger log.Logger, metrics *metric.Metrics) *Ledger {
	return &Ledger{
		ads:     store,
		window:  window,
		audit:   audit,
		span:    DefaultWindow,
		log:     logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetWindow overrides the dedup window span
func (l *Ledger) SetWindow(span time.Duration) {
	if span > 0 {
		l.span = span
	}
}

// RecordEvent meters one observed interaction. The first event per
// (ad, fingerprint, kind) inside the window is counted and increments the
// ad's reach or click counter; later ones are audit-logged only. A missing
// ad yields OutcomeRejected with ads.ErrAdNotFound. An audit store outage
// yields OutcomeDegraded with no error: the interaction stays uncounted,
// and its window key is released so a retry can count once storage is back.
func (l *Ledger) RecordEvent(ctx context.Context, adID ids.ID, fingerprint string, kind EventKind) (Outcome, error) {
	if _, err := l.ads.Get(ctx, adID); err != nil {
		if errors.Is(err, ads.ErrAdNotFound) {
			l.metrics.EventsRejected.Inc()
			l.log.Debug("event dropped, ad not found", log.String("ad", adID.String()))
			return OutcomeRejected, ads.ErrAdNotFound
		}
		return OutcomeRejected, err
	}

	key := adID.String() + ":" + fingerprint + ":" + string(kind)
	seen, err := l.window.SeenAndRecord(ctx, key, l.span)
	if err != nil {
		return OutcomeRejected, err
	}

	ev := &Event{
		AdID:        adID,
		Fingerprint: fingerprint,
		Kind:        kind,
		Timestamp:   l.now(),
		Counted:     !seen,
	}
	if err := l.appendWithRetry(ctx, ev); err != nil {
		// The user-visible interaction proceeds uncounted rather than
		// failing the request. Release the window key, otherwise a retried
		// genuine interaction would be deduplicated against an event that
		// was never persisted.
		if !seen {
			if ferr := l.window.Forget(ctx, key); ferr != nil {
				l.log.Error("window release failed",
					log.String("ad", adID.String()),
					log.Error(ferr))
			}
		}
		l.metrics.EventsDegraded.Inc()
		l.log.Error("audit write failed after retry",
			log.String("ad", adID.String()),
			log.Error(err))
		return OutcomeDegraded, nil
	}

	if seen {
		l.metrics.EventsDeduplicated.WithLabelValues(string(kind)).Inc()
		return OutcomeDeduplicated, nil
	}

	if _, err := l.ads.Update(ctx, adID, func(ad *ads.Ad) error {
		switch kind {
		case KindClick:
			ad.Clicks++
		default:
			ad.Reach++
		}
		return nil
	}); err != nil {
		return OutcomeRejected, err
	}

	switch kind {
	case KindClick:
		l.metrics.ClicksRecorded.Inc()
	default:
		l.metrics.ImpressionsRecorded.Inc()
	}

	return OutcomeRecorded, nil
}

func (l *Ledger) appendWithRetry(ctx context.Context, ev *Event) error {
	if err := l.audit.Append(ctx, ev); err == nil {
		return nil
	}
	return l.audit.Append(ctx, ev)
}

// Audit exposes the underlying audit log for fraud checks and reporting
func (l *Ledger) Audit() AuditLog {
	return l.audit
}
