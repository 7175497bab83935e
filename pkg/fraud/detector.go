// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fraud screens ad clicks for abuse before they are counted or
// charged. IP-based screening is a heuristic: visitors behind shared NAT or
// proxy addresses collide, so thresholds are tuned to tolerate a handful of
// legitimate clicks per address. This is a known limitation, not a defect.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metering"
)

// Detection thresholds
const (
	// RapidFireWindow blocks a second click on the same ad from the same
	// address inside this span
	RapidFireWindow = 30 * time.Second

	// MaxClicksPerHour is the valid click ceiling per (ad, address) per hour
	MaxClicksPerHour = 3

	// RapidClickThreshold flags this many clicks per minute as bot traffic
	RapidClickThreshold = 10

	// BlockScore is the fraud score at or above which a click is not charged
	BlockScore = 50

	// SuspendThreshold auto-suspends the ad after this many flagged clicks
	SuspendThreshold = 50
)

// Result is the outcome of a fraud check
type Result struct {
	IsFraud        bool
	IsDuplicate    bool
	Score          int
	Indicators     []string
	ClicksLastHour int
	ShouldSuspend  bool
}

// Blocked reports whether the click must not be counted or charged
func (r *Result) Blocked() bool {
	return r.IsDuplicate || (r.IsFraud && r.Score >= BlockScore)
}

// Detector screens clicks against the metering audit log
type Detector struct {
	enabled bool
	audit   metering.AuditLog
	log     log.Logger
	now     func() time.Time
}

// NewDetector creates a click fraud detector. When disabled every check
// passes, matching the marketplace's development-mode behavior.
func NewDetector(enabled bool, audit metering.AuditLog, logger log.Logger) *Detector {
	return &Detector{
		enabled: enabled,
		audit:   audit,
		log:     logger,
		now:     time.Now,
	}
}

// CheckClick screens one click on an ad from a visitor fingerprint. It runs
// before the click is appended to the audit log, so all queried history is
// prior traffic.
func (d *Detector) CheckClick(ctx context.Context, adID ids.ID, fingerprint string) (*Result, error) {
	if !d.enabled {
		return &Result{}, nil
	}

	now := d.now()

	lastHour, err := d.audit.CountByFingerprint(ctx, adID, fingerprint, metering.KindClick, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}

	// Hourly ceiling per address
	if lastHour >= MaxClicksPerHour {
		return &Result{
			IsFraud:        true,
			Score:          80,
			ClicksLastHour: lastHour,
			Indicators: []string{fmt.Sprintf(
				"exceeded click limit: %d clicks from same address in last hour (limit %d)",
				lastHour, MaxClicksPerHour)},
		}, nil
	}

	// Rapid-fire: same address clicking the same ad again within seconds
	last, ok, err := d.audit.LastByFingerprint(ctx, adID, fingerprint, metering.KindClick)
	if err != nil {
		return nil, err
	}
	if ok && now.Sub(last) < RapidFireWindow {
		return &Result{
			IsFraud:        true,
			IsDuplicate:    true,
			Score:          100,
			ClicksLastHour: lastHour,
			Indicators:     []string{"rapid-fire click from same address within 30 seconds"},
		}, nil
	}

	res := &Result{ClicksLastHour: lastHour}

	lastMinute, err := d.audit.CountByFingerprint(ctx, adID, fingerprint, metering.KindClick, now.Add(-time.Minute))
	if err != nil {
		return nil, err
	}
	if lastMinute >= RapidClickThreshold {
		res.IsFraud = true
		res.Score += 30
		res.Indicators = append(res.Indicators, fmt.Sprintf(
			"rapid clicks from same address: %d clicks in the last minute", lastMinute))
	}

	total, err := d.audit.CountByFingerprint(ctx, adID, fingerprint, metering.KindClick, time.Time{})
	if err != nil {
		return nil, err
	}
	if total >= SuspendThreshold {
		res.ShouldSuspend = true
		res.Indicators = append(res.Indicators, fmt.Sprintf(
			"flagged click volume from one address: %d total clicks", total))
	}

	if res.IsFraud {
		d.log.Warn("click fraud indicators",
			log.String("ad", adID.String()),
			log.String("fingerprint", fingerprint),
			log.Int("score", res.Score))
	}

	return res, nil
}

// Enabled reports whether screening is active
func (d *Detector) Enabled() bool {
	return d.enabled
}
