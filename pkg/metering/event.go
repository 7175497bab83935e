// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"context"
	"sync"
	"time"

	"github.com/nutrinexas/adserve/pkg/ids"
)

// EventKind distinguishes impressions from clicks
type EventKind string

const (
	KindImpression EventKind = "impression"
	KindClick      EventKind = "click"
)

// Event is an immutable metering fact. Counted marks whether the event was
// the first in its dedup window and therefore incremented counters.
type Event struct {
	AdID        ids.ID
	Fingerprint string
	Kind        EventKind
	Timestamp   time.Time
	Counted     bool
}

// AuditLog stores every observed event, counted or not, and answers the
// aggregate queries fraud detection, billing caps and reporting run over it
type AuditLog interface {
	Append(ctx context.Context, ev *Event) error

	// CountByFingerprint counts events for (ad, fingerprint, kind) since a
	// point in time
	CountByFingerprint(ctx context.Context, adID ids.ID, fingerprint string, kind EventKind, since time.Time) (int, error)

	// LastByFingerprint returns the timestamp of the most recent event for
	// (ad, fingerprint, kind); ok is false when none exists
	LastByFingerprint(ctx context.Context, adID ids.ID, fingerprint string, kind EventKind) (time.Time, bool, error)

	// UniqueAds counts distinct ads a fingerprint produced events of kind
	// for since a point in time
	UniqueAds(ctx context.Context, fingerprint string, kind EventKind, since time.Time) (int, error)

	// CountEvents counts all events for (ad, kind) since a point in time;
	// use the zero time for lifetime totals
	CountEvents(ctx context.Context, adID ids.ID, kind EventKind, since time.Time) (int, error)
}

// MemoryAuditLog is an in-memory AuditLog
type MemoryAuditLog struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryAuditLog creates an empty in-memory audit log
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{events: make([]Event, 0)}
}

func (l *MemoryAuditLog) Append(ctx context.Context, ev *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *ev)
	return nil
}

func (l *MemoryAuditLog) CountByFingerprint(ctx context.Context, adID ids.ID, fingerprint string, kind EventKind, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for i := range l.events {
		ev := &l.events[i]
		if ev.AdID == adID && ev.Fingerprint == fingerprint && ev.Kind == kind && !ev.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

func (l *MemoryAuditLog) LastByFingerprint(ctx context.Context, adID ids.ID, fingerprint string, kind EventKind) (time.Time, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var last time.Time
	found := false
	for i := range l.events {
		ev := &l.events[i]
		if ev.AdID == adID && ev.Fingerprint == fingerprint && ev.Kind == kind {
			if !found || ev.Timestamp.After(last) {
				last = ev.Timestamp
				found = true
			}
		}
	}
	return last, found, nil
}

func (l *MemoryAuditLog) UniqueAds(ctx context.Context, fingerprint string, kind EventKind, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[ids.ID]struct{})
	for i := range l.events {
		ev := &l.events[i]
		if ev.Fingerprint == fingerprint && ev.Kind == kind && !ev.Timestamp.Before(since) {
			seen[ev.AdID] = struct{}{}
		}
	}
	return len(seen), nil
}

func (l *MemoryAuditLog) CountEvents(ctx context.Context, adID ids.ID, kind EventKind, since time.Time) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := 0
	for i := range l.events {
		ev := &l.events[i]
		if ev.AdID == adID && ev.Kind == kind && !ev.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}
