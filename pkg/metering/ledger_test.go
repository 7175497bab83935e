// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metric"
)

func testAd() *ads.Ad {
	now := time.Now()
	return &ads.Ad{
		ID:              ids.GenerateTestID(),
		SellerID:        ids.GenerateTestID(),
		ProductID:       ids.GenerateTestID(),
		Type:            ads.TypeProductInternal,
		Mode:            ads.BillingPerClick,
		BidAmount:       decimal.NewFromInt(100),
		Rate:            decimal.NewFromInt(10),
		RemainingClicks: -1,
		Status:          ads.StatusActive,
		Approved:        true,
		StartDate:       now.Add(-24 * time.Hour),
		EndDate:         now.Add(24 * time.Hour),
		CreatedAt:       now,
	}
}

func newTestLedger(t *testing.T) (*Ledger, ads.Store) {
	metrics, err := metric.NewMetrics()
	require.NoError(t, err)

	store := ads.NewMemoryStore()
	ledger := NewLedger(store, NewMemoryWindowStore(), NewMemoryAuditLog(), log.NoOp(), metrics)
	return ledger, store
}

func TestRecordEventCountsOncePerWindow(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	ledger, store := newTestLedger(t)
	ad := testAd()
	require.NoError(store.Put(ctx, ad))

	outcome, err := ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	outcome, err = ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeDeduplicated, outcome)

	got, err := store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(1), got.Reach)

	// Both observations, counted or not, land in the audit log
	total, err := ledger.Audit().CountEvents(ctx, ad.ID, KindImpression, time.Time{})
	require.NoError(err)
	require.Equal(2, total)
}

func TestRecordEventDistinctFingerprints(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	ledger, store := newTestLedger(t)
	ad := testAd()
	require.NoError(store.Put(ctx, ad))

	for _, fp := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		outcome, err := ledger.RecordEvent(ctx, ad.ID, fp, KindClick)
		require.NoError(err)
		require.Equal(OutcomeRecorded, outcome)
	}

	got, err := store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(3), got.Clicks)
}

func TestRecordEventKindsMeterIndependently(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	ledger, store := newTestLedger(t)
	ad := testAd()
	require.NoError(store.Put(ctx, ad))

	outcome, err := ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	// Same visitor, different kind: separate dedup key
	outcome, err = ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindClick)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	got, err := store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(1), got.Reach)
	require.Equal(uint64(1), got.Clicks)
}

func TestRecordEventUnknownAd(t *testing.T) {
	require := require.New(t)

	ledger, _ := newTestLedger(t)

	outcome, err := ledger.RecordEvent(context.Background(), ids.GenerateTestID(), "10.0.0.1", KindImpression)
	require.ErrorIs(err, ads.ErrAdNotFound)
	require.Equal(OutcomeRejected, outcome)
}

func TestRecordEventWindowExpiry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	metrics, err := metric.NewMetrics()
	require.NoError(err)

	current := time.Now()
	window := NewMemoryWindowStore()
	window.now = func() time.Time { return current }

	store := ads.NewMemoryStore()
	ledger := NewLedger(store, window, NewMemoryAuditLog(), log.NoOp(), metrics)
	ledger.SetWindow(time.Hour)

	ad := testAd()
	require.NoError(store.Put(ctx, ad))

	outcome, err := ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	// Inside the window: duplicate
	current = current.Add(30 * time.Minute)
	outcome, err = ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeDeduplicated, outcome)

	// Past the window: counts again
	current = current.Add(31 * time.Minute)
	outcome, err = ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	got, err := store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(2), got.Reach)
}

// flakyAuditLog fails the next N appends, then behaves normally
type flakyAuditLog struct {
	*MemoryAuditLog
	failures int
}

func (l *flakyAuditLog) Append(ctx context.Context, ev *Event) error {
	if l.failures > 0 {
		l.failures--
		return errors.New("audit store unavailable")
	}
	return l.MemoryAuditLog.Append(ctx, ev)
}

func TestRecordEventAuditOutageDegradesThenRecovers(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	metrics, err := metric.NewMetrics()
	require.NoError(err)

	// Two failures exhaust the single synchronous retry
	audit := &flakyAuditLog{MemoryAuditLog: NewMemoryAuditLog(), failures: 2}
	store := ads.NewMemoryStore()
	ledger := NewLedger(store, NewMemoryWindowStore(), audit, log.NoOp(), metrics)

	ad := testAd()
	require.NoError(store.Put(ctx, ad))

	outcome, err := ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeDegraded, outcome)

	got, err := store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(0), got.Reach)

	// Storage is back: the same genuine interaction must count, not be
	// deduplicated against the event that was never persisted
	outcome, err = ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	got, err = store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(1), got.Reach)

	total, err := ledger.Audit().CountEvents(ctx, ad.ID, KindImpression, time.Time{})
	require.NoError(err)
	require.Equal(1, total)
}

func TestRecordEventAuditRetrySucceeds(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	metrics, err := metric.NewMetrics()
	require.NoError(err)

	audit := &flakyAuditLog{MemoryAuditLog: NewMemoryAuditLog(), failures: 1}
	store := ads.NewMemoryStore()
	ledger := NewLedger(store, NewMemoryWindowStore(), audit, log.NoOp(), metrics)

	ad := testAd()
	require.NoError(store.Put(ctx, ad))

	// A single failure is absorbed by the retry
	outcome, err := ledger.RecordEvent(ctx, ad.ID, "10.0.0.1", KindImpression)
	require.NoError(err)
	require.Equal(OutcomeRecorded, outcome)

	got, err := store.Get(ctx, ad.ID)
	require.NoError(err)
	require.Equal(uint64(1), got.Reach)
}

func TestMemoryWindowStoreForget(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	window := NewMemoryWindowStore()

	seen, err := window.SeenAndRecord(ctx, "k", time.Hour)
	require.NoError(err)
	require.False(seen)

	require.NoError(window.Forget(ctx, "k"))

	seen, err = window.SeenAndRecord(ctx, "k", time.Hour)
	require.NoError(err)
	require.False(seen)
}

func TestMemoryWindowStoreConcurrentSameKey(t *testing.T) {
	require := require.New(t)

	window := NewMemoryWindowStore()

	const workers = 32
	var wg sync.WaitGroup
	firsts := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := window.SeenAndRecord(context.Background(), "k", time.Hour)
			require.NoError(err)
			if !seen {
				firsts <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(firsts)

	require.Len(firsts, 1)
}
