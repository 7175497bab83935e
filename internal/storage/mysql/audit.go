// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/metering"
)

// AuditStore implements metering.AuditLog on MySQL
type AuditStore struct {
	db *gorm.DB
}

func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, ev *metering.Event) error {
	return s.db.WithContext(ctx).Create(toEventModel(ev)).Error
}

func (s *AuditStore) CountByFingerprint(ctx context.Context, adID ids.ID, fingerprint string, kind metering.EventKind, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&EventModel{}).
		Where("ad_id = ? AND fingerprint = ? AND kind = ?", adID.String(), fingerprint, string(kind)).
		Where("timestamp >= ?", since).
		Count(&n).Error
	return int(n), err
}

func (s *AuditStore) LastByFingerprint(ctx context.Context, adID ids.ID, fingerprint string, kind metering.EventKind) (time.Time, bool, error) {
	var model EventModel
	err := s.db.WithContext(ctx).
		Where("ad_id = ? AND fingerprint = ? AND kind = ?", adID.String(), fingerprint, string(kind)).
		Order("timestamp DESC, id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return model.Timestamp, true, nil
}

func (s *AuditStore) UniqueAds(ctx context.Context, fingerprint string, kind metering.EventKind, since time.Time) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&EventModel{}).
		Distinct("ad_id").
		Where("fingerprint = ? AND kind = ?", fingerprint, string(kind)).
		Where("timestamp >= ?", since).
		Count(&n).Error
	return int(n), err
}

func (s *AuditStore) CountEvents(ctx context.Context, adID ids.ID, kind metering.EventKind, since time.Time) (int, error) {
	q := s.db.WithContext(ctx).Model(&EventModel{}).
		Where("ad_id = ? AND kind = ?", adID.String(), string(kind))
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	var n int64
	err := q.Count(&n).Error
	return int(n), err
}
