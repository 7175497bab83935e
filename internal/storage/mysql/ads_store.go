// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
)

// AdStore implements ads.Store on MySQL
type AdStore struct {
	db *gorm.DB
}

func NewAdStore(db *gorm.DB) *AdStore {
	return &AdStore{db: db}
}

func (s *AdStore) Get(ctx context.Context, id ids.ID) (*ads.Ad, error) {
	var model AdModel
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ads.ErrAdNotFound
		}
		return nil, err
	}
	return toAd(&model)
}

func (s *AdStore) Put(ctx context.Context, ad *ads.Ad) error {
	return s.db.WithContext(ctx).Save(toAdModel(ad)).Error
}

// Update applies mutate inside a transaction holding a row lock, so
// concurrent charges against one ad serialize at the database.
func (s *AdStore) Update(ctx context.Context, id ids.ID, mutate func(*ads.Ad) error) (*ads.Ad, error) {
	var updated *ads.Ad
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AdModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id.String()).First(&model).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ads.ErrAdNotFound
			}
			return err
		}

		ad, err := toAd(&model)
		if err != nil {
			return err
		}
		if err := mutate(ad); err != nil {
			return err
		}
		ad.UpdatedAt = time.Now()

		if err := tx.Save(toAdModel(ad)).Error; err != nil {
			return err
		}
		updated = ad
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *AdStore) ActiveProductAds(ctx context.Context, t time.Time) ([]*ads.Ad, error) {
	return s.servable(ctx, t, func(q *gorm.DB) *gorm.DB {
		return q.Where("type = ?", string(ads.TypeProductInternal))
	})
}

func (s *AdStore) ActiveBanners(ctx context.Context, t time.Time, slotKey, tier string) ([]*ads.Ad, error) {
	return s.servable(ctx, t, func(q *gorm.DB) *gorm.DB {
		q = q.Where("type = ?", string(ads.TypeBannerExternal))
		q = q.Where("banner_image <> '' AND banner_link <> ''")
		if slotKey != "" {
			q = q.Where("slot_key = ?", slotKey)
		}
		if tier != "" {
			q = q.Where("tier = ?", tier)
		}
		return q
	})
}

func (s *AdStore) servable(ctx context.Context, t time.Time, filter func(*gorm.DB) *gorm.DB) ([]*ads.Ad, error) {
	day := t.Truncate(24 * time.Hour)
	q := s.db.WithContext(ctx).
		Where("status = ?", string(ads.StatusActive)).
		Where("auto_paused = ?", false).
		Where("approved = ?", true).
		Where("start_date <= ? AND end_date >= ?", day.Add(24*time.Hour-time.Nanosecond), day).
		Order("created_at DESC")

	var models []AdModel
	if err := filter(q).Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]*ads.Ad, 0, len(models))
	for i := range models {
		ad, err := toAd(&models[i])
		if err != nil {
			return nil, err
		}
		// Re-check in Go: SQL date comparison is an index-friendly
		// prefilter, Servable stays the single source of truth.
		if !ad.Servable(t) {
			continue
		}
		out = append(out, ad)
	}
	return out, nil
}
