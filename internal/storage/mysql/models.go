// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/metering"
	"github.com/nutrinexas/adserve/pkg/wallet"
)

// AdModel is the ads table row. IDs are stored as 32-char hex.
type AdModel struct {
	ID       string `gorm:"primaryKey;size:32"`
	SellerID string `gorm:"index;size:32"`

	ProductID string `gorm:"size:32"`
	Type      string `gorm:"index;size:32"`
	Mode      string `gorm:"size:32"`

	BidAmount   decimal.Decimal `gorm:"type:decimal(18,4)"`
	Rate        decimal.Decimal `gorm:"type:decimal(18,4)"`
	DailyBudget decimal.Decimal `gorm:"type:decimal(18,4)"`
	DailySpend  decimal.Decimal `gorm:"type:decimal(18,4)"`

	LastSpendReset  time.Time
	RemainingClicks int

	Status     string `gorm:"index;size:16"`
	AutoPaused bool
	Approved   bool

	StartDate time.Time
	EndDate   time.Time

	Reach  uint64
	Clicks uint64

	CreatedAt time.Time
	UpdatedAt time.Time

	SlotKey     string `gorm:"index;size:64"`
	Tier        string `gorm:"size:16"`
	BannerImage string `gorm:"size:512"`
	BannerLink  string `gorm:"size:512"`

	Notes string `gorm:"type:text"`
}

// TableName keeps the legacy table name
func (AdModel) TableName() string { return "ads" }

// WalletEntryModel is one wallet ledger row
type WalletEntryModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	SellerID     string `gorm:"index;size:32"`
	Type         string `gorm:"size:16"`
	Amount       decimal.Decimal `gorm:"type:decimal(18,4)"`
	Description  string `gorm:"size:255"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(18,4)"`
	CreatedAt    time.Time `gorm:"index"`
}

func (WalletEntryModel) TableName() string { return "wallet_entries" }

// EventModel is one metering audit row
type EventModel struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	AdID        string `gorm:"index:idx_events_ad_kind_ts;size:32"`
	Fingerprint string `gorm:"index:idx_events_fp;size:128"`
	Kind        string `gorm:"index:idx_events_ad_kind_ts;size:16"`
	Timestamp   time.Time `gorm:"index:idx_events_ad_kind_ts"`
	Counted     bool
}

func (EventModel) TableName() string { return "ad_events" }

func toAdModel(a *ads.Ad) *AdModel {
	return &AdModel{
		ID:              a.ID.String(),
		SellerID:        a.SellerID.String(),
		ProductID:       a.ProductID.String(),
		Type:            string(a.Type),
		Mode:            string(a.Mode),
		BidAmount:       a.BidAmount,
		Rate:            a.Rate,
		DailyBudget:     a.DailyBudget,
		DailySpend:      a.DailySpend,
		LastSpendReset:  a.LastSpendReset,
		RemainingClicks: a.RemainingClicks,
		Status:          string(a.Status),
		AutoPaused:      a.AutoPaused,
		Approved:        a.Approved,
		StartDate:       a.StartDate,
		EndDate:         a.EndDate,
		Reach:           a.Reach,
		Clicks:          a.Clicks,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
		SlotKey:         a.SlotKey,
		Tier:            a.Tier,
		BannerImage:     a.BannerImage,
		BannerLink:      a.BannerLink,
		Notes:           a.Notes,
	}
}

func toAd(m *AdModel) (*ads.Ad, error) {
	id, err := ids.FromString(m.ID)
	if err != nil {
		return nil, err
	}
	sellerID, err := ids.FromString(m.SellerID)
	if err != nil {
		return nil, err
	}
	productID, err := ids.FromString(m.ProductID)
	if err != nil {
		return nil, err
	}
	return &ads.Ad{
		ID:              id,
		SellerID:        sellerID,
		ProductID:       productID,
		Type:            ads.Type(m.Type),
		Mode:            ads.BillingMode(m.Mode),
		BidAmount:       m.BidAmount,
		Rate:            m.Rate,
		DailyBudget:     m.DailyBudget,
		DailySpend:      m.DailySpend,
		LastSpendReset:  m.LastSpendReset,
		RemainingClicks: m.RemainingClicks,
		Status:          ads.Status(m.Status),
		AutoPaused:      m.AutoPaused,
		Approved:        m.Approved,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		Reach:           m.Reach,
		Clicks:          m.Clicks,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		SlotKey:         m.SlotKey,
		Tier:            m.Tier,
		BannerImage:     m.BannerImage,
		BannerLink:      m.BannerLink,
		Notes:           m.Notes,
	}, nil
}

func toWalletEntryModel(e *wallet.Entry) *WalletEntryModel {
	return &WalletEntryModel{
		ID:           e.ID,
		SellerID:     e.SellerID.String(),
		Type:         string(e.Type),
		Amount:       e.Amount,
		Description:  e.Description,
		BalanceAfter: e.BalanceAfter,
		CreatedAt:    e.CreatedAt,
	}
}

func toWalletEntry(m *WalletEntryModel) (*wallet.Entry, error) {
	sellerID, err := ids.FromString(m.SellerID)
	if err != nil {
		return nil, err
	}
	return &wallet.Entry{
		ID:           m.ID,
		SellerID:     sellerID,
		Type:         wallet.EntryType(m.Type),
		Amount:       m.Amount,
		Description:  m.Description,
		BalanceAfter: m.BalanceAfter,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func toEventModel(e *metering.Event) *EventModel {
	return &EventModel{
		AdID:        e.AdID.String(),
		Fingerprint: e.Fingerprint,
		Kind:        string(e.Kind),
		Timestamp:   e.Timestamp,
		Counted:     e.Counted,
	}
}

func toEvent(m *EventModel) (*metering.Event, error) {
	adID, err := ids.FromString(m.AdID)
	if err != nil {
		return nil, err
	}
	return &metering.Event{
		AdID:        adID,
		Fingerprint: m.Fingerprint,
		Kind:        metering.EventKind(m.Kind),
		Timestamp:   m.Timestamp,
		Counted:     m.Counted,
	}, nil
}
