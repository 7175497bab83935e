// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ads

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nutrinexas/adserve/pkg/ids"
)

var (
	ErrAdNotFound = errors.New("ad not found")
	ErrAdInactive = errors.New("ad inactive")
)

// Status is the lifecycle state of an ad
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusSuspended Status = "suspended"
)

// Type distinguishes internal product ads from external banner ads
type Type string

const (
	TypeProductInternal Type = "product_internal"
	TypeBannerExternal  Type = "banner_external"
)

// BillingMode determines how an ad is charged
type BillingMode string

const (
	BillingPerClick      BillingMode = "per_click"
	BillingPerImpression BillingMode = "per_impression"
	BillingFixedBid      BillingMode = "fixed_bid"
)

// Chargeable reports whether the mode is billed per event
func (m BillingMode) Chargeable() bool {
	return m == BillingPerClick || m == BillingPerImpression
}

// Ad is a seller's paid placement
type Ad struct {
	ID       ids.ID
	SellerID ids.ID

	// Target: product reference for internal ads, banner fields for external
	ProductID ids.ID
	Type      Type

	Mode BillingMode

	// BidAmount orders candidates in ranking; Rate is charged per event
	BidAmount decimal.Decimal
	Rate      decimal.Decimal

	DailyBudget    decimal.Decimal
	DailySpend     decimal.Decimal
	LastSpendReset time.Time

	// RemainingClicks tracks per-click allotment; negative means unlimited
	RemainingClicks int

	Status     Status
	AutoPaused bool
	Approved   bool

	StartDate time.Time
	EndDate   time.Time

	// Denormalized counters maintained by the metering ledger
	Reach  uint64
	Clicks uint64

	CreatedAt time.Time
	UpdatedAt time.Time

	// Banner placement
	SlotKey     string
	Tier        string
	BannerImage string
	BannerLink  string

	Notes string
}

// WithinSchedule reports whether t falls inside the ad's date range.
// Dates are compared at day granularity, matching how campaigns are sold.
func (a *Ad) WithinSchedule(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	start := a.StartDate.Truncate(24 * time.Hour)
	end := a.EndDate.Truncate(24 * time.Hour)
	return !day.Before(start) && !day.After(end)
}

// Servable reports whether the ad may be served at t: active, not
// auto-paused, approved and within its schedule.
func (a *Ad) Servable(t time.Time) bool {
	return a.Status == StatusActive &&
		!a.AutoPaused &&
		a.Approved &&
		a.WithinSchedule(t)
}

// RemainingBudget returns the unspent daily budget, never negative
func (a *Ad) RemainingBudget() decimal.Decimal {
	rem := a.DailyBudget.Sub(a.DailySpend)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// ResetDailySpendIfNeeded zeroes the daily spend when t lands on a later
// calendar day than the last reset. Returns true if a reset happened.
func (a *Ad) ResetDailySpendIfNeeded(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	if !a.LastSpendReset.Truncate(24 * time.Hour).Before(day) {
		return false
	}
	a.DailySpend = decimal.Zero
	a.LastSpendReset = day
	return true
}

// AutoPause flips the ad to paused with the auto-paused flag set and a note
func (a *Ad) AutoPause(reason string) {
	a.Status = StatusPaused
	a.AutoPaused = true
	if a.Notes != "" {
		a.Notes += " | "
	}
	a.Notes += "Auto-paused: " + reason
}

// Suspend marks the ad suspended with a note
func (a *Ad) Suspend(reason string) {
	a.Status = StatusSuspended
	a.AutoPaused = true
	if a.Notes != "" {
		a.Notes += " | "
	}
	a.Notes += "Suspended: " + reason
}
