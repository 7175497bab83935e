// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines process configuration and its loading order.
package config

import "time"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// MySQLDSN selects the durable store. Empty runs on in-memory stores.
	MySQLDSN string `koanf:"mysql_dsn"`

	// RedisAddr selects the dedup window backend. Empty runs in-memory.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// DedupWindow is the rolling window one viewer/ad/kind counts once in.
	DedupWindow time.Duration `koanf:"dedup_window"`

	// IPLimitEnabled toggles the daily unique-ads-per-viewer billing cap.
	IPLimitEnabled bool `koanf:"ip_limit_enabled"`
	IPDailyCap     int  `koanf:"ip_daily_cap"`

	// FraudEnabled toggles click fraud screening.
	FraudEnabled bool `koanf:"fraud_enabled"`

	// SearchLimit caps sponsored supply per listing.
	SearchLimit int `koanf:"search_limit"`

	// Scoring weights. They are renormalized by their sum at load time.
	WeightBid     float64 `koanf:"weight_bid"`
	WeightRating  float64 `koanf:"weight_rating"`
	WeightSales   float64 `koanf:"weight_sales"`
	WeightRecency float64 `koanf:"weight_recency"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":8080",
		DedupWindow:    24 * time.Hour,
		IPLimitEnabled: true,
		IPDailyCap:     10,
		FraudEnabled:   true,
		SearchLimit:    20,
		WeightBid:      0.5,
		WeightRating:   0.2,
		WeightSales:    0.2,
		WeightRecency:  0.1,
	}
}
