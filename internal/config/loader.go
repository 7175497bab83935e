// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if ADSERVE_CONFIG is set
//  3. env (prefix ADSERVE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("ADSERVE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Env keys map flat: ADSERVE_IP_DAILY_CAP -> ip_daily_cap.
	envProvider := env.Provider("ADSERVE_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "adserve_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.normalizeWeights()
	return &cfg, nil
}

// normalizeWeights scales the scoring weights so they sum to 1; validate
// has already rejected a non-positive sum
func (c *Config) normalizeWeights() {
	sum := c.WeightBid + c.WeightRating + c.WeightSales + c.WeightRecency
	c.WeightBid /= sum
	c.WeightRating /= sum
	c.WeightSales /= sum
	c.WeightRecency /= sum
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.DedupWindow <= 0 {
		return errors.New("dedup_window must be positive")
	}
	if c.IPDailyCap <= 0 {
		return errors.New("ip_daily_cap must be positive")
	}
	if c.SearchLimit <= 0 {
		return errors.New("search_limit must be positive")
	}
	sum := c.WeightBid + c.WeightRating + c.WeightSales + c.WeightRecency
	if sum <= 0 {
		return errors.New("scoring weights must sum to a positive value")
	}
	return nil
}
