// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package banner

import "github.com/shopspring/decimal"

// Tier defines the pricing band a banner slot is sold in
type Tier struct {
	Key          string
	Label        string
	Price        decimal.Decimal
	DurationDays int
}

// Slot is a fixed banner placement on the storefront
type Slot struct {
	Key      string
	Label    string
	Tier     string
	Priority int
}

// Tiers are the three pricing bands banners are sold in, per week
var Tiers = map[string]Tier{
	"tier1": {
		Key:          "tier1",
		Label:        "Tier 1 · Premium Hero",
		Price:        decimal.NewFromInt(10000),
		DurationDays: 7,
	},
	"tier2": {
		Key:          "tier2",
		Label:        "Tier 2 · Mid Fold Highlight",
		Price:        decimal.NewFromInt(5000),
		DurationDays: 7,
	},
	"tier3": {
		Key:          "tier3",
		Label:        "Tier 3 · Offer & Support",
		Price:        decimal.NewFromInt(2500),
		DurationDays: 7,
	},
}

// Slots maps slot keys to their placement definition
var Slots = map[string]Slot{
	"slot_home_top":         {Key: "slot_home_top", Label: "Home · Top Hero Banner", Tier: "tier1", Priority: 1},
	"slot_category_top":     {Key: "slot_category_top", Label: "Category · Top Hero Banner", Tier: "tier1", Priority: 2},
	"slot_search_top":       {Key: "slot_search_top", Label: "Search · Sponsored Top Banner", Tier: "tier1", Priority: 3},
	"slot_home_mid":         {Key: "slot_home_mid", Label: "Home · Mid Fold Banner", Tier: "tier2", Priority: 4},
	"slot_category_mid":     {Key: "slot_category_mid", Label: "Category · Mid Fold Banner", Tier: "tier2", Priority: 5},
	"slot_search_mid":       {Key: "slot_search_mid", Label: "Search · Mid Results Banner", Tier: "tier2", Priority: 6},
	"slot_seller_dashboard": {Key: "slot_seller_dashboard", Label: "Seller Dashboard Banner", Tier: "tier2", Priority: 7},
	"slot_home_offer_box":   {Key: "slot_home_offer_box", Label: "Home · Deals & Offers Box", Tier: "tier3", Priority: 8},
	"slot_search_bottom":    {Key: "slot_search_bottom", Label: "Search · Bottom Banner", Tier: "tier3", Priority: 9},
	"slot_product_sidebar":  {Key: "slot_product_sidebar", Label: "Product · Sidebar Banner", Tier: "tier3", Priority: 10},
	"slot_footer_banner":    {Key: "slot_footer_banner", Label: "Footer Banner", Tier: "tier3", Priority: 11},
	"slot_cart_checkout":    {Key: "slot_cart_checkout", Label: "Cart & Checkout Banner", Tier: "tier3", Priority: 12},
	"slot_blog_featured":    {Key: "slot_blog_featured", Label: "Blog · Featured Banner", Tier: "tier3", Priority: 13},
}

// SlotByKey looks up a slot definition
func SlotByKey(key string) (Slot, bool) {
	s, ok := Slots[key]
	return s, ok
}
