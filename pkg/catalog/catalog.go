// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package catalog is the product read model the ad engine ranks against.
// The marketplace owns product data; the engine only needs a narrow view:
// identity, approval state, quality signals and the fields keyword and
// category matching run over.
package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/nutrinexas/adserve/pkg/ids"
)

var ErrProductNotFound = errors.New("product not found")

// Product is the ad engine's view of a catalog product
type Product struct {
	ID          ids.ID
	Name        string
	Description string
	Category    string
	Subtype     string
	Tags        []string
	ImageURL    string

	Active bool

	// Quality signals consumed by ranking
	Rating       float64
	ReviewCount  int
	MonthlySales int
}

// MatchesKeyword reports whether the product matches a search keyword the
// way the marketplace search does: substring match over name, description
// and tags, case-insensitive
func (p *Product) MatchesKeyword(keyword string) bool {
	if keyword == "" {
		return false
	}
	kw := strings.ToLower(keyword)
	if strings.Contains(strings.ToLower(p.Name), kw) {
		return true
	}
	if strings.Contains(strings.ToLower(p.Description), kw) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), kw) {
			return true
		}
	}
	return false
}

// MatchesCategory reports whether the product belongs to category, and to
// subtype when one is given
func (p *Product) MatchesCategory(category, subtype string) bool {
	if !strings.EqualFold(p.Category, category) {
		return false
	}
	if subtype != "" && !strings.EqualFold(p.Subtype, subtype) {
		return false
	}
	return true
}

// Reader looks up products by ID
type Reader interface {
	Product(ctx context.Context, id ids.ID) (*Product, error)
}

// MemoryCatalog is an in-memory Reader for tests and single-node deployments
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[ids.ID]*Product
}

// NewMemoryCatalog creates an empty in-memory catalog
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[ids.ID]*Product)}
}

// Put stores or replaces a product
func (c *MemoryCatalog) Put(p *Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.products[p.ID] = &cp
}

func (c *MemoryCatalog) Product(ctx context.Context, id ids.ID) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// Search returns active products matching a keyword, name-sorted so
// organic listings are stable across requests
func (c *MemoryCatalog) Search(ctx context.Context, keyword string) ([]*Product, error) {
	return c.filter(func(p *Product) bool {
		return p.Active && p.MatchesKeyword(keyword)
	}), nil
}

// ByCategory returns active products in a category, name-sorted
func (c *MemoryCatalog) ByCategory(ctx context.Context, category string) ([]*Product, error) {
	return c.filter(func(p *Product) bool {
		return p.Active && p.MatchesCategory(category, "")
	}), nil
}

func (c *MemoryCatalog) filter(keep func(*Product) bool) []*Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Product, 0)
	for _, p := range c.products {
		if keep(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
