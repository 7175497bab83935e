// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/nutrinexas/adserve/internal/config"
	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/banner"
	"github.com/nutrinexas/adserve/pkg/billing"
	"github.com/nutrinexas/adserve/pkg/catalog"
	"github.com/nutrinexas/adserve/pkg/ids"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metric"
	"github.com/nutrinexas/adserve/pkg/placement"
	"github.com/nutrinexas/adserve/pkg/sponsor"
	"github.com/nutrinexas/adserve/pkg/wallet"
)

type server struct {
	cfg     *config.Config
	log     log.Logger
	metrics *metric.Metrics
	store   ads.Store
	catalog *catalog.MemoryCatalog
	wallet  wallet.Wallet
	sponsor *sponsor.Service
	billing *billing.Service
	banners *banner.Service
	cleanup []func() error
}

func (s *server) close() {
	for _, fn := range s.cleanup {
		if err := fn(); err != nil {
			s.log.Error("cleanup failed", log.Error(err))
		}
	}
}

func (s *server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		c.Next()
		s.metrics.RequestsProcessed.
			WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Inc()
	})

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.metrics.GetGatherer(), promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/search", s.search)
		api.GET("/category/:name", s.category)

		api.POST("/ads/:id/view", s.logView)
		api.POST("/ads/:id/click", s.logClick)
		api.POST("/ads/:id/resume", s.resumeAd)
		api.GET("/ads/:id/stats", s.adStats)

		api.GET("/banners/:slot", s.bannerForSlot)
		api.GET("/banners", s.bannerStrip)

		api.GET("/wallet/:seller/balance", s.walletBalance)
		api.POST("/wallet/:seller/deposit", s.walletDeposit)
	}

	return router
}

type listingItem struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Rating      float64 `json:"rating"`
	IsSponsored bool    `json:"is_sponsored"`
	AdID        string  `json:"ad_id,omitempty"`
}

func toListing(entries []placement.Entry) []listingItem {
	out := make([]listingItem, len(entries))
	for i, e := range entries {
		item := listingItem{IsSponsored: e.IsSponsored}
		if e.Product != nil {
			item.ProductID = e.Product.ID.String()
			item.Name = e.Product.Name
			item.Category = e.Product.Category
			item.Rating = e.Product.Rating
		}
		if e.IsSponsored {
			item.AdID = e.AdID.String()
		}
		out[i] = item
	}
	return out
}

func (s *server) search(c *gin.Context) {
	keyword := c.Query("q")
	organic, err := s.organicSearch(c, keyword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	merged := s.sponsor.SearchListing(c.Request.Context(), keyword, organic)
	c.JSON(http.StatusOK, gin.H{
		"keyword": keyword,
		"results": toListing(merged),
		"total":   len(merged),
	})
}

func (s *server) category(c *gin.Context) {
	name := c.Param("name")
	subtype := c.Query("subtype")

	organic, err := s.organicCategory(c, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	merged := s.sponsor.CategoryListing(c.Request.Context(), name, subtype, organic)
	c.JSON(http.StatusOK, gin.H{
		"category": name,
		"results":  toListing(merged),
		"total":    len(merged),
	})
}

func (s *server) organicSearch(c *gin.Context, keyword string) ([]placement.Entry, error) {
	products, err := s.catalog.Search(c.Request.Context(), keyword)
	if err != nil {
		return nil, err
	}
	return toEntries(products), nil
}

func (s *server) organicCategory(c *gin.Context, category string) ([]placement.Entry, error) {
	products, err := s.catalog.ByCategory(c.Request.Context(), category)
	if err != nil {
		return nil, err
	}
	return toEntries(products), nil
}

func toEntries(products []*catalog.Product) []placement.Entry {
	entries := make([]placement.Entry, len(products))
	for i, p := range products {
		entries[i] = placement.Entry{Product: p}
	}
	return entries
}

// fingerprint identifies the viewer for metering and fraud screening.
// ClientIP honors X-Forwarded-For behind a trusted proxy.
func fingerprint(c *gin.Context) string {
	return c.ClientIP()
}

func (s *server) logView(c *gin.Context) {
	adID, ok := s.adID(c)
	if !ok {
		return
	}

	res, err := s.sponsor.LogView(c.Request.Context(), adID, fingerprint(c))
	if err != nil {
		s.interactionError(c, err)
		return
	}

	body := gin.H{"outcome": res.Outcome.String()}
	if res.Charge != nil {
		body["charged"] = res.Charge.Charged
		body["amount"] = res.Charge.Amount.String()
		if !res.Charge.Charged {
			body["skip_reason"] = string(res.Charge.Reason)
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) logClick(c *gin.Context) {
	adID, ok := s.adID(c)
	if !ok {
		return
	}

	res, err := s.sponsor.LogClick(c.Request.Context(), adID, fingerprint(c))
	if err != nil {
		s.interactionError(c, err)
		return
	}

	if res.Blocked {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"blocked":    true,
			"score":      res.Fraud.Score,
			"indicators": res.Fraud.Indicators,
		})
		return
	}

	body := gin.H{"outcome": res.Outcome.String()}
	if res.Charge != nil {
		body["charged"] = res.Charge.Charged
		body["amount"] = res.Charge.Amount.String()
		if !res.Charge.Charged {
			body["skip_reason"] = string(res.Charge.Reason)
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) resumeAd(c *gin.Context) {
	adID, ok := s.adID(c)
	if !ok {
		return
	}

	ad, err := s.billing.Resume(c.Request.Context(), adID)
	if err != nil {
		switch {
		case errors.Is(err, ads.ErrAdNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "ad not found"})
		case errors.Is(err, billing.ErrNotAutoPaused):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": ad.ID.String(), "status": string(ad.Status)})
}

func (s *server) adStats(c *gin.Context) {
	adID, ok := s.adID(c)
	if !ok {
		return
	}

	stats, err := s.sponsor.Statistics(c.Request.Context(), adID)
	if err != nil {
		s.interactionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reach":        stats.Reach,
		"clicks":       stats.Clicks,
		"total_reach":  stats.TotalReach,
		"total_clicks": stats.TotalClicks,
		"today_reach":  stats.TodayReach,
		"today_clicks": stats.TodayClicks,
	})
}

func (s *server) bannerForSlot(c *gin.Context) {
	slot := c.Param("slot")

	ad, err := s.banners.BannerForSlot(c.Request.Context(), slot)
	if err != nil {
		switch {
		case errors.Is(err, banner.ErrUnknownSlot):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown slot"})
		case errors.Is(err, banner.ErrNoBanner):
			c.Status(http.StatusNoContent)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, bannerBody(banner.Placement{
		Ad:             ad,
		DisplaySeconds: banner.DisplaySeconds(ad.BidAmount),
	}))
}

func (s *server) bannerStrip(c *gin.Context) {
	limit := 10
	placements, err := s.banners.RotationStrip(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, len(placements))
	for i := range placements {
		out[i] = bannerBody(placements[i])
	}
	c.JSON(http.StatusOK, gin.H{"banners": out, "total": len(out)})
}

func bannerBody(p banner.Placement) gin.H {
	return gin.H{
		"ad_id":           p.Ad.ID.String(),
		"image":           p.Ad.BannerImage,
		"link":            p.Ad.BannerLink,
		"slot":            p.Ad.SlotKey,
		"display_seconds": p.DisplaySeconds,
	}
}

func (s *server) walletBalance(c *gin.Context) {
	sellerID, ok := s.sellerID(c)
	if !ok {
		return
	}

	balance, err := s.wallet.Balance(c.Request.Context(), sellerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"seller": sellerID.String(), "balance": balance.String()})
}

func (s *server) walletDeposit(c *gin.Context) {
	sellerID, ok := s.sellerID(c)
	if !ok {
		return
	}

	var req struct {
		Amount      string `json:"amount" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	desc := req.Description
	if desc == "" {
		desc = "wallet deposit"
	}
	entry, err := s.wallet.Credit(c.Request.Context(), sellerID, amount, desc)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entry_id": entry.ID,
		"balance":  entry.BalanceAfter.String(),
	})
}

func (s *server) adID(c *gin.Context) (ids.ID, bool) {
	id, err := ids.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ad id"})
		return ids.ID{}, false
	}
	return id, true
}

func (s *server) sellerID(c *gin.Context) (ids.ID, bool) {
	id, err := ids.FromString(c.Param("seller"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid seller id"})
		return ids.ID{}, false
	}
	return id, true
}

func (s *server) interactionError(c *gin.Context, err error) {
	if errors.Is(err, ads.ErrAdNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ad not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
