// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// adserve is the sponsored ads daemon: it ranks and interleaves sponsored
// products into listings, serves banner slots, and meters and bills views
// and clicks.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nutrinexas/adserve/internal/config"
	"github.com/nutrinexas/adserve/internal/storage/mysql"
	rediswindow "github.com/nutrinexas/adserve/internal/storage/redis"
	"github.com/nutrinexas/adserve/pkg/ads"
	"github.com/nutrinexas/adserve/pkg/banner"
	"github.com/nutrinexas/adserve/pkg/billing"
	"github.com/nutrinexas/adserve/pkg/catalog"
	"github.com/nutrinexas/adserve/pkg/fraud"
	"github.com/nutrinexas/adserve/pkg/log"
	"github.com/nutrinexas/adserve/pkg/metering"
	"github.com/nutrinexas/adserve/pkg/metric"
	"github.com/nutrinexas/adserve/pkg/ranking"
	"github.com/nutrinexas/adserve/pkg/sponsor"
	"github.com/nutrinexas/adserve/pkg/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	metrics, err := metric.NewMetrics()
	if err != nil {
		logger.Fatal("metrics init failed", log.Error(err))
	}

	srv, err := buildServer(cfg, logger, metrics)
	if err != nil {
		logger.Fatal("server init failed", log.Error(err))
	}

	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.router(),
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", log.Error(err))
		}
	}()
	logger.Info("adserve started", log.String("addr", cfg.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", log.Error(err))
	}
	srv.close()
	logger.Info("stopped")
}

// buildServer wires stores, the metering ledger, billing, ranking, fraud
// screening and banner rotation into one server. MySQL and Redis are
// optional; absent DSNs fall back to in-memory stores.
func buildServer(cfg *config.Config, logger log.Logger, metrics *metric.Metrics) (*server, error) {
	var (
		store   ads.Store
		funds   wallet.Wallet
		audit   metering.AuditLog
		window  metering.WindowStore
		cleanup []func() error
	)

	if cfg.MySQLDSN != "" {
		db, err := mysql.Open(cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		store = mysql.NewAdStore(db)
		funds = mysql.NewWalletStore(db)
		audit = mysql.NewAuditStore(db)
		logger.Info("using mysql store")
	} else {
		store = ads.NewMemoryStore()
		funds = wallet.NewMemoryWallet()
		audit = metering.NewMemoryAuditLog()
		logger.Warn("no mysql dsn configured, state is in-memory only")
	}

	if cfg.RedisAddr != "" {
		ws, err := rediswindow.New(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		window = ws
		cleanup = append(cleanup, ws.Close)
		logger.Info("using redis dedup window", log.String("addr", cfg.RedisAddr))
	} else {
		window = metering.NewMemoryWindowStore()
	}

	ledger := metering.NewLedger(store, window, audit, logger, metrics)
	ledger.SetWindow(cfg.DedupWindow)

	bill := billing.NewService(store, funds, audit, cfg.IPLimitEnabled, logger, metrics)
	bill.SetIPDailyCap(cfg.IPDailyCap)

	weights := ranking.Weights{
		Bid:     cfg.WeightBid,
		Rating:  cfg.WeightRating,
		Sales:   cfg.WeightSales,
		Recency: cfg.WeightRecency,
	}
	cat := catalog.NewMemoryCatalog()
	eligible := func(ctx context.Context, c ranking.Candidate) bool {
		ok, _, err := bill.CanShow(ctx, c.Ad.ID)
		return err == nil && ok
	}
	engine := ranking.NewEngine(weights, eligible, logger, metrics)

	detector := fraud.NewDetector(cfg.FraudEnabled, audit, logger)

	svc := sponsor.NewService(store, cat, engine, ledger, bill, detector, logger, metrics)
	svc.SetSearchLimit(cfg.SearchLimit)

	banners := banner.NewService(store, 0, logger)

	return &server{
		cfg:     cfg,
		log:     logger,
		metrics: metrics,
		store:   store,
		catalog: cat,
		wallet:  funds,
		sponsor: svc,
		billing: bill,
		banners: banners,
		cleanup: cleanup,
	}, nil
}
