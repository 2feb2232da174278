package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shivammacoss/thefx.liv-sub001/internal/admin"
	"github.com/shivammacoss/thefx.liv-sub001/internal/config"
	"github.com/shivammacoss/thefx.liv-sub001/internal/db"
	"github.com/shivammacoss/thefx.liv-sub001/internal/engine"
	"github.com/shivammacoss/thefx.liv-sub001/internal/httpserver"
	"github.com/shivammacoss/thefx.liv-sub001/internal/marketdata"
	"github.com/shivammacoss/thefx.liv-sub001/internal/store"
	"github.com/shivammacoss/thefx.liv-sub001/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatal(err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal(err)
		}
		st = store.NewPostgresStore(pool)
	case "memory":
		st = store.NewMemoryStore()
	}

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}
	quotes := marketdata.NewQuotes()
	svc := engine.NewService(st, quotes, marketdata.NewSchedule(loc), engine.Config{
		CryptoRate:    cfg.CryptoRate,
		AllowOffHours: cfg.AllowOffHours,
	})

	if cfg.FeedURL != "" {
		feed := marketdata.NewFeed(cfg.FeedURL, quotes, svc)
		go feed.Run(ctx)
	} else {
		slog.Warn("FEED_URL not set; running without a price feed")
	}

	go func() {
		ticker := time.NewTicker(cfg.RMSInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.Sweep(ctx); err != nil {
					slog.Error("rms sweep failed", "error", err)
				}
			}
		}
	}()

	router := httpserver.NewRouter(httpserver.RouterDeps{
		EngineHandler: engine.NewHandler(svc, st),
		WalletHandler: wallet.NewHandler(st),
		AdminHandler:  admin.NewHandler(svc, st),
		InternalToken: cfg.InternalToken,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	slog.Info("server listening", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
