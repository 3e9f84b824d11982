package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/analytics"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/api"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/config"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/db"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/realtime"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/store"
	"github.com/JeyaBa1aB/alpha-insights-sub000/internal/tracker"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfgPath := flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	sqlDB, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer sqlDB.Close()

	st := store.NewSQLiteStore(sqlDB)
	hub := realtime.NewHub()
	analyzer := analytics.NewAnalyzer(cfg.Analytics.RiskFreeRate, cfg.Analytics.TrailingWindow)

	trk, err := tracker.New(st, hub, analyzer, cfg.TickInterval(), cfg.Schedule.CloseRolloverCron)
	if err != nil {
		log.Fatalf("tracker init failed: %v", err)
	}
	defer trk.Stop()

	apiServer := api.NewServer(st, trk, hub)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("Alpha Insights backend listening on %s", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed: %v", err)
	}
}
