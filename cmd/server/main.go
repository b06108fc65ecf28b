package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hakimelghazi/liquidation-core/db"
	"github.com/hakimelghazi/liquidation-core/internal/api"
	"github.com/hakimelghazi/liquidation-core/internal/config"
	"github.com/hakimelghazi/liquidation-core/internal/engine"
	"github.com/hakimelghazi/liquidation-core/internal/logger"
	"github.com/hakimelghazi/liquidation-core/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log := logger.New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("cannot load .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("cannot load config")
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Fatal("cannot configure logger")
	}
	defer func() { _ = log.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) optional fill journal
	var (
		recorder engine.RoundRecorder
		fills    api.FillLister
	)
	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			log.WithError(err).Fatal("cannot connect to database")
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			log.WithError(err).Fatal("cannot apply schema")
		}

		rounds := store.NewRoundStore(pool)
		recorder, fills = rounds, rounds
		log.WithComponent("store").Info("fill journal enabled")
	} else {
		log.WithComponent("store").Info("no database configured, fills are not journaled")
	}

	// 2) engine
	eng := engine.NewEngine(cfg.Engine.CommandBuffer, engine.Liquidation{
		AccountLiquidated: cfg.Engine.LiquidationAccount,
		Amount:            cfg.Engine.LiquidationAmount,
	}, recorder, log)
	go eng.Run(ctx)

	// 3) router
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(eng, fills, log, cfg.Server.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("shutdown failed")
		}
	}()

	log.WithFields(logger.Fields{"addr": cfg.Server.Addr}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server failed")
	}
}
