package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/lpernett/godotenv"
	"go.uber.org/zap"

	"github.com/gigsmartpay/client/internal/client"
	"github.com/gigsmartpay/client/internal/config"
	"github.com/gigsmartpay/client/internal/dashboard"
	"github.com/gigsmartpay/client/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// .env is optional; the environment may already be set.
	_ = godotenv.Load()

	logger := newLogger(*debug)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	logger.Info("starting gigsmartpay client", zap.String("api", cfg.API.URL))

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := client.New(ctx, cfg, st, logger)
	if err != nil {
		logger.Fatal("failed to create client", zap.Error(err))
	}

	if err := c.Start(ctx); err != nil {
		logger.Fatal("failed to start client", zap.Error(err))
	}

	if cfg.Dashboard.Enabled {
		d := dashboard.New(c, logger)
		go func() {
			if err := d.ServeHTTP(ctx, cfg.Dashboard.Address); err != nil {
				logger.Error("dashboard server error", zap.Error(err))
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	if err := c.Stop(); err != nil {
		logger.Warn("error during shutdown", zap.Error(err))
	}
	logger.Info("stopped")
}

func newLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
	return logger
}
