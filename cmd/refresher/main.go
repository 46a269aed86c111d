package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/gateway"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/hub"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/metrics"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/trigger"
	"github.com/shubham-shewale/price-widget/pkg/config"
	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer st.Close()

	opts := coordinator.OptionsFromConfig(cfg.Widget)
	surfaces := hub.NewHub(logger, opts.Launch)

	coord, err := coordinator.New(st, surfaces, opts, logger)
	if err != nil {
		logger.Fatal("Invalid widget configuration", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, func() int { return len(surfaces.Instances()) })

	driver := trigger.NewDriver(coord, surfaces, st, m, trigger.Options{
		Interval:      cfg.Refresher.Interval,
		RequestBuffer: cfg.Refresher.RequestBuffer,
	}, logger)
	surfaces.SetRequester(driver)

	srv := &http.Server{
		Addr:              cfg.App.Port,
		Handler:           gateway.NewRouter(surfaces, driver, reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		driver.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	cancel()
	<-done
	logger.Info("Shutdown Complete")
}
