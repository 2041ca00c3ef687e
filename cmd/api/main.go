// Package main provides the Hearth API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" // #nosec G108 - pprof is intentionally exposed for debugging, isolated to separate port
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // auto-mode timezones must resolve on minimal images

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/muaviaUsmani/hearth/internal/api"
	"github.com/muaviaUsmani/hearth/internal/automode"
	"github.com/muaviaUsmani/hearth/internal/config"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/muaviaUsmani/hearth/internal/serialization"
	"github.com/muaviaUsmani/hearth/internal/status"
)

// connectWithRetry opens the store with exponential backoff
func connectWithRetry(cfg kv.Config, maxRetries int, log logger.Logger) (kv.Store, error) {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var store kv.Store
		store, err = kv.Open(cfg)
		if err == nil {
			if err = store.Ping(context.Background()); err == nil {
				return store, nil
			}
			_ = store.Close()
		}

		delay := time.Duration(1<<uint(attempt)) * time.Second
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		log.Warn("Failed to connect to store, retrying",
			"driver", cfg.Driver,
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", err,
			"retry_in", delay)

		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect to store after %d attempts: %w", maxRetries, err)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := log.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()
	logger.SetDefault(log)

	apiLog := log.WithComponent(logger.ComponentAPI).WithSource(logger.LogSourceEngine)

	apiLog.Info("API server starting",
		"store_driver", cfg.Store.Driver,
		"api_port", cfg.APIPort,
		"event_codec", cfg.EventCodec,
		"rate_limit", cfg.APIRateLimit)

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6060"
	}
	go func() {
		apiLog.Info("Starting pprof server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		pprofServer := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := pprofServer.ListenAndServe(); err != nil {
			apiLog.Error("pprof server failed", "error", err)
		}
	}()

	store, err := connectWithRetry(cfg.Store, 5, apiLog)
	if err != nil {
		apiLog.Error("Failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := event.NewStore(store, serialization.NewSerializer(cfg.EventCodec))

	agg := status.NewAggregator(events)
	agg.SetCacheTTL(cfg.StatusCacheTTL)
	agg.SetMaxUpcoming(cfg.StatusMaxUpcoming)

	modes := automode.NewManager(store, events)
	var fromFile *automode.Config
	if cfg.AutoModeConfigPath != "" {
		if fromFile, err = automode.LoadFile(cfg.AutoModeConfigPath); err != nil {
			apiLog.Error("Failed to load auto-mode config", "path", cfg.AutoModeConfigPath, "error", err)
			os.Exit(1)
		}
	}
	if err := modes.Init(ctx, fromFile); err != nil {
		apiLog.Error("Failed to initialize auto-mode", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(events, agg, modes)
	srv.SetRateLimit(cfg.APIRateLimit, cfg.APIRateBurst)

	addr := ":" + cfg.APIPort
	server := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		apiLog.Info("API server listening", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		apiLog.Warn("Failed to notify systemd", "error", err)
	} else if ok {
		apiLog.Debug("Notified systemd of readiness")
	}

	select {
	case err := <-errCh:
		apiLog.Error("API server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	apiLog.Info("Received shutdown signal, initiating graceful shutdown")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		apiLog.Error("Graceful shutdown failed", "error", err)
	}

	apiLog.Info("API server shut down successfully")
}
