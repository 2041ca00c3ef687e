// Package main provides the Hearth scheduler, which runs due events and
// keeps auto-mode in step with its time windows.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/muaviaUsmani/hearth/internal/automode"
	"github.com/muaviaUsmani/hearth/internal/config"
	"github.com/muaviaUsmani/hearth/internal/dispatch"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/muaviaUsmani/hearth/internal/metrics"
	"github.com/muaviaUsmani/hearth/internal/scheduler"
	"github.com/muaviaUsmani/hearth/internal/serialization"
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
	schedCfg, err := config.LoadSchedulerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load scheduler config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	schedulerLog := log.WithComponent(logger.ComponentScheduler).WithSource(logger.LogSourceEngine)

	schedulerLog.Info("Scheduler starting",
		"store_driver", cfg.Store.Driver,
		"config", schedCfg.String())

	pprofPort := os.Getenv("PPROF_PORT")
	if pprofPort == "" {
		pprofPort = "6062"
	}
	go func() {
		schedulerLog.Info("Starting pprof server", "port", pprofPort, "url", fmt.Sprintf("http://localhost:%s/debug/pprof/", pprofPort))
		pprofServer := &http.Server{
			Addr:              ":" + pprofPort,
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := pprofServer.ListenAndServe(); err != nil {
			schedulerLog.Error("pprof server failed", "error", err)
		}
	}()

	store, err := connectWithRetry(cfg.Store, 5, schedulerLog)
	if err != nil {
		schedulerLog.Error("Failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	schedulerLog.Info("Successfully connected to store")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	events := event.NewStore(store, serialization.NewSerializer(cfg.EventCodec))
	collector := metrics.Default()

	modes := automode.NewManager(store, events)
	modes.OnSwitch(func(ctx context.Context, from, to automode.Mode) {
		collector.RecordModeSwitch()
	})

	var fromFile *automode.Config
	if cfg.AutoModeConfigPath != "" {
		if fromFile, err = automode.LoadFile(cfg.AutoModeConfigPath); err != nil {
			schedulerLog.Error("Failed to load auto-mode config", "path", cfg.AutoModeConfigPath, "error", err)
			os.Exit(1)
		}
	}
	if err := modes.Init(ctx, fromFile); err != nil {
		schedulerLog.Error("Failed to initialize auto-mode", "error", err)
		os.Exit(1)
	}

	if cfg.AutoModeWatch {
		go func() {
			if err := modes.Watch(ctx, cfg.AutoModeConfigPath); err != nil {
				schedulerLog.Error("Auto-mode config watcher stopped", "error", err)
			}
		}()
	}

	registry := dispatch.NewRegistry()
	if schedCfg.ShouldDispatch(automode.TaskType) {
		registry.Register(automode.TaskType, modes.Handle)
	}
	schedulerLog.Info("Registered task handlers", "count", registry.Count(), "task_types", registry.TaskTypes())

	dispatcher := dispatch.NewDispatcher(registry, events, store)
	dispatcher.SetLockTTL(schedCfg.LockTTL)
	dispatcher.SetMetrics(collector)

	spec, err := schedCfg.SweepSpec()
	if err != nil {
		schedulerLog.Error("Invalid sweep schedule", "error", err)
		os.Exit(1)
	}
	runner := scheduler.NewRunner(dispatcher, spec)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		runner.Start(ctx)
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		schedulerLog.Warn("Failed to notify systemd", "error", err)
	}
	schedulerLog.Info("Scheduler ready - sweeping for due events", "schedule", schedCfg.SweepSchedule)

	sig := <-sigChan
	schedulerLog.Info("Received shutdown signal, initiating graceful shutdown", "signal", sig)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	cancel()

	select {
	case <-stopped:
	case <-time.After(schedCfg.LockTTL):
		schedulerLog.Warn("Sweep did not finish before shutdown deadline")
	}

	schedulerLog.Info("Scheduler shut down successfully",
		"sweeps", runner.Sweeps(),
		"skipped", runner.Skipped())
}
