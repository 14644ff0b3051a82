package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/cli"
	"bilancio/internal/connectivity"
	"bilancio/internal/httpapi"
	"bilancio/internal/log"
	"bilancio/internal/remote"
	"bilancio/internal/services"
	syncer "bilancio/internal/sync"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext()
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	store := cli.InitRemote(ctx, logger, cfg)
	amqpClient := cli.InitAMQP(logger, cfg)

	monitor := connectivity.New(true)
	tracker := services.NewTracker(cfg.DefaultScope, repo, store, monitor, amqpClient, syncer.Config{
		RetryInterval: cfg.SyncInterval,
		RemoteTimeout: cfg.SyncTimeout,
	})

	if err := tracker.Load(ctx); err != nil {
		logger.Error("Failed to load dataset", log.FieldError, err)
		os.Exit(1)
	}
	if err := tracker.Start(ctx); err != nil {
		logger.Error("Failed to start sync engine", log.FieldError, err)
		os.Exit(1)
	}

	if err := monitor.Start(ctx, remoteProbe(store, cfg.DefaultScope), cfg.ProbeInterval); err != nil {
		logger.Error("Failed to start connectivity monitor", log.FieldError, err)
		os.Exit(1)
	}

	srv := httpapi.NewServer(":"+cfg.Port, tracker)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bilancio server",
			"port", cfg.Port,
			log.FieldBackend, cfg.RemoteBackend,
			log.FieldScope, cfg.DefaultScope)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Error("Connectivity monitor shutdown error", log.FieldError, err)
		}
		if err := tracker.Stop(shutdownCtx); err != nil {
			logger.Error("Sync engine stop error", log.FieldError, err)
		}
		if err := tracker.Close(); err != nil {
			logger.Error("Tracker close error", log.FieldError, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

// remoteProbe checks reachability by fetching the scope snapshot with a
// short deadline. A store that answers, even with "nothing stored yet",
// counts as online.
func remoteProbe(store remote.Store, scope string) connectivity.Probe {
	return func(ctx context.Context) bool {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, _, err := store.Fetch(probeCtx, scope)
		return err == nil
	}
}
