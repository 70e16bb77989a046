// Command actasync runs the offline-first synchronization daemon: it
// opens the local record store, drains pending maintenance records to
// GLPI whenever connectivity allows, and pulls remote records back
// down for reconciliation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jhamf/actasync/internal/config"
	"github.com/jhamf/actasync/internal/db"
	"github.com/jhamf/actasync/internal/glpi"
	"github.com/jhamf/actasync/internal/logging"
	syncpkg "github.com/jhamf/actasync/internal/sync"
	"github.com/jhamf/actasync/internal/sync/connectivity"
	"github.com/jhamf/actasync/internal/sync/scheduler"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "actasync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(os.Stdout, cfg.LogLevel)
	logging.Info("ActaSync starting", map[string]interface{}{
		"version": Version,
	})

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB, cfg.MigrationsDir)
	if err := migrator.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	watcher := connectivity.NewWatcher(cfg.ProbeTarget, cfg.ProbeInterval)

	client := glpi.NewClient(&glpi.Config{
		APIURL:    cfg.GLPIAPIURL,
		AppToken:  cfg.GLPIAppToken,
		UserToken: cfg.GLPIUserToken,
		SyncURL:   cfg.SyncURL,
	})

	engine := syncpkg.NewEngine(repo, client, watcher)

	var reconciler scheduler.Reconciler
	if cfg.SyncURL != "" {
		reconciler = syncpkg.NewReconciler(repo, client)
	}

	sched := scheduler.New(engine, reconciler, watcher.Events(), &scheduler.Config{
		PullInterval: cfg.PullInterval,
		PullLimit:    cfg.PullLimit,
		CycleTimeout: scheduler.DefaultConfig().CycleTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher.Start(ctx)
	sched.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logging.Info("Shutting down", map[string]interface{}{
		"signal": sig.String(),
	})

	cancel()
	sched.Stop()
	watcher.Stop()
	return nil
}
