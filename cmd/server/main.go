package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/config"
	"github.com/lofari/DynamicForms-sub000/internal/formdef"
	"github.com/lofari/DynamicForms-sub000/internal/idempotency"
	"github.com/lofari/DynamicForms-sub000/internal/logging"
	"github.com/lofari/DynamicForms-sub000/internal/server"
	"github.com/lofari/DynamicForms-sub000/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to app.yaml (default: search . and ../..)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("config loaded",
		zap.Int("port", cfg.Server.Port), zap.String("db_driver", cfg.Database.Driver), zap.String("forms_dir", cfg.FormsDir))

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// 3. Bootstrap tables
	if err := db.Bootstrap(ctx, store.ServerSchema); err != nil {
		return fmt.Errorf("bootstrap tables: %w", err)
	}
	logger.Info("database ready", zap.String("dialect", db.Dialect.Name()))

	// 4. Load form definitions
	reg := formdef.NewRegistry()
	if err := formdef.Reload(cfg.FormsDir, reg, logger); err != nil {
		logger.Warn("no form definitions loaded", zap.Error(err))
	}
	if cfg.FormsWatch {
		watcher, err := formdef.NewWatcher(cfg.FormsDir, reg, 250*time.Millisecond, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("form watcher not started", zap.Error(err))
		}
		defer watcher.Stop()
	}

	// 5. Idempotency store and cleaner
	var idem idempotency.Store
	switch cfg.Idempotency.Driver {
	case "sql":
		idem = idempotency.NewSQLStore(db, cfg.Idempotency.TTL)
	default:
		idem = idempotency.NewMemoryStore(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries)
	}
	cleaner := idempotency.NewCleaner(idem, cfg.Idempotency.CleanupInterval, logger)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// 6. HTTP API
	app := server.NewApp(logger, true)
	handler := server.NewHandler(reg, server.NewSubmissionStore(db), idempotency.NewGuard(idem, logger), logger)
	server.RegisterRoutes(app, handler)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("starting server", zap.String("addr", addr))
		errCh <- app.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	}
	return app.ShutdownWithTimeout(10 * time.Second)
}
