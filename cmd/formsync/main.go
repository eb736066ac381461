package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/catalog"
	"github.com/lofari/DynamicForms-sub000/internal/config"
	"github.com/lofari/DynamicForms-sub000/internal/draft"
	"github.com/lofari/DynamicForms-sub000/internal/logging"
	"github.com/lofari/DynamicForms-sub000/internal/queue"
	"github.com/lofari/DynamicForms-sub000/internal/remote"
	"github.com/lofari/DynamicForms-sub000/internal/store"
	"github.com/lofari/DynamicForms-sub000/internal/syncer"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.ClientConfig
	logger *zap.Logger
	locale language.Tag
)

var rootCmd = &cobra.Command{
	Use:   "formsync",
	Short: "Fill in forms offline and sync them when the server is reachable",
	Long: `formsync keeps a local queue of form submissions. Submissions are
validated on this machine, stored durably, and delivered to the forms server
with bounded retries. Drafts are kept per form until submitted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadClient(configPath)
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		locale = apperr.ParseLocale(cfg.Locale)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// client bundles the local stores and the remote connection.
type client struct {
	db      *store.Store
	queue   *queue.Store
	drafts  *draft.Store
	remote  *remote.Client
	catalog *catalog.Catalog
	engine  *syncer.Engine
}

func openClient(ctx context.Context) (*client, error) {
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	if err := db.Bootstrap(ctx, store.ClientSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap local database: %w", err)
	}

	rc := remote.NewClient(cfg.ServerURL, cfg.RequestTimeout, logger)
	q := queue.New(db, logger)
	return &client{
		db:      db,
		queue:   q,
		drafts:  draft.New(db, logger),
		remote:  rc,
		catalog: catalog.New(rc, db, logger),
		engine: syncer.NewEngine(q, rc,
			syncer.WithMaxAttempts(cfg.Sync.MaxAttempts),
			syncer.WithConcurrency(cfg.Sync.Concurrency),
			syncer.WithLogger(logger)),
	}, nil
}

func (c *client) Close() {
	c.db.Close()
}

// userError renders err for the terminal in the configured locale.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindUnknown {
		return err
	}
	logger.Debug("command failed", zap.Error(err))
	return fmt.Errorf("%s", apperr.UserMessage(locale, err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to formsync.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(formsCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(agentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
