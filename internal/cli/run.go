package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/me/tempo/internal/archive"
	"github.com/me/tempo/internal/backend"
	"github.com/me/tempo/internal/catalog"
	"github.com/me/tempo/internal/config"
	"github.com/me/tempo/internal/logging"
	"github.com/me/tempo/internal/notify"
	"github.com/me/tempo/internal/server"
	"github.com/me/tempo/internal/store"
	"github.com/me/tempo/internal/tracker"
)

func newRunCmd() *cobra.Command {
	var (
		flagConfig  string
		flagCatalog string
		flagDB      string
		flagAddr    string
		flagWorkDir string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagCatalog != "" {
				cfg.CatalogPath = flagCatalog
			}
			if flagDB != "" {
				cfg.DBPath = flagDB
			}
			if flagAddr != "" {
				cfg.Addr = flagAddr
			}
			if cfg.CatalogPath == "" {
				return fmt.Errorf("no task catalog: set --catalog or catalog: in the config file")
			}
			return runDaemon(cfg, flagWorkDir)
		},
	}

	cmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Path to config file")
	cmd.Flags().StringVar(&flagCatalog, "catalog", "", "Path to task catalog YAML (overrides config)")
	cmd.Flags().StringVar(&flagDB, "db", "", "Database path (default ~/.tempo/tempo.db)")
	cmd.Flags().StringVar(&flagAddr, "addr", "", "Status API listen address (overrides config)")
	cmd.Flags().StringVar(&flagWorkDir, "work-dir", "", "Working directory for shell jobs")

	return cmd
}

func runDaemon(cfg config.Config, workDir string) error {
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir := filepath.Join(home, ".tempo")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create %s: %w", dir, err)
		}
		dbPath = filepath.Join(dir, "tempo.db")
	}

	st, err := store.NewSQLiteStore(dbPath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	cat := catalog.NewFileCatalog(cfg.CatalogPath, cfg.DefaultPendingTimeout, cfg.DefaultRunningTimeout, log)

	shell := backend.NewShellBackend(workDir, log)
	registry := backend.NewRegistry(log)
	registry.Register(shell)

	sinks := notify.Multi{notify.NewLogSink(log)}
	if cfg.Archive.S3Bucket != "" {
		s3sink, err := archive.NewS3Sink(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Prefix, log)
		if err != nil {
			return fmt.Errorf("archive sink: %w", err)
		}
		sinks = append(sinks, s3sink)
		log.Info("archiving enabled", "bucket", cfg.Archive.S3Bucket, "prefix", cfg.Archive.S3Prefix)
	}

	loop := tracker.NewLoop(st, cat, registry, sinks, shell.Reports(), tracker.Config{
		TickInterval: cfg.TickInterval,
		KillGrace:    cfg.KillGrace,
		QueueSlots:   cfg.QueueSlots(),
	}, log)

	srv := server.New(st, cat, cfg.QueueSlots(), log)
	httpSrv := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := loop.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		log.Info("status API listening", "addr", cfg.Addr)
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	log.Info("tempo running",
		"db", dbPath,
		"catalog", cfg.CatalogPath,
		"tick_interval", cfg.TickInterval,
	)
	return g.Wait()
}
