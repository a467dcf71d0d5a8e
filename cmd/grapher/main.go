// Command grapher runs the result-collector process: it consumes JobResult
// envelopes from the results queue, persists each committed graph, and
// notifies the Director.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contextal/workgraph/internal/broker"
	"github.com/contextal/workgraph/internal/config"
	"github.com/contextal/workgraph/internal/graph"
	"github.com/contextal/workgraph/internal/grapher"
	"github.com/contextal/workgraph/internal/httpapi"
	"github.com/contextal/workgraph/internal/metrics"
	"github.com/contextal/workgraph/pkg/objectstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.GrapherConfig{}

	root := &cobra.Command{
		Use:   "grapher",
		Short: "Grapher — persists committed work results into the Graph DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	register := func(p *string, name, envVar, def, usage string) {
		root.PersistentFlags().StringVar(p, name, config.EnvOrDefault(envVar, def), usage)
	}
	config.BindShared(&cfg.Shared, register)

	root.PersistentFlags().StringVar(&cfg.ObjectStorePath, "object-store-path",
		config.EnvOrDefault("WORKMGR_OBJECT_STORE_PATH", "./data/objects"), "Content-addressed object store root")
	root.PersistentFlags().IntVar(&cfg.MaxWorkDepth, "max-work-depth",
		config.EnvOrDefaultInt("WORKMGR_MAX_WORK_DEPTH", config.DefaultMaxWorkDepth), "Maximum accepted tree depth for a work result")
	root.PersistentFlags().IntVar(&cfg.MaxWorkTTLSec, "max-work-ttl-seconds",
		config.EnvOrDefaultInt("WORKMGR_MAX_WORK_TTL_SECONDS", config.DefaultMaxWorkTTLSec), "TTL clamp applied to republished encryption-retry requests")
	root.PersistentFlags().Uint32Var(&cfg.MaxRecursion, "max-recursion-level",
		uint32(config.EnvOrDefaultInt("WORKMGR_MAX_RECURSION", config.DefaultMaxRecursion)), "Recursion-level clamp applied to republished encryption-retry requests")

	return root
}

func run(ctx context.Context, cfg *config.GrapherConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting grapher",
		zap.String("broker_url", cfg.BrokerURL),
		zap.Int("max_work_depth", cfg.MaxWorkDepth),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	failure := grapher.NewFailureNotifier()

	conn, err := broker.Dial(cfg.BrokerURL, logger, failure.Fire)
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open broker channel: %w", err)
	}
	if err := broker.DeclareResultsTopology(ch); err != nil {
		return fmt.Errorf("failed to declare results topology: %w", err)
	}
	if err := broker.DeclareDirectorTopology(ch); err != nil {
		return fmt.Errorf("failed to declare director topology: %w", err)
	}

	db, err := graph.Open(ctx, cfg.DBDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph db: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate graph db: %w", err)
	}

	if err := os.MkdirAll(cfg.ObjectStorePath, 0o755); err != nil {
		return fmt.Errorf("failed to create object store path: %w", err)
	}
	store := objectstore.New(cfg.ObjectStorePath)

	m := metrics.NewGrapher(prometheus.DefaultRegisterer)

	g := grapher.New(ch, db, store, m, logger, failure, grapher.Config{
		MaxWorkDepth: cfg.MaxWorkDepth,
		MaxRecursion: cfg.MaxRecursion,
		MaxTTLSec:    int64(cfg.MaxWorkTTLSec),
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(failure, httpapi.PromHandler()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("health/metrics server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health/metrics server error", zap.Error(err))
		}
	}()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- g.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down grapher")
	case err := <-runErrCh:
		if err != nil {
			logger.Error("grapher consumer terminated", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server graceful shutdown error", zap.Error(err))
	}

	logger.Info("grapher stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
