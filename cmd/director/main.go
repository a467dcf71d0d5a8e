// Command director runs the rule applicator and scenario-reloader: an
// apply loop that runs matching scenarios against committed work, and a
// reload loop that picks up new or changed scenario files on signal.
// Wiring mirrors cmd/grapher/main.go's cobra root command shape.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contextal/workgraph/internal/broker"
	"github.com/contextal/workgraph/internal/config"
	"github.com/contextal/workgraph/internal/director"
	"github.com/contextal/workgraph/internal/graph"
	"github.com/contextal/workgraph/internal/httpapi"
	"github.com/contextal/workgraph/internal/metrics"
	"github.com/contextal/workgraph/internal/rulesengine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.DirectorConfig{}

	root := &cobra.Command{
		Use:   "director",
		Short: "Director — applies scenarios to committed work and reloads them on signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	register := func(p *string, name, envVar, def, usage string) {
		root.PersistentFlags().StringVar(p, name, config.EnvOrDefault(envVar, def), usage)
	}
	config.BindShared(&cfg.Shared, register)

	root.PersistentFlags().StringVar(&cfg.ScenariosDir, "scenarios-dir",
		config.EnvOrDefault("WORKMGR_SCENARIOS_DIR", "./scenarios"), "Directory of scenario JSON files")

	return root
}

func run(ctx context.Context, cfg *config.DirectorConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting director",
		zap.String("broker_url", cfg.BrokerURL),
		zap.String("scenarios_dir", cfg.ScenariosDir),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	failure := director.NewFailureNotifier()

	conn, err := broker.Dial(cfg.BrokerURL, logger, failure.Fire)
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	defer conn.Close()

	// A dedicated channel per logical consumer, so prefetch and ack scoping
	// for the apply queue and the fanout reload queue are independent of
	// one another.
	applyCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open apply channel: %w", err)
	}
	if err := broker.DeclareDirectorTopology(applyCh); err != nil {
		return fmt.Errorf("failed to declare director topology: %w", err)
	}

	reloadCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open reload channel: %w", err)
	}
	reloadQueueName, err := broker.DeclareReloadTopology(reloadCh, uuid.NewString())
	if err != nil {
		return fmt.Errorf("failed to declare reload topology: %w", err)
	}

	db, err := graph.Open(ctx, cfg.DBDSN, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph db: %w", err)
	}
	defer db.Close()

	applier := rulesengine.NewGraphApplier(db, cfg.ScenariosDir, logger)
	if err := applier.ReloadScenarios(ctx); err != nil {
		return fmt.Errorf("failed to load initial scenarios: %w", err)
	}

	m := metrics.NewDirector(prometheus.DefaultRegisterer)

	dir := director.New(applyCh, reloadCh, reloadQueueName, applier, clockwork.NewRealClock(), time.Now().UnixNano(), m, logger, failure)

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
	go func() { runErrCh <- dir.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down director")
	case err := <-runErrCh:
		if err != nil {
			logger.Error("director run loop terminated", zap.Error(err))
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server graceful shutdown error", zap.Error(err))
	}

	logger.Info("director stopped")
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
