package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	sdklog "go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"repair-fund-audit/internal/api"
	"repair-fund-audit/internal/assistant"
	"repair-fund-audit/internal/catalog"
	"repair-fund-audit/internal/config"
	"repair-fund-audit/internal/decision"
	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/queue"
	"repair-fund-audit/internal/seed"
	"repair-fund-audit/internal/telemetry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "auditdesk-api",
	Short: "Serve the repair fund audit queue over HTTP",
	Long: `auditdesk-api loads the pending audit tasks, serves the JSON API and the
review UI on /ui, and forwards submitted decisions to the configured sink
(log or temporal).`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a YAML config file")
	rootCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	rootCmd.Flags().String("seed", "", "Seed fixture file (overrides queue.seed_file)")
	rootCmd.Flags().String("sink", "", "Decision sink: log or temporal (overrides submission.sink)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	for key, flag := range map[string]string{"http.addr": "addr", "queue.seed_file": "seed", "submission.sink": "sink"} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Stdout:      cfg.Telemetry.Stdout,
		ServiceName: "auditdesk-api",
	}); err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	fx, err := seed.Load(cfg.Queue.SeedFile)
	if err != nil {
		return err
	}
	cat := catalog.New(fx.Details, cfg.Queue.DetailLatency)

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	q, err := queue.New(fx.Tasks, cat, sink,
		queue.WithLogger(logger),
		queue.WithFetchTimeout(cfg.Queue.DetailTimeout),
		queue.WithJournalSize(cfg.Queue.JournalSize),
	)
	if err != nil {
		return err
	}
	defer q.Close()
	q.Start()

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithDetails(cat),
		api.WithRequestTimeout(cfg.Submission.Timeout + cfg.Submission.MaxElapsed),
	}
	if cfg.Assistant.APIKey != "" {
		ai, err := assistant.New(cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.MaxTokens, logger)
		if err != nil {
			return err
		}
		opts = append(opts, api.WithAssistant(ai))
	} else {
		logger.Info("assistant disabled: no API key")
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.New(q, opts...).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("api listening", "addr", cfg.HTTP.Addr, "tasks", len(fx.Tasks), "sink", cfg.Submission.Sink)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info("api shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// buildSink returns the configured decision sink and a func releasing
// whatever it holds.
func buildSink(cfg *config.Config, logger *slog.Logger) (queue.DecisionSink, func(), error) {
	if cfg.Submission.Sink != config.SinkTemporal {
		return decision.NewLogSink(logger), func() {}, nil
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    sdklog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}

	sink := decision.NewRetryingSink(
		decision.NewTemporalSink(c, cfg.Temporal.TaskQueue, cfg.Temporal.ReviewDeadline, logger),
		cfg.Submission.MaxElapsed,
		decision.WithAttemptTimeout(cfg.Submission.Timeout),
		decision.WithRetryLogger(logger),
	)
	return sink, c.Close, nil
}
