// Command worker wires a DistributedQueue, a demo WorkerContext, and a
// Driver together and runs the pipeline until interrupted. It exists
// to demonstrate the pipeline end to end, not as a production worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rexec/pipeline"
	"github.com/rexec/pipeline/config"
	"github.com/rexec/pipeline/opctx"
	"github.com/rexec/pipeline/queue"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a remote-execution worker pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a worker YAML config file")
	return cmd
}

func newLogger(cfg *config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func stageWidth(cfg *config.Config, name string, fallback int) int {
	for _, s := range cfg.Stages {
		if s.Name == name {
			return s.Width
		}
	}
	return fallback
}

func run(ctx context.Context, cfg *config.Config) error {
	log := newLogger(&cfg.Logging)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Suffix the configured name with a per-process instance ID so two
	// replicas sharing a worker.yaml still report distinct identities
	// in logs and operation metadata.
	instanceName := cfg.WorkerName + "-" + uuid.New().String()[:8]
	log = log.With("worker", instanceName)

	client := redis.NewClient(&redis.Options{Addr: cfg.Queue.Address})
	defer client.Close()

	q, err := queue.New(client, cfg.Queue.Name, log)
	if err != nil {
		return fmt.Errorf("creating queue: %w", err)
	}

	worker := &demoWorkerContext{
		name:           instanceName,
		q:              q,
		dequeueTimeout: cfg.Queue.DequeueTimeout(),
		pollPeriod:     cfg.Poller.Period(),
		log:            log,
	}

	var metrics *pipeline.Metrics
	if cfg.Metrics.Enabled {
		metrics = pipeline.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
	}

	inputFetch := pipeline.NewStage("InputFetch", simulateWork("input fetch", 10*time.Millisecond), log)
	execute := pipeline.NewSuperscalarStage("Execute", stageWidth(cfg, "Execute", 4), constantClaims(1),
		simulateWork("execute", 50*time.Millisecond), log)
	report := pipeline.NewStage("Report", reportHandler(log), log)

	match := pipeline.NewMatchStage(worker, inputFetch, log)
	driver := pipeline.NewDriver(match, []*pipeline.Stage{inputFetch, execute, report}, metrics, log)

	runErr := make(chan error, 1)
	go func() { runErr <- driver.Run(ctx) }()

	<-ctx.Done()
	log.Info("shutdown signal received, draining pipeline")

	shutdownCtx := context.Background()
	if cfg.Shutdown.Graceful {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, cfg.Shutdown.Timeout())
		defer cancel()
		if err := driver.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown did not complete cleanly", "error", err)
		}
	}

	return <-runErr
}

func constantClaims(k int) pipeline.ClaimsFunc {
	return func(*opctx.Context) int { return k }
}

func simulateWork(stageName string, d time.Duration) pipeline.Handler {
	return func(ctx context.Context, c *opctx.Context) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: %s interrupted", pipeline.ErrCancelled, stageName)
		}
	}
}

func reportHandler(log *slog.Logger) pipeline.Handler {
	return func(ctx context.Context, c *opctx.Context) error {
		op := c.Operation()
		op.Done = true
		op.Metadata.Stage = opctx.StageCompleted
		log.Info("operation completed", "name", op.Name)
		return nil
	}
}
