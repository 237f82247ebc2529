// Command vpf-730 runs the VPF-730 telemetry daemon: a producer that
// samples the sensor on a fixed cadence, a durable queue, and a worker
// that dispatches queued measurements to the local store and the remote
// sink.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RUBclim/vpf-730/internal/config"
	"github.com/RUBclim/vpf-730/internal/export"
	"github.com/RUBclim/vpf-730/internal/handlers"
	"github.com/RUBclim/vpf-730/internal/metrics"
	"github.com/RUBclim/vpf-730/internal/producer"
	"github.com/RUBclim/vpf-730/internal/queue"
	"github.com/RUBclim/vpf-730/internal/registry"
	"github.com/RUBclim/vpf-730/internal/sensor"
	"github.com/RUBclim/vpf-730/internal/storage/sqlite"
	"github.com/RUBclim/vpf-730/internal/types"
	"github.com/RUBclim/vpf-730/internal/worker"
)

var (
	flagConfigFile string
	flagLogFormat  string
	flagMetrics    bool
)

func newLogger() *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if flagLogFormat == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func loadConfig(cmd *cobra.Command, required ...string) (*config.Config, error) {
	return config.Load(cmd.Flags(), flagConfigFile, required...)
}

func buildRegistry(local *sqlite.Store) *registry.Registry {
	return registry.New().
		Register(handlers.TaskSaveLocally, handlers.NewSaveLocally(local)).
		Register(handlers.TaskPostData, handlers.NewPostData(nil)).
		Build()
}

// runE is the body of both `vpf-730` (bare, no subcommand) and
// `vpf-730 run`: open storage, build the registry/worker/producer, and
// block running the daemon until the context is cancelled. Bare
// invocation is the documented default per SPEC_FULL.md's CLI section;
// `run` exists as an explicit, discoverable name for the same behavior.
func runE(cmd *cobra.Command, pollInterval, cadence time.Duration) error {
	log := newLogger()
	cfg, err := loadConfig(cmd, config.RequireSerialPort, config.RequireEndpoint)
	if err != nil {
		return err
	}
	log.Info("starting vpf-730", "config", cfg.String())

	if flagMetrics {
		shutdown, err := metrics.Init(cmd.Context(), 30*time.Second)
		if err != nil {
			return fmt.Errorf("vpf730: metrics init: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	local, err := sqlite.Open(cfg.LocalDB)
	if err != nil {
		return fmt.Errorf("vpf730: open local db: %w", err)
	}
	defer func() { _ = local.Close() }()

	q, err := queue.New(cfg.QueueDB)
	if err != nil {
		return fmt.Errorf("vpf730: open queue db: %w", err)
	}
	defer func() { _ = q.Close() }()

	if _, err := metrics.RegisterQueueDepthSource(q.QSize); err != nil {
		return fmt.Errorf("vpf730: register queue depth gauge: %w", err)
	}

	src, err := sensor.OpenSerial(cfg.SerialPort, sensor.DefaultSerialConfig())
	if err != nil {
		return fmt.Errorf("vpf730: open serial port: %w", err)
	}
	defer func() { _ = src.Close() }()

	reg := buildRegistry(local)
	w := worker.New(q, reg, cfg, log, pollInterval)
	p := producer.New(q, src, log, cadence)

	return runDaemon(cmd.Context(), log, w, p)
}

// newRunCmd is the explicit `run` subcommand; it shares runE with the
// bare root command so `vpf-730` and `vpf-730 run` behave identically.
func newRunCmd(pollInterval, cadence *time.Duration) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the producer and worker daemon (same as bare vpf-730)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(cmd, *pollInterval, *cadence)
		},
	}
}

// runDaemon runs the producer and worker until ctx is cancelled. A first
// SIGINT/SIGTERM (delivered through ctx) triggers a graceful drain
// (finish_and_join); a second one aborts immediately.
func runDaemon(ctx context.Context, log *slog.Logger, w *worker.Worker, p *producer.Producer) error {
	// The worker runs on drainCtx, not ctx, so the first signal stops only
	// the producer and the worker keeps draining the queue.
	drainCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerDone := make(chan struct{})
	go func() {
		w.Run(drainCtx)
		close(workerDone)
	}()
	go p.Run(ctx)

	<-ctx.Done()
	log.Info("shutdown requested, waiting for worker to finish queued tasks")

	abort := make(chan os.Signal, 1)
	signal.Notify(abort, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(abort)

	drainDone := make(chan struct{})
	go func() {
		w.FinishAndJoin(drainCtx)
		close(drainDone)
	}()

	select {
	case <-drainDone:
		log.Info("worker drained, exiting")
	case <-abort:
		log.Warn("second interrupt received, aborting immediately")
		cancel()
		<-drainDone
	}
	return nil
}

// newLoggerCmd is the one-shot A10 mode: read one measurement and run it
// through both handlers directly, bypassing the durable queue entirely.
// Meant for manual sensor checkout, not unattended operation.
func newLoggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logger",
		Short: "Take a single sensor reading and send/save it directly, bypassing the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.RequireSerialPort, config.RequireEndpoint)
			if err != nil {
				return err
			}

			src, err := sensor.OpenSerial(cfg.SerialPort, sensor.DefaultSerialConfig())
			if err != nil {
				return fmt.Errorf("vpf730: open serial port: %w", err)
			}
			defer func() { _ = src.Close() }()

			m, err := src.Measure()
			if err != nil {
				return err
			}
			if m == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no reading: sensor read timed out")
				return nil
			}

			local, err := sqlite.Open(cfg.LocalDB)
			if err != nil {
				return fmt.Errorf("vpf730: open local db: %w", err)
			}
			defer func() { _ = local.Close() }()

			msg := types.NewMessage(handlers.TaskPostData, *m)
			if err := handlers.NewPostData(nil)(cmd.Context(), msg, cfg); err != nil {
				return fmt.Errorf("vpf730: post_data: %w", err)
			}
			if err := local.InsertMeasurement(cmd.Context(), *m); err != nil {
				return fmt.Errorf("vpf730: save_locally: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent and saved: %+v\n", *m)
			return nil
		},
	}
	return cmd
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the local measurements table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := sqlite.Open(cfg.LocalDB)
			if err != nil {
				return fmt.Errorf("vpf730: open local db: %w", err)
			}
			defer func() { _ = store.Close() }()

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return export.WriteCSV(cmd.Context(), store, w)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Destination file; defaults to stdout")
	return cmd
}

func newQueueCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or maintain the durable queue",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Print queue and dead-letter depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			q, err := queue.New(cfg.QueueDB)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()

			n, err := q.QSize(cmd.Context())
			if err != nil {
				return err
			}
			dn, err := q.DeadletterQSize(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%d deadletter=%d\n", n, dn)
			return nil
		},
	}

	requeue := &cobra.Command{
		Use:   "requeue-dead",
		Short: "Move every dead-lettered message back onto the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			q, err := queue.New(cfg.QueueDB)
			if err != nil {
				return err
			}
			defer func() { _ = q.Close() }()
			return q.DeadletterRequeue(cmd.Context())
		},
	}

	root.AddCommand(status, requeue)
	return root
}

func newRootCmd() *cobra.Command {
	var pollInterval, cadence time.Duration

	root := &cobra.Command{
		Use:   "vpf-730",
		Short: "VPF-730 telemetry daemon",
		Long: "Runs the producer+worker daemon by default, the same as `vpf-730 run`.\n" +
			"If no flags are provided, configuration is read from the environment:\n" +
			"  VPF730_LOCAL_DB, VPF730_QUEUE_DB, VPF730_PORT, VPF730_ENDPOINT, VPF730_API_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(cmd, pollInterval, cadence)
		},
	}
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Path to an .ini config file, section [vpf_730]")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "json", "Log output format: json or text")
	root.PersistentFlags().BoolVar(&flagMetrics, "metrics", false, "Export OpenTelemetry metrics to stdout")
	root.PersistentFlags().String("local-db", "", "Path to the local database")
	root.PersistentFlags().String("queue-db", "", "Path to the queue database")
	root.PersistentFlags().String("serial-port", "", "Serial port the VPF-730 sensor is connected to, e.g. /dev/ttyS0")
	root.PersistentFlags().String("endpoint", "", "API endpoint to send the data to; the API key comes from VPF730_API_KEY")
	root.PersistentFlags().DurationVar(&pollInterval, "poll-interval", worker.DefaultPollInterval, "Worker idle-queue poll interval")
	root.PersistentFlags().DurationVar(&cadence, "cadence", producer.DefaultCadence, "Sensor sampling cadence")

	root.AddCommand(newRunCmd(&pollInterval, &cadence), newLoggerCmd(), newExportCmd(), newQueueCmd())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
