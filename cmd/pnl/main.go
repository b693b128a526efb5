package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/application"
	"github.com/alejandrodnm/polypnl/internal/backfill"
	"github.com/alejandrodnm/polypnl/internal/pipeline"
	"github.com/alejandrodnm/polypnl/internal/reconcile"
)

const usage = `usage: pnl <command> [flags]

commands:
  backfill   fetch fills, resolutions and prices for wallets and freeze a snapshot
  compute    compute P&L for a stored snapshot
  reconcile  compute, compare against the leaderboard and apply the regression gate
  snapshots  list stored snapshots
`

// exitDivergence es el código de salida cuando el gate de reconciliación falla.
const exitDivergence = 2

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	logFormat := fs.String("format", "", "log format: text|json (overrides config)")

	var run func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error
	switch cmd {
	case "backfill":
		wallets := fs.String("wallets", "", "comma-separated wallet addresses")
		job := fs.String("job", "", "job id to resume (default: new job)")
		label := fs.String("label", "", "snapshot label")
		run = func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
			return runBackfill(ctx, cfg, store, splitList(*wallets), *job, *label)
		}
	case "compute":
		snapshot := fs.String("snapshot", "", "snapshot id")
		positions := fs.Bool("positions", false, "print the per-position table")
		method := fs.String("method", "", "accounting method: average_cost|fifo (overrides config)")
		run = func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
			return runCompute(ctx, cfg, store, *snapshot, *method, *positions, false, false)
		}
	case "reconcile":
		snapshot := fs.String("snapshot", "", "snapshot id")
		positions := fs.Bool("positions", false, "print the per-position table")
		method := fs.String("method", "", "accounting method: average_cost|fifo (overrides config)")
		gate := fs.Bool("gate", false, "exit with status 2 when any wallet diverges")
		run = func(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
			return runCompute(ctx, cfg, store, *snapshot, *method, *positions, true, *gate)
		}
	case "snapshots":
		run = func(ctx context.Context, _ *config.Config, store *storage.SQLiteStorage) error {
			infos, err := store.ListSnapshots(ctx)
			if err != nil {
				return err
			}
			notify.NewConsole(false).PrintSnapshots(infos)
			return nil
		}
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(1)
	}
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, store); err != nil {
		if errors.Is(err, reconcile.ErrDivergence) {
			slog.Error("reconciliation gate failed", "err", err)
			store.Close()
			os.Exit(exitDivergence)
		}
		slog.Error("command failed", "command", cmd, "err", err)
		store.Close()
		os.Exit(1)
	}
}

func runBackfill(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, wallets []string, job, label string) error {
	if len(wallets) == 0 {
		return fmt.Errorf("backfill: -wallets is required")
	}
	if job == "" {
		job = backfill.NewJobID()
	}

	sources, err := application.BuildSources(ctx, cfg)
	if err != nil {
		return err
	}
	defer sources.Close()

	slog.Info("polypnl backfill starting", "job", job, "wallets", len(wallets), "source", cfg.Source.Kind)

	runner := backfill.NewRunner(sources.Fills, sources.Resolutions, sources.Prices, store, store, backfill.Config{
		Label:      label,
		Precedence: cfg.Engine.ResolutionPrecedence,
	})
	info, err := runner.Run(ctx, job, wallets)
	if err != nil {
		slog.Error("backfill interrupted, resume with -job", "job", job)
		return err
	}

	fmt.Fprintf(os.Stdout, "snapshot %s: %d wallets, %d fills, %d resolution candidates, %d prices\n",
		info.ID, len(info.Wallets), info.Fills, info.Resolutions, info.Prices)
	return nil
}

func runCompute(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, snapshot, method string, positions, reconcileRun, gate bool) error {
	if snapshot == "" {
		return fmt.Errorf("-snapshot is required")
	}
	if method != "" {
		cfg.Engine.Method = method
	}
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	var svc *application.Service
	notifier := notify.NewConsole(positions)
	if reconcileRun {
		sources, err := application.BuildSources(ctx, cfg)
		if err != nil {
			return err
		}
		defer sources.Close()
		svc = application.NewService(pipeline.New(pcfg), store, sources.Reference, notifier)
	} else {
		svc = application.NewService(pipeline.New(pcfg), store, nil, notifier)
	}

	run, err := svc.Compute(ctx, snapshot, reconcileRun)
	if err != nil {
		return err
	}
	slog.Info("run stored", "run", run.RunID, "snapshot", run.SnapshotID)

	if gate {
		return svc.Gate(run)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
