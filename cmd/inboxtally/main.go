package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/inboxtally/internal/cache"
	"github.com/joshsymonds/inboxtally/internal/config"
	"github.com/joshsymonds/inboxtally/internal/fetch"
	"github.com/joshsymonds/inboxtally/internal/gmailctl"
	"github.com/joshsymonds/inboxtally/internal/rate"
	"github.com/joshsymonds/inboxtally/internal/runtime"
	"github.com/joshsymonds/inboxtally/internal/tally"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		runtime.DefaultLogger().Error("inboxtally failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inboxtally",
		Short: "Count how many inbox threads carry each Gmail label",
		Long: `inboxtally lists the threads in your Gmail inbox, reads each thread's labels
from a local cache or the Gmail API, and prints how many threads carry each
label together with the number of unread and untagged inbox threads.

Settings are read from $INBOXTALLY_CONFIG (default: <config dir>/inboxtally/config.yaml)
and INBOXTALLY_* environment variables.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(os.Stderr, level)

	client, err := runtime.NewGmailClient(ctx, runtime.AuthOptions{
		Dir:      cfg.CredentialsDir,
		Provider: runtime.Provider(cfg.AuthProvider),
		Out:      out,
	})
	if err != nil {
		return fmt.Errorf("create gmail client: %w", err)
	}

	var (
		limiter rate.Limiter
		bucket  *rate.TokenBucket
	)
	if cfg.RPS > 0 {
		bucket = rate.NewTokenBucket(cfg.RPS, cfg.Concurrency)
		limiter = bucket
		defer bucket.Stop()
	}

	if err := os.MkdirAll(cfg.CacheDir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	svc := tally.NewService(
		client,
		limiter,
		logger,
		cache.NewStore(cfg.CacheDir, logger),
		cache.NewIDList(cfg.CacheDir, logger),
	)
	svc.Fetcher.Concurrency = cfg.Concurrency
	svc.Fetcher.Retry = fetch.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff:    fetch.Linear(cfg.Retry.BackoffStep),
	}
	if cfg.Untagged.FromGmailctl {
		svc.Untagged = gmailctl.Runner{Binary: cfg.Untagged.GmailctlBinary, ConfigDir: cfg.Untagged.GmailctlConfig}
	}

	fmt.Fprintln(out, "Scanning inbox threads...")
	rep, err := svc.Run(ctx, tally.Options{
		PageSize:       cfg.PageSize,
		Strict:         cfg.StrictAbort,
		TerminalLabels: cfg.Stability.TerminalLabels,
		UntaggedLabels: cfg.Untagged.Labels,
		Progress:       out,
	})
	if err != nil {
		return fmt.Errorf("run scan: %w", err)
	}

	if printErr := tally.PrintHuman(rep, out); printErr != nil {
		return fmt.Errorf("print report: %w", printErr)
	}
	if cfg.JSONOut == "" {
		return nil
	}
	if writeErr := tally.WriteJSON(rep, cfg.JSONOut); writeErr != nil {
		return fmt.Errorf("write json: %w", writeErr)
	}
	logger.Info("wrote json report", slog.String("path", cfg.JSONOut))
	return nil
}
