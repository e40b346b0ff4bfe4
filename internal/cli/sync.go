package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/eamsync/internal/auth"
	"github.com/roach88/eamsync/internal/bim"
	"github.com/roach88/eamsync/internal/config"
	"github.com/roach88/eamsync/internal/eam"
	"github.com/roach88/eamsync/internal/engine"
	"github.com/roach88/eamsync/internal/mapping"
	"github.com/roach88/eamsync/internal/store"
	"github.com/roach88/eamsync/internal/taxonomy"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the source model into the target system",
		Long: `Reconcile the source model's location hierarchy and assets into the
target system.

Locations are created parents-first, assets are placed at their locations,
and the target ids are written back to the source model. Every creation is
journaled before it happens, so an interrupted run picks up where it left
off instead of duplicating work.

Exit codes:
  0 - Run finished with nothing to report
  1 - Run finished with failures, or aborted on a journal error
  2 - Command error (bad config, not logged in)

Examples:
  eamsync sync
  eamsync sync --config prod.yaml --verbose
  eamsync sync --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}

	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	orch, cleanup, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := orch.FullSync(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "sync aborted", err)
	}
	return outputReport(cmd, opts, report, "E_SYNC_FAILED")
}

// buildOrchestrator wires the reconciliation engine from the config:
// clients for both systems, the journal and snapshot stores, the mapper
// with its taxonomy-backed class resolver. The returned func releases the
// journal and the taxonomy cache.
func buildOrchestrator(ctx context.Context, cfg config.Config, logger *slog.Logger) (*engine.Orchestrator, func(), error) {
	rules, err := mapping.Load(cfg.Rules)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "loading mapping rules", err)
	}

	authn, err := auth.New(authConfig(cfg), logger)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "configuring authentication", err)
	}
	httpClient, err := authn.Client(ctx)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "authenticating", err)
	}

	taxStore, err := taxonomy.Open(cfg.Taxonomy.Cache)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening taxonomy cache", err)
	}

	journal := store.NewJournal(cfg.Journal, logger)
	orch := engine.New(engine.SyncContext{
		Journal:   journal,
		Snapshot:  store.NewSnapshotStore(cfg.Snapshot, logger),
		Source:    bim.New(cfg.Source.URL, httpClient, logger),
		Target:    eam.New(cfg.Target.URL, cfg.Target.APIKey, nil, logger),
		Mapper:    mapping.NewMapper(rules, taxStore, logger),
		Tokens:    engine.UUIDv7Generator{},
		Logger:    logger,
		ProjectID: cfg.Source.ProjectID,
		ModelID:   cfg.Source.ModelID,
	})

	cleanup := func() {
		if err := journal.Close(); err != nil {
			logger.Error("closing journal", "error", err)
		}
		if err := taxStore.Close(); err != nil {
			logger.Error("closing taxonomy cache", "error", err)
		}
	}
	return orch, cleanup, nil
}

func authConfig(cfg config.Config) auth.Config {
	return auth.Config{
		Issuer:      cfg.Auth.Issuer,
		ClientID:    cfg.Auth.ClientID,
		RedirectURL: cfg.Auth.RedirectURL,
		Audience:    cfg.Auth.Audience,
		Scopes:      cfg.Auth.Scopes,
		TokenFile:   cfg.Auth.TokenFile,
	}
}

// signalContext derives the command context and cancels it on SIGINT or
// SIGTERM. An interrupted run is safe: the journal already holds every
// creation, and the next run resumes from it.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, aborting run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// outputReport renders a run report in the configured format. A report
// with failures exits with code 1 after rendering.
func outputReport(cmd *cobra.Command, opts *RootOptions, report *engine.Report, failCode string) error {
	if opts.Format == "json" {
		resp := CLIResponse{
			Status:   "ok",
			Data:     report,
			RunToken: report.RunToken,
		}
		if !report.Clean() {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    failCode,
				Message: fmt.Sprintf("%d entity failure(s)", len(report.Failures)),
			}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		writeReportText(cmd.OutOrStdout(), report)
	}

	if !report.Clean() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d entity failure(s)", len(report.Failures)))
	}
	return nil
}

func writeReportText(w io.Writer, report *engine.Report) {
	fmt.Fprintf(w, "run %s\n", report.RunToken)
	fmt.Fprintf(w, "  locations created: %d\n", report.LocationsCreated)
	fmt.Fprintf(w, "  locations deleted: %d\n", report.LocationsDeleted)
	fmt.Fprintf(w, "  assets created:    %d\n", report.AssetsCreated)
	fmt.Fprintf(w, "  assets deleted:    %d\n", report.AssetsDeleted)
	fmt.Fprintf(w, "  assets skipped:    %d\n", report.AssetsSkipped)

	if report.Clean() {
		fmt.Fprintln(w, "✓ no failures")
		return
	}
	fmt.Fprintf(w, "✗ %d failure(s):\n", len(report.Failures))
	for _, f := range report.Failures {
		id := f.SourceID
		if id == "" {
			id = f.TargetID
		}
		fmt.Fprintf(w, "  - %s %s: %s\n", f.Kind, id, f.Reason)
	}
}
