package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eamsync/internal/engine"
	"github.com/roach88/eamsync/internal/store"
	"github.com/roach88/eamsync/internal/taxonomy"
)

// statusData is the status command's output payload.
type statusData struct {
	*engine.Status
	Taxonomy taxonomyStatus `json:"taxonomy"`
}

type taxonomyStatus struct {
	Classes  int    `json:"classes"`
	PulledAt string `json:"pulledAt,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the persisted reconciliation state",
		Long: `Show what the local state files record: committed snapshot counts,
pending journal records from an uncommitted run, and the taxonomy cache.

Touches neither remote system, so it needs no login.

Examples:
  eamsync status
  eamsync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	journal := store.NewJournal(cfg.Journal, logger)
	defer journal.Close()
	orch := engine.New(engine.SyncContext{
		Journal:  journal,
		Snapshot: store.NewSnapshotStore(cfg.Snapshot, logger),
		Logger:   logger,
	})

	st, err := orch.Status()
	if err != nil {
		return WrapExitError(ExitCommandError, "reading state", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	tax, err := taxonomyInfo(ctx, cfg.Taxonomy.Cache)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading taxonomy cache", err)
	}

	data := statusData{Status: st, Taxonomy: tax}
	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(data)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "snapshot: %d locations, %d assets\n", st.SnapshotLocations, st.SnapshotAssets)
	if st.JournalRecords == 0 {
		fmt.Fprintln(w, "journal:  empty, state is committed")
	} else {
		fmt.Fprintf(w, "journal:  %d pending records (%d locations, %d assets), next run resumes them\n",
			st.JournalRecords, st.PendingLocations, st.PendingAssets)
	}
	if tax.Classes == 0 {
		fmt.Fprintln(w, `taxonomy: cache empty, run "eamsync taxonomy pull"`)
	} else {
		fmt.Fprintf(w, "taxonomy: %d classes (pulled %s)\n", tax.Classes, tax.PulledAt)
	}
	return nil
}

func taxonomyInfo(ctx context.Context, cachePath string) (taxonomyStatus, error) {
	tax, err := taxonomy.Open(cachePath)
	if err != nil {
		return taxonomyStatus{}, err
	}
	defer tax.Close()

	count, err := tax.Count(ctx)
	if err != nil {
		return taxonomyStatus{}, err
	}
	info := taxonomyStatus{Classes: count}
	if at, ok, err := tax.LastPulledAt(ctx); err != nil {
		return taxonomyStatus{}, err
	} else if ok {
		info.PulledAt = at.UTC().Format(time.RFC3339)
	}
	return info, nil
}
