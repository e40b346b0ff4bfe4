package cli

import (
	"github.com/spf13/cobra"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete everything previous runs created in the target system",
		Long: `Delete every location and asset recorded in the snapshot and journal
from the target system, children before parents.

Only recorded state is deleted; locations that exist in the target but
were never created by a run are left alone unless they block a recorded
parent, in which case they are cascaded into. A delete the target refuses
stays recorded and is retried by the next cleanup.

Exit codes:
  0 - Everything recorded was deleted
  1 - Some deletes failed, or the run aborted on a journal error
  2 - Command error (bad config, not logged in)

Examples:
  eamsync cleanup
  eamsync cleanup --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(rootOpts, cmd)
		},
	}

	return cmd
}

func runCleanup(opts *RootOptions, cmd *cobra.Command) error {
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

	report, err := orch.Cleanup(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "cleanup aborted", err)
	}
	return outputReport(cmd, opts, report, "E_CLEANUP_FAILED")
}
