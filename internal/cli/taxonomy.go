package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eamsync/internal/mapping"
	"github.com/roach88/eamsync/internal/taxonomy"
)

// TaxonomyPullOptions holds flags for the taxonomy pull command.
type TaxonomyPullOptions struct {
	*RootOptions
	Dictionary string
}

// pullResult is the taxonomy pull command's output payload.
type pullResult struct {
	Dictionary string `json:"dictionary"`
	Classes    int    `json:"classes"`
	Cache      string `json:"cache"`
}

// NewTaxonomyCommand creates the taxonomy command group.
func NewTaxonomyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Manage the local classification dictionary cache",
	}
	cmd.AddCommand(newTaxonomyPullCommand(rootOpts))
	return cmd
}

func newTaxonomyPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TaxonomyPullOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Refresh the cache from the dictionary service",
		Long: `Pull every class of the configured dictionary from the dictionary
service and replace the local cache with it. The sync command uses the
cache to resolve classification codes to display names.

Examples:
  eamsync taxonomy pull
  eamsync taxonomy pull --dictionary https://identifier.buildingsmart.org/uri/bac/BAC_OTL/0.1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaxonomyPull(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dictionary, "dictionary", "", "dictionary URI (default from the mapping rules)")

	return cmd
}

func runTaxonomyPull(opts *TaxonomyPullOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions)

	cfg, err := loadConfig(cmd, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}

	dict := opts.Dictionary
	if dict == "" {
		rules, err := mapping.Load(cfg.Rules)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading mapping rules", err)
		}
		dict = rules.Classification.Dictionary
	}
	if dict == "" {
		return NewExitError(ExitCommandError,
			"no dictionary configured: set classification.dictionary in the rules file or pass --dictionary")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client := taxonomy.NewClient(cfg.Taxonomy.URL, nil, logger)
	classes, err := client.Pull(ctx, dict)
	if err != nil {
		return WrapExitError(ExitFailure, "pulling dictionary", err)
	}

	tax, err := taxonomy.Open(cfg.Taxonomy.Cache)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening taxonomy cache", err)
	}
	defer tax.Close()
	if err := tax.PutClasses(ctx, dict, classes); err != nil {
		return WrapExitError(ExitCommandError, "writing taxonomy cache", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(pullResult{Dictionary: dict, Classes: len(classes), Cache: cfg.Taxonomy.Cache})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ pulled %d classes into %s\n", len(classes), cfg.Taxonomy.Cache)
	return nil
}
