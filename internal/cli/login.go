package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/eamsync/internal/auth"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the source platform",
		Long: `Open the identity provider's login page in a browser and cache the
issued token. The sync, cleanup and taxonomy commands refresh the cached
token silently; run login again only when the refresh token expires.

Examples:
  eamsync login
  eamsync login --config prod.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(rootOpts, cmd)
		},
	}

	return cmd
}

func runLogin(opts *RootOptions, cmd *cobra.Command) error {
	logger := newLogger(opts)

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	authn, err := auth.New(authConfig(cfg), logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "configuring authentication", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if err := authn.Login(ctx); err != nil {
		return WrapExitError(ExitFailure, "login failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(fmt.Sprintf("logged in, token cached at %s", cfg.Auth.TokenFile))
}
