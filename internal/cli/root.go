package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/buygag/claimdesk/internal/bootstrap"
	"github.com/buygag/claimdesk/internal/config"
	"github.com/buygag/claimdesk/internal/logging"
	"github.com/buygag/claimdesk/internal/upstream"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	loadConfig func() (config.Config, error)
	upstream   []upstream.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the claimctl CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claimctl",
		Short: "claimctl - claim desk operator tools",
		Long:  "Support and delivery-agent tooling for the self-service claim desk.",

		// main prints the returned error once.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewPresenceCommand(opts))
	cmd.AddCommand(NewAcceptFriendsCommand(opts))

	return cmd
}

// logger writes to stderr so JSON output on stdout stays parseable.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logging.NewWithWriter(cmd.ErrOrStderr(), level, "text")
}

func (o *RootOptions) components(ctx context.Context, cmd *cobra.Command) (config.Config, *bootstrap.Components, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	components, err := bootstrap.New(ctx, bootstrap.Deps{Cfg: cfg, Logger: o.logger(cmd), Upstream: o.upstream})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, components, nil
}
