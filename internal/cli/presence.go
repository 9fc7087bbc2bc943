package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/buygag/claimdesk/internal/agent"
)

// PresenceOptions holds flags for the presence command.
type PresenceOptions struct {
	Watch    bool
	Interval time.Duration
}

// NewPresenceCommand creates the presence command.
func NewPresenceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PresenceOptions{}

	cmd := &cobra.Command{
		Use:   "presence [agent-id...]",
		Short: "Show delivery agent presence",
		Long: `Poll the presence service for the given agent ids, or for every
configured DELIVERY_AGENTS entry when none are given.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresence(rootOpts, opts, cmd, args)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "keep polling until interrupted")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "poll interval with --watch")

	return cmd
}

func runPresence(rootOpts *RootOptions, opts *PresenceOptions, cmd *cobra.Command, ids []string) error {
	ctx := cmd.Context()
	cfg, components, err := rootOpts.components(ctx, cmd)
	if err != nil {
		return err
	}

	directory := components.Agents
	if len(ids) > 0 {
		adhoc := make([]agent.Agent, 0, len(ids))
		for _, id := range ids {
			adhoc = append(adhoc, agent.Agent{ID: id})
		}
		directory = agent.NewDirectory(adhoc, cfg.Roblox.ProfileURL, components.Poller)
	}

	render := func(online map[string]bool) {
		statuses := directory.Build(online)
		_ = writeOutput(cmd.OutOrStdout(), rootOpts.Format, statuses, func(w io.Writer) error {
			for _, s := range statuses {
				fprintln(w, "%s\t%s", s.ID, onlineLabel(s.Online))
			}
			return nil
		})
	}

	if !opts.Watch {
		render(components.Poller.Poll(ctx, directory.IDs()))
		return nil
	}
	components.Poller.Watch(ctx, opts.Interval, directory.IDs(), render)
	return nil
}
