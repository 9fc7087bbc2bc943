package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/buygag/claimdesk/internal/agent"
	"github.com/buygag/claimdesk/internal/config"
)

// AcceptFriendsResult lists the accepted requests.
type AcceptFriendsResult struct {
	Accepted []agent.FriendRequest `json:"accepted"`
	Error    string                `json:"error,omitempty"`
}

// NewAcceptFriendsCommand creates the accept-friends command.
func NewAcceptFriendsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accept-friends",
		Short: "Accept every pending friend request on the agent account",
		Long: `Accept all pending friend requests for the delivery agent whose
session cookie is in ROBLOX_COOKIE. Buyers under 13 befriend an agent
instead of joining its private server.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcceptFriends(rootOpts, cmd)
		},
	}
	return cmd
}

func runAcceptFriends(rootOpts *RootOptions, cmd *cobra.Command) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	client, err := newFriendsClient(rootOpts, cmd, cfg)
	if err != nil {
		return err
	}

	accepted, acceptErr := client.AcceptAll(cmd.Context())
	result := AcceptFriendsResult{Accepted: accepted}
	if acceptErr != nil {
		result.Error = acceptErr.Error()
	}

	if err := writeOutput(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
		for _, req := range accepted {
			fprintln(w, "accepted request from %s (%d)", req.Name, req.ID)
		}
		fprintln(w, "%d request(s) accepted", len(accepted))
		return nil
	}); err != nil {
		return err
	}
	return acceptErr
}

func newFriendsClient(rootOpts *RootOptions, cmd *cobra.Command, cfg config.Config) (*agent.FriendsClient, error) {
	return agent.NewFriendsClient(cfg.Roblox.FriendsURL, cfg.Roblox.Cookie, rootOpts.logger(cmd), rootOpts.upstream...)
}
