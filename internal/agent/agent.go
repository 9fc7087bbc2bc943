// Package agent describes the delivery accounts buyers befriend or join once
// a claim is submitted.
package agent

import (
	"context"
	"strings"

	"github.com/buygag/claimdesk/internal/config"
)

// Agent is a configured delivery account.
type Agent struct {
	ID         string
	ServerLink string
}

// Status is the call-to-action view of one agent. ServerURL is only set
// while the agent is online.
type Status struct {
	ID          string `json:"id"`
	Online      bool   `json:"online"`
	ProfileURL  string `json:"profileUrl"`
	ServerURL   string `json:"serverUrl,omitempty"`
	JoinEnabled bool   `json:"joinEnabled"`
}

// PresencePoller is satisfied by *presence.Poller.
type PresencePoller interface {
	Poll(ctx context.Context, agentIDs []string) map[string]bool
}

// Directory serves status for the configured agents only.
type Directory struct {
	agents     []Agent
	profileURL string
	poller     PresencePoller
}

// FromConfig converts configured agents.
func FromConfig(in []config.Agent) []Agent {
	out := make([]Agent, 0, len(in))
	for _, a := range in {
		out = append(out, Agent{ID: a.ID, ServerLink: a.ServerLink})
	}
	return out
}

// NewDirectory builds a directory. profileURL is the base that
// "/{id}/profile" is appended to.
func NewDirectory(agents []Agent, profileURL string, poller PresencePoller) *Directory {
	return &Directory{
		agents:     agents,
		profileURL: strings.TrimRight(profileURL, "/"),
		poller:     poller,
	}
}

// IDs returns the configured agent ids in order.
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.agents))
	for _, a := range d.agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// ProfileURL is the add-friend link for id.
func (d *Directory) ProfileURL(id string) string {
	return d.profileURL + "/" + id + "/profile"
}

// Statuses polls presence and builds one Status per configured agent.
func (d *Directory) Statuses(ctx context.Context) []Status {
	online := map[string]bool{}
	if len(d.agents) > 0 && d.poller != nil {
		online = d.poller.Poll(ctx, d.IDs())
	}
	return d.Build(online)
}

// Build renders statuses from an already polled presence map.
func (d *Directory) Build(online map[string]bool) []Status {
	out := make([]Status, 0, len(d.agents))
	for _, a := range d.agents {
		s := Status{ID: a.ID, Online: online[a.ID], ProfileURL: d.ProfileURL(a.ID)}
		if s.Online && a.ServerLink != "" {
			s.ServerURL = a.ServerLink
			s.JoinEnabled = true
		}
		out = append(out, s)
	}
	return out
}
