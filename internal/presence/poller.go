// Package presence reports whether delivery agents are online. Results
// only drive which call-to-action is enabled; they never gate a claim
// transition.
package presence

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buygag/claimdesk/internal/upstream"
)

// PresenceOffline is the only presence type that means offline.
const PresenceOffline = 0

const maxConcurrentPolls = 8

// Checker asks the presence service about a single agent.
type Checker interface {
	Online(ctx context.Context, agentID string) (bool, error)
}

// Poller fans out one independent check per agent.
type Poller struct {
	checker Checker
	logger  *slog.Logger
}

// NewPoller builds a poller over checker.
func NewPoller(checker Checker, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{checker: checker, logger: logger}
}

// Poll returns agentID -> online for every requested id. A failed check
// resolves to false and never affects other agents.
func (p *Poller) Poll(ctx context.Context, agentIDs []string) map[string]bool {
	result := make(map[string]bool, len(agentIDs))
	var mu sync.Mutex

	// Checks never return an error, the group only bounds concurrency.
	var g errgroup.Group
	g.SetLimit(maxConcurrentPolls)
	for _, id := range agentIDs {
		mu.Lock()
		_, seen := result[id]
		if !seen {
			result[id] = false
		}
		mu.Unlock()
		if seen {
			continue
		}

		g.Go(func() error {
			online, err := p.checker.Online(ctx, id)
			if err != nil {
				p.logger.Warn("presence check failed", slog.String("agent_id", id), slog.Any("error", err))
				return nil
			}
			mu.Lock()
			result[id] = online
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return result
}

// Watch polls immediately and then every interval until ctx is done.
func (p *Poller) Watch(ctx context.Context, interval time.Duration, agentIDs []string, fn func(map[string]bool)) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	fn(p.Poll(ctx, agentIDs))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(p.Poll(ctx, agentIDs))
		}
	}
}

// RobloxChecker queries the Roblox presence API.
type RobloxChecker struct {
	client  *upstream.Client
	baseURL string
}

// NewRobloxChecker builds a checker against baseURL (https://presence.roblox.com).
func NewRobloxChecker(baseURL string, opts ...upstream.Option) *RobloxChecker {
	return &RobloxChecker{
		client:  upstream.New("roblox-presence", opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type presenceRequest struct {
	UserIDs []int64 `json:"userIds"`
}

type presenceResponse struct {
	UserPresences []struct {
		UserID           int64 `json:"userId"`
		UserPresenceType *int  `json:"userPresenceType"`
	} `json:"userPresences"`
}

// Online implements Checker. A reply without the agent's presence counts as offline.
func (c *RobloxChecker) Online(ctx context.Context, agentID string) (bool, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(agentID), 10, 64)
	if err != nil {
		return false, err
	}

	var body presenceResponse
	if _, err := c.client.JSON(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v1/presence/users",
		Body:   presenceRequest{UserIDs: []int64{id}},
	}, &body); err != nil {
		return false, err
	}
	for _, p := range body.UserPresences {
		if p.UserID == id && p.UserPresenceType != nil {
			return *p.UserPresenceType != PresenceOffline, nil
		}
	}
	return false, nil
}
