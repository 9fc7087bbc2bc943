package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/buygag/claimdesk/internal/upstream"
)

const csrfHeader = "x-csrf-token"

// ErrMissingCookie is returned when the agent session cookie is not configured.
var ErrMissingCookie = errors.New("agent: ROBLOX_COOKIE is not set")

// FriendRequest is one pending request to the agent account.
type FriendRequest struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// FriendsClient accepts pending friend requests on behalf of an agent
// account authenticated by its session cookie.
type FriendsClient struct {
	client  *upstream.Client
	baseURL string
	cookie  string
	logger  *slog.Logger
	csrf    string
}

// NewFriendsClient builds a client against baseURL (https://friends.roblox.com).
func NewFriendsClient(baseURL, cookie string, logger *slog.Logger, opts ...upstream.Option) (*FriendsClient, error) {
	if strings.TrimSpace(cookie) == "" {
		return nil, ErrMissingCookie
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FriendsClient{
		client:  upstream.New("roblox-friends", opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
		cookie:  cookie,
		logger:  logger,
	}, nil
}

type friendRequestsPage struct {
	NextPageCursor *string         `json:"nextPageCursor"`
	Data           []FriendRequest `json:"data"`
}

// Pending lists every pending request, following page cursors.
func (c *FriendsClient) Pending(ctx context.Context) ([]FriendRequest, error) {
	var out []FriendRequest
	cursor := ""
	for {
		query := url.Values{"limit": {"100"}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		var page friendRequestsPage
		if _, err := c.client.JSON(ctx, upstream.Request{
			Method:  http.MethodGet,
			URL:     c.baseURL + "/v1/my/friends/requests",
			Query:   query,
			Headers: c.authHeaders(),
		}, &page); err != nil {
			return nil, fmt.Errorf("list friend requests: %w", err)
		}
		out = append(out, page.Data...)
		if page.NextPageCursor == nil || *page.NextPageCursor == "" || *page.NextPageCursor == cursor {
			return out, nil
		}
		cursor = *page.NextPageCursor
	}
}

// Accept accepts a single request. A 403 carrying a fresh CSRF token is
// retried once with that token.
func (c *FriendsClient) Accept(ctx context.Context, requesterID int64) error {
	target := fmt.Sprintf("%s/v1/users/%d/accept-friend-request", c.baseURL, requesterID)
	for attempt := 0; attempt < 2; attempt++ {
		res, err := c.client.Do(ctx, upstream.Request{
			Method:  http.MethodPost,
			URL:     target,
			Headers: c.authHeaders(),
		})
		if err != nil {
			return fmt.Errorf("accept friend request %d: %w", requesterID, err)
		}
		if res.OK() {
			return nil
		}
		token := res.Header.Get(csrfHeader)
		if res.StatusCode == http.StatusForbidden && token != "" && token != c.csrf {
			c.csrf = token
			continue
		}
		return fmt.Errorf("accept friend request %d: %w", requesterID,
			&upstream.StatusError{Upstream: "roblox-friends", StatusCode: res.StatusCode, Body: string(res.Body)})
	}
	return fmt.Errorf("accept friend request %d: csrf token rejected", requesterID)
}

// AcceptAll accepts every pending request and returns the accepted ones.
// It stops at the first failure.
func (c *FriendsClient) AcceptAll(ctx context.Context) ([]FriendRequest, error) {
	pending, err := c.Pending(ctx)
	if err != nil {
		return nil, err
	}
	accepted := make([]FriendRequest, 0, len(pending))
	for _, req := range pending {
		if err := c.Accept(ctx, req.ID); err != nil {
			c.logger.Error("friend request accept failed", slog.Int64("user_id", req.ID), slog.Any("error", err))
			return accepted, err
		}
		c.logger.Info("friend request accepted", slog.Int64("user_id", req.ID), slog.String("username", req.Name))
		accepted = append(accepted, req)
	}
	return accepted, nil
}

func (c *FriendsClient) authHeaders() map[string]string {
	headers := map[string]string{"Cookie": ".ROBLOSECURITY=" + c.cookie}
	if c.csrf != "" {
		headers[csrfHeader] = c.csrf
	}
	return headers
}
