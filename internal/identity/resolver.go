package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/buygag/claimdesk/internal/upstream"
)

// RobloxResolver maps a username to an account id, then the id to an avatar
// headshot. Nothing is cached; a corrected handle is re-resolved.
type RobloxResolver struct {
	users      *upstream.Client
	thumbnails *upstream.Client
	usersURL   string
	thumbsURL  string
	logger     *slog.Logger
}

// NewRobloxResolver builds a resolver against the users and thumbnails APIs.
func NewRobloxResolver(usersURL, thumbnailsURL string, logger *slog.Logger, opts ...upstream.Option) *RobloxResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobloxResolver{
		users:      upstream.New("roblox-users", opts...),
		thumbnails: upstream.New("roblox-thumbnails", opts...),
		usersURL:   strings.TrimRight(usersURL, "/"),
		thumbsURL:  strings.TrimRight(thumbnailsURL, "/"),
		logger:     logger,
	}
}

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"data"`
}

type thumbnailsResponse struct {
	Data []struct {
		TargetID int64  `json:"targetId"`
		State    string `json:"state"`
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// Resolve returns ErrNotFound when the handle matches no account and
// ErrLookupFailed when either leg fails.
func (r *RobloxResolver) Resolve(ctx context.Context, handle string) (Identity, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return Identity{}, ErrNotFound
	}

	var users usernamesResponse
	if _, err := r.users.JSON(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    r.usersURL + "/v1/usernames/users",
		Body:   usernamesRequest{Usernames: []string{handle}},
	}, &users); err != nil {
		r.logger.Error("username lookup failed", slog.String("handle", handle), slog.Any("error", err))
		return Identity{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if len(users.Data) == 0 || users.Data[0].ID == 0 {
		r.logger.Info("username not found", slog.String("handle", handle))
		return Identity{}, ErrNotFound
	}
	user := users.Data[0]

	var thumbs thumbnailsResponse
	if _, err := r.thumbnails.JSON(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    r.thumbsURL + "/v1/users/avatar-headshot",
		Query: url.Values{
			"userIds":    {strconv.FormatInt(user.ID, 10)},
			"size":       {"150x150"},
			"format":     {"Png"},
			"isCircular": {"false"},
		},
	}, &thumbs); err != nil {
		r.logger.Error("avatar lookup failed", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return Identity{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if len(thumbs.Data) == 0 || thumbs.Data[0].ImageURL == "" {
		r.logger.Warn("avatar not available", slog.Int64("user_id", user.ID))
		return Identity{}, fmt.Errorf("%w: no avatar for user %d", ErrLookupFailed, user.ID)
	}

	return Identity{
		NumericID:   user.ID,
		AvatarRef:   thumbs.Data[0].ImageURL,
		Username:    user.Name,
		DisplayName: user.DisplayName,
	}, nil
}
