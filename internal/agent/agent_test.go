package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buygag/claimdesk/internal/config"
	"github.com/buygag/claimdesk/internal/logging"
)

type mapPoller map[string]bool

func (m mapPoller) Poll(_ context.Context, ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = m[id]
	}
	return out
}

func TestDirectoryStatuses(t *testing.T) {
	agents := FromConfig([]config.Agent{
		{ID: "A", ServerLink: "https://www.roblox.com/share?code=a&type=Server"},
		{ID: "B", ServerLink: "https://www.roblox.com/share?code=b&type=Server"},
		{ID: "C"},
	})
	dir := NewDirectory(agents, "https://www.roblox.com/users/", mapPoller{"A": true, "C": true})

	got := dir.Statuses(context.Background())
	require.Len(t, got, 3)

	assert.Equal(t, Status{
		ID: "A", Online: true,
		ProfileURL:  "https://www.roblox.com/users/A/profile",
		ServerURL:   "https://www.roblox.com/share?code=a&type=Server",
		JoinEnabled: true,
	}, got[0])
	assert.Equal(t, Status{ID: "B", ProfileURL: "https://www.roblox.com/users/B/profile"}, got[1])
	assert.Equal(t, Status{ID: "C", Online: true, ProfileURL: "https://www.roblox.com/users/C/profile"}, got[2])
}

func TestDirectoryWithoutAgents(t *testing.T) {
	dir := NewDirectory(nil, "https://www.roblox.com/users", mapPoller{})
	assert.Empty(t, dir.Statuses(context.Background()))
}

type fakeFriends struct {
	token     string
	accepted  []string
	failID    string
	pageCalls int
}

func (f *fakeFriends) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/my/friends/requests", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ".ROBLOSECURITY=test-cookie", r.Header.Get("Cookie"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		f.pageCalls++
		if r.URL.Query().Get("cursor") == "" {
			_, _ = w.Write([]byte(`{"nextPageCursor":"page2","data":[{"id":11,"name":"alice"},{"id":12,"name":"bob"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"nextPageCursor":null,"data":[{"id":13,"name":"carol"}]}`))
	})
	mux.HandleFunc("POST /v1/users/{id}/accept-friend-request", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(csrfHeader) != f.token {
			w.Header().Set(csrfHeader, f.token)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		id := r.PathValue("id")
		if id == f.failID {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.accepted = append(f.accepted, id)
		_, _ = w.Write([]byte(`{}`))
	})
	return mux
}

func newFriends(t *testing.T, f *fakeFriends) *FriendsClient {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewFriendsClient(srv.URL, "test-cookie", logging.Discard())
	require.NoError(t, err)
	return c
}

func TestAcceptAllFollowsCursorAndCSRF(t *testing.T) {
	f := &fakeFriends{token: "tok-1"}

	accepted, err := newFriends(t, f).AcceptAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, accepted, 3)
	assert.Equal(t, []string{"11", "12", "13"}, f.accepted)
	assert.Equal(t, 2, f.pageCalls)
}

func TestAcceptAllStopsAtFirstFailure(t *testing.T) {
	f := &fakeFriends{token: "tok-1", failID: "12"}

	accepted, err := newFriends(t, f).AcceptAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(12))
	assert.Len(t, accepted, 1)
}

func TestNewFriendsClientRequiresCookie(t *testing.T) {
	_, err := NewFriendsClient("https://friends.roblox.com", " ", nil)
	assert.ErrorIs(t, err, ErrMissingCookie)
}
