package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buygag/claimdesk/internal/logging"
)

type stubChecker struct {
	mu     sync.Mutex
	online map[string]bool
	fail   map[string]bool
	calls  map[string]int
}

func (s *stubChecker) Online(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[id]++
	if s.fail[id] {
		return false, errors.New("boom")
	}
	return s.online[id], nil
}

func TestPollReportsEachAgent(t *testing.T) {
	checker := &stubChecker{online: map[string]bool{"A": true}}

	got := NewPoller(checker, logging.Discard()).Poll(context.Background(), []string{"A", "B"})
	assert.Equal(t, map[string]bool{"A": true, "B": false}, got)
}

func TestPollFailureIsolatedToOneAgent(t *testing.T) {
	checker := &stubChecker{
		online: map[string]bool{"A": true, "B": true},
		fail:   map[string]bool{"B": true},
	}

	got := NewPoller(checker, logging.Discard()).Poll(context.Background(), []string{"A", "B"})
	assert.Equal(t, map[string]bool{"A": true, "B": false}, got)
}

func TestPollDeduplicatesIDs(t *testing.T) {
	checker := &stubChecker{}

	got := NewPoller(checker, logging.Discard()).Poll(context.Background(), []string{"A", "A"})
	assert.Equal(t, map[string]bool{"A": false}, got)
	assert.Equal(t, 1, checker.calls["A"])
}

func TestPollDuplicateKeepsFirstResult(t *testing.T) {
	ids := []string{"A"}
	for i := 0; i < 20; i++ {
		ids = append(ids, fmt.Sprintf("B%d", i))
	}
	ids = append(ids, "A")
	checker := &stubChecker{online: map[string]bool{"A": true}}

	got := NewPoller(checker, logging.Discard()).Poll(context.Background(), ids)
	assert.Len(t, got, 21)
	assert.True(t, got["A"])
	assert.Equal(t, 1, checker.calls["A"])
}

func TestWatchPollsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var rounds atomic.Int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewPoller(&stubChecker{}, logging.Discard()).Watch(ctx, 5*time.Millisecond, []string{"A"}, func(map[string]bool) {
			if rounds.Add(1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	assert.GreaterOrEqual(t, rounds.Load(), int32(3))
}

func newPresenceServer(t *testing.T, status int, reply func(id int64) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/presence/users", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var req presenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.UserIDs, 1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply(req.UserIDs[0])))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRobloxCheckerOnline(t *testing.T) {
	srv := newPresenceServer(t, http.StatusOK, func(id int64) string {
		if id == 100 {
			return `{"userPresences":[{"userId":100,"userPresenceType":2}]}`
		}
		return `{"userPresences":[{"userId":200,"userPresenceType":0}]}`
	})
	checker := NewRobloxChecker(srv.URL)

	online, err := checker.Online(context.Background(), "100")
	require.NoError(t, err)
	assert.True(t, online)

	online, err = checker.Online(context.Background(), "200")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestRobloxCheckerMissingEntryIsOffline(t *testing.T) {
	srv := newPresenceServer(t, http.StatusOK, func(int64) string { return `{"userPresences":[]}` })

	online, err := NewRobloxChecker(srv.URL).Online(context.Background(), "100")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestRobloxCheckerErrors(t *testing.T) {
	srv := newPresenceServer(t, http.StatusTooManyRequests, func(int64) string { return `{}` })
	checker := NewRobloxChecker(srv.URL)

	_, err := checker.Online(context.Background(), "100")
	assert.Error(t, err)

	_, err = checker.Online(context.Background(), "not-a-number")
	assert.Error(t, err)
}

func TestPollerOverRobloxChecker(t *testing.T) {
	srv := newPresenceServer(t, http.StatusOK, func(id int64) string {
		if id == 100 {
			return `{"userPresences":[{"userId":100,"userPresenceType":1}]}`
		}
		return `{"userPresences":[{"userId":200,"userPresenceType":0}]}`
	})

	got := NewPoller(NewRobloxChecker(srv.URL), logging.Discard()).Poll(context.Background(), []string{"100", "200", "bad"})
	assert.Equal(t, map[string]bool{"100": true, "200": false, "bad": false}, got)
}
