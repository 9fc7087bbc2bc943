package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSessionTTL = 30 * time.Minute
	sessionKeyPrefix  = "claim:session:v1:"
	lockKeyPrefix     = "claim:lock:v1:"
)

// ErrSessionBusy is returned by Lock while another request holds the session.
var ErrSessionBusy = errors.New("claim: session is busy")

// Unlock releases a session lock.
type Unlock func(ctx context.Context) error

// SessionStore persists sessions between requests. Save refreshes the TTL.
// Lock is exclusive per session id and expires after ttl if never released.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, session Session) error
	Lock(ctx context.Context, id string, ttl time.Duration) (Unlock, error)
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Used in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	locks   map[string]memoryLock
	lockSeq uint64
}

type memoryLock struct {
	token     uint64
	expiresAt time.Time
}

// NewMemoryStore builds an in-memory store. A nil clock uses time.Now.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ttl: ttl, now: now, entries: make(map[string]memoryEntry), locks: make(map[string]memoryLock)}
}

// Get implements SessionStore.
func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, id)
		return Session{}, ErrSessionNotFound
	}
	return cloneSession(entry.session), nil
}

// Save implements SessionStore.
func (s *MemoryStore) Save(_ context.Context, session Session) error {
	if session.ID == "" {
		return errors.New("claim: session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.entries[session.ID] = memoryEntry{session: cloneSession(session), expiresAt: now.Add(s.ttl)}
	return nil
}

// Lock implements SessionStore.
func (s *MemoryStore) Lock(_ context.Context, id string, ttl time.Duration) (Unlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if held, ok := s.locks[id]; ok && now.Before(held.expiresAt) {
		return nil, ErrSessionBusy
	}
	s.lockSeq++
	token := s.lockSeq
	s.locks[id] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if held, ok := s.locks[id]; ok && held.token == token {
			delete(s.locks, id)
		}
		return nil
	}, nil
}

func cloneSession(s Session) Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	if s.ClaimedAt != nil {
		at := *s.ClaimedAt
		s.ClaimedAt = &at
	}
	return s
}

// releaseLock deletes the lock only while it still carries our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps sessions in Redis as JSON with a TTL.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Get implements SessionStore.
func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

// Save implements SessionStore.
func (s *RedisStore) Save(ctx context.Context, session Session) error {
	if session.ID == "" {
		return errors.New("claim: session id is required")
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.ID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Lock implements SessionStore with SET NX and a token checked on release.
func (s *RedisStore) Lock(ctx context.Context, id string, ttl time.Duration) (Unlock, error) {
	key := lockKeyPrefix + id
	token := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if !acquired {
		return nil, ErrSessionBusy
	}
	return func(ctx context.Context) error {
		if err := releaseLock.Run(ctx, s.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("unlock session: %w", err)
		}
		return nil
	}, nil
}
