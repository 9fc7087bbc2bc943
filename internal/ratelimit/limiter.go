// Package ratelimit implements the fixed-window attempt counter that gates
// claim verification. Counters live in an injected Store so the limiter is
// shared across requests without process-wide state.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	// UnknownClient is used when the caller has no network identifier.
	UnknownClient = "unknown"

	defaultMax    = 5
	defaultWindow = time.Minute
)

// Entry is the counter state for one client key.
type Entry struct {
	Count     int
	ExpiresAt time.Time
}

// Store atomically records an attempt for key. When the unexpired count has
// already reached limit the entry is returned untouched with recorded=false.
// An absent or expired entry restarts at count 1 with a fresh window.
type Store interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (entry Entry, recorded bool, err error)
}

// Decision is the outcome of CheckAndRecord.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

// Limiter applies a fixed window policy over a Store.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	scope  string
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source used to compute RetryAfter.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithScope namespaces keys so different limiters can share a Store.
func WithScope(scope string) Option {
	return func(l *Limiter) {
		l.scope = scope
	}
}

// New builds a limiter allowing max attempts per window per key.
func New(store Store, max int, window time.Duration, logger *slog.Logger, opts ...Option) *Limiter {
	if max <= 0 {
		max = defaultMax
	}
	if window <= 0 {
		window = defaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Limiter{store: store, max: max, window: window, scope: "claim_verify", logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max returns the configured attempts per window.
func (l *Limiter) Max() int { return l.max }

// CheckAndRecord records an attempt for clientKey and reports whether it is
// allowed. Store failures fail open with a warning so an infrastructure
// hiccup never blocks legitimate buyers.
func (l *Limiter) CheckAndRecord(ctx context.Context, clientKey string) Decision {
	key := strings.TrimSpace(clientKey)
	if key == "" {
		key = UnknownClient
	}
	if l.scope != "" {
		key = l.scope + ":" + key
	}

	entry, recorded, err := l.store.Hit(ctx, key, l.max, l.window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, allowing request",
			slog.String("scope", l.scope),
			slog.Any("error", err),
		)
		return Decision{Allowed: true}
	}
	if recorded {
		return Decision{Allowed: true, Count: entry.Count}
	}

	retry := entry.ExpiresAt.Sub(l.now())
	if retry < 0 {
		retry = 0
	}
	l.logger.Info("rate limit denied",
		slog.String("scope", l.scope),
		slog.Int("count", entry.Count),
		slog.Duration("retry_after", retry),
	)
	return Decision{Allowed: false, Count: entry.Count, RetryAfter: retry}
}
