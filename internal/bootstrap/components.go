// Package bootstrap builds the claim components from configuration. The
// HTTP server and the operator CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/buygag/claimdesk/internal/agent"
	"github.com/buygag/claimdesk/internal/claim"
	"github.com/buygag/claimdesk/internal/commerce"
	"github.com/buygag/claimdesk/internal/config"
	"github.com/buygag/claimdesk/internal/identity"
	"github.com/buygag/claimdesk/internal/notification"
	"github.com/buygag/claimdesk/internal/presence"
	"github.com/buygag/claimdesk/internal/ratelimit"
	"github.com/buygag/claimdesk/internal/upstream"
)

// Components are the wired collaborators of the claim workflow.
type Components struct {
	Validator       *commerce.Validator
	Resolver        *identity.RobloxResolver
	Poller          *presence.Poller
	Agents          *agent.Directory
	Notifier        notification.Notifier
	VerifyLimiter   *ratelimit.Limiter
	PresenceLimiter *ratelimit.Limiter
	Claims          *claim.Service
}

// Deps are the optional backing stores. Nil stores fall back to in-process
// implementations, and a nil DB disables the claim archive.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Upstream options appended to every outbound client, used by tests.
	Upstream []upstream.Option
}

// New wires every component.
func New(ctx context.Context, d Deps) (*Components, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	cfg, logger := d.Cfg, d.Logger
	opts := append([]upstream.Option{upstream.WithTimeout(cfg.UpstreamTimeout)}, d.Upstream...)

	agents, err := cfg.Agents()
	if err != nil {
		return nil, err
	}

	oracle := commerce.NewShopifyOracle(commerce.ShopifyConfig{
		StoreDomain: cfg.Shopify.StoreDomain,
		AccessToken: cfg.Shopify.AccessToken,
		APIVersion:  cfg.Shopify.APIVersion,
		BaseURL:     cfg.Shopify.BaseURL,
	}, logger, opts...)
	validator := commerce.NewValidator(oracle, logger)
	resolver := identity.NewRobloxResolver(cfg.Roblox.UsersURL, cfg.Roblox.ThumbnailsURL, logger, opts...)
	poller := presence.NewPoller(presence.NewRobloxChecker(cfg.Roblox.PresenceURL, opts...), logger)

	notifier, err := newNotifier(ctx, d, opts)
	if err != nil {
		return nil, err
	}

	var store ratelimit.Store = ratelimit.NewMemoryStore(time.Now)
	var sessions claim.SessionStore = claim.NewMemoryStore(cfg.SessionTTL, nil)
	if d.Cache != nil {
		store = ratelimit.NewRedisStore(d.Cache)
		sessions = claim.NewRedisStore(d.Cache, cfg.SessionTTL)
	}
	verifyLimiter := ratelimit.New(store, cfg.RateLimitMax, cfg.RateLimitWindow, logger, ratelimit.WithScope("claim_verify"))
	presenceLimiter := ratelimit.New(store, cfg.PresenceRateLimitMax, cfg.RateLimitWindow, logger, ratelimit.WithScope("agent_status"))

	workflow := claim.NewWorkflow(validator, resolver, verifyLimiter, notifier, logger, claim.WithMaxAttempts(cfg.ClaimMaxAttempts))

	return &Components{
		Validator:       validator,
		Resolver:        resolver,
		Poller:          poller,
		Agents:          agent.NewDirectory(agent.FromConfig(agents), cfg.Roblox.ProfileURL, poller),
		Notifier:        notifier,
		VerifyLimiter:   verifyLimiter,
		PresenceLimiter: presenceLimiter,
		Claims:          claim.NewService(workflow, sessions, logger),
	}, nil
}

func newNotifier(ctx context.Context, d Deps, opts []upstream.Option) (notification.Notifier, error) {
	var primary notification.Notifier
	if d.Cfg.DiscordWebhookURL != "" {
		primary = notification.NewDiscordNotifier(d.Cfg.DiscordWebhookURL, d.Cfg.Roblox.ProfileURL, d.Logger, opts...)
	} else {
		d.Logger.Warn("DISCORD_WEBHOOK_URL not set, claims are only logged")
		primary = notification.NewLoggerNotifier(d.Logger)
	}

	if d.DB == nil {
		return primary, nil
	}
	archive := notification.NewArchiveNotifier(d.DB)
	if err := archive.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("prepare claim archive: %w", err)
	}
	return notification.NewFanout(d.Logger, primary, archive), nil
}
