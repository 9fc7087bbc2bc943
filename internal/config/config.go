package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName     string `env:"APP_NAME" envDefault:"ClaimDesk"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	ProxyHeader string `env:"PROXY_HEADER"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	ShutdownPeriod  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"8s"`

	Shopify Shopify
	Roblox  Roblox

	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`

	RateLimitMax         int           `env:"RATE_LIMIT_MAX" envDefault:"5"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
	PresenceRateLimitMax int           `env:"PRESENCE_RATE_LIMIT_MAX" envDefault:"30"`
	ClaimMaxAttempts     int           `env:"CLAIM_MAX_ATTEMPTS" envDefault:"5"`
	SessionTTL           time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	// DeliveryAgents holds "id=serverLink" entries, see Agents.
	DeliveryAgents []string `env:"DELIVERY_AGENTS" envSeparator:","`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Shopify holds the commerce oracle credentials. The token is never logged.
type Shopify struct {
	StoreDomain string `env:"SHOPIFY_STORE_DOMAIN"`
	AccessToken string `env:"SHOPIFY_ACCESS_TOKEN"`
	APIVersion  string `env:"SHOPIFY_API_VERSION" envDefault:"2025-01"`
	// BaseURL overrides https://{StoreDomain}, for staging proxies.
	BaseURL string `env:"SHOPIFY_BASE_URL"`
}

// Roblox holds game platform endpoints. They are overridable for staging and tests.
type Roblox struct {
	UsersURL      string `env:"ROBLOX_USERS_URL" envDefault:"https://users.roblox.com"`
	ThumbnailsURL string `env:"ROBLOX_THUMBNAILS_URL" envDefault:"https://thumbnails.roblox.com"`
	PresenceURL   string `env:"ROBLOX_PRESENCE_URL" envDefault:"https://presence.roblox.com"`
	FriendsURL    string `env:"ROBLOX_FRIENDS_URL" envDefault:"https://friends.roblox.com"`
	ProfileURL    string `env:"ROBLOX_PROFILE_URL" envDefault:"https://www.roblox.com/users"`
	Cookie        string `env:"ROBLOX_COOKIE"`
}

// Agent is a delivery account buyers join or befriend in the final step.
type Agent struct {
	ID         string
	ServerLink string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.RateLimitMax <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX must be positive")
	}
	if cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if cfg.ClaimMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("CLAIM_MAX_ATTEMPTS must be positive")
	}
	if _, err := cfg.Agents(); err != nil {
		return Config{}, err
	}

	if !cfg.IsDev() {
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.Env)
		}
		if cfg.Shopify.StoreDomain == "" || cfg.Shopify.AccessToken == "" {
			return Config{}, fmt.Errorf("SHOPIFY_STORE_DOMAIN and SHOPIFY_ACCESS_TOKEN must be set when APP_ENV=%s", cfg.Env)
		}
		if cfg.DiscordWebhookURL == "" {
			return Config{}, fmt.Errorf("DISCORD_WEBHOOK_URL must be set when APP_ENV=%s", cfg.Env)
		}
	}

	return cfg, nil
}

// Agents parses DeliveryAgents. Entries without a server link are allowed.
func (c Config) Agents() ([]Agent, error) {
	agents := make([]Agent, 0, len(c.DeliveryAgents))
	seen := make(map[string]struct{}, len(c.DeliveryAgents))
	for _, raw := range c.DeliveryAgents {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, link, _ := strings.Cut(raw, "=")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid DELIVERY_AGENTS entry %q", raw)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate DELIVERY_AGENTS id %q", id)
		}
		seen[id] = struct{}{}
		agents = append(agents, Agent{ID: id, ServerLink: strings.TrimSpace(link)})
	}
	return agents, nil
}

// IsDev reports whether the service runs in a local environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
