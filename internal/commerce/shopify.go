package commerce

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/buygag/claimdesk/internal/upstream"
)

const (
	shopifyTokenHeader     = "X-Shopify-Access-Token"
	shopifyCallLimitHeader = "X-Shopify-Shop-Api-Call-Limit"
	shopifyOrderFields     = "id,name,email,financial_status,fulfillment_status"
)

// ShopifyConfig holds Admin API access. The token comes from configuration only.
type ShopifyConfig struct {
	StoreDomain string
	AccessToken string
	APIVersion  string
	// BaseURL overrides https://{StoreDomain}; used by tests and proxies.
	BaseURL string
}

// ShopifyOracle queries the Shopify Admin REST orders endpoint.
type ShopifyOracle struct {
	client  *upstream.Client
	baseURL string
	version string
	logger  *slog.Logger
}

// NewShopifyOracle builds an oracle. The access token is attached to every request.
func NewShopifyOracle(cfg ShopifyConfig, logger *slog.Logger, opts ...upstream.Option) *ShopifyOracle {
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://" + strings.TrimSpace(cfg.StoreDomain)
	}
	version := cfg.APIVersion
	if version == "" {
		version = "2025-01"
	}
	opts = append([]upstream.Option{upstream.WithHeader(shopifyTokenHeader, cfg.AccessToken)}, opts...)
	return &ShopifyOracle{
		client:  upstream.New("shopify", opts...),
		baseURL: base,
		version: version,
		logger:  logger,
	}
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}

// FindOrders implements Oracle.
func (o *ShopifyOracle) FindOrders(ctx context.Context, name string) ([]Order, error) {
	var body ordersResponse
	res, err := o.client.JSON(ctx, upstream.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/admin/api/%s/orders.json", o.baseURL, o.version),
		Query:  url.Values{"name": {name}, "fields": {shopifyOrderFields}},
	}, &body)
	if limit := res.Header.Get(shopifyCallLimitHeader); limit != "" {
		o.logger.Debug("shopify call budget", slog.String("call_limit", limit))
	}
	if err != nil {
		return nil, fmt.Errorf("shopify find orders: %w", err)
	}
	return body.Orders, nil
}
