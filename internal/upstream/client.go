// Package upstream is the JSON-over-HTTP client shared by every external
// collaborator: the commerce oracle, the identity resolver, the presence
// service, the friends API and the notification webhook.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout       = 8 * time.Second
	defaultMaxBodyBytes  = 1 << 20 // 1 MiB
	tracerName           = "github.com/buygag/claimdesk/internal/upstream"
	textCodeUpstream     = "UPSTREAM_FAILURE"
	textCodeUpstreamHTTP = "UPSTREAM_STATUS"
)

// HTTPDoer is satisfied by *http.Client and test doubles.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues single, timeout-bounded requests. It never retries.
type Client struct {
	name         string
	doer         HTTPDoer
	timeout      time.Duration
	maxBodyBytes int64
	headers      map[string]string
	tracer       trace.Tracer
}

// Option customises a Client.
type Option func(*Client)

// WithDoer swaps the underlying HTTP implementation.
func WithDoer(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// New builds a client named after the upstream it talks to. The name shows
// up in spans and error metadata.
func New(name string, opts ...Option) *Client {
	c := &Client{
		name:         name,
		doer:         &http.Client{},
		timeout:      defaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		headers:      map[string]string{},
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request describes one upstream call. Body, when set, is JSON encoded.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers map[string]string
	Body    any
}

// Response is the raw upstream reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError is returned by JSON for non-2xx replies.
type StatusError struct {
	Upstream   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Upstream, e.StatusCode)
}

// Do executes the request and returns the reply regardless of status.
// Errors are transport failures (including timeouts) wrapped as external
// go-errors.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || target.Host == "" {
		return Response{}, c.wrap(fmt.Errorf("invalid url %q", req.URL), goerrors.CategoryBadInput, "upstream: invalid request url", http.StatusBadRequest, nil)
	}
	if len(req.Query) > 0 {
		query := target.Query()
		for key, values := range req.Query {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		target.RawQuery = query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, c.wrap(err, goerrors.CategoryInternal, "upstream: encode request body", http.StatusInternalServerError, nil)
		}
		body = bytes.NewReader(payload)
	}

	ctx, span := c.tracer.Start(ctx, c.name+" "+method, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("server.address", target.Host),
			attribute.String("url.path", target.Path),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return Response{}, c.wrap(err, goerrors.CategoryBadInput, "upstream: create request", http.StatusBadRequest, nil)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	httpRes, err := c.doer.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return Response{}, c.wrap(err, goerrors.CategoryExternal, "upstream: execute request", http.StatusBadGateway, map[string]any{"method": method, "path": target.Path})
	}
	defer httpRes.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpRes.Body, c.maxBodyBytes+1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failure")
		return Response{}, c.wrap(err, goerrors.CategoryExternal, "upstream: read response body", http.StatusBadGateway, map[string]any{"status_code": httpRes.StatusCode})
	}
	if int64(len(raw)) > c.maxBodyBytes {
		span.SetStatus(codes.Error, "body too large")
		return Response{}, c.wrap(fmt.Errorf("body exceeds %d bytes", c.maxBodyBytes), goerrors.CategoryExternal, "upstream: response too large", http.StatusBadGateway, nil)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", httpRes.StatusCode))
	res := Response{StatusCode: httpRes.StatusCode, Header: httpRes.Header, Body: raw}
	if !res.OK() {
		span.SetStatus(codes.Error, http.StatusText(httpRes.StatusCode))
	}
	return res, nil
}

// JSON executes the request and decodes a 2xx body into out. Non-2xx
// replies return a *StatusError wrapped as an external go-error.
func (c *Client) JSON(ctx context.Context, req Request, out any) (Response, error) {
	res, err := c.Do(ctx, req)
	if err != nil {
		return res, err
	}
	if !res.OK() {
		statusErr := &StatusError{Upstream: c.name, StatusCode: res.StatusCode, Body: truncate(string(res.Body), 512)}
		return res, goerrors.Wrap(statusErr, goerrors.CategoryExternal, "upstream: non-success response").
			WithCode(http.StatusBadGateway).
			WithTextCode(textCodeUpstreamHTTP).
			WithMetadata(map[string]any{"upstream": c.name, "status_code": res.StatusCode})
	}
	if out == nil || len(bytes.TrimSpace(res.Body)) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, c.wrap(err, goerrors.CategoryExternal, "upstream: decode response body", http.StatusBadGateway, nil)
	}
	return res, nil
}

func (c *Client) wrap(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	meta := map[string]any{"upstream": c.name}
	for k, v := range metadata {
		meta[k] = v
	}
	return goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCodeUpstream).
		WithMetadata(meta)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
