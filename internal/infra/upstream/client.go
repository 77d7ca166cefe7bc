// Package upstream provides the generic HTTP ServiceAdapter every upstream is
// configured from. It knows how to authenticate and send a normalized request;
// it never interprets the response status (that is the classifier's job).
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("upstream")

// maxBodyBytes caps how much of an upstream body is buffered.
const maxBodyBytes = 32 << 20

// AuthStyle selects how the credential is attached to outgoing requests.
type AuthStyle int

const (
	// AuthNone sends no credential.
	AuthNone AuthStyle = iota
	// AuthBearer sends "Authorization: Bearer <credential>".
	AuthBearer
	// AuthHeader sends the credential verbatim in the AuthParam header.
	AuthHeader
	// AuthQuery sends the credential in the AuthParam query parameter.
	AuthQuery
)

// Options configures one upstream.
type Options struct {
	Name    string
	BaseURL string
	// Identity is the credential identity for OAuth-backed upstreams; the
	// dispatcher resolves the token and passes it on the request.
	Identity string
	// APIKey is the static secret for upstreams that do not use Identity.
	APIKey    string
	Auth      AuthStyle
	AuthParam string
	// Header is sent on every request (e.g. developer tokens, API versions).
	Header http.Header
	// Query is added to every request unless the request sets the same key.
	Query url.Values
	// MissingSettings lists configuration keys the upstream still needs.
	MissingSettings []string
}

// Client is the HTTP implementation of port.ServiceAdapter.
type Client struct {
	httpClient *http.Client
	opts       Options
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	logger     *zap.Logger
}

// NewClient creates an adapter with its own circuit breaker.
func NewClient(httpClient *http.Client, opts Options, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		opts:       opts,
		cb:         resilience.NewCircuitBreaker(opts.Name),
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		logger:     logger.With(zap.String("upstream", opts.Name)),
	}
}

func (c *Client) Name() string     { return c.opts.Name }
func (c *Client) Identity() string { return c.opts.Identity }

// Configured reports the first missing setting, if any.
func (c *Client) Configured() error {
	if len(c.opts.MissingSettings) > 0 {
		return &domain.ErrNotConfigured{Service: c.opts.Name, Setting: strings.Join(c.opts.MissingSettings, ", ")}
	}
	return nil
}

// upstreamStatusError marks a 5xx so the breaker counts it; the response is still returned.
type upstreamStatusError struct {
	resp *domain.UpstreamResponse
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.resp.Status)
}

// Call sends req and returns the raw response. Transport failures are returned
// as *domain.ErrExternalService, an open breaker as *domain.ErrCircuitOpen.
func (c *Client) Call(ctx context.Context, req *domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	ctx, span := tracer.Start(ctx, "Upstream.Call")
	defer span.End()
	span.SetAttributes(
		attribute.String("upstream.name", c.opts.Name),
		attribute.String("http.method", req.Method),
		attribute.String("upstream.path", req.Path),
	)

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrExternalService{Service: c.opts.Name, Err: err}
	}
	defer c.bulkhead.Release()

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		c.logger.Error("upstream: failed to create request",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: c.opts.Name, Err: err}
	}

	result, err := c.cb.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		out := &domain.UpstreamResponse{Status: resp.StatusCode, Header: resp.Header, Body: body}
		if resp.StatusCode >= 500 {
			return out, &upstreamStatusError{resp: out}
		}
		return out, nil
	})

	var statusErr *upstreamStatusError
	switch {
	case errors.As(err, &statusErr):
		err = nil
		result = statusErr.resp
	case resilience.IsOpen(err):
		c.logger.Warn("upstream: circuit breaker open")
		return nil, &domain.ErrCircuitOpen{Service: c.opts.Name}
	case err != nil:
		c.logger.Error("upstream: request failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return nil, &domain.ErrExternalService{Service: c.opts.Name, Err: err}
	}

	resp := result.(*domain.UpstreamResponse)
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	c.logger.Debug("upstream: request done",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.Status),
	)
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, req *domain.UpstreamRequest) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := strings.TrimRight(c.opts.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")

	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.RawBody != nil:
		body = bytes.NewReader(req.RawBody)
	case req.Body != nil:
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(raw)
		if contentType == "" {
			contentType = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	q := httpReq.URL.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, vs := range c.opts.Query {
		if !q.Has(k) {
			q[k] = vs
		}
	}

	for k, vs := range c.opts.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	credential := c.opts.APIKey
	if c.opts.Identity != "" {
		credential = req.Token
	}
	if credential != "" {
		switch c.opts.Auth {
		case AuthBearer:
			httpReq.Header.Set("Authorization", "Bearer "+credential)
		case AuthHeader:
			httpReq.Header.Set(c.opts.AuthParam, credential)
		case AuthQuery:
			q.Set(c.opts.AuthParam, credential)
		}
	}
	httpReq.URL.RawQuery = q.Encode()

	return httpReq, nil
}
