// Package provider is the JSON-over-HTTPS client shared by the screening,
// stolen-vehicle registry and bank statement integrations.
package provider

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
	"time"

	"golang.org/x/time/rate"

	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

const (
	defaultTimeout           = 10 * time.Second
	errorBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("provider base url is required")

// Auth decorates outgoing requests with credentials.
type Auth func(*http.Request)

// Bearer sends the token as an OAuth-style bearer credential.
func Bearer(token string) Auth {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// APIKey sends the token with a custom authorization scheme, e.g. "ApiKey".
func APIKey(scheme, token string) Auth {
	return func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", scheme+" "+token)
		}
	}
}

// Options configures a Client.
type Options struct {
	Name          string
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	Auth          Auth
	HTTPClient    *http.Client
	Metrics       *metrics.ProviderMetrics
}

// Client performs bounded, rate-limited JSON calls against one provider.
// Every failure, including non-2xx statuses and undecodable bodies, comes back
// as a DEPENDENCY_ERROR so callers can apply their conservative outcome.
type Client struct {
	name       string
	baseURL    string
	timeout    time.Duration
	auth       Auth
	limiter    *rate.Limiter
	httpClient *http.Client
	metrics    *metrics.ProviderMetrics
}

// New builds a provider client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	name := opts.Name
	if name == "" {
		name = "provider"
	}
	return &Client{
		name:       name,
		baseURL:    base,
		timeout:    timeout,
		auth:       opts.Auth,
		limiter:    limiter,
		httpClient: httpClient,
		metrics:    opts.Metrics,
	}, nil
}

// Name identifies the provider in logs and metrics.
func (c *Client) Name() string {
	return c.name
}

// PostJSON sends body as JSON to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+c.name+" request")
	}
	return c.do(ctx, http.MethodPost, c.buildURL(path, nil), bytes.NewReader(payload), out)
}

// GetJSON issues a GET with query parameters and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, c.buildURL(path, query), nil, out)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, out any) (err error) {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "provider client not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		c.metrics.Observe(c.name, outcomeFor(err), time.Since(started))
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, c.name+" rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+c.name+" request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+c.name+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), c.name+" request failed")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+c.name+" response")
	}
	return nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
