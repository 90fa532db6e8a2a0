// Package client is a Go client for the registry HTTP API.
package client

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

	"github.com/hashicorp/go-retryablehttp"

	"github.com/catalogd/registry/internal/model"
)

const (
	// maxErrorBody bounds how much of an error answer is kept as message
	maxErrorBody = 4 << 10

	defaultTimeout = 30 * time.Second
	defaultRetries = 3
)

// Client talks to one registry server
type Client struct {
	addr       string
	httpClient *http.Client
	authToken  string
	userAgent  string

	// Kind clients
	Groups       *KindClient[model.DefinitionGroup, model.Definition]
	SchemaGroups *KindClient[model.SchemaGroup, model.Schema]
	Endpoints    *KindClient[model.Endpoint, model.Definition]
}

// NewClient creates a client for the server at addr, e.g.
// "http://localhost:8080"
func NewClient(addr string, opts ...Option) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid address %q: scheme must be http or https", addr)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid address %q: missing host", addr)
	}

	c := &Client{
		addr:       strings.TrimRight(addr, "/"),
		httpClient: newRetryingHTTPClient(defaultRetries),
		userAgent:  "registry-go-client",
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Groups = &KindClient[model.DefinitionGroup, model.Definition]{client: c, kind: "groups", resource: "definitions"}
	c.SchemaGroups = &KindClient[model.SchemaGroup, model.Schema]{client: c, kind: "schemagroups", resource: "schemas"}
	c.Endpoints = &KindClient[model.Endpoint, model.Definition]{client: c, kind: "endpoints", resource: "definitions"}

	return c, nil
}

// newRetryingHTTPClient returns an http.Client that retries transport
// failures and gateway errors with exponential backoff. Other answers,
// 503 from /ready included, reach the caller untouched.
func newRetryingHTTPClient(retries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = retries
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	hc := rc.StandardClient()
	hc.Timeout = defaultTimeout
	return hc
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// HealthCheck checks if the server is running
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, c.addr+"/health", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ReadinessCheck reports whether the server is ready to serve requests
func (c *Client) ReadinessCheck(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, c.httpClient, http.MethodGet, c.addr+"/ready", nil, nil)
	if err != nil {
		var sdkErr *Error
		if errors.As(err, &sdkErr) && sdkErr.StatusCode == http.StatusServiceUnavailable {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// Catalog returns the registry root document; inline embeds every group
func (c *Client) Catalog(ctx context.Context, inline bool) (map[string]json.RawMessage, error) {
	var query url.Values
	if inline {
		query = url.Values{"inline": {""}}
	}
	var out map[string]json.RawMessage
	err := c.doJSON(ctx, http.MethodGet, c.registryURL(query), nil, &out, "catalog")
	return out, err
}

// Merge upserts every group present in doc, keyed by kind name
func (c *Client) Merge(ctx context.Context, doc any) (map[string]json.RawMessage, error) {
	var out map[string]json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, c.registryURL(nil), doc, &out, "merge")
	return out, err
}

func (c *Client) registryURL(query url.Values, segments ...string) string {
	var b strings.Builder
	b.WriteString(c.addr)
	b.WriteString("/registry/")
	for i, s := range segments {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(url.PathEscape(s))
	}
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

// doJSON sends in (if non-nil) as JSON and decodes the answer into out
func (c *Client) doJSON(ctx context.Context, method, target string, in, out any, operation string) error {
	var body io.Reader
	header := http.Header{}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return wrapError(err, operation)
		}
		body = bytes.NewReader(data)
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, c.httpClient, method, target, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return wrapError(fmt.Errorf("decode response: %w", err), operation)
	}
	return nil
}

// do sends one request and turns non-2xx/3xx answers into *Error. The
// caller closes the body of a returned response.
func (c *Client) do(ctx context.Context, hc *http.Client, method, target string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, wrapError(err, method)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, wrapError(err, method+" "+target)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		message := strings.TrimSpace(string(msg))
		if message == "" {
			message = method + " " + target
		}
		return nil, &Error{StatusCode: resp.StatusCode, Message: message}
	}
	return resp, nil
}
