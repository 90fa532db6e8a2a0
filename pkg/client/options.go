package client

import (
	"net/http"
	"time"
)

// Option is a functional option for client configuration
type Option func(*Client)

// WithAuthToken sets the bearer token sent with every request
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetries sets how often transport failures and gateway errors are
// retried; 0 disables retries. It replaces any client set before.
func WithRetries(retries int) Option {
	return func(c *Client) {
		timeout := c.httpClient.Timeout
		c.httpClient = newRetryingHTTPClient(retries)
		c.httpClient.Timeout = timeout
	}
}

// WithTimeout sets the timeout of the HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// DeleteOptions holds the precondition of a delete
type DeleteOptions struct {
	Version *int64
}

// DeleteOption is a functional option for deletes
type DeleteOption func(*DeleteOptions)

// WithVersion only deletes if the stored version is not newer than version
func WithVersion(version int64) DeleteOption {
	return func(opts *DeleteOptions) {
		opts.Version = &version
	}
}

// UploadOptions holds the metadata of a posted version
type UploadOptions struct {
	ContentType string
	Description string
	CreatedBy   string
	Headers     map[string]string
}

// UploadOption is a functional option for version uploads
type UploadOption func(*UploadOptions)

// WithContentType sets the content type of the payload
func WithContentType(contentType string) UploadOption {
	return func(opts *UploadOptions) {
		opts.ContentType = contentType
	}
}

// WithDescription sets the version description
func WithDescription(description string) UploadOption {
	return func(opts *UploadOptions) {
		opts.Description = description
	}
}

// WithCreatedBy records who created the version
func WithCreatedBy(createdBy string) UploadOption {
	return func(opts *UploadOptions) {
		opts.CreatedBy = createdBy
	}
}

// WithHeaders sets further resource-* metadata headers
func WithHeaders(headers map[string]string) UploadOption {
	return func(opts *UploadOptions) {
		opts.Headers = headers
	}
}
