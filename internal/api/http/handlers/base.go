package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// BasePath is where the registry API is mounted
const BasePath = "/registry"

// BaseURL resolves the self-link base of a request
type BaseURL func(r *http.Request) string

// NewBaseURL returns publicURL when set, and otherwise derives the base
// from the request scheme and host, honoring proxy headers.
func NewBaseURL(publicURL string) BaseURL {
	publicURL = strings.TrimRight(publicURL, "/")
	return func(r *http.Request) string {
		if publicURL != "" {
			return publicURL
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			scheme = proto
		}
		host := r.Host
		if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			host = fwd
		}
		return scheme + "://" + host + BasePath
	}
}

// firstValue returns the first entry of a comma separated proxy header
func firstValue(header string) string {
	v, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(v)
}

// param returns the unescaped value of a route parameter. chi matches on
// RawPath when it is set and on the already decoded Path otherwise, so only
// the former needs unescaping.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v
	}
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}
