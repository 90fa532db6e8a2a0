package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/catalogd/registry/internal/metrics"
)

// Metrics records request count and latency per route pattern
func Metrics(m *metrics.RegistryMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapWriter(w)

			next.ServeHTTP(ww, r)

			m.RecordAPIRequest(r.Method, routePattern(r), strconv.Itoa(ww.statusCode), time.Since(start))
		})
	}
}
