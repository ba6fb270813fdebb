package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// untracedPaths are scraped or polled often enough that spans for them are noise.
var untracedPaths = []string{"/health", "/metrics", "/swagger/"}

// GinMiddleware traces API requests. Probes, scrapes and websocket upgrades
// are skipped; a socket's lifetime is not a request span.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(Traced))
}

// Traced reports whether the request gets a server span.
func Traced(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, p := range untracedPaths {
		if r.URL.Path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(r.URL.Path, p)) {
			return false
		}
	}
	return true
}
