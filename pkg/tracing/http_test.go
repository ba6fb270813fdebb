package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTraced(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		upgrade string
		want    bool
	}{
		{"api call", "/api/v1/subscriptions", "", true},
		{"api metrics", "/api/v1/metrics/current", "", true},
		{"health probe", "/health", "", false},
		{"prometheus scrape", "/metrics", "", false},
		{"swagger asset", "/swagger/index.html", "", false},
		{"websocket upgrade", "/ws", "websocket", false},
		{"plain get on ws route", "/ws", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.upgrade != "" {
				req.Header.Set("Upgrade", tt.upgrade)
			}
			assert.Equal(t, tt.want, Traced(req))
		})
	}
}
