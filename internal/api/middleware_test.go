package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "203.0.113.7:52431",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header ignored without trust",
			remoteAddr: "10.0.0.1:1234",
			forwarded:  "203.0.113.7",
			want:       "10.0.0.1",
		},
		{
			name:       "forwarded header honored with trust",
			remoteAddr: "10.0.0.1:1234",
			forwarded:  "203.0.113.7",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "first hop of forwarded chain",
			remoteAddr: "10.0.0.1:1234",
			forwarded:  "203.0.113.7, 198.51.100.2",
			trustProxy: true,
			want:       "203.0.113.7",
		},
		{
			name:       "empty forwarded falls back",
			remoteAddr: "10.0.0.1:1234",
			forwarded:  "  ",
			trustProxy: true,
			want:       "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(r, tt.trustProxy))
		})
	}
}

func TestIPLimiter_PerIPBuckets(t *testing.T) {
	limiter := newIPLimiter(1, 1)

	assert.True(t, limiter.allow("1.1.1.1"))
	assert.False(t, limiter.allow("1.1.1.1"))

	// A different client gets its own bucket.
	assert.True(t, limiter.allow("2.2.2.2"))
}
