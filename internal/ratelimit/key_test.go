package ratelimit

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "x-forwarded-for single",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			remote:  "10.0.0.1:1234",
			want:    "203.0.113.7",
		},
		{
			name:    "x-forwarded-for chain keeps first hop",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2, 10.0.0.3"},
			remote:  "10.0.0.1:1234",
			want:    "203.0.113.7",
		},
		{
			name:    "x-real-ip",
			headers: map[string]string{"X-Real-IP": "198.51.100.4"},
			remote:  "10.0.0.1:1234",
			want:    "198.51.100.4",
		},
		{
			name:   "remote addr",
			remote: "192.0.2.9:5678",
			want:   "192.0.2.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/api/users/42", nil)
	req.RemoteAddr = "192.0.2.9:5678"

	assert.Equal(t, "id:user-1:/api/users/:id", Key("user-1", "/api/users/:id", req))
	assert.Equal(t, "ip:192.0.2.9:/api/users/:id", Key("", "/api/users/:id", req))
}
