package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// Key builds the limiter key for a request. Authenticated requests are
// limited per identity and route pattern; anonymous requests fall back to
// the client IP.
func Key(identity, routePattern string, r *http.Request) string {
	if identity == "" {
		identity = "ip:" + ClientIP(r)
	} else {
		identity = "id:" + identity
	}
	return identity + ":" + routePattern
}

// ClientIP extracts the originating client IP, preferring proxy headers
// over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
