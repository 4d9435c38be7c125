package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSConfig contains cross-origin settings. CORS runs before
// authentication so browsers can complete preflights without credentials.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DefaultCORSConfig returns a permissive default configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", RequestIDHeader},
		MaxAge:         86400,
	}
}

// CORS returns a middleware applying the configured CORS policy. Preflight
// requests short-circuit with 204.
func CORS(config CORSConfig) gin.HandlerFunc {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = DefaultCORSConfig().AllowedMethods
	}
	if len(config.AllowedHeaders) == 0 {
		config.AllowedHeaders = DefaultCORSConfig().AllowedHeaders
	}

	allowAll := false
	allowed := make(map[string]struct{}, len(config.AllowedOrigins))
	var wildcards []string
	for _, origin := range config.AllowedOrigins {
		switch {
		case origin == "*":
			allowAll = true
		case strings.Contains(origin, "*."):
			wildcards = append(wildcards, origin)
		default:
			allowed[origin] = struct{}{}
		}
	}

	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowOrigin := ""
		if allowAll {
			allowOrigin = "*"
		} else if originAllowed(origin, allowed, wildcards) {
			allowOrigin = origin
			c.Writer.Header().Add("Vary", "Origin")
		}

		if allowOrigin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allowOrigin)
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// originAllowed matches an origin against exact entries and "*.domain"
// wildcards ("https://*.example.com" matches any single-label subdomain
// scheme included).
func originAllowed(origin string, exact map[string]struct{}, wildcards []string) bool {
	if _, ok := exact[origin]; ok {
		return true
	}
	for _, pattern := range wildcards {
		star := strings.Index(pattern, "*.")
		prefix, suffix := pattern[:star], pattern[star+1:]
		if len(origin) > len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
