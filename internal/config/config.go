// Package config provides configuration management for the gateway.
package config

import (
	"fmt"
	"time"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/auth/apikey"
	"github.com/ensembleai/agentgate/internal/auth/basic"
	"github.com/ensembleai/agentgate/internal/auth/bearer"
	"github.com/ensembleai/agentgate/internal/auth/session"
	"github.com/ensembleai/agentgate/internal/auth/signature"
	"github.com/ensembleai/agentgate/internal/policy"
	"github.com/ensembleai/agentgate/internal/router"
	"github.com/ensembleai/agentgate/internal/store"
)

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Routes    []RouteConfig   `yaml:"routes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Store backend types.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// StoreConfig selects the key/value backend shared by API keys, sessions,
// and rate limit counters.
type StoreConfig struct {
	Type  string             `yaml:"type"`
	Redis *store.RedisConfig `yaml:"redis"`
}

// AuthConfig holds the authentication policy and validator settings.
type AuthConfig struct {
	// Defaults maps an operation kind (api, page, webhook, static) to its
	// baseline rule.
	Defaults map[string]*policy.Rule `yaml:"defaults"`
	// PathRules overlay the defaults for matching route patterns.
	PathRules []policy.PathRule `yaml:"pathRules"`
	// Validators configures each enabled authentication method.
	Validators ValidatorsConfig `yaml:"validators"`
}

// ValidatorsConfig carries per-method validator configuration. A nil entry
// leaves that method unregistered.
type ValidatorsConfig struct {
	Bearer    *bearer.Config    `yaml:"bearer"`
	APIKey    *apikey.Config    `yaml:"apiKey"`
	Session   *session.Config   `yaml:"cookie"`
	Basic     *basic.Config     `yaml:"basic"`
	Signature *signature.Config `yaml:"signature"`
}

// Rate limit algorithms.
const (
	RateLimitFixedWindow = "fixed_window"
	RateLimitTokenBucket = "token_bucket"
)

// RateLimitConfig selects the limiter algorithm.
type RateLimitConfig struct {
	Algorithm string `yaml:"algorithm"`
}

// CORSConfig holds cross-origin settings applied before authentication.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedMethods []string `yaml:"allowedMethods"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
	MaxAge         int      `yaml:"maxAge"`
}

// RouteConfig declares one gateway route.
type RouteConfig struct {
	Pattern    string       `yaml:"pattern"`
	SourcePath string       `yaml:"sourcePath"`
	Methods    []string     `yaml:"methods"`
	Kind       string       `yaml:"kind"`
	Priority   int          `yaml:"priority"`
	Auth       *policy.Rule `yaml:"auth"`
}

// ToRoute converts the declaration into a router route.
func (rc *RouteConfig) ToRoute() router.Route {
	kind := policy.OperationKind(rc.Kind)
	if kind == "" {
		kind = policy.KindAPI
	}
	return router.Route{
		Pattern:      rc.Pattern,
		SourcePath:   rc.SourcePath,
		Methods:      rc.Methods,
		Kind:         kind,
		AuthOverride: rc.Auth,
		Priority:     rc.Priority,
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Store: StoreConfig{
			Type: StoreMemory,
		},
		RateLimit: RateLimitConfig{
			Algorithm: RateLimitFixedWindow,
		},
	}
}

var validKinds = map[string]struct{}{
	"":                         {},
	string(policy.KindAPI):     {},
	string(policy.KindPage):    {},
	string(policy.KindWebhook): {},
	string(policy.KindStatic):  {},
}

// Validate checks the whole configuration tree. Misconfiguration is a
// startup failure, never a per-request one.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "", StoreMemory:
	case StoreRedis:
		if c.Store.Redis == nil || c.Store.Redis.Address == "" {
			return fmt.Errorf("store type %q requires a redis address", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	switch c.RateLimit.Algorithm {
	case "", RateLimitFixedWindow, RateLimitTokenBucket:
	default:
		return fmt.Errorf("unknown rate limit algorithm %q", c.RateLimit.Algorithm)
	}

	for kind := range c.Auth.Defaults {
		if _, ok := validKinds[kind]; !ok {
			return fmt.Errorf("unknown operation kind %q in auth defaults", kind)
		}
	}

	for i, rule := range c.Auth.PathRules {
		if rule.Pattern == "" {
			return fmt.Errorf("auth path rule %d is missing a pattern", i)
		}
		if err := validateRule(&rule.Auth); err != nil {
			return fmt.Errorf("auth path rule %q: %w", rule.Pattern, err)
		}
	}

	for i, route := range c.Routes {
		if route.Pattern == "" && route.SourcePath == "" {
			return fmt.Errorf("route %d needs a pattern or a source path", i)
		}
		if _, ok := validKinds[route.Kind]; !ok {
			return fmt.Errorf("route %q has unknown kind %q", route.Pattern, route.Kind)
		}
		pattern := route.Pattern
		if pattern == "" {
			pattern = router.ResolveSourcePath(route.SourcePath, nil)
		}
		if _, err := router.CompilePattern(pattern); err != nil {
			return fmt.Errorf("route %q: %w", pattern, err)
		}
		if route.Auth != nil {
			if err := validateRule(route.Auth); err != nil {
				return fmt.Errorf("route %q auth override: %w", pattern, err)
			}
		}
	}

	return c.validateValidators()
}

func validateRule(rule *policy.Rule) error {
	switch rule.Requirement {
	case "", policy.RequirementPublic, policy.RequirementOptional, policy.RequirementRequired:
	default:
		return fmt.Errorf("unknown requirement %q", rule.Requirement)
	}
	for _, method := range rule.Methods {
		switch auth.Method(method) {
		case auth.MethodBearer, auth.MethodAPIKey, auth.MethodCookie, auth.MethodBasic, auth.MethodSignature:
		default:
			return fmt.Errorf("unknown auth method %q", method)
		}
	}
	return nil
}

// validateValidators delegates to each configured method's own Validate so
// the failure points at the offending section.
func (c *Config) validateValidators() error {
	v := c.Auth.Validators
	if v.Bearer != nil {
		if err := v.Bearer.Validate(); err != nil {
			return fmt.Errorf("bearer validator: %w", err)
		}
	}
	if v.APIKey != nil {
		if err := v.APIKey.Validate(); err != nil {
			return fmt.Errorf("api key validator: %w", err)
		}
	}
	if v.Basic != nil {
		if err := v.Basic.Validate(); err != nil {
			return fmt.Errorf("basic validator: %w", err)
		}
	}
	if v.Signature != nil {
		cfg := *v.Signature
		if err := cfg.ApplyPreset(); err != nil {
			return fmt.Errorf("signature validator: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("signature validator: %w", err)
		}
	}
	return nil
}
