// Package apikey implements API key authentication backed by a key/value
// store.
package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/policy"
	"github.com/ensembleai/agentgate/internal/store"
)

const (
	// SourceHeader reads the key from a request header.
	SourceHeader = "header"
	// SourceQuery reads the key from a URL query parameter.
	SourceQuery = "query"
	// SourceCookie reads the key from a cookie.
	SourceCookie = "cookie"

	// DefaultHeaderName is the header consulted when no sources are
	// configured.
	DefaultHeaderName = "X-API-Key"

	minKeyLength = 8
	maxKeyLength = 256

	keyPrefix = "apikey:"
)

// Source describes one place a key may be presented.
type Source struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
}

// Config holds API key validator configuration.
type Config struct {
	// Sources are checked in order; the first hit wins.
	Sources []Source `yaml:"sources"`
	// Prefix, when set, must lead every presented key (for example "ag_").
	Prefix string `yaml:"prefix"`
	// Hashed stores SHA-256 hex digests instead of raw keys.
	Hashed bool `yaml:"hashed"`
}

// Validate checks the configuration at construction time.
func (c *Config) Validate() error {
	for i, s := range c.Sources {
		switch s.Type {
		case SourceHeader, SourceQuery, SourceCookie:
		default:
			return fmt.Errorf("api key source %d has unknown type %q", i, s.Type)
		}
		if s.Name == "" {
			return fmt.Errorf("api key source %d is missing a name", i)
		}
	}
	return nil
}

// Record is the stored representation of a provisioned key.
type Record struct {
	UserID      string                `json:"userId"`
	Email       string                `json:"email,omitempty"`
	Roles       []string              `json:"roles,omitempty"`
	Permissions []string              `json:"permissions,omitempty"`
	Metadata    map[string]any        `json:"metadata,omitempty"`
	ExpiresAt   time.Time             `json:"expiresAt,omitempty"`
	RateLimit   *policy.RateLimitSpec `json:"rateLimit,omitempty"`
}

// Validator validates API keys against the store.
type Validator struct {
	config  *Config
	store   store.KV
	logger  observability.Logger
	metrics *auth.Metrics
}

// Option is a functional option for the validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *auth.Metrics) Option {
	return func(v *Validator) { v.metrics = metrics }
}

// NewValidator creates an API key validator.
func NewValidator(config *Config, kv store.KV, opts ...Option) (*Validator, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, errors.New("store is required")
	}

	v := &Validator{
		config: config,
		store:  kv,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Method implements auth.Validator.
func (v *Validator) Method() auth.Method {
	return auth.MethodAPIKey
}

// ExtractToken implements auth.Validator.
func (v *Validator) ExtractToken(r *http.Request) (string, bool) {
	sources := v.config.Sources
	if len(sources) == 0 {
		sources = []Source{{Type: SourceHeader, Name: DefaultHeaderName}}
	}

	for _, s := range sources {
		switch s.Type {
		case SourceHeader:
			if key := r.Header.Get(s.Name); key != "" {
				return key, true
			}
		case SourceQuery:
			if key := r.URL.Query().Get(s.Name); key != "" {
				return key, true
			}
		case SourceCookie:
			if c, err := r.Cookie(s.Name); err == nil && c.Value != "" {
				return c.Value, true
			}
		}
	}
	return "", false
}

// Validate implements auth.Validator. Format checks run before any store
// round-trip so obviously bad keys never cost an I/O.
func (v *Validator) Validate(ctx context.Context, r *http.Request) (*auth.Context, error) {
	start := time.Now()

	key, ok := v.ExtractToken(r)
	if !ok {
		v.metrics.RecordValidation(auth.MethodAPIKey, "no_credentials", time.Since(start))
		return nil, auth.ErrNoCredentials
	}

	if err := v.checkFormat(key); err != nil {
		v.metrics.RecordValidation(auth.MethodAPIKey, "malformed", time.Since(start))
		return nil, err
	}

	record, err := v.lookup(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			v.metrics.RecordValidation(auth.MethodAPIKey, "unknown_key", time.Since(start))
			return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodAPIKey, "unknown api key")
		}
		v.metrics.RecordValidation(auth.MethodAPIKey, "store_error", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindUnknown, auth.MethodAPIKey, "api key lookup failed", err)
	}

	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		v.metrics.RecordValidation(auth.MethodAPIKey, "expired", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindExpired, auth.MethodAPIKey, "api key expired")
	}

	v.metrics.RecordValidation(auth.MethodAPIKey, "success", time.Since(start))
	v.logger.Debug("api key validated", observability.String("user", record.UserID))

	var expires *time.Time
	if !record.ExpiresAt.IsZero() {
		t := record.ExpiresAt
		expires = &t
	}

	return &auth.Context{
		Authenticated: true,
		Method:        auth.MethodAPIKey,
		Token:         key,
		User: &auth.User{
			ID:          record.UserID,
			Email:       record.Email,
			Roles:       record.Roles,
			Permissions: record.Permissions,
			Metadata:    record.Metadata,
		},
		ExpiresAt:     expires,
		RateLimitHint: record.RateLimit,
	}, nil
}

func (v *Validator) checkFormat(key string) error {
	if len(key) < minKeyLength || len(key) > maxKeyLength {
		return auth.NewError(auth.ErrorKindInvalidToken, auth.MethodAPIKey, "api key has invalid length")
	}
	if v.config.Prefix != "" && !strings.HasPrefix(key, v.config.Prefix) {
		return auth.NewError(auth.ErrorKindInvalidToken, auth.MethodAPIKey, "api key has invalid prefix")
	}
	return nil
}

func (v *Validator) lookup(ctx context.Context, key string) (*Record, error) {
	raw, err := v.store.Get(ctx, keyPrefix+v.storeForm(key))
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decoding api key record: %w", err)
	}
	return &record, nil
}

func (v *Validator) storeForm(key string) string {
	if !v.config.Hashed {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Provision writes a key record, hashing the key when configured. It is the
// write-side counterpart of Validate, used by provisioning tools and tests.
func (v *Validator) Provision(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if err := v.checkFormat(key); err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding api key record: %w", err)
	}
	return v.store.Put(ctx, keyPrefix+v.storeForm(key), raw, ttl)
}

// Revoke removes a key record.
func (v *Validator) Revoke(ctx context.Context, key string) error {
	return v.store.Delete(ctx, keyPrefix+v.storeForm(key))
}

// Ensure Validator implements auth.Validator.
var _ auth.Validator = (*Validator)(nil)
