// Package session implements cookie-based session authentication backed by
// a key/value store, along with session lifecycle helpers.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/store"
)

const (
	// DefaultCookieName is the session cookie consulted when none is
	// configured.
	DefaultCookieName = "agentgate_session"

	minTokenLength = 16
	maxTokenLength = 512

	keyPrefix = "session:"
)

// Config holds session validator configuration.
type Config struct {
	CookieName string        `yaml:"cookieName"`
	TTL        time.Duration `yaml:"ttl"`
	Domain     string        `yaml:"domain"`
	Path       string        `yaml:"path"`
	Secure     bool          `yaml:"secure"`
	SameSite   string        `yaml:"sameSite"`
}

func (c *Config) cookieName() string {
	if c.CookieName == "" {
		return DefaultCookieName
	}
	return c.CookieName
}

func (c *Config) sameSite() http.SameSite {
	switch c.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Record is the stored representation of a live session.
type Record struct {
	UserID      string         `json:"userId"`
	Email       string         `json:"email,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   time.Time      `json:"expiresAt"`
}

// Validator validates session cookies and manages session lifecycle.
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

// NewValidator creates a session validator.
func NewValidator(config *Config, kv store.KV, opts ...Option) (*Validator, error) {
	if config == nil {
		config = &Config{}
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
	return auth.MethodCookie
}

// ExtractToken implements auth.Validator.
func (v *Validator) ExtractToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(v.config.cookieName())
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Validate implements auth.Validator. Expired sessions are deleted from the
// store on sight so they cannot be replayed.
func (v *Validator) Validate(ctx context.Context, r *http.Request) (*auth.Context, error) {
	start := time.Now()

	token, ok := v.ExtractToken(r)
	if !ok {
		v.metrics.RecordValidation(auth.MethodCookie, "no_credentials", time.Since(start))
		return nil, auth.ErrNoCredentials
	}

	if len(token) < minTokenLength || len(token) > maxTokenLength {
		v.metrics.RecordValidation(auth.MethodCookie, "malformed", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodCookie, "session token has invalid length")
	}

	raw, err := v.store.Get(ctx, keyPrefix+token)
	if err != nil {
		if store.IsNotFound(err) {
			v.metrics.RecordValidation(auth.MethodCookie, "unknown_session", time.Since(start))
			return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodCookie, "unknown session")
		}
		v.metrics.RecordValidation(auth.MethodCookie, "store_error", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindUnknown, auth.MethodCookie, "session lookup failed", err)
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		v.metrics.RecordValidation(auth.MethodCookie, "corrupt_session", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindUnknown, auth.MethodCookie, "decoding session record", err)
	}

	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		if err := v.store.Delete(ctx, keyPrefix+token); err != nil {
			v.logger.Warn("deleting expired session failed",
				observability.Error(err))
		}
		v.metrics.RecordValidation(auth.MethodCookie, "expired", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindExpired, auth.MethodCookie, "session expired")
	}

	v.metrics.RecordValidation(auth.MethodCookie, "success", time.Since(start))

	var expires *time.Time
	if !record.ExpiresAt.IsZero() {
		t := record.ExpiresAt
		expires = &t
	}

	return &auth.Context{
		Authenticated: true,
		Method:        auth.MethodCookie,
		Token:         token,
		User: &auth.User{
			ID:          record.UserID,
			Email:       record.Email,
			Roles:       record.Roles,
			Permissions: record.Permissions,
			Metadata:    record.Metadata,
		},
		ExpiresAt: expires,
	}, nil
}

// CreateSession provisions a new session for the user and returns its token.
func (v *Validator) CreateSession(ctx context.Context, user *auth.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("user with an id is required")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	token := hex.EncodeToString(buf)

	ttl := v.config.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	now := time.Now()
	record := Record{
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       user.Roles,
		Permissions: user.Permissions,
		Metadata:    user.Metadata,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encoding session record: %w", err)
	}

	if err := v.store.Put(ctx, keyPrefix+token, raw, ttl); err != nil {
		return "", fmt.Errorf("storing session: %w", err)
	}

	v.logger.Debug("session created", observability.String("user", user.ID))
	return token, nil
}

// DeleteSession removes a session, logging the user out everywhere the
// cookie is presented.
func (v *Validator) DeleteSession(ctx context.Context, token string) error {
	return v.store.Delete(ctx, keyPrefix+token)
}

// Cookie builds the Set-Cookie value for a session token. An empty token
// produces an expiring cookie for logout.
func (v *Validator) Cookie(token string) *http.Cookie {
	c := &http.Cookie{
		Name:     v.config.cookieName(),
		Value:    token,
		Path:     v.config.Path,
		Domain:   v.config.Domain,
		Secure:   v.config.Secure,
		HttpOnly: true,
		SameSite: v.config.sameSite(),
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if token == "" {
		c.MaxAge = -1
		return c
	}
	ttl := v.config.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c.MaxAge = int(ttl.Seconds())
	return c
}

// Ensure Validator implements auth.Validator.
var _ auth.Validator = (*Validator)(nil)
