// Package basic implements HTTP Basic authentication against a configured
// list of credential pairs.
package basic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/security"
)

const schemePrefix = "Basic "

// Credential is one valid username/password pair. Password may be stored as
// a bcrypt hash; hashes are recognized by their "$2" prefix.
type Credential struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Config holds Basic authentication configuration.
type Config struct {
	Credentials []Credential `yaml:"credentials"`
	Realm       string       `yaml:"realm"`
}

// Validate checks the configuration at construction time.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return errors.New("basic auth requires at least one credential pair")
	}
	for i, cred := range c.Credentials {
		if cred.Username == "" || cred.Password == "" {
			return fmt.Errorf("basic auth credential %d is missing username or password", i)
		}
	}
	return nil
}

// Validator validates Basic credentials.
type Validator struct {
	config  *Config
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

// NewValidator creates a Basic auth validator. Misconfiguration is a
// construction-time failure.
func NewValidator(config *Config, opts ...Option) (*Validator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	v := &Validator{
		config: config,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Method implements auth.Validator.
func (v *Validator) Method() auth.Method {
	return auth.MethodBasic
}

// ExtractToken implements auth.Validator. The token is the base64 payload of
// the Basic scheme.
func (v *Validator) ExtractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, schemePrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(schemePrefix):]), true
}

// Validate implements auth.Validator.
func (v *Validator) Validate(_ context.Context, r *http.Request) (*auth.Context, error) {
	start := time.Now()

	token, ok := v.ExtractToken(r)
	if !ok {
		v.metrics.RecordValidation(auth.MethodBasic, "no_credentials", time.Since(start))
		return nil, auth.ErrNoCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		v.metrics.RecordValidation(auth.MethodBasic, "malformed", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindInvalidToken, auth.MethodBasic, "malformed basic credentials", err)
	}

	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		v.metrics.RecordValidation(auth.MethodBasic, "malformed", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodBasic, "malformed basic credentials")
	}

	// Every configured pair is checked, both fields independently in
	// constant time, so the response time does not reveal which usernames
	// exist.
	matched := ""
	for _, cred := range v.config.Credentials {
		userOK := security.ConstantTimeEqual(username, cred.Username)
		passOK := v.passwordMatches(password, cred.Password)
		if userOK && passOK && matched == "" {
			matched = cred.Username
		}
	}

	if matched == "" {
		v.metrics.RecordValidation(auth.MethodBasic, "invalid", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodBasic, "invalid credentials")
	}

	v.metrics.RecordValidation(auth.MethodBasic, "success", time.Since(start))
	v.logger.Debug("basic auth validated", observability.String("user", matched))

	return &auth.Context{
		Authenticated: true,
		Method:        auth.MethodBasic,
		User:          &auth.User{ID: matched},
	}, nil
}

// passwordMatches compares a presented password against a stored one, which
// may be plaintext or a bcrypt hash.
func (v *Validator) passwordMatches(presented, stored string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return security.ConstantTimeEqual(presented, stored)
}

// WWWAuthenticate returns the challenge header value for 401 responses.
func (v *Validator) WWWAuthenticate() string {
	realm := v.config.Realm
	if realm == "" {
		realm = "Restricted"
	}
	return fmt.Sprintf("Basic realm=%q", realm)
}

// Ensure Validator implements auth.Validator.
var _ auth.Validator = (*Validator)(nil)
