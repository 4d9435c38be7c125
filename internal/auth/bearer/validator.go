// Package bearer implements Bearer token authentication. Tokens are either
// JWTs, verified against a shared secret or a remote JWKS, or opaque static
// tokens compared in constant time.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/security"
)

const schemePrefix = "Bearer "

// Config holds Bearer validator configuration. Exactly one of StaticTokens,
// Secret, or JWKSURL must be set.
type Config struct {
	// StaticTokens are opaque tokens accepted as-is.
	StaticTokens []string `yaml:"staticTokens"`
	// Secret verifies HMAC-signed JWTs.
	Secret string `yaml:"secret"`
	// JWKSURL verifies asymmetric JWTs against a remote key set.
	JWKSURL string `yaml:"jwksUrl"`

	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
	// Algorithms restricts accepted signature algorithms. Defaults to
	// RS256 for JWKS and HS256 for shared secrets.
	Algorithms []string      `yaml:"algorithms"`
	ClockSkew  time.Duration `yaml:"clockSkew"`
	// RefreshInterval bounds how often the JWKS is re-fetched.
	RefreshInterval time.Duration `yaml:"refreshInterval"`

	// Claim names mapped onto the authenticated user.
	RolesClaim       string `yaml:"rolesClaim"`
	PermissionsClaim string `yaml:"permissionsClaim"`
	EmailClaim       string `yaml:"emailClaim"`
}

// Validate checks the configuration at construction time.
func (c *Config) Validate() error {
	modes := 0
	if len(c.StaticTokens) > 0 {
		modes++
	}
	if c.Secret != "" {
		modes++
	}
	if c.JWKSURL != "" {
		modes++
	}
	if modes == 0 {
		return errors.New("bearer auth requires staticTokens, secret, or jwksUrl")
	}
	if modes > 1 {
		return errors.New("bearer auth accepts only one of staticTokens, secret, or jwksUrl")
	}
	return nil
}

func (c *Config) rolesClaim() string {
	if c.RolesClaim == "" {
		return "roles"
	}
	return c.RolesClaim
}

func (c *Config) permissionsClaim() string {
	if c.PermissionsClaim == "" {
		return "permissions"
	}
	return c.PermissionsClaim
}

func (c *Config) emailClaim() string {
	if c.EmailClaim == "" {
		return "email"
	}
	return c.EmailClaim
}

// Validator validates Bearer tokens.
type Validator struct {
	config  *Config
	keySet  jwk.Set
	allowed map[jwa.SignatureAlgorithm]struct{}
	hsAlg   jwa.SignatureAlgorithm
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

// WithKeySet overrides the JWKS with a local key set, bypassing the remote
// cache. Intended for tests.
func WithKeySet(set jwk.Set) Option {
	return func(v *Validator) { v.keySet = set }
}

// NewValidator creates a Bearer validator. When a JWKS URL is configured the
// key set is fetched in the background and refreshed for the lifetime of
// ctx; a failed initial fetch is logged and retried on the next request
// rather than failing construction.
func NewValidator(ctx context.Context, config *Config, opts ...Option) (*Validator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	v := &Validator{
		config:  config,
		allowed: make(map[jwa.SignatureAlgorithm]struct{}),
		hsAlg:   jwa.HS256,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}

	algs := config.Algorithms
	if len(algs) == 0 {
		if config.JWKSURL != "" {
			algs = []string{"RS256"}
		} else {
			algs = []string{"HS256"}
		}
	}
	for _, a := range algs {
		var alg jwa.SignatureAlgorithm
		if err := alg.Accept(a); err != nil {
			return nil, fmt.Errorf("unknown signature algorithm %q", a)
		}
		v.allowed[alg] = struct{}{}
	}
	if config.Secret != "" {
		v.hsAlg = jwa.SignatureAlgorithm(algs[0])
	}

	if config.JWKSURL != "" && v.keySet == nil {
		interval := config.RefreshInterval
		if interval <= 0 {
			interval = 15 * time.Minute
		}
		cache := jwk.NewCache(ctx)
		if err := cache.Register(config.JWKSURL, jwk.WithMinRefreshInterval(interval)); err != nil {
			return nil, fmt.Errorf("registering jwks url: %w", err)
		}
		if _, err := cache.Refresh(ctx, config.JWKSURL); err != nil {
			v.logger.Warn("initial jwks fetch failed, will retry on demand",
				observability.String("url", config.JWKSURL),
				observability.Error(err))
		}
		v.keySet = jwk.NewCachedSet(cache, config.JWKSURL)
	}

	return v, nil
}

// Method implements auth.Validator.
func (v *Validator) Method() auth.Method {
	return auth.MethodBearer
}

// ExtractToken implements auth.Validator.
func (v *Validator) ExtractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < len(schemePrefix) || !strings.EqualFold(header[:len(schemePrefix)], schemePrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(schemePrefix):])
	return token, token != ""
}

// Validate implements auth.Validator.
func (v *Validator) Validate(ctx context.Context, r *http.Request) (*auth.Context, error) {
	start := time.Now()

	token, ok := v.ExtractToken(r)
	if !ok {
		v.metrics.RecordValidation(auth.MethodBearer, "no_credentials", time.Since(start))
		return nil, auth.ErrNoCredentials
	}

	if len(v.config.StaticTokens) > 0 {
		return v.validateStatic(token, start)
	}
	return v.validateJWT(ctx, token, start)
}

// validateStatic checks the presented token against every configured static
// token so the comparison count does not depend on the match position.
func (v *Validator) validateStatic(token string, start time.Time) (*auth.Context, error) {
	matched := false
	for _, candidate := range v.config.StaticTokens {
		if security.ConstantTimeEqual(token, candidate) {
			matched = true
		}
	}
	if !matched {
		v.metrics.RecordValidation(auth.MethodBearer, "invalid", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodBearer, "unknown bearer token")
	}

	v.metrics.RecordValidation(auth.MethodBearer, "success", time.Since(start))
	return &auth.Context{
		Authenticated: true,
		Method:        auth.MethodBearer,
		Token:         token,
	}, nil
}

func (v *Validator) validateJWT(ctx context.Context, token string, start time.Time) (*auth.Context, error) {
	if err := v.checkAlgorithm(token); err != nil {
		v.metrics.RecordValidation(auth.MethodBearer, "bad_algorithm", time.Since(start))
		return nil, err
	}

	opts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithValidate(true),
	}
	if v.config.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(v.config.ClockSkew))
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}
	if v.keySet != nil {
		opts = append(opts, jwt.WithKeySet(v.keySet, jws.WithInferAlgorithmFromKey(true)))
	} else {
		opts = append(opts, jwt.WithKey(v.hsAlg, []byte(v.config.Secret)))
	}

	parsed, err := jwt.ParseString(token, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			v.metrics.RecordValidation(auth.MethodBearer, "expired", time.Since(start))
			return nil, auth.WrapError(auth.ErrorKindExpired, auth.MethodBearer, "token expired", err)
		}
		v.metrics.RecordValidation(auth.MethodBearer, "invalid", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindInvalidToken, auth.MethodBearer, "token verification failed", err)
	}

	v.metrics.RecordValidation(auth.MethodBearer, "success", time.Since(start))
	return v.buildContext(parsed, token), nil
}

// checkAlgorithm rejects tokens whose header names an algorithm outside the
// allow-list before any signature work happens.
func (v *Validator) checkAlgorithm(token string) error {
	msg, err := jws.ParseString(token)
	if err != nil {
		return auth.WrapError(auth.ErrorKindInvalidToken, auth.MethodBearer, "malformed token", err)
	}
	for _, sig := range msg.Signatures() {
		alg := sig.ProtectedHeaders().Algorithm()
		if _, ok := v.allowed[alg]; !ok {
			return auth.NewError(auth.ErrorKindInvalidToken, auth.MethodBearer,
				fmt.Sprintf("algorithm %q is not allowed", alg))
		}
	}
	return nil
}

func (v *Validator) buildContext(parsed jwt.Token, token string) *auth.Context {
	user := &auth.User{ID: parsed.Subject()}

	if raw, ok := parsed.Get(v.config.emailClaim()); ok {
		if email, ok := raw.(string); ok {
			user.Email = email
		}
	}
	user.Roles = stringClaim(parsed, v.config.rolesClaim())
	user.Permissions = stringClaim(parsed, v.config.permissionsClaim())

	// Remaining private claims travel with the request for downstream
	// policy decisions.
	consumed := map[string]struct{}{
		v.config.emailClaim():       {},
		v.config.rolesClaim():       {},
		v.config.permissionsClaim(): {},
	}
	custom := make(map[string]any)
	for name, value := range parsed.PrivateClaims() {
		if _, ok := consumed[name]; ok {
			continue
		}
		custom[name] = value
	}
	if len(custom) > 0 {
		user.Metadata = custom
	}

	authCtx := &auth.Context{
		Authenticated: true,
		Method:        auth.MethodBearer,
		Token:         token,
		User:          user,
		Custom:        custom,
	}
	if exp := parsed.Expiration(); !exp.IsZero() {
		e := exp
		authCtx.ExpiresAt = &e
	}
	return authCtx
}

func stringClaim(parsed jwt.Token, name string) []string {
	raw, ok := parsed.Get(name)
	if !ok {
		return nil
	}
	switch vals := raw.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vals}
	default:
		return nil
	}
}

// Ensure Validator implements auth.Validator.
var _ auth.Validator = (*Validator)(nil)
