// Package auth defines the shared authentication contract: the per-request
// AuthContext, the failure taxonomy, and the validator registry the gateway
// resolves auth methods against.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/ensembleai/agentgate/internal/policy"
)

// Method identifies one authentication strategy.
type Method string

// Authentication methods.
const (
	MethodBearer    Method = "bearer"
	MethodAPIKey    Method = "apiKey"
	MethodCookie    Method = "cookie"
	MethodBasic     Method = "basic"
	MethodSignature Method = "signature"
)

// User is the authenticated principal carried in an AuthContext.
type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HasRole checks if the user holds a specific role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission checks if the user holds a specific permission.
func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Context is the result of a validation. It is created fresh per request by a
// validator and consumed immediately by the gateway; the gateway never
// persists it.
type Context struct {
	// Authenticated is true only for successful validations.
	Authenticated bool `json:"authenticated"`

	// Method is the strategy that produced this context.
	Method Method `json:"method"`

	// Token is the raw credential, when one exists.
	Token string `json:"-"`

	// User is the authenticated principal, when the method yields one
	// (signature validation authenticates the caller without a user).
	User *User `json:"user,omitempty"`

	// ExpiresAt is when the credential expires, nil when the credential is
	// not time-bound.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Custom carries method-specific extras (e.g. non-standard JWT claims).
	Custom map[string]any `json:"custom,omitempty"`

	// RateLimitHint overrides the route rate limit, when per-credential
	// metadata carries one.
	RateLimitHint *policy.RateLimitSpec `json:"-"`
}

// Anonymous returns the context used for public routes and optional auth
// without credentials.
func Anonymous() *Context {
	return &Context{Authenticated: false}
}

// Validator is the contract every authentication strategy implements.
// Implementations confine side effects to storage reads (and, for cookie
// sessions, deletes on expiry).
type Validator interface {
	// Method returns the strategy identifier.
	Method() Method

	// ExtractToken extracts the credential from the request without
	// validating it. ok is false when the request carries none.
	ExtractToken(r *http.Request) (token string, ok bool)

	// Validate validates the request's credential. Expected auth failures
	// are returned as *Error, never as panics; infrastructure failures are
	// classified as ErrorKindUnknown.
	Validate(ctx context.Context, r *http.Request) (*Context, error)
}

// contextKey is the key type for the AuthContext stored in a request context.
type contextKey struct{}

// WithContext attaches an AuthContext to a request context.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext extracts the AuthContext from a request context.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(contextKey{}).(*Context)
	return ac, ok
}
