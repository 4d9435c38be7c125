// Package gateway wires the router, rule resolver, validator registry, and
// rate limiter into the request pipeline every inbound call passes through
// before a workflow executes.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/policy"
	"github.com/ensembleai/agentgate/internal/ratelimit"
	"github.com/ensembleai/agentgate/internal/router"
)

// Limiter is the rate limiting port the pipeline invokes with the
// effective per-rule limit. Both limiter algorithms satisfy it.
type Limiter interface {
	AllowWithLimit(ctx context.Context, key string, n int, limit ratelimit.Limit) (*ratelimit.Result, error)
}

// Gateway is the composition root of the auth pipeline.
type Gateway struct {
	router         *router.Router
	resolver       *policy.Resolver
	registry       *auth.Registry
	limiter        Limiter
	upstream       http.Handler
	basicChallenge string
	logger         observability.Logger
	metrics        *Metrics
}

// Option is a functional option for the gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(g *Gateway) { g.metrics = metrics }
}

// WithLimiter sets the rate limiter.
func WithLimiter(limiter Limiter) Option {
	return func(g *Gateway) { g.limiter = limiter }
}

// WithUpstream sets the handler that receives authenticated requests,
// normally the workflow execution engine. The default replies 200.
func WithUpstream(upstream http.Handler) Option {
	return func(g *Gateway) { g.upstream = upstream }
}

// WithBasicChallenge sets the WWW-Authenticate value attached to 401
// responses on routes that allow Basic auth.
func WithBasicChallenge(challenge string) Option {
	return func(g *Gateway) { g.basicChallenge = challenge }
}

// New creates a gateway over a populated router, resolver, and registry.
func New(rt *router.Router, resolver *policy.Resolver, registry *auth.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		router:   rt,
		resolver: resolver,
		registry: registry,
		logger:   observability.NopLogger(),
		upstream: defaultUpstream(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultUpstream() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

// Handle runs the pipeline: route match, rule resolution, authentication,
// authorization, rate limiting, then the upstream handler.
func (g *Gateway) Handle(c *gin.Context) {
	match := g.router.MatchRequest(c.Request.URL.Path, c.Request.Method)
	if match == nil {
		g.metrics.RecordUnmatched()
		writeError(c, http.StatusNotFound, "not_found", "no route matches")
		return
	}

	route := &match.Route
	rule := g.resolver.Resolve(route.Pattern, route.Kind, route.AuthOverride)

	authCtx, done := g.authenticate(c, route, &rule)
	if done {
		g.metrics.RecordRequest(string(route.Kind), c.Writer.Status())
		return
	}

	if !g.authorize(c, &rule, authCtx) {
		g.metrics.RecordRequest(string(route.Kind), c.Writer.Status())
		return
	}

	if !g.checkRateLimit(c, route, &rule, authCtx) {
		g.metrics.RecordRequest(string(route.Kind), c.Writer.Status())
		return
	}

	ctx := auth.WithContext(c.Request.Context(), authCtx)
	ctx = router.WithParams(ctx, match.Params)
	c.Request = c.Request.WithContext(ctx)

	g.upstream.ServeHTTP(c.Writer, c.Request)
	g.metrics.RecordRequest(string(route.Kind), c.Writer.Status())
}

// authenticate returns the request's auth context, or reports that a
// response has already been written.
func (g *Gateway) authenticate(c *gin.Context, route *router.Route, rule *policy.Rule) (*auth.Context, bool) {
	if rule.Requirement == policy.RequirementPublic {
		return auth.Anonymous(), false
	}

	validators, err := g.registry.Resolve(rule.Methods)
	if err != nil {
		// Configuration names a method nothing registered; surfacing it as
		// unknown keeps the bypass visible instead of silently public.
		g.logger.Error("auth method resolution failed",
			observability.String("route", route.Pattern),
			observability.Error(err))
		writeError(c, http.StatusInternalServerError, string(auth.ErrorKindUnknown), messageFor(auth.ErrorKindUnknown))
		return nil, true
	}

	var lastErr error
	for _, v := range validators {
		if _, ok := v.ExtractToken(c.Request); !ok {
			continue
		}
		authCtx, err := v.Validate(c.Request.Context(), c.Request)
		if err == nil {
			return authCtx, false
		}
		if errors.Is(err, auth.ErrNoCredentials) {
			// The credential shape belongs to another method; fall through.
			continue
		}
		lastErr = err
		g.logger.Debug("validation failed",
			observability.String("route", route.Pattern),
			observability.String("method", string(v.Method())),
			observability.Error(err))
	}

	if rule.Requirement == policy.RequirementOptional {
		// Optional auth attaches an identity when one checks out and
		// continues anonymously otherwise.
		return auth.Anonymous(), false
	}

	if lastErr != nil {
		g.failAuth(c, rule, auth.KindOf(lastErr))
		return nil, true
	}

	g.failAuth(c, rule, auth.ErrorKindInvalidToken)
	return nil, true
}

// failAuth writes the failure response honoring the rule's onFailure
// behavior.
func (g *Gateway) failAuth(c *gin.Context, rule *policy.Rule, kind auth.ErrorKind) {
	if rule.OnFailure != nil && rule.OnFailure.RedirectTo != "" &&
		(rule.OnFailure.Action == policy.FailureActionRedirect || rule.OnFailure.Action == policy.FailureActionPage) {
		c.Redirect(http.StatusFound, rule.OnFailure.RedirectTo)
		c.Abort()
		return
	}

	if g.basicChallenge != "" && allowsBasic(rule) {
		c.Writer.Header().Set("WWW-Authenticate", g.basicChallenge)
	}
	writeError(c, statusFor(kind), string(kind), messageFor(kind))
}

func allowsBasic(rule *policy.Rule) bool {
	for _, m := range rule.Methods {
		if auth.Method(m) == auth.MethodBasic {
			return true
		}
	}
	return false
}

// authorize enforces role (any-of) and permission (all-of) requirements.
// 403 is reserved for authenticated identities missing grants.
func (g *Gateway) authorize(c *gin.Context, rule *policy.Rule, authCtx *auth.Context) bool {
	if len(rule.Roles) == 0 && len(rule.Permissions) == 0 {
		return true
	}

	if !authCtx.Authenticated {
		g.failAuth(c, rule, auth.ErrorKindInvalidToken)
		return false
	}

	hasRole := len(rule.Roles) == 0
	for _, role := range rule.Roles {
		if authCtx.User != nil && authCtx.User.HasRole(role) {
			hasRole = true
			break
		}
	}
	if !hasRole {
		writeError(c, http.StatusForbidden, "forbidden", "missing required role")
		return false
	}

	for _, perm := range rule.Permissions {
		if authCtx.User == nil || !authCtx.User.HasPermission(perm) {
			writeError(c, http.StatusForbidden, "forbidden", "missing required permission")
			return false
		}
	}
	return true
}

// checkRateLimit applies the effective limit, preferring a per-identity
// hint from the validator over the rule's limit. Store failures fail open;
// limiting is best-effort by contract.
func (g *Gateway) checkRateLimit(c *gin.Context, route *router.Route, rule *policy.Rule, authCtx *auth.Context) bool {
	spec := rule.RateLimit
	if authCtx.RateLimitHint != nil {
		spec = authCtx.RateLimitHint
	}
	if spec == nil || g.limiter == nil {
		return true
	}

	identity := ""
	if authCtx.User != nil {
		identity = authCtx.User.ID
	}
	key := ratelimit.Key(identity, route.Pattern, c.Request)

	result, err := g.limiter.AllowWithLimit(c.Request.Context(), key, 1, ratelimit.FromSpec(spec))
	if err != nil {
		g.logger.Warn("rate limit check failed, allowing request",
			observability.String("route", route.Pattern),
			observability.Error(err))
		return true
	}

	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetAfter.Seconds()), 10))

	if !result.Allowed {
		g.metrics.RecordRateLimited()
		retryAfter := int64(result.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		writeError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return false
	}
	return true
}
