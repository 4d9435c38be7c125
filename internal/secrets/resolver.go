// Package secrets resolves environment variable placeholders embedded in
// configuration strings. It is a load-time facility only; nothing here runs
// per request.
package secrets

import (
	"os"
	"regexp"
	"strings"

	"github.com/ensembleai/agentgate/internal/observability"
)

// placeholderPattern matches both $env.NAME and ${env.NAME}.
var placeholderPattern = regexp.MustCompile(`\$\{env\.([A-Za-z_][A-Za-z0-9_]*)\}|\$env\.([A-Za-z_][A-Za-z0-9_]*)`)

// Resolver substitutes $env.NAME and ${env.NAME} placeholders from an
// environment map.
type Resolver struct {
	env    map[string]string
	logger observability.Logger
}

// Option is a functional option for the resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithEnv supplies an explicit environment map instead of the process
// environment. Intended for tests and trigger configs that carry their own
// environment.
func WithEnv(env map[string]string) Option {
	return func(r *Resolver) { r.env = env }
}

// NewResolver creates a resolver over the process environment unless
// WithEnv overrides it.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	if r.env == nil {
		r.env = processEnv()
	}
	return r
}

func processEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if name, value, found := strings.Cut(kv, "="); found {
			env[name] = value
		}
	}
	return env
}

// Resolve substitutes every placeholder in value. Unresolved references pass
// through unchanged with a logged warning so a missing variable surfaces in
// logs instead of silently becoming an empty secret.
func (r *Resolver) Resolve(value string) string {
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderName(match)
		if resolved, ok := r.env[name]; ok {
			return resolved
		}
		r.logger.Warn("unresolved environment placeholder",
			observability.String("name", name))
		return match
	})
}

// HasPlaceholder reports whether value contains an environment placeholder.
func HasPlaceholder(value string) bool {
	return placeholderPattern.MatchString(value)
}

func placeholderName(match string) string {
	groups := placeholderPattern.FindStringSubmatch(match)
	if groups[1] != "" {
		return groups[1]
	}
	return groups[2]
}
