// Package policy resolves the effective authentication rule for a matched
// route by merging global per-kind defaults, path-pattern rules, and
// route-specific overrides.
package policy

// Requirement expresses whether authentication is needed for a route.
type Requirement string

// Requirement values.
const (
	RequirementPublic   Requirement = "public"
	RequirementOptional Requirement = "optional"
	RequirementRequired Requirement = "required"
)

// OperationKind classifies what a route serves. Auth defaults are configured
// per kind.
type OperationKind string

// Operation kinds.
const (
	KindAPI     OperationKind = "api"
	KindPage    OperationKind = "page"
	KindWebhook OperationKind = "webhook"
	KindStatic  OperationKind = "static"
)

// FailureAction determines how an authentication failure is surfaced.
type FailureAction string

// Failure actions.
const (
	FailureActionError    FailureAction = "error"
	FailureActionRedirect FailureAction = "redirect"
	FailureActionPage     FailureAction = "page"
)

// OnFailure describes the failure behavior of a rule.
type OnFailure struct {
	Action     FailureAction `yaml:"action"`
	RedirectTo string        `yaml:"redirectTo,omitempty"`
}

// RateLimitSpec describes a fixed-window rate limit.
type RateLimitSpec struct {
	// Requests is the maximum number of requests allowed per window.
	Requests int `yaml:"requests"`

	// WindowSeconds is the window length in seconds.
	WindowSeconds int `yaml:"windowSeconds"`
}

// Rule is an authentication/authorization policy. Fields left at their zero
// value are "unset" and do not participate in merging.
type Rule struct {
	// Requirement is whether auth is public, optional, or required.
	Requirement Requirement `yaml:"requirement,omitempty"`

	// Methods is the ordered list of auth method names to attempt.
	Methods []string `yaml:"methods,omitempty"`

	// Roles the authenticated identity must hold (any-of).
	Roles []string `yaml:"roles,omitempty"`

	// Permissions the authenticated identity must hold (all-of).
	Permissions []string `yaml:"permissions,omitempty"`

	// OnFailure describes how a failure is surfaced.
	OnFailure *OnFailure `yaml:"onFailure,omitempty"`

	// RateLimit is the rate limit applied to the route, if any.
	RateLimit *RateLimitSpec `yaml:"rateLimit,omitempty"`
}

// Clone returns a deep copy of the rule. Resolution never mutates its inputs.
func (r Rule) Clone() Rule {
	out := Rule{Requirement: r.Requirement}

	if r.Methods != nil {
		out.Methods = append([]string(nil), r.Methods...)
	}
	if r.Roles != nil {
		out.Roles = append([]string(nil), r.Roles...)
	}
	if r.Permissions != nil {
		out.Permissions = append([]string(nil), r.Permissions...)
	}
	if r.OnFailure != nil {
		f := *r.OnFailure
		out.OnFailure = &f
	}
	if r.RateLimit != nil {
		l := *r.RateLimit
		out.RateLimit = &l
	}

	return out
}

// merge overlays other on top of r field-by-field. Unset fields in other keep
// the accumulated value; this is what lets a path rule flip the requirement to
// public while inheriting the rate limit from the kind default.
func (r Rule) merge(other Rule) Rule {
	merged := r.Clone()

	if other.Requirement != "" {
		merged.Requirement = other.Requirement
	}
	if other.Methods != nil {
		merged.Methods = append([]string(nil), other.Methods...)
	}
	if other.Roles != nil {
		merged.Roles = append([]string(nil), other.Roles...)
	}
	if other.Permissions != nil {
		merged.Permissions = append([]string(nil), other.Permissions...)
	}
	if other.OnFailure != nil {
		f := *other.OnFailure
		merged.OnFailure = &f
	}
	if other.RateLimit != nil {
		l := *other.RateLimit
		merged.RateLimit = &l
	}

	return merged
}

// PathRule binds a rule to a path pattern. Rules are evaluated most-specific
// first, so later (more specific) matches overlay earlier ones.
type PathRule struct {
	Pattern  string `yaml:"pattern"`
	Auth     Rule   `yaml:"auth"`
	Priority int    `yaml:"priority,omitempty"`
}

// secureDefault is the rule applied when no default is configured for a
// route's operation kind. Requiring auth with no methods configured fails
// closed.
func secureDefault() Rule {
	return Rule{Requirement: RequirementRequired}
}
