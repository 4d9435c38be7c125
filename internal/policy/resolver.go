package policy

import (
	"sort"
	"strings"
)

// Resolver computes effective rules. Populated once at startup and treated as
// read-only afterwards.
type Resolver struct {
	defaults  map[OperationKind]Rule
	pathRules []PathRule
}

// NewResolver creates a resolver from per-kind defaults and an ordered list of
// path rules. The path rule slice is copied and pre-sorted least-specific
// first so that more specific rules overlay less specific ones during
// resolution.
func NewResolver(defaults map[OperationKind]Rule, pathRules []PathRule) *Resolver {
	rules := append([]PathRule(nil), pathRules...)

	// Ascending (priority, specificity): the most specific rule is applied
	// last and therefore wins field-by-field.
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return patternSpecificity(rules[i].Pattern) < patternSpecificity(rules[j].Pattern)
	})

	copied := make(map[OperationKind]Rule, len(defaults))
	for kind, rule := range defaults {
		copied[kind] = rule.Clone()
	}

	return &Resolver{defaults: copied, pathRules: rules}
}

// Resolve computes the effective rule for a route. Precedence, lowest to
// highest: kind default, matching path rules (least to most specific), route
// override. Each layer merges field-by-field; resolution always produces a
// fresh value.
func (r *Resolver) Resolve(routePattern string, kind OperationKind, override *Rule) Rule {
	effective, ok := r.defaults[kind]
	if !ok {
		effective = secureDefault()
	} else {
		effective = effective.Clone()
	}

	for _, rule := range r.pathRules {
		if PatternCovers(rule.Pattern, routePattern) {
			effective = effective.merge(rule.Auth)
		}
	}

	if override != nil {
		effective = effective.merge(*override)
	}

	return effective
}

// PatternCovers reports whether a path-rule pattern covers a route pattern.
// Rule segments match literally, ":name" rule segments match any single
// segment, and a trailing "*" matches any remainder (including none beyond
// the prefix). A route's ":param" segment is only covered by a rule ":name"
// or "*" segment, never by a literal.
func PatternCovers(rulePattern, routePattern string) bool {
	if rulePattern == routePattern {
		return true
	}

	ruleSegs := splitPattern(rulePattern)
	routeSegs := splitPattern(routePattern)

	for i, rs := range ruleSegs {
		if rs == "*" {
			// Trailing wildcard covers the rest.
			return i == len(ruleSegs)-1
		}

		if i >= len(routeSegs) {
			return false
		}

		routeSeg := routeSegs[i]
		switch {
		case strings.HasPrefix(rs, ":"):
			// Parameter covers any single segment.
		case strings.HasPrefix(routeSeg, ":"):
			// Literal rule segment cannot cover a route parameter.
			return false
		case rs != routeSeg:
			return false
		}
	}

	return len(ruleSegs) == len(routeSegs)
}

// patternSpecificity scores a pattern for ordering: more literal segments make
// a pattern more specific, wildcards make it less so.
func patternSpecificity(pattern string) int {
	score := 0
	for _, seg := range splitPattern(pattern) {
		switch {
		case seg == "*":
			score -= 10
		case strings.HasPrefix(seg, ":"):
			score += 1
		default:
			score += 100
		}
	}
	return score
}

func splitPattern(pattern string) []string {
	trimmed := strings.Trim(pattern, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
