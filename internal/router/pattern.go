// Package router provides pattern-based route registration and matching for
// the gateway.
package router

import (
	"fmt"
	"strings"
)

// patternClass orders patterns by specificity: exact literal patterns match
// before parameterized ones, which match before wildcard ones.
type patternClass int

const (
	classExact patternClass = iota
	classParam
	classWildcard
)

// segment is one compiled pattern segment.
type segment struct {
	literal   string
	paramName string
	isParam   bool
}

// Pattern is a compiled route pattern. Patterns are segment-based: literal
// segments, ":name" capture segments, and an optional trailing "*" wildcard.
type Pattern struct {
	raw      string
	segments []segment
	wildcard bool
	class    patternClass
	literals int
}

// CompilePattern parses and validates a route pattern.
func CompilePattern(raw string) (*Pattern, error) {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("pattern must start with /: %q", raw)
	}

	p := &Pattern{raw: raw}

	parts := splitPath(raw)
	for i, part := range parts {
		switch {
		case part == "*":
			if i != len(parts)-1 {
				return nil, fmt.Errorf("wildcard must be the final segment: %q", raw)
			}
			p.wildcard = true
		case strings.HasPrefix(part, ":"):
			name := part[1:]
			if name == "" {
				return nil, fmt.Errorf("empty parameter name: %q", raw)
			}
			p.segments = append(p.segments, segment{paramName: name, isParam: true})
		case part == "":
			return nil, fmt.Errorf("empty segment: %q", raw)
		default:
			p.segments = append(p.segments, segment{literal: part})
			p.literals++
		}
	}

	switch {
	case p.wildcard:
		p.class = classWildcard
	case p.literals == len(p.segments):
		p.class = classExact
	default:
		p.class = classParam
	}

	return p, nil
}

// String returns the original pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Match checks the path against the pattern and extracts path parameters.
func (p *Pattern) Match(path string) (matched bool, params map[string]string) {
	parts := splitPath(path)

	if p.wildcard {
		if len(parts) < len(p.segments) {
			return false, nil
		}
	} else if len(parts) != len(p.segments) {
		return false, nil
	}

	for i, seg := range p.segments {
		part := parts[i]
		if seg.isParam {
			if part == "" {
				return false, nil
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg.paramName] = part
			continue
		}
		if seg.literal != part {
			return false, nil
		}
	}

	return true, params
}

// splitPath splits a URL path into segments, ignoring leading and trailing
// slashes so "/a/b" and "/a/b/" are equivalent.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
