package auth

import "fmt"

// Registry maps auth method identifiers to validator instances. It is an
// explicit value constructed once at startup and passed by reference through
// the call chain; registration happens before traffic begins, so reads need
// no locking.
type Registry struct {
	validators map[Method]Validator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: make(map[Method]Validator)}
}

// Register adds a validator. Registering the same method twice is a wiring
// defect.
func (r *Registry) Register(v Validator) error {
	method := v.Method()
	if _, exists := r.validators[method]; exists {
		return fmt.Errorf("validator already registered for method %q", method)
	}
	r.validators[method] = v
	return nil
}

// Get returns the validator for a method.
func (r *Registry) Get(method Method) (Validator, bool) {
	v, ok := r.validators[method]
	return v, ok
}

// Resolve returns the validators for an ordered method list, preserving
// order. Unknown method names are reported so misconfiguration surfaces at
// resolution time rather than as a silent auth bypass.
func (r *Registry) Resolve(methods []string) ([]Validator, error) {
	out := make([]Validator, 0, len(methods))
	for _, name := range methods {
		v, ok := r.validators[Method(name)]
		if !ok {
			return nil, fmt.Errorf("no validator registered for method %q", name)
		}
		out = append(out, v)
	}
	return out, nil
}

// Methods returns the registered method identifiers.
func (r *Registry) Methods() []Method {
	methods := make([]Method, 0, len(r.validators))
	for m := range r.validators {
		methods = append(methods, m)
	}
	return methods
}
