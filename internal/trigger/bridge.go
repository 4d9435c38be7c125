// Package trigger maps the simplified auth block of a declarative workflow
// trigger onto the gateway's validators. Workflow authors write a compact
// {type, secret, ...} shape; the bridge expands it, resolves environment
// placeholders, and hands back a ready validator.
package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/auth/basic"
	"github.com/ensembleai/agentgate/internal/auth/bearer"
	"github.com/ensembleai/agentgate/internal/auth/signature"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/secrets"
	"github.com/ensembleai/agentgate/internal/security"
)

// Trigger auth types.
const (
	TypeSignature = "signature"
	TypeBearer    = "bearer"
	TypeBasic     = "basic"
)

// Config is the simplified auth shape carried by workflow trigger
// definitions.
type Config struct {
	Type string `yaml:"type"`
	// Secret is the HMAC secret for signature triggers or the static
	// token for bearer triggers. May reference $env.NAME.
	Secret    string `yaml:"secret"`
	Algorithm string `yaml:"algorithm"`
	Preset    string `yaml:"preset"`

	SignatureHeader string `yaml:"signatureHeader"`
	TimestampHeader string `yaml:"timestampHeader"`
	Tolerance       int64  `yaml:"tolerance"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Env overrides the process environment for placeholder resolution.
	Env map[string]string `yaml:"env"`
}

// ValidateConfig checks a trigger auth config for structural errors at load
// time, independent of any request.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("trigger auth config is required")
	}
	switch cfg.Type {
	case TypeSignature:
		if cfg.Secret == "" {
			return errors.New("signature trigger requires a secret")
		}
		if cfg.Algorithm != "" && !security.IsSupportedAlgorithm(cfg.Algorithm) {
			return fmt.Errorf("unsupported algorithm %q", cfg.Algorithm)
		}
		if cfg.Preset != "" && !signature.IsKnownPreset(cfg.Preset) {
			return fmt.Errorf("unknown preset %q", cfg.Preset)
		}
	case TypeBearer:
		if cfg.Secret == "" {
			return errors.New("bearer trigger requires a secret")
		}
	case TypeBasic:
		if cfg.Username == "" || cfg.Password == "" {
			return errors.New("basic trigger requires a username and password")
		}
	case "":
		return errors.New("trigger auth type is required")
	default:
		return fmt.Errorf("unknown trigger auth type %q", cfg.Type)
	}
	return nil
}

// Bridge builds validators from trigger configs.
type Bridge struct {
	logger observability.Logger
}

// Option is a functional option for the bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// NewBridge creates a trigger auth bridge.
func NewBridge(opts ...Option) *Bridge {
	b := &Bridge{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build expands the config into a validator. Secrets may reference
// $env.NAME placeholders, resolved against cfg.Env or the process
// environment.
func (b *Bridge) Build(ctx context.Context, cfg *Config) (auth.Validator, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	resolverOpts := []secrets.Option{secrets.WithLogger(b.logger)}
	if cfg.Env != nil {
		resolverOpts = append(resolverOpts, secrets.WithEnv(cfg.Env))
	}
	resolver := secrets.NewResolver(resolverOpts...)

	switch cfg.Type {
	case TypeSignature:
		return signature.NewValidator(&signature.Config{
			Secret:          resolver.Resolve(cfg.Secret),
			Algorithm:       cfg.Algorithm,
			Preset:          cfg.Preset,
			SignatureHeader: cfg.SignatureHeader,
			TimestampHeader: cfg.TimestampHeader,
			Tolerance:       cfg.Tolerance,
		}, signature.WithLogger(b.logger))

	case TypeBearer:
		// Triggers use static tokens; full JWT validation belongs to the
		// gateway-level bearer validator.
		return bearer.NewValidator(ctx, &bearer.Config{
			StaticTokens: []string{resolver.Resolve(cfg.Secret)},
		}, bearer.WithLogger(b.logger))

	case TypeBasic:
		return basic.NewValidator(&basic.Config{
			Credentials: []basic.Credential{{
				Username: cfg.Username,
				Password: resolver.Resolve(cfg.Password),
			}},
		}, basic.WithLogger(b.logger))
	}

	return nil, fmt.Errorf("unknown trigger auth type %q", cfg.Type)
}
