package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ensembleai/agentgate/internal/secrets"
)

// Load reads, parses, and validates a YAML configuration file. Environment
// placeholders in secret-bearing fields are resolved before validation so a
// missing variable fails at startup.
func Load(path string, resolver *secrets.Resolver) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path is a directory, not a file: %s", path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if resolver == nil {
		resolver = secrets.NewResolver()
	}
	resolveSecrets(cfg, resolver)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// resolveSecrets substitutes $env placeholders in every field that may
// carry a secret.
func resolveSecrets(cfg *Config, resolver *secrets.Resolver) {
	if cfg.Store.Redis != nil {
		cfg.Store.Redis.Password = resolver.Resolve(cfg.Store.Redis.Password)
	}

	v := &cfg.Auth.Validators
	if v.Bearer != nil {
		v.Bearer.Secret = resolver.Resolve(v.Bearer.Secret)
		for i, token := range v.Bearer.StaticTokens {
			v.Bearer.StaticTokens[i] = resolver.Resolve(token)
		}
	}
	if v.Basic != nil {
		for i := range v.Basic.Credentials {
			v.Basic.Credentials[i].Password = resolver.Resolve(v.Basic.Credentials[i].Password)
		}
	}
	if v.Signature != nil {
		v.Signature.Secret = resolver.Resolve(v.Signature.Secret)
	}
}
