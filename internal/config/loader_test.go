package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleai/agentgate/internal/policy"
	"github.com/ensembleai/agentgate/internal/secrets"
)

const sampleConfig = `
server:
  address: ":9090"
  readTimeout: 5s
log:
  level: debug
  format: console
store:
  type: memory
auth:
  defaults:
    api:
      requirement: required
      methods: [bearer, apiKey]
    page:
      requirement: optional
      methods: [cookie]
  pathRules:
    - pattern: /
      auth:
        requirement: public
    - pattern: /login
      auth:
        requirement: public
  validators:
    bearer:
      secret: $env.JWT_SECRET
      issuer: https://idp.example.com
    basic:
      credentials:
        - username: admin
          password: ${env.ADMIN_PASSWORD}
routes:
  - pattern: /api/tasks
    methods: [GET, POST]
    kind: api
  - pattern: /webhooks/github
    kind: webhook
  - sourcePath: docs.index
    kind: page
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agentgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func testResolver() *secrets.Resolver {
	return secrets.NewResolver(secrets.WithEnv(map[string]string{
		"JWT_SECRET":     "resolved-jwt-secret",
		"ADMIN_PASSWORD": "resolved-password",
	}))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, sampleConfig), testResolver())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults fill what the file leaves out.
	assert.NotZero(t, cfg.Server.WriteTimeout)

	require.Contains(t, cfg.Auth.Defaults, "api")
	assert.Equal(t, policy.RequirementRequired, cfg.Auth.Defaults["api"].Requirement)
	assert.Len(t, cfg.Auth.PathRules, 2)
	assert.Len(t, cfg.Routes, 3)

	// Secrets are resolved at load time.
	assert.Equal(t, "resolved-jwt-secret", cfg.Auth.Validators.Bearer.Secret)
	assert.Equal(t, "resolved-password", cfg.Auth.Validators.Basic.Credentials[0].Password)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()
		_, err := Load("", nil)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := Load(t.TempDir(), nil)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()
		_, err := Load(writeConfig(t, "server: [broken"), nil)
		assert.Error(t, err)
	})

	t.Run("fails validation", func(t *testing.T) {
		t.Parallel()
		_, err := Load(writeConfig(t, "store:\n  type: dynamo\n"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown store type")
	})
}
