package trigger

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/security"
)

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil", config: nil, wantErr: true},
		{name: "missing type", config: &Config{Secret: "s"}, wantErr: true},
		{name: "unknown type", config: &Config{Type: "oauth", Secret: "s"}, wantErr: true},
		{name: "signature without secret", config: &Config{Type: TypeSignature}, wantErr: true},
		{name: "signature bad algorithm", config: &Config{Type: TypeSignature, Secret: "s", Algorithm: "md5"}, wantErr: true},
		{name: "signature bad preset", config: &Config{Type: TypeSignature, Secret: "s", Preset: "gitlab"}, wantErr: true},
		{name: "signature ok", config: &Config{Type: TypeSignature, Secret: "s", Preset: "github"}},
		{name: "bearer without secret", config: &Config{Type: TypeBearer}, wantErr: true},
		{name: "bearer ok", config: &Config{Type: TypeBearer, Secret: "token"}},
		{name: "basic without password", config: &Config{Type: TypeBasic, Username: "u"}, wantErr: true},
		{name: "basic ok", config: &Config{Type: TypeBasic, Username: "u", Password: "p"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildSignature(t *testing.T) {
	t.Parallel()

	b := NewBridge()
	v, err := b.Build(context.Background(), &Config{
		Type:   TypeSignature,
		Secret: "$env.HOOK_SECRET",
		Preset: "github",
		Env:    map[string]string{"HOOK_SECRET": "real-secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, auth.MethodSignature, v.Method())

	body := `{"event":"run.completed"}`
	digest, err := security.ComputeHMAC([]byte(body), []byte("real-secret"), security.AlgSHA256)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/webhooks/run", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+digest)

	authCtx, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, authCtx.Authenticated)
}

func TestBuildBearer(t *testing.T) {
	t.Parallel()

	b := NewBridge()
	v, err := b.Build(context.Background(), &Config{
		Type:   TypeBearer,
		Secret: "${env.TRIGGER_TOKEN}",
		Env:    map[string]string{"TRIGGER_TOKEN": "static-token"},
	})
	require.NoError(t, err)
	assert.Equal(t, auth.MethodBearer, v.Method())

	req := httptest.NewRequest("POST", "/triggers/run", nil)
	req.Header.Set("Authorization", "Bearer static-token")

	authCtx, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, authCtx.Authenticated)

	req.Header.Set("Authorization", "Bearer wrong-token")
	_, err = v.Validate(context.Background(), req)
	assert.Error(t, err)
}

func TestBuildBasic(t *testing.T) {
	t.Parallel()

	b := NewBridge()
	v, err := b.Build(context.Background(), &Config{
		Type:     TypeBasic,
		Username: "runner",
		Password: "$env.RUNNER_PASSWORD",
		Env:      map[string]string{"RUNNER_PASSWORD": "pw"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/triggers/run", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("runner:pw")))

	authCtx, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "runner", authCtx.User.ID)
}

func TestBuildUnresolvedPlaceholderPassesThrough(t *testing.T) {
	t.Parallel()

	b := NewBridge()
	v, err := b.Build(context.Background(), &Config{
		Type:   TypeBearer,
		Secret: "$env.NOT_SET",
		Env:    map[string]string{},
	})
	require.NoError(t, err)

	// The literal placeholder remains the expected token rather than an
	// empty string.
	req := httptest.NewRequest("POST", "/triggers/run", nil)
	req.Header.Set("Authorization", "Bearer $env.NOT_SET")
	_, err = v.Validate(context.Background(), req)
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer ")
	_, err = v.Validate(context.Background(), req)
	assert.Error(t, err)
}
