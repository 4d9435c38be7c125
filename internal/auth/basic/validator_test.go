package basic

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ensembleai/agentgate/internal/auth"
)

func basicHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestNewValidator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: true,
		},
		{
			name:    "no credentials",
			config:  &Config{},
			wantErr: true,
		},
		{
			name: "missing password",
			config: &Config{
				Credentials: []Credential{{Username: "alice"}},
			},
			wantErr: true,
		},
		{
			name: "valid",
			config: &Config{
				Credentials: []Credential{{Username: "alice", Password: "pw1"}},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v, err := NewValidator(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, auth.MethodBasic, v.Method())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(&Config{
		Credentials: []Credential{
			{Username: "alice", Password: "pw1"},
			{Username: "bob", Password: "pw2"},
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantUser string
		wantKind auth.ErrorKind
		wantNoCr bool
	}{
		{
			name:     "first pair",
			header:   basicHeader("alice", "pw1"),
			wantUser: "alice",
		},
		{
			name:     "second pair",
			header:   basicHeader("bob", "pw2"),
			wantUser: "bob",
		},
		{
			name:     "crossed credentials rejected",
			header:   basicHeader("alice", "pw2"),
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "unknown user",
			header:   basicHeader("mallory", "pw1"),
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "not base64",
			header:   "Basic %%%",
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "no colon",
			header:   "Basic " + base64.StdEncoding.EncodeToString([]byte("alicepw1")),
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "missing header",
			header:   "",
			wantNoCr: true,
		},
		{
			name:     "wrong scheme",
			header:   "Bearer abc",
			wantNoCr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			authCtx, err := v.Validate(context.Background(), req)
			if tt.wantNoCr {
				require.ErrorIs(t, err, auth.ErrNoCredentials)
				return
			}
			if tt.wantKind != "" {
				require.Error(t, err)
				var ae *auth.Error
				require.True(t, errors.As(err, &ae))
				assert.Equal(t, tt.wantKind, ae.Kind)
				return
			}
			require.NoError(t, err)
			assert.True(t, authCtx.Authenticated)
			assert.Equal(t, auth.MethodBasic, authCtx.Method)
			assert.Equal(t, tt.wantUser, authCtx.User.ID)
		})
	}
}

func TestValidateBcryptPassword(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewValidator(&Config{
		Credentials: []Credential{{Username: "carol", Password: string(hash)}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", basicHeader("carol", "s3cret"))

	authCtx, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "carol", authCtx.User.ID)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", basicHeader("carol", "wrong"))
	_, err = v.Validate(context.Background(), req)
	require.Error(t, err)
}

func TestWWWAuthenticate(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(&Config{
		Credentials: []Credential{{Username: "a", Password: "b"}},
		Realm:       "agents",
	})
	require.NoError(t, err)
	assert.Equal(t, `Basic realm="agents"`, v.WWWAuthenticate())

	v, err = NewValidator(&Config{
		Credentials: []Credential{{Username: "a", Password: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `Basic realm="Restricted"`, v.WWWAuthenticate())
}
