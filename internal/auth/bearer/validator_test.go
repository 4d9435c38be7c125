package bearer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleai/agentgate/internal/auth"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

func signHS(t *testing.T, builder *jwt.Builder, alg jwa.SignatureAlgorithm) string {
	t.Helper()

	token, err := builder.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(alg, []byte(testSecret)))
	require.NoError(t, err)
	return string(signed)
}

func withBearer(token string) *http.Request {
	req := httptest.NewRequest("GET", "/agents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func validate(t *testing.T, v *Validator, token string) (*auth.Context, error) {
	t.Helper()

	req := httptest.NewRequest("GET", "/agents", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return v.Validate(context.Background(), req)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "empty", config: &Config{}, wantErr: true},
		{name: "secret only", config: &Config{Secret: testSecret}},
		{name: "static only", config: &Config{StaticTokens: []string{"tok"}}},
		{name: "jwks only", config: &Config{JWKSURL: "https://idp.example.com/jwks"}},
		{
			name:    "secret and jwks",
			config:  &Config{Secret: testSecret, JWKSURL: "https://idp.example.com/jwks"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(context.Background(), &Config{Secret: testSecret})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{name: "standard", header: "Bearer abc.def.ghi", want: "abc.def.ghi", wantOK: true},
		{name: "lowercase scheme", header: "bearer abc", want: "abc", wantOK: true},
		{name: "empty token", header: "Bearer ", wantOK: false},
		{name: "wrong scheme", header: "Basic abc", wantOK: false},
		{name: "missing", header: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/agents", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := v.ExtractToken(req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticTokens(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(context.Background(), &Config{
		StaticTokens: []string{"token-one", "token-two"},
	})
	require.NoError(t, err)

	authCtx, err := validate(t, v, "token-two")
	require.NoError(t, err)
	assert.True(t, authCtx.Authenticated)
	assert.Equal(t, auth.MethodBearer, authCtx.Method)
	assert.Nil(t, authCtx.User)

	_, err = validate(t, v, "token-three")
	require.Error(t, err)
	var ae *auth.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, auth.ErrorKindInvalidToken, ae.Kind)

	_, err = validate(t, v, "")
	require.ErrorIs(t, err, auth.ErrNoCredentials)
}

func TestValidateHMACToken(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(context.Background(), &Config{
		Secret:   testSecret,
		Issuer:   "https://idp.example.com",
		Audience: "agentgate",
	})
	require.NoError(t, err)

	now := time.Now()
	token := signHS(t, jwt.NewBuilder().
		Subject("user-1").
		Issuer("https://idp.example.com").
		Audience([]string{"agentgate"}).
		IssuedAt(now).
		Expiration(now.Add(time.Hour)).
		Claim("email", "user@example.com").
		Claim("roles", []string{"agent", "admin"}).
		Claim("permissions", []string{"tasks:write"}).
		Claim("tenant", "acme").
		Claim("seat_count", 12), jwa.HS256)

	authCtx, err := v.Validate(context.Background(), withBearer(token))
	require.NoError(t, err)
	assert.True(t, authCtx.Authenticated)
	assert.Equal(t, "user-1", authCtx.User.ID)
	assert.Equal(t, "user@example.com", authCtx.User.Email)
	assert.Equal(t, []string{"agent", "admin"}, authCtx.User.Roles)
	assert.Equal(t, []string{"tasks:write"}, authCtx.User.Permissions)
	assert.Equal(t, "acme", authCtx.Custom["tenant"])
	// Non-string claim values survive into metadata untouched.
	assert.EqualValues(t, 12, authCtx.User.Metadata["seat_count"])
	require.NotNil(t, authCtx.ExpiresAt)
	assert.WithinDuration(t, now.Add(time.Hour), *authCtx.ExpiresAt, time.Second)
}

func TestValidateHMACTokenFailures(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(context.Background(), &Config{
		Secret:   testSecret,
		Issuer:   "https://idp.example.com",
		Audience: "agentgate",
	})
	require.NoError(t, err)

	now := time.Now()
	base := func() *jwt.Builder {
		return jwt.NewBuilder().
			Subject("user-1").
			Issuer("https://idp.example.com").
			Audience([]string{"agentgate"}).
			IssuedAt(now.Add(-2 * time.Hour)).
			Expiration(now.Add(time.Hour))
	}

	tests := []struct {
		name     string
		token    string
		wantKind auth.ErrorKind
	}{
		{
			name:     "expired",
			token:    signHS(t, base().Expiration(now.Add(-time.Minute)), jwa.HS256),
			wantKind: auth.ErrorKindExpired,
		},
		{
			name:     "wrong issuer",
			token:    signHS(t, base().Issuer("https://rogue.example.com"), jwa.HS256),
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "wrong audience",
			token:    signHS(t, base().Audience([]string{"other"}), jwa.HS256),
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "disallowed algorithm",
			token:    signHS(t, base(), jwa.HS384),
			wantKind: auth.ErrorKindInvalidToken,
		},
		{
			name:     "not a jwt",
			token:    "garbage",
			wantKind: auth.ErrorKindInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := v.Validate(context.Background(), withBearer(tt.token))
			require.Error(t, err)

			var ae *auth.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.wantKind, ae.Kind)
		})
	}
}

func TestValidateWithKeySet(t *testing.T) {
	t.Parallel()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicKey, err := jwk.FromRaw(privateKey.Public())
	require.NoError(t, err)
	require.NoError(t, publicKey.Set(jwk.KeyIDKey, "key-1"))
	require.NoError(t, publicKey.Set(jwk.AlgorithmKey, "RS256"))

	set := jwk.NewSet()
	require.NoError(t, set.AddKey(publicKey))

	v, err := NewValidator(context.Background(), &Config{
		JWKSURL: "https://idp.example.com/jwks",
	}, WithKeySet(set))
	require.NoError(t, err)

	signingKey, err := jwk.FromRaw(privateKey)
	require.NoError(t, err)
	require.NoError(t, signingKey.Set(jwk.KeyIDKey, "key-1"))

	token, err := jwt.NewBuilder().
		Subject("user-2").
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, signingKey))
	require.NoError(t, err)

	authCtx, err := v.Validate(context.Background(), withBearer(string(signed)))
	require.NoError(t, err)
	assert.Equal(t, "user-2", authCtx.User.ID)
}

func TestClockSkew(t *testing.T) {
	t.Parallel()

	v, err := NewValidator(context.Background(), &Config{
		Secret:    testSecret,
		ClockSkew: 2 * time.Minute,
	})
	require.NoError(t, err)

	// Expired a minute ago but inside the allowed skew.
	token := signHS(t, jwt.NewBuilder().
		Subject("user-3").
		Expiration(time.Now().Add(-time.Minute)), jwa.HS256)

	_, err = v.Validate(context.Background(), withBearer(token))
	require.NoError(t, err)
}
