package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/store"
)

func newValidator(t *testing.T, config *Config) (*Validator, store.KV) {
	t.Helper()

	kv := store.NewMemory()
	t.Cleanup(func() { _ = kv.Close() })

	v, err := NewValidator(config, kv)
	require.NoError(t, err)
	return v, kv
}

func requestWithCookie(name, value string) *http.Request {
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: name, Value: value})
	return req
}

func TestCreateAndValidate(t *testing.T) {
	t.Parallel()

	v, _ := newValidator(t, &Config{TTL: time.Hour})
	ctx := context.Background()

	token, err := v.CreateSession(ctx, &auth.User{
		ID:    "user-1",
		Email: "user@example.com",
		Roles: []string{"operator"},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(token), minTokenLength)

	authCtx, err := v.Validate(ctx, requestWithCookie(DefaultCookieName, token))
	require.NoError(t, err)
	assert.True(t, authCtx.Authenticated)
	assert.Equal(t, auth.MethodCookie, authCtx.Method)
	assert.Equal(t, "user-1", authCtx.User.ID)
	assert.Equal(t, []string{"operator"}, authCtx.User.Roles)
	require.NotNil(t, authCtx.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *authCtx.ExpiresAt, time.Minute)
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()

	v, _ := newValidator(t, &Config{})
	ctx := context.Background()

	tests := []struct {
		name     string
		token    string
		wantKind auth.ErrorKind
	}{
		{name: "too short", token: "short", wantKind: auth.ErrorKindInvalidToken},
		{name: "too long", token: strings.Repeat("a", maxTokenLength+1), wantKind: auth.ErrorKindInvalidToken},
		{name: "unknown session", token: strings.Repeat("b", 32), wantKind: auth.ErrorKindInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := v.Validate(ctx, requestWithCookie(DefaultCookieName, tt.token))
			require.Error(t, err)

			var ae *auth.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.wantKind, ae.Kind)
		})
	}

	t.Run("no cookie", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "/dashboard", nil)
		_, err := v.Validate(ctx, req)
		require.ErrorIs(t, err, auth.ErrNoCredentials)
	})
}

func TestExpiredSessionDeleted(t *testing.T) {
	t.Parallel()

	v, kv := newValidator(t, &Config{})
	ctx := context.Background()

	token := strings.Repeat("c", 32)
	record := Record{
		UserID:    "user-2",
		CreatedAt: time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "session:"+token, raw, 0))

	_, err = v.Validate(ctx, requestWithCookie(DefaultCookieName, token))
	require.Error(t, err)

	var ae *auth.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, auth.ErrorKindExpired, ae.Kind)

	// The expired record must be gone.
	_, err = kv.Get(ctx, "session:"+token)
	assert.True(t, store.IsNotFound(err))
}

func TestDeleteSession(t *testing.T) {
	t.Parallel()

	v, _ := newValidator(t, &Config{})
	ctx := context.Background()

	token, err := v.CreateSession(ctx, &auth.User{ID: "user-3"})
	require.NoError(t, err)
	require.NoError(t, v.DeleteSession(ctx, token))

	_, err = v.Validate(ctx, requestWithCookie(DefaultCookieName, token))
	require.Error(t, err)
}

func TestCookie(t *testing.T) {
	t.Parallel()

	v, _ := newValidator(t, &Config{
		CookieName: "my_session",
		TTL:        time.Hour,
		Domain:     "example.com",
		Secure:     true,
		SameSite:   "strict",
	})

	c := v.Cookie("sometoken")
	assert.Equal(t, "my_session", c.Name)
	assert.Equal(t, "sometoken", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, "example.com", c.Domain)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 3600, c.MaxAge)

	logout := v.Cookie("")
	assert.Equal(t, -1, logout.MaxAge)
}
