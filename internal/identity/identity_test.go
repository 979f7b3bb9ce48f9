package identity

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("test-secret")
	good, err := v.Sign("user-42", time.Hour)
	require.NoError(t, err)
	expired, err := v.Sign("user-42", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewVerifier("other-secret").Sign("user-42", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"anonymous", "", http.StatusOK, ""},
		{"valid token", "Bearer " + good, http.StatusOK, "user-42"},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized, ""},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, ""},
		{"other scheme", "Basic dXNlcjpwYXNz", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Middleware(v)(echoUser()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantUser, rec.Body.String())
			}
		})
	}
}

func TestMiddlewareWithoutSecretIgnoresTokens(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()

	Middleware(NewVerifier(""))(echoUser()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestVerify(t *testing.T) {
	v := NewVerifier("s")
	tok, err := v.Sign("u1", time.Minute)
	require.NoError(t, err)

	sub, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)

	_, err = v.Verify(tok + "x")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = NewVerifier("").Sign("u1", time.Minute)
	assert.Error(t, err)
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", IPFromRequest(req))
	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", IPFromRequest(req))
}
