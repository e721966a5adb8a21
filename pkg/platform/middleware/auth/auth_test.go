package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"idhub/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRequireAuth(t *testing.T) {
	var seenUser string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = requestcontext.UserID(r.Context())
		assert.NotNil(t, GetClaims(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token passes claims through", func(t *testing.T) {
		h := RequireAuth(stubValidator{claims: &JWTClaims{UserID: "u1"}}, discard)(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u1", seenUser)
	})

	t.Run("missing header", func(t *testing.T) {
		h := RequireAuth(stubValidator{}, discard)(next)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "unauthorized")
	})

	t.Run("invalid token", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: errors.New("bad")}, discard)(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	var claims *JWTClaims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims = GetClaims(r.Context())
	})

	h := OptionalAuth(stubValidator{err: errors.New("bad")})(next)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, claims)

	h = OptionalAuth(stubValidator{claims: &JWTClaims{UserID: "u2"}})(next)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if assert.NotNil(t, claims) {
		assert.Equal(t, "u2", claims.UserID)
	}
}
