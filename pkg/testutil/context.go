package testutil

import (
	"net/http"

	"idhub/pkg/platform/middleware/auth"
)

// WithSession attaches session claims to req the way RequireAuth and
// OptionalAuth do after validating a session token.
func WithSession(req *http.Request, userID, role string) *http.Request {
	return WithClaims(req, &auth.JWTClaims{UserID: userID, Role: role})
}

// WithAdminSession is WithSession for an admin user.
func WithAdminSession(req *http.Request, userID string) *http.Request {
	return WithSession(req, userID, "admin")
}

func WithClaims(req *http.Request, claims *auth.JWTClaims) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}
