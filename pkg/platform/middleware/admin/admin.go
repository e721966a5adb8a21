package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"idhub/pkg/platform/middleware/auth"
	request "idhub/pkg/platform/middleware/request"
)

// RequireAdmin admits requests whose session carries the admin role, or that
// present the configured bootstrap token in X-Admin-Token. An empty
// bootstrapToken disables the header path.
func RequireAdmin(bootstrapToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if claims := auth.GetClaims(ctx); claims != nil && claims.Role == "admin" {
				next.ServeHTTP(w, r)
				return
			}
			token := r.Header.Get("X-Admin-Token")
			if bootstrapToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(bootstrapToken)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			logger.WarnContext(ctx, "admin access denied",
				"request_id", request.GetRequestID(ctx),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"access_denied","error_description":"admin role required"}`))
		})
	}
}
