// Package requesttime pins a single "now" per request so expiry checks,
// token timestamps and audit events agree.
package requesttime

import (
	"net/http"
	"time"

	"idhub/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
