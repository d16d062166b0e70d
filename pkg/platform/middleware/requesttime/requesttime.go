// Package requesttime pins a single "now" per request so that created_at,
// updated_at and log timestamps written by one request agree.
package requesttime

import (
	"net/http"
	"time"

	"apb/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
