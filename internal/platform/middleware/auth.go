package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	identity "apb/internal/identity/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/httputil"
	"apb/pkg/requestcontext"
)

// Admitter turns a bearer credential into a principal.
type Admitter interface {
	Admit(ctx context.Context, credential string) (identity.Principal, error)
}

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearerPrefix = "Bearer "
	after, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok || strings.TrimSpace(after) == "" {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// RequireAuth admits the request's bearer credential through the same gate
// live connections use, and stores the principal in the request context.
func RequireAuth(gate Admitter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := BearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			principal, err := gate.Admit(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithPrincipal(ctx, principal.UserID, principal.HomeAgencyID, principal.Role.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal rebuilds the authenticated principal stored by RequireAuth.
func Principal(ctx context.Context) (identity.Principal, bool) {
	userID := requestcontext.UserID(ctx)
	agencyID := requestcontext.AgencyID(ctx)
	if userID == (id.UserID{}) || agencyID == (id.AgencyID{}) {
		return identity.Principal{}, false
	}
	role, err := identity.ParseRole(requestcontext.Role(ctx))
	if err != nil {
		return identity.Principal{}, false
	}
	return identity.Principal{UserID: userID, HomeAgencyID: agencyID, Role: role}, true
}
