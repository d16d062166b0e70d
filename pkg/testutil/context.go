package testutil

import (
	"net/http"

	identity "apb/internal/identity/models"
	"apb/pkg/requestcontext"
)

// WithPrincipal attaches p to the request context the way the auth
// middleware does after admitting a bearer token. A principal without a user
// id leaves the request anonymous.
func WithPrincipal(req *http.Request, p identity.Principal) *http.Request {
	if p.UserID.IsNil() {
		return req
	}
	ctx := requestcontext.WithPrincipal(req.Context(), p.UserID, p.HomeAgencyID, p.Role.String())
	return req.WithContext(ctx)
}
