// Package gate admits a presented credential as a principal. It is shared by
// the HTTP auth middleware and the live connection transport so both paths
// accept exactly the same identities.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"apb/internal/identity/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/platform/sentinel"
	"apb/pkg/requestcontext"
)

// Verifier checks a credential's signature and returns the principal it names.
type Verifier interface {
	Verify(credential string) (models.Principal, error)
}

// UserStore confirms the principal still exists.
type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
}

// ErrAuthenticationFailed is returned for every rejected credential. The
// cause is logged but never returned, so callers cannot probe which check failed.
var ErrAuthenticationFailed = dErrors.New(dErrors.CodeUnauthorized, "authentication failed")

type Gate struct {
	verifier Verifier
	users    UserStore
	logger   *slog.Logger
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithUserStore makes admission confirm the principal against stored users
// and take its current role and home agency from there.
func WithUserStore(users UserStore) Option {
	return func(g *Gate) {
		g.users = users
	}
}

func New(verifier Verifier, opts ...Option) *Gate {
	g := &Gate{verifier: verifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit verifies credential and returns the principal it resolves to.
func (g *Gate) Admit(ctx context.Context, credential string) (models.Principal, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		g.reject(ctx, "missing credential", nil)
		return models.Principal{}, ErrAuthenticationFailed
	}

	principal, err := g.verifier.Verify(credential)
	if err != nil {
		g.reject(ctx, "credential verification failed", err)
		return models.Principal{}, ErrAuthenticationFailed
	}
	if !principal.Resolvable() {
		g.reject(ctx, "credential carries no resolvable identity", nil)
		return models.Principal{}, ErrAuthenticationFailed
	}

	if g.users == nil {
		return principal, nil
	}

	user, err := g.users.FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			g.reject(ctx, "principal no longer exists", nil, "user_id", principal.UserID)
			return models.Principal{}, ErrAuthenticationFailed
		}
		g.logger.ErrorContext(ctx, "failed to load principal",
			"error", err,
			"user_id", principal.UserID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return models.Principal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	return user.Principal(), nil
}

func (g *Gate) reject(ctx context.Context, reason string, err error, args ...any) {
	attrs := []any{"reason", reason, "request_id", requestcontext.RequestID(ctx)}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	attrs = append(attrs, args...)
	g.logger.WarnContext(ctx, "admission rejected", attrs...)
}
