package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identity "apb/internal/identity/models"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
	"apb/pkg/requestcontext"
)

type stubGate struct {
	principal identity.Principal
	err       error
	seen      string
}

func (g *stubGate) Admit(_ context.Context, credential string) (identity.Principal, error) {
	g.seen = credential
	return g.principal, g.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	want := identity.Principal{UserID: id.NewUserID(), HomeAgencyID: id.NewAgencyID(), Role: identity.RoleAdmin}

	t.Run("stores principal on success", func(t *testing.T) {
		gate := &stubGate{principal: want}
		var got identity.Principal
		var ok bool
		h := RequireAuth(gate, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok = Principal(r.Context())
		}))

		r := httptest.NewRequest(http.MethodGet, "/bulletins", nil)
		r.Header.Set("Authorization", "Bearer abc.def.ghi")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		require.True(t, ok)
		assert.Equal(t, want, got)
		assert.Equal(t, "abc.def.ghi", gate.seen)
	})

	t.Run("missing header is 401", func(t *testing.T) {
		h := RequireAuth(&stubGate{principal: want}, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bulletins", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejected credential is 401", func(t *testing.T) {
		gate := &stubGate{err: dErrors.New(dErrors.CodeUnauthorized, "authentication failed")}
		h := RequireAuth(gate, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))
		r := httptest.NewRequest(http.MethodGet, "/bulletins", nil)
		r.Header.Set("Authorization", "Bearer forged")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPrincipal_Unset(t *testing.T) {
	_, ok := Principal(context.Background())
	assert.False(t, ok)

	ctx := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.NewAgencyID(), "mayor")
	_, ok = Principal(ctx)
	assert.False(t, ok)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "trace-123", seen)
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map")
}
