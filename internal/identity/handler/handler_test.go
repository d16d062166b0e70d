package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	identity "apb/internal/identity/models"
	"apb/internal/scope"
	id "apb/pkg/domain"
	"apb/pkg/testutil"
)

type IdentityHandlerSuite struct {
	suite.Suite
	router http.Handler
	home   id.AgencyID
	other  id.AgencyID
}

func TestIdentityHandlerSuite(t *testing.T) {
	suite.Run(t, new(IdentityHandlerSuite))
}

func (s *IdentityHandlerSuite) SetupTest() {
	s.home, s.other = id.NewAgencyID(), id.NewAgencyID()
	resolver, err := scope.NewResolver(scope.PolicyDelegated,
		scope.WithDelegations(map[id.AgencyID][]id.AgencyID{s.home: {s.other}}))
	s.Require().NoError(err)

	r := chi.NewRouter()
	New(resolver, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
}

func (s *IdentityHandlerSuite) me(p identity.Principal) map[string]any {
	req := testutil.WithPrincipal(testutil.NewRequest(s.T(), http.MethodGet, "/me"), p)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func (s *IdentityHandlerSuite) TestMe() {
	s.Run("officer sees home agency only", func() {
		p := identity.Principal{UserID: id.NewUserID(), Role: identity.RoleOfficer, HomeAgencyID: s.home}
		body := s.me(p)
		s.Equal(p.UserID.String(), body["id"])
		s.Equal("officer", body["role"])
		s.Equal(s.home.String(), body["home_agency_id"])
		s.Equal([]any{s.home.String()}, body["agencies"])
	})

	s.Run("admin sees delegated agencies", func() {
		p := identity.Principal{UserID: id.NewUserID(), Role: identity.RoleAdmin, HomeAgencyID: s.home}
		body := s.me(p)
		s.ElementsMatch([]any{s.home.String(), s.other.String()}, body["agencies"])
	})

	s.Run("anonymous is 401", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/me"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

var _ ScopeResolver = (*scope.Resolver)(nil)