package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"apb/internal/agency/models"
	"apb/internal/agency/service"
	"apb/internal/agency/store"
	"apb/internal/geo"
	identity "apb/internal/identity/models"
	id "apb/pkg/domain"
	"apb/pkg/requestcontext"
)

type AgencyHandlerSuite struct {
	suite.Suite
	router http.Handler
	svc    *service.Service
	admin  identity.Principal
	home   *models.Agency
}

func TestAgencyHandlerSuite(t *testing.T) {
	suite.Run(t, new(AgencyHandlerSuite))
}

func (s *AgencyHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = service.New(store.NewInMemory(), service.WithLogger(logger))
	s.admin = identity.Principal{UserID: id.NewUserID(), HomeAgencyID: id.NewAgencyID(), Role: identity.RoleAdmin}

	var err error
	s.home, err = s.svc.Create(context.Background(), s.admin, models.Draft{
		Name: "Capitol Police", Jurisdiction: "Springfield, IL", Location: geo.Coordinate{Lat: 39.79, Lng: -89.65},
	})
	s.Require().NoError(err)

	r := chi.NewRouter()
	New(s.svc, logger).Register(r)
	s.router = r
}

func (s *AgencyHandlerSuite) do(p identity.Principal, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(requestcontext.WithPrincipal(req.Context(), p.UserID, p.HomeAgencyID, p.Role.String()))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *AgencyHandlerSuite) TestCreate() {
	s.Run("admin creates agency", func() {
		rec := s.do(s.admin, http.MethodPost, "/agencies", map[string]any{
			"name": "Sangamon County Sheriff", "jurisdiction": "Sangamon County",
			"location": map[string]float64{"lat": 39.80, "lng": -89.64},
		})
		s.Equal(http.StatusCreated, rec.Code)
	})

	s.Run("officer gets 403", func() {
		officer := identity.Principal{UserID: id.NewUserID(), HomeAgencyID: s.home.ID, Role: identity.RoleOfficer}
		rec := s.do(officer, http.MethodPost, "/agencies", map[string]any{
			"name": "Rogue", "jurisdiction": "Nowhere",
			"location": map[string]float64{"lat": 1, "lng": 1},
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("missing location is 400 with field", func() {
		rec := s.do(s.admin, http.MethodPost, "/agencies", map[string]any{"name": "X", "jurisdiction": "Y"})
		s.Equal(http.StatusBadRequest, rec.Code)
		s.Contains(rec.Body.String(), `"field":"location"`)
	})
}

func (s *AgencyHandlerSuite) TestReads() {
	officer := identity.Principal{UserID: id.NewUserID(), HomeAgencyID: s.home.ID, Role: identity.RoleOfficer}

	s.Run("mine returns home agency", func() {
		rec := s.do(officer, http.MethodGet, "/agencies/mine", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got models.Agency
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&got))
		s.Equal(s.home.ID, got.ID)
	})

	s.Run("list returns directory", func() {
		rec := s.do(officer, http.MethodGet, "/agencies", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got listResponse
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&got))
		s.Len(got.Agencies, 1)
	})

	s.Run("malformed id is 400", func() {
		rec := s.do(officer, http.MethodGet, "/agencies/not-a-uuid", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown id is 404", func() {
		rec := s.do(officer, http.MethodGet, "/agencies/"+id.NewAgencyID().String(), nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *AgencyHandlerSuite) TestUpdate() {
	rec := s.do(s.admin, http.MethodPatch, "/agencies/"+s.home.ID.String(), map[string]any{"jurisdiction": "Illinois"})
	s.Require().Equal(http.StatusOK, rec.Code)
	var got models.Agency
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&got))
	s.Equal("Illinois", got.Jurisdiction)
	s.Equal(s.home.Name, got.Name)

	rec = s.do(s.admin, http.MethodPatch, "/agencies/"+s.home.ID.String(), map[string]any{})
	s.Equal(http.StatusBadRequest, rec.Code)
}
