package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	agencyhandler "apb/internal/agency/handler"
	agencymodels "apb/internal/agency/models"
	agencyservice "apb/internal/agency/service"
	agencystore "apb/internal/agency/store"
	bulletinhandler "apb/internal/bulletin/handler"
	bulletinservice "apb/internal/bulletin/service"
	bulletinstore "apb/internal/bulletin/store"
	"apb/internal/geo"
	"apb/internal/identity/gate"
	identityhandler "apb/internal/identity/handler"
	identity "apb/internal/identity/models"
	"apb/internal/identity/token"
	"apb/internal/live"
	"apb/internal/live/wsock"
	platformmetrics "apb/internal/platform/metrics"
	"apb/internal/ratelimit"
	"apb/internal/scope"
	id "apb/pkg/domain"
	"apb/pkg/testutil"
)

// RouterSuite drives the assembled HTTP surface with real tokens and
// in-memory stores.
type RouterSuite struct {
	suite.Suite
	tokens *token.JWTService
	hub    *live.Hub
	checks map[string]HealthCheck
	router http.Handler

	springfield, shelbyville id.AgencyID
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	agencies := agencystore.NewInMemory()
	s.springfield = s.agency(agencies, "Springfield PD")
	s.shelbyville = s.agency(agencies, "Shelbyville PD")

	resolver, err := scope.NewResolver(scope.PolicyAll, scope.WithAgencyLister(agencies))
	s.Require().NoError(err)
	s.tokens = token.NewJWTService("test-signing-key", "apb", "apb-clients")
	g := gate.New(s.tokens, gate.WithLogger(logger))

	reg := platformmetrics.New()
	s.hub = live.NewHub(g, resolver, live.WithLogger(logger), live.WithMetrics(live.NewMetrics(reg)))
	bulletins := bulletinservice.New(bulletinstore.NewInMemory(), agencies, s.hub, bulletinservice.WithLogger(logger))

	s.checks = map[string]HealthCheck{"store": func(context.Context) error { return nil }}
	limits := ratelimit.New(ratelimit.NewInMemory(),
		ratelimit.WithLogger(logger),
		ratelimit.WithWrites(ratelimit.Rule{Limit: 2, Window: time.Minute}),
	)
	s.router = NewRouter(Deps{
		Logger:  logger,
		Gate:    g,
		Metrics: reg.Handler(),
		Live:    wsock.New(s.hub, wsock.WithLogger(logger)),
		Limits:  limits,
		Checks:  s.checks,
		Modules: []Registrar{
			agencyhandler.New(agencyservice.New(agencies), logger),
			bulletinhandler.New(bulletins, resolver, logger),
			identityhandler.New(resolver, logger),
		},
	})
}

func (s *RouterSuite) TearDownTest() {
	s.hub.Shutdown()
}

func (s *RouterSuite) agency(st *agencystore.InMemory, name string) id.AgencyID {
	a, err := agencymodels.NewAgency(id.NewAgencyID(), agencymodels.Draft{
		Name: name, Jurisdiction: "Illinois", Location: geo.Coordinate{Lat: 39.8, Lng: -89.6},
	}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(st.Create(context.Background(), a))
	return a.ID
}

func (s *RouterSuite) token(home id.AgencyID) string {
	tok, err := s.tokens.GenerateAccessToken(identity.Principal{
		UserID: id.NewUserID(), Role: identity.RoleOfficer, HomeAgencyID: home,
	}, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) TestHealth() {
	s.Run("all checks pass", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "ok")
	})

	s.Run("a failing check degrades", func() {
		s.checks["redis"] = func(context.Context) error { return errors.New("dial tcp: refused") }
		defer delete(s.checks, "redis")

		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
		testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
		s.NotContains(rr.Body.String(), "refused")
	})
}

func (s *RouterSuite) TestRequestIDIsEchoed() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/healthz")
	req.Header.Set("X-Request-ID", "req-123")
	rr := testutil.DoRequest(s.router, req)
	s.Equal("req-123", rr.Header().Get("X-Request-ID"))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestModuleRoutesRequireBearer() {
	for _, path := range []string{"/me", "/bulletins", "/agencies"} {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, path))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	}

	req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/me"), "not-a-jwt")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *RouterSuite) TestMeReportsScopes() {
	req := testutil.WithBearer(testutil.NewRequest(s.T(), http.MethodGet, "/me"), s.token(s.shelbyville))
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusOK(s.T(), rr)
	body := testutil.DecodeJSON[map[string]any](s.T(), rr)
	s.Equal([]any{s.shelbyville.String()}, body["agencies"])
}

func (s *RouterSuite) TestMetricsAreServed() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), "go_goroutines")
}

func (s *RouterSuite) createBulletin(bearer string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/bulletins", map[string]any{
		"subject":  "Stolen ambulance",
		"category": "vehicle",
		"priority": "high",
		"location": map[string]any{"lat": 39.781, "lng": -89.644},
		"agencies": []id.AgencyID{s.springfield},
	})
	return testutil.DoRequest(s.router, testutil.WithBearer(req, bearer))
}

func (s *RouterSuite) TestWritesAreRateLimitedPerUser() {
	bearer := s.token(s.springfield)
	testutil.AssertStatus(s.T(), s.createBulletin(bearer), http.StatusCreated)
	testutil.AssertStatus(s.T(), s.createBulletin(bearer), http.StatusCreated)

	rr := s.createBulletin(bearer)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, "rate_limited")
	s.NotEmpty(rr.Header().Get("Retry-After"))

	reads := testutil.NewRequest(s.T(), http.MethodGet, "/bulletins?agency="+s.springfield.String())
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, testutil.WithBearer(reads, bearer)))
}

func (s *RouterSuite) TestCreatedBulletinReachesSubscribedAgencyOnly() {
	server := httptest.NewServer(s.router)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/live?token="

	listener, _, err := websocket.DefaultDialer.Dial(wsURL+s.token(s.springfield), nil)
	s.Require().NoError(err)
	defer listener.Close()
	outsider, _, err := websocket.DefaultDialer.Dial(wsURL+s.token(s.shelbyville), nil)
	s.Require().NoError(err)
	defer outsider.Close()

	var frame map[string]any
	s.Require().NoError(listener.ReadJSON(&frame))
	s.Equal("connection:admitted", frame["event_type"])
	s.Require().NoError(outsider.ReadJSON(&frame))

	testutil.AssertStatus(s.T(), s.createBulletin(s.token(s.springfield)), http.StatusCreated)

	s.Require().NoError(listener.SetReadDeadline(time.Now().Add(2 * time.Second)))
	s.Require().NoError(listener.ReadJSON(&frame))
	s.Equal("bulletin:new", frame["event_type"])

	s.Require().NoError(outsider.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err = outsider.ReadMessage()
	s.Error(err, "an agency outside the authorization set must not be told")
}
