package live

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"apb/internal/bulletin/models"
	"apb/internal/identity/gate"
	identity "apb/internal/identity/models"
	"apb/internal/scope"
	id "apb/pkg/domain"
)

// tokenGate admits the credentials it was seeded with.
type tokenGate struct {
	mu     sync.Mutex
	tokens map[string]identity.Principal
	block  chan struct{}
}

func (g *tokenGate) Admit(ctx context.Context, credential string) (identity.Principal, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return identity.Principal{}, gate.ErrAuthenticationFailed
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.tokens[credential]
	if !ok {
		return identity.Principal{}, gate.ErrAuthenticationFailed
	}
	return p, nil
}

type fixedScopes map[id.UserID]scope.Set

func (f fixedScopes) ScopesFor(_ context.Context, p identity.Principal) (scope.Set, error) {
	if set, ok := f[p.UserID]; ok {
		return set, nil
	}
	return scope.NewSet(p.HomeAgencyID), nil
}

type HubSuite struct {
	suite.Suite
	ctx     context.Context
	gate    *tokenGate
	scopes  fixedScopes
	metrics *Metrics
	hub     *Hub

	a1, a2, a3 id.AgencyID
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	s.ctx = context.Background()
	s.gate = &tokenGate{tokens: make(map[string]identity.Principal)}
	s.scopes = make(fixedScopes)
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.hub = NewHub(s.gate, s.scopes, WithMetrics(s.metrics), WithQueueSize(4), WithAdmissionTimeout(time.Second))
	s.a1, s.a2, s.a3 = id.NewAgencyID(), id.NewAgencyID(), id.NewAgencyID()
}

// connect admits a fresh connection for a principal homed in home and scoped
// to home plus extra.
func (s *HubSuite) connect(home id.AgencyID, extra ...id.AgencyID) *Conn {
	p := identity.Principal{UserID: id.NewUserID(), Role: identity.RoleOfficer, HomeAgencyID: home}
	token := p.UserID.String()
	s.gate.mu.Lock()
	s.gate.tokens[token] = p
	s.gate.mu.Unlock()
	s.scopes[p.UserID] = scope.NewSet(append([]id.AgencyID{home}, extra...)...)

	c := s.hub.Connect()
	_, err := s.hub.Admit(s.ctx, c, token)
	s.Require().NoError(err)
	s.Require().Equal(StateAdmitted, c.State())
	return c
}

func (s *HubSuite) event(t models.EventType, agencies ...id.AgencyID) models.Event {
	b := &models.Bulletin{
		ID:        id.NewBulletinID(),
		Subject:   "Missing person",
		Category:  models.CategoryMissingPerson,
		Priority:  models.PriorityUrgent,
		Status:    models.StatusActive,
		Agencies:  agencies,
		CreatedBy: id.NewUserID(),
	}
	return models.NewEvent(t, b)
}

func (s *HubSuite) received(c *Conn) []models.Event {
	var out []models.Event
	for {
		select {
		case frame := <-c.Outbound():
			var evt models.Event
			s.Require().NoError(json.Unmarshal(frame, &evt))
			out = append(out, evt)
		default:
			return out
		}
	}
}

func (s *HubSuite) TestPublishReachesAuthorizedRoomsOnly() {
	c1 := s.connect(s.a1)
	c2 := s.connect(s.a2)
	c3 := s.connect(s.a3)

	evt := s.event(models.EventCreated, s.a1, s.a2)
	s.hub.Publish(s.ctx, evt)

	got1 := s.received(c1)
	s.Require().Len(got1, 1)
	s.Equal(models.EventCreated, got1[0].Type)
	s.Equal(evt.RecordID, got1[0].RecordID)
	s.ElementsMatch([]id.AgencyID{s.a1, s.a2}, got1[0].AuthorizationSet)
	s.Len(s.received(c2), 1)
	s.Empty(s.received(c3))
}

func (s *HubSuite) TestUpdateGoesToNewSetOnly() {
	c1 := s.connect(s.a1)
	c2 := s.connect(s.a2)
	c3 := s.connect(s.a3)

	s.hub.Publish(s.ctx, s.event(models.EventUpdated, s.a2, s.a3))

	s.Empty(s.received(c1), "agencies dropped from the set are not told")
	s.Len(s.received(c2), 1)
	s.Len(s.received(c3), 1)
}

func (s *HubSuite) TestConnectionInSeveralRoomsReceivesOnce() {
	multi := s.connect(s.a1, s.a2, s.a3)
	s.Equal(1, s.hub.RoomSize(s.a2))

	s.hub.Publish(s.ctx, s.event(models.EventCreated, s.a1, s.a2, s.a3))

	s.Len(s.received(multi), 1)
}

func (s *HubSuite) TestEventsArriveInPublishOrder() {
	c := s.connect(s.a1)
	first := s.event(models.EventCreated, s.a1)
	second := s.event(models.EventUpdated, s.a1)
	second.RecordID = first.RecordID

	s.hub.Publish(s.ctx, first)
	s.hub.Publish(s.ctx, second)

	got := s.received(c)
	s.Require().Len(got, 2)
	s.Equal(models.EventCreated, got[0].Type)
	s.Equal(models.EventUpdated, got[1].Type)
}

func (s *HubSuite) TestSlowConsumerIsClosedWithoutBlockingOthers() {
	slow := s.connect(s.a1)
	fast := s.connect(s.a1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			s.hub.Publish(s.ctx, s.event(models.EventCreated, s.a1))
			s.received(fast)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("publish blocked on a full queue")
	}

	s.Equal(StateClosed, slow.State())
	s.Equal(ReasonSlowConsumer, slow.CloseReason())
	s.Equal(StateAdmitted, fast.State())
	s.Equal(1, s.hub.RoomSize(s.a1))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SlowConsumers))
}

func (s *HubSuite) TestClosedConnectionIsSkipped() {
	gone := s.connect(s.a1)
	stay := s.connect(s.a1)

	gone.Close(ReasonClientGone)
	s.hub.Publish(s.ctx, s.event(models.EventCreated, s.a1))

	s.Empty(s.received(gone))
	s.Len(s.received(stay), 1)
	s.Equal(1, s.hub.RoomSize(s.a1))
}

func (s *HubSuite) TestCloseIsIdempotent() {
	c := s.connect(s.a1, s.a2)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Connections))

	c.Close(ReasonClientGone)
	c.Close(ReasonShutdown)

	s.Equal(ReasonClientGone, c.CloseReason())
	s.Equal(0, s.hub.RoomSize(s.a1))
	s.Equal(0, s.hub.RoomSize(s.a2))
	s.Equal(0, s.hub.ConnectionCount())
	s.Equal(0.0, testutil.ToFloat64(s.metrics.Connections))
}

func (s *HubSuite) TestRejectedCredentialJoinsNoRoom() {
	c := s.hub.Connect()

	_, err := s.hub.Admit(s.ctx, c, "forged")

	s.ErrorIs(err, gate.ErrAuthenticationFailed)
	s.Equal(StateClosed, c.State())
	s.Equal(ReasonAuthFailed, c.CloseReason())
	s.Equal(0, s.hub.ConnectionCount())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Admissions.WithLabelValues("rejected")))

	s.hub.Publish(s.ctx, s.event(models.EventCreated, s.a1))
	s.Empty(s.received(c))
}

func (s *HubSuite) TestAdmitAfterCloseFails() {
	p := identity.Principal{UserID: id.NewUserID(), Role: identity.RoleOfficer, HomeAgencyID: s.a1}
	s.gate.tokens["late"] = p
	c := s.hub.Connect()
	c.Close(ReasonClientGone)

	_, err := s.hub.Admit(s.ctx, c, "late")

	s.ErrorIs(err, ErrConnectionClosed)
	s.Equal(0, s.hub.RoomSize(s.a1))
}

func (s *HubSuite) TestUnadmittedConnectionTimesOut() {
	hub := NewHub(s.gate, s.scopes, WithAdmissionTimeout(20*time.Millisecond))
	c := hub.Connect()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		s.FailNow("connection was never closed")
	}
	s.Equal(ReasonAdmissionTimeout, c.CloseReason())
	s.Equal(0, hub.ConnectionCount())
}

func (s *HubSuite) TestSlowGateTimesOut() {
	s.gate.block = make(chan struct{})
	defer close(s.gate.block)
	hub := NewHub(s.gate, s.scopes, WithAdmissionTimeout(20*time.Millisecond))
	c := hub.Connect()

	_, err := hub.Admit(s.ctx, c, "anything")

	s.Error(err)
	s.Equal(StateClosed, c.State())
	s.Equal(ReasonAdmissionTimeout, c.CloseReason())
}

func (s *HubSuite) TestAdmittedConnectionOutlivesDeadline() {
	hub := NewHub(s.gate, s.scopes, WithAdmissionTimeout(20*time.Millisecond))
	p := identity.Principal{UserID: id.NewUserID(), Role: identity.RoleOfficer, HomeAgencyID: s.a1}
	s.gate.tokens["ok"] = p
	c := hub.Connect()
	_, err := hub.Admit(s.ctx, c, "ok")
	s.Require().NoError(err)

	time.Sleep(50 * time.Millisecond)

	s.Equal(StateAdmitted, c.State())
	s.Equal(1, hub.RoomSize(s.a1))
}

func (s *HubSuite) TestShutdownClosesEverything() {
	admitted := s.connect(s.a1)
	pending := s.hub.Connect()

	s.hub.Shutdown()

	s.Equal(ReasonShutdown, admitted.CloseReason())
	s.Equal(ReasonShutdown, pending.CloseReason())
	s.Equal(0, s.hub.ConnectionCount())
}

func (s *HubSuite) TestConcurrentPublishAndClose() {
	var conns []*Conn
	for i := 0; i < 20; i++ {
		conns = append(conns, s.connect(s.a1))
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Conn) {
			defer wg.Done()
			c.Close(ReasonClientGone)
		}(c)
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.hub.Publish(s.ctx, s.event(models.EventCreated, s.a1))
		}()
	}
	wg.Wait()

	s.Equal(0, s.hub.RoomSize(s.a1))
	s.Equal(0, s.hub.ConnectionCount())
}
