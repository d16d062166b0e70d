package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"apb/internal/identity/models"
	"apb/internal/identity/store/user"
	"apb/internal/identity/token"
	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

type GateSuite struct {
	suite.Suite
	tokens *token.JWTService
	users  *user.InMemoryUserStore
	gate   *Gate
	ctx    context.Context
	stored *models.User
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateSuite))
}

func (s *GateSuite) SetupTest() {
	s.ctx = context.Background()
	s.tokens = token.NewJWTService("gate-test-key", "apb", "apb-clients")
	s.users = user.NewInMemoryUserStore()
	s.gate = New(s.tokens,
		WithUserStore(s.users),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	s.stored = &models.User{
		ID:        id.NewUserID(),
		Email:     "dispatch@capitol.gov",
		AgencyID:  id.NewAgencyID(),
		Role:      models.RoleDispatcher,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.users.Save(s.ctx, s.stored))
}

func (s *GateSuite) mint(p models.Principal, ttl time.Duration) string {
	tok, err := s.tokens.GenerateAccessToken(p, ttl)
	s.Require().NoError(err)
	return tok
}

func (s *GateSuite) TestAdmit() {
	s.Run("admits a valid credential for an existing user", func() {
		p, err := s.gate.Admit(s.ctx, s.mint(s.stored.Principal(), time.Hour))
		s.Require().NoError(err)
		s.Equal(s.stored.Principal(), p)
	})

	s.Run("takes role and agency from the stored user", func() {
		stale := s.stored.Principal()
		stale.Role = models.RoleAdmin
		stale.HomeAgencyID = id.NewAgencyID()

		p, err := s.gate.Admit(s.ctx, s.mint(stale, time.Hour))
		s.Require().NoError(err)
		s.Equal(models.RoleDispatcher, p.Role)
		s.Equal(s.stored.AgencyID, p.HomeAgencyID)
	})

	s.Run("rejects missing credential", func() {
		_, err := s.gate.Admit(s.ctx, "  ")
		s.ErrorIs(err, ErrAuthenticationFailed)
	})

	s.Run("rejects malformed credential", func() {
		_, err := s.gate.Admit(s.ctx, "not.a.jwt")
		s.ErrorIs(err, ErrAuthenticationFailed)
	})

	s.Run("rejects expired credential", func() {
		_, err := s.gate.Admit(s.ctx, s.mint(s.stored.Principal(), -time.Minute))
		s.ErrorIs(err, ErrAuthenticationFailed)
	})

	s.Run("rejects principal that no longer exists", func() {
		ghost := models.Principal{UserID: id.NewUserID(), HomeAgencyID: id.NewAgencyID(), Role: models.RoleOfficer}
		_, err := s.gate.Admit(s.ctx, s.mint(ghost, time.Hour))
		s.ErrorIs(err, ErrAuthenticationFailed)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

type failingUsers struct{}

func (failingUsers) FindByID(context.Context, id.UserID) (*models.User, error) {
	return nil, errors.New("connection refused")
}

func (s *GateSuite) TestAdmit_StoreFailureIsInternal() {
	g := New(s.tokens, WithUserStore(failingUsers{}), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	_, err := g.Admit(s.ctx, s.mint(s.stored.Principal(), time.Hour))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *GateSuite) TestAdmit_WithoutUserStoreTrustsClaims() {
	g := New(s.tokens)
	p := models.Principal{UserID: id.NewUserID(), HomeAgencyID: id.NewAgencyID(), Role: models.RoleOfficer}
	got, err := g.Admit(s.ctx, s.mint(p, time.Hour))
	s.Require().NoError(err)
	s.Equal(p, got)
}
