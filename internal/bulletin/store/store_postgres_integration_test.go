//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	agencymodels "apb/internal/agency/models"
	agencystore "apb/internal/agency/store"
	"apb/internal/bulletin/models"
	"apb/internal/geo"
	id "apb/pkg/domain"
	"apb/pkg/platform/sentinel"
	"apb/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
	now   time.Time

	a1, a2, a3 id.AgencyID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB, 5*time.Second)
	s.ctx = context.Background()
	s.now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx))
	agencies := agencystore.NewPostgres(s.pg.DB)
	s.a1 = s.agency(agencies, "Springfield PD")
	s.a2 = s.agency(agencies, "Shelbyville PD")
	s.a3 = s.agency(agencies, "Capital City PD")
}

func (s *PostgresStoreSuite) agency(st *agencystore.PostgresStore, name string) id.AgencyID {
	a, err := agencymodels.NewAgency(id.NewAgencyID(), agencymodels.Draft{
		Name: name, Jurisdiction: "Illinois", Location: geo.Coordinate{Lat: 39.8, Lng: -89.6},
	}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(st.Create(s.ctx, a))
	return a.ID
}

func (s *PostgresStoreSuite) bulletin(lat, lng float64, agencies ...id.AgencyID) *models.Bulletin {
	if len(agencies) == 0 {
		agencies = []id.AgencyID{s.a1}
	}
	b, err := models.NewBulletin(id.NewBulletinID(), models.Draft{
		Subject:  "Missing child",
		Category: models.CategoryMissingPerson,
		Priority: models.PriorityUrgent,
		Location: models.Location{Lat: lat, Lng: lng},
		Agencies: agencies,
	}, id.NewUserID(), s.now)
	s.Require().NoError(err)
	return b
}

func (s *PostgresStoreSuite) insert(b *models.Bulletin) error {
	return s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, b); err != nil {
			return err
		}
		return tx.ReplaceAgencies(ctx, b.ID, b.Agencies)
	})
}

func (s *PostgresStoreSuite) TestUnitOfWork() {
	s.Run("committed writes are visible with their authorization set in order", func() {
		b := s.bulletin(39.78, -89.65, s.a3, s.a1, s.a2)
		b.Suspect = &models.Suspect{Name: "John Doe", Age: 40, Weapons: []string{"knife"}}
		s.Require().NoError(s.insert(b))

		got, err := s.store.FindByID(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(b.Subject, got.Subject)
		s.Equal(b.Status, got.Status)
		s.InDelta(b.Location.Lat, got.Location.Lat, 1e-9)
		s.Equal([]id.AgencyID{s.a3, s.a1, s.a2}, got.Agencies)
		s.Require().NotNil(got.Suspect)
		s.Equal("John Doe", got.Suspect.Name)
		s.Equal([]string{"knife"}, got.Suspect.Weapons)
		s.True(b.CreatedAt.Equal(got.CreatedAt))
	})

	s.Run("a failed unit of work leaves nothing behind", func() {
		b := s.bulletin(39.78, -89.65)
		boom := errors.New("boom")

		err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Insert(ctx, b); err != nil {
				return err
			}
			if err := tx.ReplaceAgencies(ctx, b.ID, b.Agencies); err != nil {
				return err
			}
			return boom
		})

		s.ErrorIs(err, boom)
		_, err = s.store.FindByID(s.ctx, b.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("an unknown agency is a conflict", func() {
		b := s.bulletin(39.78, -89.65, s.a1, id.NewAgencyID())

		err := s.insert(b)

		s.ErrorIs(err, sentinel.ErrConflict)
		_, err = s.store.FindByID(s.ctx, b.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("a duplicate id is a conflict", func() {
		b := s.bulletin(39.78, -89.65)
		s.Require().NoError(s.insert(b))

		s.ErrorIs(s.insert(b), sentinel.ErrConflict)
	})
}

func (s *PostgresStoreSuite) TestUpdateReplacesAuthorizationSet() {
	b := s.bulletin(39.78, -89.65, s.a1, s.a2)
	s.Require().NoError(s.insert(b))

	err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.FindForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		current.Subject = "Child found"
		current.Status = models.StatusResolved
		current.Agencies = []id.AgencyID{s.a3}
		current.UpdatedAt = s.now.Add(time.Minute)
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		return tx.ReplaceAgencies(ctx, current.ID, current.Agencies)
	})
	s.Require().NoError(err)

	got, err := s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal("Child found", got.Subject)
	s.Equal(models.StatusResolved, got.Status)
	s.Equal([]id.AgencyID{s.a3}, got.Agencies)

	s.Run("missing bulletins are not found for update", func() {
		err := s.store.RunInTx(s.ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.FindForUpdate(ctx, id.NewBulletinID())
			return err
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestListActiveByAgency() {
	older := s.bulletin(39.78, -89.65, s.a1)
	newer := s.bulletin(39.79, -89.64, s.a1, s.a2)
	newer.CreatedAt = s.now.Add(time.Hour)
	newer.UpdatedAt = newer.CreatedAt
	draft := s.bulletin(39.79, -89.64, s.a1)
	draft.Status = models.StatusDraft
	for _, b := range []*models.Bulletin{older, newer, draft} {
		s.Require().NoError(s.insert(b))
	}

	got, err := s.store.ListActiveByAgency(s.ctx, s.a1)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(newer.ID, got[0].ID)
	s.Equal(older.ID, got[1].ID)

	got, err = s.store.ListActiveByAgency(s.ctx, s.a2)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(newer.ID, got[0].ID)

	got, err = s.store.ListActiveByAgency(s.ctx, s.a3)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PostgresStoreSuite) TestListActiveInBounds() {
	springfield := s.bulletin(39.78, -89.65)
	chicago := s.bulletin(41.88, -87.63)
	fiji := s.bulletin(-17.7, 178.9)
	samoa := s.bulletin(-13.8, -171.8)
	for _, b := range []*models.Bulletin{springfield, chicago, fiji, samoa} {
		s.Require().NoError(s.insert(b))
	}

	s.Run("plain box", func() {
		got, err := s.store.ListActiveInBounds(s.ctx, geo.BoundsAround(geo.Coordinate{Lat: 39.8, Lng: -89.6}, 50))
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(springfield.ID, got[0].ID)
	})

	s.Run("box across the antimeridian", func() {
		box := geo.Bounds{MinLat: -20, MaxLat: -10, MinLng: 175, MaxLng: -170}
		s.Require().True(box.WrapsAntimeridian())

		got, err := s.store.ListActiveInBounds(s.ctx, box)
		s.Require().NoError(err)
		ids := make([]id.BulletinID, 0, len(got))
		for _, b := range got {
			ids = append(ids, b.ID)
		}
		s.ElementsMatch([]id.BulletinID{fiji.ID, samoa.ID}, ids)
	})
}

func (s *PostgresStoreSuite) TestPurgeCascades() {
	b := s.bulletin(39.78, -89.65, s.a1, s.a2)
	s.Require().NoError(s.insert(b))

	s.Require().NoError(s.store.Purge(s.ctx, b.ID))

	_, err := s.store.FindByID(s.ctx, b.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	var remaining int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM bulletin_agencies WHERE bulletin_id = $1`, b.ID.String()).Scan(&remaining))
	s.Zero(remaining)

	s.ErrorIs(s.store.Purge(s.ctx, b.ID), sentinel.ErrNotFound)
}
