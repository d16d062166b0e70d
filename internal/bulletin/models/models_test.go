package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "apb/pkg/domain"
	dErrors "apb/pkg/domain-errors"
)

func validDraft(agencies ...id.AgencyID) Draft {
	return Draft{
		Subject:     "Silver sedan, partial plate KX4",
		Description: "Left scene of armed robbery heading north on 5th St.",
		Category:    CategoryVehicle,
		Priority:    PriorityHigh,
		Location:    Location{Lat: 39.781, Lng: -89.644, Address: "5th & Monroe"},
		Agencies:    agencies,
	}
}

func TestParseEnums(t *testing.T) {
	t.Run("category spellings", func(t *testing.T) {
		for in, want := range map[string]Category{
			"lookout":        CategoryLookout,
			"BOLO":           CategoryLookout,
			"MISSING_PERSON": CategoryMissingPerson,
			"general-alert":  CategoryGeneralAlert,
			" Wanted ":       CategoryWanted,
		} {
			got, err := ParseCategory(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got)
		}
		_, err := ParseCategory("parking")
		assert.Equal(t, "category", dErrors.FieldOf(err))
	})

	t.Run("priority is totally ordered", func(t *testing.T) {
		order := []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
		for i := 1; i < len(order); i++ {
			assert.True(t, order[i-1].Less(order[i]))
			assert.False(t, order[i].Less(order[i-1]))
		}
		p, err := ParsePriority("URGENT")
		require.NoError(t, err)
		assert.Equal(t, PriorityUrgent, p)
		_, err = ParsePriority("critical")
		assert.Equal(t, "priority", dErrors.FieldOf(err))
	})

	t.Run("status", func(t *testing.T) {
		s, err := ParseStatus("Draft")
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, s)
		_, err = ParseStatus("deleted")
		assert.Equal(t, "status", dErrors.FieldOf(err))
	})
}

func TestNewBulletin(t *testing.T) {
	a1, a2 := id.NewAgencyID(), id.NewAgencyID()
	author := id.NewUserID()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults status and dedupes agencies", func(t *testing.T) {
		b, err := NewBulletin(id.NewBulletinID(), validDraft(a1, a2, a1), author, now)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, b.Status)
		assert.Equal(t, []id.AgencyID{a1, a2}, b.Agencies)
		assert.Equal(t, now, b.CreatedAt)
		assert.Equal(t, now, b.UpdatedAt)
	})

	t.Run("rejects empty authorization set", func(t *testing.T) {
		_, err := NewBulletin(id.NewBulletinID(), validDraft(), author, now)
		require.Error(t, err)
		assert.Equal(t, "agencies", dErrors.FieldOf(err))
	})

	t.Run("rejects bad coordinates with nested field", func(t *testing.T) {
		d := validDraft(a1)
		d.Location.Lng = 200
		_, err := NewBulletin(id.NewBulletinID(), d, author, now)
		require.Error(t, err)
		assert.Equal(t, "location.lng", dErrors.FieldOf(err))
	})

	t.Run("rejects blank subject", func(t *testing.T) {
		d := validDraft(a1)
		d.Subject = "  "
		_, err := NewBulletin(id.NewBulletinID(), d, author, now)
		assert.Equal(t, "subject", dErrors.FieldOf(err))
	})
}

func TestApply(t *testing.T) {
	a1, a2 := id.NewAgencyID(), id.NewAgencyID()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b, err := NewBulletin(id.NewBulletinID(), validDraft(a1), id.NewUserID(), created)
	require.NoError(t, err)

	t.Run("partial patch leaves other fields", func(t *testing.T) {
		c := b.Clone()
		resolved := StatusResolved
		require.NoError(t, c.Apply(Patch{Status: &resolved}, created.Add(time.Minute)))
		assert.Equal(t, StatusResolved, c.Status)
		assert.Equal(t, b.Subject, c.Subject)
		assert.Equal(t, b.Agencies, c.Agencies)
		assert.Equal(t, created.Add(time.Minute), c.UpdatedAt)
	})

	t.Run("updated_at advances even when the clock lags", func(t *testing.T) {
		c := b.Clone()
		require.NoError(t, c.Apply(Patch{}, created.Add(-time.Hour)))
		assert.True(t, c.UpdatedAt.After(b.UpdatedAt))
	})

	t.Run("replaces authorization set", func(t *testing.T) {
		c := b.Clone()
		set := []id.AgencyID{a2}
		require.NoError(t, c.Apply(Patch{Agencies: &set}, created.Add(time.Minute)))
		assert.Equal(t, []id.AgencyID{a2}, c.Agencies)
	})

	t.Run("rejects emptying the authorization set", func(t *testing.T) {
		c := b.Clone()
		empty := []id.AgencyID{}
		err := c.Apply(Patch{Agencies: &empty}, created.Add(time.Minute))
		assert.Equal(t, "agencies", dErrors.FieldOf(err))
	})
}

func TestNewEventSnapshots(t *testing.T) {
	a1, a2 := id.NewAgencyID(), id.NewAgencyID()
	b, err := NewBulletin(id.NewBulletinID(), validDraft(a1), id.NewUserID(), time.Now())
	require.NoError(t, err)

	ev := NewEvent(EventCreated, b)
	b.Agencies[0] = a2
	b.Subject = "changed"

	assert.Equal(t, []id.AgencyID{a1}, ev.AuthorizationSet)
	assert.Equal(t, []id.AgencyID{a1}, ev.Bulletin.Agencies)
	assert.NotEqual(t, "changed", ev.Bulletin.Subject)
	assert.Equal(t, b.ID, ev.RecordID)
}
