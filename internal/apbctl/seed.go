package apbctl

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Pallinder/go-randomdata"

	agencymodels "apb/internal/agency/models"
	"apb/internal/bulletin/models"
	"apb/internal/bulletin/service"
	"apb/internal/geo"
	identity "apb/internal/identity/models"
	"apb/internal/scope"
	id "apb/pkg/domain"
	"apb/pkg/requestcontext"
)

// AgencyWriter stores seeded agencies.
type AgencyWriter interface {
	Create(ctx context.Context, a *agencymodels.Agency) error
}

// UserWriter stores seeded users.
type UserWriter interface {
	Save(ctx context.Context, user *identity.User) error
}

// BulletinCreator is the bulletin service's create operation.
type BulletinCreator interface {
	Create(ctx context.Context, actor service.Actor, draft models.Draft) (*models.Bulletin, error)
}

// SeedResult lists what Seed wrote.
type SeedResult struct {
	Agencies  []*agencymodels.Agency
	Officer   *identity.User
	Admin     *identity.User
	Bulletins []*models.Bulletin
}

var seedAgencies = []agencymodels.Draft{
	{Name: "Springfield Police Department", Jurisdiction: "Springfield", Location: geo.Coordinate{Lat: 39.781, Lng: -89.644}},
	{Name: "County Sheriff Office", Jurisdiction: "Springfield County", Location: geo.Coordinate{Lat: 39.785, Lng: -89.650}},
	{Name: "State Police", Jurisdiction: "Statewide", Location: geo.Coordinate{Lat: 39.800, Lng: -89.650}},
}

// Seed writes the demo directory: three agencies, an officer and an admin at
// the first one, two fixed bulletins shared with every agency and random
// extra bulletins scattered around Springfield.
func Seed(ctx context.Context, agencies AgencyWriter, users UserWriter, bulletins BulletinCreator, extra int) (*SeedResult, error) {
	now := time.Now().UTC()
	ctx = requestcontext.WithTime(ctx, now)
	res := &SeedResult{}

	var all []id.AgencyID
	for _, d := range seedAgencies {
		a, err := agencymodels.NewAgency(id.NewAgencyID(), d, now)
		if err != nil {
			return nil, err
		}
		if err := agencies.Create(ctx, a); err != nil {
			return nil, fmt.Errorf("seed agency %q: %w", d.Name, err)
		}
		res.Agencies = append(res.Agencies, a)
		all = append(all, a.ID)
	}
	home := all[0]

	res.Officer = &identity.User{ID: id.NewUserID(), Email: "officer@springfieldpd.gov", Name: "John Officer", AgencyID: home, Role: identity.RoleOfficer, CreatedAt: now}
	res.Admin = &identity.User{ID: id.NewUserID(), Email: "admin@springfieldpd.gov", Name: "Admin User", AgencyID: home, Role: identity.RoleAdmin, CreatedAt: now}
	for _, u := range []*identity.User{res.Officer, res.Admin} {
		if err := users.Save(ctx, u); err != nil {
			return nil, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}

	actor := service.Actor{Principal: res.Officer.Principal(), Scopes: scope.NewSet(home)}
	drafts := []models.Draft{
		{
			Subject:     "Armed Robbery Suspect - Downtown",
			Description: "Male suspect, approximately 25-30 years old, armed with handgun. Last seen fleeing in white sedan.",
			Category:    models.CategoryLookout,
			Priority:    models.PriorityHigh,
			Location:    models.Location{Lat: 39.781, Lng: -89.644, Address: "123 Main St, Springfield"},
			Agencies:    all,
			Suspect: &models.Suspect{
				Name: "John Doe", Age: 28, Height: "5'10", Weight: "180 lbs",
				HairColor: "Brown", Clothing: "Blue jeans, black hoodie", Weapons: []string{"Handgun"},
			},
		},
		{
			Subject:     "Missing Child - Park Area",
			Description: "8-year-old female, last seen at Central Park wearing pink dress.",
			Category:    models.CategoryMissingPerson,
			Priority:    models.PriorityUrgent,
			Location:    models.Location{Lat: 39.785, Lng: -89.650, Address: "Central Park, Springfield"},
			Agencies:    all,
			Suspect: &models.Suspect{
				Name: "Sarah Johnson", Age: 8, Height: "4'2", Weight: "60 lbs",
				HairColor: "Blonde", Clothing: "Pink dress, white shoes",
			},
		},
	}
	for i := 0; i < extra; i++ {
		drafts = append(drafts, randomDraft(all))
	}

	for _, d := range drafts {
		b, err := bulletins.Create(ctx, actor, d)
		if err != nil {
			return nil, fmt.Errorf("seed bulletin %q: %w", d.Subject, err)
		}
		res.Bulletins = append(res.Bulletins, b)
	}
	return res, nil
}

var (
	randomCategories = []models.Category{models.CategoryLookout, models.CategoryMissingPerson, models.CategoryGeneralAlert, models.CategoryVehicle, models.CategoryWanted}
	randomPriorities = []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent}
)

// randomDraft makes a plausible bulletin within about 20 km of Springfield,
// shared with a random non-empty subset of agencies.
func randomDraft(agencies []id.AgencyID) models.Draft {
	category := randomCategories[rand.Intn(len(randomCategories))]
	name := randomdata.FullName(randomdata.RandomGender)

	var shared []id.AgencyID
	for _, a := range agencies {
		if randomdata.Boolean() {
			shared = append(shared, a)
		}
	}
	if len(shared) == 0 {
		shared = agencies[:1]
	}

	return models.Draft{
		Subject:     fmt.Sprintf("%s - %s", randomdata.Title(randomdata.RandomGender), name),
		Description: randomdata.Paragraph(),
		Category:    category,
		Priority:    randomPriorities[rand.Intn(len(randomPriorities))],
		Location: models.Location{
			Lat:     39.781 + (rand.Float64()-0.5)*0.36,
			Lng:     -89.644 + (rand.Float64()-0.5)*0.46,
			Address: fmt.Sprintf("%d %s, %s", randomdata.Number(1, 999), randomdata.Street(), randomdata.City()),
		},
		Agencies: shared,
		Suspect: &models.Suspect{
			Name:      name,
			Age:       randomdata.Number(16, 70),
			HairColor: randomdata.StringSample("Black", "Brown", "Blonde", "Red", "Grey"),
			Clothing:  randomdata.StringSample("Grey hoodie", "Red jacket", "Work uniform", "Dark suit"),
		},
	}
}
