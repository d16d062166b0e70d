// Package apbctl is the operator CLI: schema migrations, demo data and
// development tokens.
package apbctl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"

	agencystore "apb/internal/agency/store"
	bulletinservice "apb/internal/bulletin/service"
	bulletinstore "apb/internal/bulletin/store"
	identity "apb/internal/identity/models"
	userstore "apb/internal/identity/store/user"
	"apb/internal/identity/token"
	"apb/internal/outbox"
	"apb/internal/platform/config"
	"apb/internal/platform/postgres"
	id "apb/pkg/domain"
)

const (
	Name  = "apbctl"
	Usage = "All Points Bulletin operations CLI"
)

// Loader supplies configuration; tests replace it.
type Loader func() (config.Config, error)

// GetApp builds the CLI with configuration read from the environment.
func GetApp() *cli.App {
	return setUpApp(config.FromEnv)
}

func setUpApp(load Loader) *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage

	var (
		userID, agencyID, role string
		ttl                    time.Duration
		extra                  int
	)
	app.Commands = []cli.Command{
		{
			Name:  "migrate",
			Usage: "Apply pending database migrations",
			Action: func(c *cli.Context) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				db, err := openDB(cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := postgres.Migrate(db); err != nil {
					return err
				}
				version, dirty, err := postgres.Version(db)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "schema at version %d (dirty=%t)\n", version, dirty)
				return nil
			},
		},
		{
			Name:  "seed",
			Usage: "Load demo agencies, users and bulletins",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:        "random",
					Usage:       "Number of random bulletins to add",
					Value:       10,
					Destination: &extra,
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				db, err := openDB(cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := postgres.Migrate(db); err != nil {
					return err
				}
				agencies := agencystore.NewPostgres(db)
				svc := bulletinservice.New(
					bulletinstore.NewPostgres(db, cfg.Database.TxTimeout),
					agencies,
					nil,
					bulletinservice.WithEventLog(outbox.NewPostgres(db)),
				)
				res, err := Seed(context.Background(), agencies, userstore.NewPostgres(db), svc, extra)
				if err != nil {
					return err
				}
				printSeed(app, res)
				return nil
			},
		},
		{
			Name:  "token",
			Usage: "Mint a bearer token for a principal",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "user",
					Usage:       "User id (random if omitted)",
					Destination: &userID,
				},
				cli.StringFlag{
					Name:        "agency",
					Usage:       "Home agency id",
					Destination: &agencyID,
				},
				cli.StringFlag{
					Name:        "role",
					Usage:       "officer, dispatcher or admin",
					Value:       string(identity.RoleOfficer),
					Destination: &role,
				},
				cli.DurationFlag{
					Name:        "ttl",
					Usage:       "Token lifetime (defaults to JWT_TOKEN_TTL)",
					Destination: &ttl,
				},
			},
			Action: func(c *cli.Context) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				p, err := principalFromFlags(userID, agencyID, role)
				if err != nil {
					return err
				}
				if ttl <= 0 {
					ttl = cfg.Auth.TokenTTL
				}
				jwt := token.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
				tok, err := jwt.GenerateAccessToken(p, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(app.Writer, tok)
				return nil
			},
		},
	}
	return app
}

func openDB(cfg config.Config) (*sql.DB, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return postgres.Open(context.Background(), cfg.Database)
}

func principalFromFlags(userID, agencyID, role string) (identity.Principal, error) {
	var p identity.Principal
	var err error
	if userID == "" {
		p.UserID = id.NewUserID()
	} else if p.UserID, err = id.ParseUserID(userID); err != nil {
		return p, err
	}
	if p.HomeAgencyID, err = id.ParseAgencyID(agencyID); err != nil {
		return p, err
	}
	if p.Role, err = identity.ParseRole(role); err != nil {
		return p, err
	}
	return p, nil
}

func printSeed(app *cli.App, res *SeedResult) {
	fmt.Fprintln(app.Writer, "Agencies:")
	for _, a := range res.Agencies {
		fmt.Fprintf(app.Writer, "  %s  %s\n", a.ID, a.Name)
	}
	fmt.Fprintln(app.Writer, "Users:")
	for _, u := range []*identity.User{res.Officer, res.Admin} {
		fmt.Fprintf(app.Writer, "  %s  %s (%s)\n", u.ID, u.Email, u.Role)
	}
	fmt.Fprintf(app.Writer, "Bulletins: %d\n", len(res.Bulletins))
	fmt.Fprintf(app.Writer, "Mint a token with: %s token --user %s --agency %s --role %s\n",
		Name, res.Officer.ID, res.Officer.AgencyID, res.Officer.Role)
}
