package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"apb/internal/agency/models"
	id "apb/pkg/domain"
	"apb/pkg/platform/sentinel"
	txcontext "apb/pkg/platform/tx"
)

// PostgresStore persists agencies in PostgreSQL. Reads and writes join a
// transaction carried by the context when there is one, so the bulletin
// service can check agency ids inside its own unit of work.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Agency) error {
	query := `
		INSERT INTO agencies (id, name, jurisdiction, lat, lng, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(a.ID), a.Name, a.Jurisdiction, a.Location.Lat, a.Location.Lng, a.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("create agency: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create agency: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, a *models.Agency) error {
	query := `
		UPDATE agencies
		SET name = $2, jurisdiction = $3, lat = $4, lng = $5
		WHERE id = $1
	`
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(a.ID), a.Name, a.Jurisdiction, a.Location.Lat, a.Location.Lng,
	)
	if err != nil {
		return fmt.Errorf("update agency: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agency: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, agencyID id.AgencyID) (*models.Agency, error) {
	query := `
		SELECT id, name, jurisdiction, lat, lng, created_at
		FROM agencies
		WHERE id = $1
	`
	a, err := scanAgency(txcontext.Use(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(agencyID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find agency: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Agency, error) {
	query := `
		SELECT id, name, jurisdiction, lat, lng, created_at
		FROM agencies
		ORDER BY name
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	defer rows.Close()

	var out []*models.Agency
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agency: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]id.AgencyID, error) {
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, `SELECT id FROM agencies`)
	if err != nil {
		return nil, fmt.Errorf("list agency ids: %w", err)
	}
	defer rows.Close()

	var out []id.AgencyID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan agency id: %w", err)
		}
		out = append(out, id.AgencyID(raw))
	}
	return out, rows.Err()
}

// Missing returns the ids in agencyIDs with no agencies row, in input order.
func (s *PostgresStore) Missing(ctx context.Context, agencyIDs []id.AgencyID) ([]id.AgencyID, error) {
	if len(agencyIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT wanted.id
		FROM unnest($1::uuid[]) WITH ORDINALITY AS wanted(id, ord)
		LEFT JOIN agencies a ON a.id = wanted.id
		WHERE a.id IS NULL
		ORDER BY wanted.ord
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, pq.Array(id.AgencyStrings(agencyIDs)))
	if err != nil {
		return nil, fmt.Errorf("check agencies: %w", err)
	}
	defer rows.Close()

	var missing []id.AgencyID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan missing agency: %w", err)
		}
		missing = append(missing, id.AgencyID(raw))
	}
	return missing, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgency(row rowScanner) (*models.Agency, error) {
	var (
		a   models.Agency
		raw uuid.UUID
	)
	if err := row.Scan(&raw, &a.Name, &a.Jurisdiction, &a.Location.Lat, &a.Location.Lng, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AgencyID(raw)
	return &a, nil
}
