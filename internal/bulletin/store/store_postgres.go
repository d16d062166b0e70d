package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"apb/internal/bulletin/models"
	"apb/internal/geo"
	id "apb/pkg/domain"
	"apb/pkg/platform/sentinel"
	txcontext "apb/pkg/platform/tx"
)

// PostgresStore persists bulletins in the bulletins table and their
// authorization sets in bulletin_agencies.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(db *sql.DB, txTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: txTimeout}
}

const selectBulletin = `
	SELECT b.id, b.subject, b.description, b.category, b.priority, b.status,
		   b.lat, b.lng, b.address, b.suspect, b.created_by, b.created_at, b.updated_at,
		   ARRAY(
			   SELECT ba.agency_id::text FROM bulletin_agencies ba
			   WHERE ba.bulletin_id = b.id
			   ORDER BY ba.position
		   ) AS agencies
	FROM bulletins b
`

func (s *PostgresStore) FindByID(ctx context.Context, bulletinID id.BulletinID) (*models.Bulletin, error) {
	row := txcontext.Use(ctx, s.db).QueryRowContext(ctx, selectBulletin+` WHERE b.id = $1`, uuid.UUID(bulletinID))
	b, err := scanBulletin(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find bulletin: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) ListActiveByAgency(ctx context.Context, agencyID id.AgencyID) ([]*models.Bulletin, error) {
	query := selectBulletin + `
		WHERE b.status = 'active'
		  AND EXISTS (
			  SELECT 1 FROM bulletin_agencies ba
			  WHERE ba.bulletin_id = b.id AND ba.agency_id = $1
		  )
		ORDER BY b.created_at DESC, b.id
	`
	return s.list(ctx, "list bulletins by agency", query, uuid.UUID(agencyID))
}

func (s *PostgresStore) ListActiveInBounds(ctx context.Context, box geo.Bounds) ([]*models.Bulletin, error) {
	lngPredicate := `b.lng BETWEEN $3 AND $4`
	if box.WrapsAntimeridian() {
		lngPredicate = `(b.lng >= $3 OR b.lng <= $4)`
	}
	query := selectBulletin + `
		WHERE b.status = 'active'
		  AND b.lat BETWEEN $1 AND $2
		  AND ` + lngPredicate
	return s.list(ctx, "list bulletins in bounds", query, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]*models.Bulletin, error) {
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Bulletin
	for rows.Next() {
		b, err := scanBulletin(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// RunInTx runs fn inside a database transaction. Stores that use
// txcontext.Use, such as the agency and outbox stores, join it through ctx.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return txcontext.Run(ctx, s.db, s.timeout, func(ctx context.Context) error {
		return fn(ctx, &postgresTx{db: s.db})
	})
}

// Purge hard-deletes a bulletin; bulletin_agencies rows go with it through
// ON DELETE CASCADE. The service never calls it.
func (s *PostgresStore) Purge(ctx context.Context, bulletinID id.BulletinID) error {
	res, err := txcontext.Use(ctx, s.db).ExecContext(ctx, `DELETE FROM bulletins WHERE id = $1`, uuid.UUID(bulletinID))
	if err != nil {
		return fmt.Errorf("purge bulletin: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type postgresTx struct {
	db *sql.DB
}

func (t *postgresTx) FindForUpdate(ctx context.Context, bulletinID id.BulletinID) (*models.Bulletin, error) {
	row := txcontext.Use(ctx, t.db).QueryRowContext(ctx, selectBulletin+` WHERE b.id = $1 FOR UPDATE OF b`, uuid.UUID(bulletinID))
	b, err := scanBulletin(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock bulletin: %w", err)
	}
	return b, nil
}

func (t *postgresTx) Insert(ctx context.Context, b *models.Bulletin) error {
	suspect, err := marshalSuspect(b.Suspect)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO bulletins (
			id, subject, description, category, priority, status,
			lat, lng, address, suspect, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = txcontext.Use(ctx, t.db).ExecContext(ctx, query,
		uuid.UUID(b.ID), b.Subject, b.Description, string(b.Category), string(b.Priority), string(b.Status),
		b.Location.Lat, b.Location.Lng, b.Location.Address, suspect,
		uuid.UUID(b.CreatedBy), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return classify("insert bulletin", err)
	}
	return nil
}

func (t *postgresTx) Update(ctx context.Context, b *models.Bulletin) error {
	suspect, err := marshalSuspect(b.Suspect)
	if err != nil {
		return err
	}
	query := `
		UPDATE bulletins
		SET subject = $2, description = $3, category = $4, priority = $5, status = $6,
			lat = $7, lng = $8, address = $9, suspect = $10, updated_at = $11
		WHERE id = $1
	`
	res, err := txcontext.Use(ctx, t.db).ExecContext(ctx, query,
		uuid.UUID(b.ID), b.Subject, b.Description, string(b.Category), string(b.Priority), string(b.Status),
		b.Location.Lat, b.Location.Lng, b.Location.Address, suspect, b.UpdatedAt,
	)
	if err != nil {
		return classify("update bulletin", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bulletin: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (t *postgresTx) ReplaceAgencies(ctx context.Context, bulletinID id.BulletinID, agencies []id.AgencyID) error {
	q := txcontext.Use(ctx, t.db)
	if _, err := q.ExecContext(ctx, `DELETE FROM bulletin_agencies WHERE bulletin_id = $1`, uuid.UUID(bulletinID)); err != nil {
		return classify("clear bulletin agencies", err)
	}
	query := `
		INSERT INTO bulletin_agencies (bulletin_id, agency_id, position)
		SELECT $1, a.id::uuid, a.ord
		FROM unnest($2::text[]) WITH ORDINALITY AS a(id, ord)
	`
	if _, err := q.ExecContext(ctx, query, uuid.UUID(bulletinID), pq.Array(id.AgencyStrings(agencies))); err != nil {
		return classify("insert bulletin agencies", err)
	}
	return nil
}

// classify maps constraint violations onto sentinels; anything else is an
// infrastructure failure the service reports as an aborted write.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503", "23505":
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func marshalSuspect(s *models.Suspect) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal suspect: %w", err)
	}
	return b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBulletin(row rowScanner) (*models.Bulletin, error) {
	var (
		b         models.Bulletin
		rawID     uuid.UUID
		createdBy uuid.UUID
		category  string
		priority  string
		status    string
		suspect   []byte
		agencies  []string
	)
	err := row.Scan(&rawID, &b.Subject, &b.Description, &category, &priority, &status,
		&b.Location.Lat, &b.Location.Lng, &b.Location.Address, &suspect,
		&createdBy, &b.CreatedAt, &b.UpdatedAt, pq.Array(&agencies))
	if err != nil {
		return nil, err
	}
	b.ID = id.BulletinID(rawID)
	b.CreatedBy = id.UserID(createdBy)
	b.Category = models.Category(category)
	b.Priority = models.Priority(priority)
	b.Status = models.Status(status)
	if len(suspect) > 0 {
		var sus models.Suspect
		if err := json.Unmarshal(suspect, &sus); err != nil {
			return nil, fmt.Errorf("decode suspect: %w", err)
		}
		b.Suspect = &sus
	}
	b.Agencies, err = id.ParseAgencyIDs(agencies)
	if err != nil {
		return nil, fmt.Errorf("decode agencies: %w", err)
	}
	return &b, nil
}
