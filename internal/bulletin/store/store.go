// Package store persists bulletins and their agency associations.
package store

import (
	"context"

	"apb/internal/bulletin/models"
	id "apb/pkg/domain"
)

// Tx is the write surface available inside a unit of work. Every call made
// through it commits or rolls back together.
type Tx interface {
	// FindForUpdate loads a bulletin and locks it until the unit of work ends.
	FindForUpdate(ctx context.Context, bulletinID id.BulletinID) (*models.Bulletin, error)
	// Insert writes the bulletin row only; associations go through ReplaceAgencies.
	Insert(ctx context.Context, b *models.Bulletin) error
	// Update rewrites the mutable columns of an existing bulletin row.
	Update(ctx context.Context, b *models.Bulletin) error
	// ReplaceAgencies deletes every association of the bulletin and inserts agencies.
	ReplaceAgencies(ctx context.Context, bulletinID id.BulletinID, agencies []id.AgencyID) error
}
