package requester

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists requester identity records.
type Repository interface {
	Create(ctx context.Context, r *Requester) error
	GetByID(ctx context.Context, id uuid.UUID) (*Requester, error)
	// Latest returns the most recent record for a document, or pgx.ErrNoRows.
	Latest(ctx context.Context, docType, docNumber string) (*Requester, error)
	// History returns all records for a document, newest first.
	History(ctx context.Context, docType, docNumber string, limit, offset int) ([]*Requester, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
