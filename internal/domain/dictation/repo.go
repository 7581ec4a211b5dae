package dictation

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists dictations. Fetch returns records in any lifecycle
// state; the store applies the active-only filter. List methods other
// than ListDeleted see active records only.
type Repository interface {
	Insert(ctx context.Context, d *Dictation) error
	Fetch(ctx context.Context, id uuid.UUID) (*Dictation, error)
	Save(ctx context.Context, d *Dictation) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Dictation, int, error)
	ListDeleted(ctx context.Context, limit, offset int) ([]*Dictation, int, error)
}
