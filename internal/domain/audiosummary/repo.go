package audiosummary

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists audio summaries. Same lifecycle contract as the
// dictation repository: Fetch sees every state, lists see active rows
// only, ListDeleted is the audit view.
type Repository interface {
	Insert(ctx context.Context, a *AudioSummary) error
	Fetch(ctx context.Context, id uuid.UUID) (*AudioSummary, error)
	Save(ctx context.Context, a *AudioSummary) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AudioSummary, int, error)
	ListDeleted(ctx context.Context, limit, offset int) ([]*AudioSummary, int, error)
}
