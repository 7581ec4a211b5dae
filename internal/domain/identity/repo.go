package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Collision sentinels returned by Insert and SwapPortalID so the service
// can regenerate only the identifier that clashed.
var (
	errPatientIDTaken = errors.New("patient id already taken")
	errPortalIDTaken  = errors.New("portal id already taken")
)

// Repository persists patient identities.
//
// Insert must be atomic: it reserves the portal ID in the issued ledger
// and creates the identity row in one transaction, reporting which
// identifier collided via the sentinels above. SwapPortalID follows the
// same contract for resets.
type Repository interface {
	Insert(ctx context.Context, p *PatientIdentity) error
	GetByInternalID(ctx context.Context, id uuid.UUID) (*PatientIdentity, error)
	GetByPatientID(ctx context.Context, patientID string) (*PatientIdentity, error)
	GetByPortalID(ctx context.Context, portalID string) (*PatientIdentity, error)
	// Update persists the mutable fields only (mrn, first_name, last_name).
	Update(ctx context.Context, p *PatientIdentity) error
	// SwapPortalID reserves newPortalID in the issued ledger and points the
	// identity at it. The old value stays in the ledger forever.
	SwapPortalID(ctx context.Context, internalID uuid.UUID, newPortalID string) error
	List(ctx context.Context, limit, offset int) ([]*PatientIdentity, int, error)
}
