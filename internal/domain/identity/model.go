package identity

import (
	"time"

	"github.com/google/uuid"
)

// PatientIdentity maps to the patient_identity table.
//
// InternalID and PatientID are write-once. PortalID is the current portal
// login value; resets retire the old value permanently. MRN comes from
// external systems, may change, and may collide across source systems.
type PatientIdentity struct {
	InternalID uuid.UUID `db:"internal_id" json:"internal_id"`
	PatientID  string    `db:"patient_id" json:"patient_id"`
	PortalID   string    `db:"portal_id" json:"portal_id"`
	MRN        string    `db:"mrn" json:"mrn"`
	FirstName  string    `db:"first_name" json:"first_name"`
	LastName   string    `db:"last_name" json:"last_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PortalLookup is the anonymous login-page existence check. It carries no
// PHI beyond confirming the portal ID is registered.
type PortalLookup struct {
	PortalID   string `json:"portal_id"`
	Registered bool   `json:"registered"`
}
