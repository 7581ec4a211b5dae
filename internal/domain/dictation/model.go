package dictation

import (
	"time"

	"github.com/google/uuid"

	"github.com/tshla/medical-core/internal/platform/softdelete"
)

// Dictation is a clinical dictation attached to a patient chart.
type Dictation struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	AuthorID   uuid.UUID `db:"author_id" json:"author_id"`
	Title      string    `db:"title" json:"title"`
	Transcript string    `db:"transcript" json:"transcript"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	softdelete.Fields
}

func (d *Dictation) ObjectID() uuid.UUID    { return d.ID }
func (d *Dictation) ObjectOwner() uuid.UUID { return d.PatientID }
