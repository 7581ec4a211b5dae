package audiosummary

import (
	"time"

	"github.com/google/uuid"

	"github.com/tshla/medical-core/internal/platform/softdelete"
)

// AudioSummary is a generated spoken summary of a visit, optionally tied
// to the dictation it was produced from.
type AudioSummary struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	PatientID       uuid.UUID  `db:"patient_id" json:"patient_id"`
	DictationID     *uuid.UUID `db:"dictation_id" json:"dictation_id,omitempty"`
	SummaryText     string     `db:"summary_text" json:"summary_text"`
	VoiceModel      string     `db:"voice_model" json:"voice_model"`
	DurationSeconds int        `db:"duration_seconds" json:"duration_seconds"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	softdelete.Fields
}

func (a *AudioSummary) ObjectID() uuid.UUID    { return a.ID }
func (a *AudioSummary) ObjectOwner() uuid.UUID { return a.PatientID }
