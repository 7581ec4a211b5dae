package audiosummary

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tshla/medical-core/internal/platform/audit"
	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/metrics"
	"github.com/tshla/medical-core/internal/platform/softdelete"
	"github.com/tshla/medical-core/internal/record"
)

// CreateInput carries the fields for a new audio summary.
type CreateInput struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	DictationID     *uuid.UUID `json:"dictation_id"`
	SummaryText     string     `json:"summary_text"`
	VoiceModel      string     `json:"voice_model"`
	DurationSeconds int        `json:"duration_seconds"`
}

// UpdateInput carries the mutable fields of an audio summary.
type UpdateInput struct {
	SummaryText     *string `json:"summary_text"`
	VoiceModel      *string `json:"voice_model"`
	DurationSeconds *int    `json:"duration_seconds"`
}

// ErrInvalidInput rejects malformed audio summary payloads.
var ErrInvalidInput = fmt.Errorf("invalid input")

// Service manages audio summaries through the record store.
type Service struct {
	store *record.Store[*AudioSummary]
	repo  Repository
}

func NewService(
	engine *auth.PolicyEngine,
	repo Repository,
	ledger record.Ledger,
	audits audit.Recorder,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		store: record.NewStore[*AudioSummary](auth.ResourceAudioSummary, engine, repo, ledger, audits, m, logger),
		repo:  repo,
	}
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*AudioSummary, error) {
	if input.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.SummaryText) == "" {
		return nil, fmt.Errorf("%w: summary_text is required", ErrInvalidInput)
	}
	if input.DurationSeconds < 0 {
		return nil, fmt.Errorf("%w: duration_seconds must not be negative", ErrInvalidInput)
	}

	a := &AudioSummary{
		ID:              uuid.New(),
		PatientID:       input.PatientID,
		DictationID:     input.DictationID,
		SummaryText:     input.SummaryText,
		VoiceModel:      input.VoiceModel,
		DurationSeconds: input.DurationSeconds,
	}
	if err := s.store.Create(ctx, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*AudioSummary, error) {
	return s.store.Get(ctx, actor, id)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*AudioSummary, error) {
	a, err := s.store.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if input.SummaryText != nil {
		a.SummaryText = *input.SummaryText
	}
	if input.VoiceModel != nil {
		a.VoiceModel = *input.VoiceModel
	}
	if input.DurationSeconds != nil {
		a.DurationSeconds = *input.DurationSeconds
	}
	if strings.TrimSpace(a.SummaryText) == "" {
		return nil, fmt.Errorf("%w: summary_text is required", ErrInvalidInput)
	}
	if a.DurationSeconds < 0 {
		return nil, fmt.Errorf("%w: duration_seconds must not be negative", ErrInvalidInput)
	}

	if err := s.store.Update(ctx, actor, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID, reason softdelete.Reason) error {
	return s.store.Delete(ctx, actor, id, reason)
}

func (s *Service) ListByPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]*AudioSummary, int, error) {
	if err := s.store.Authorize(ctx, actor, auth.OpRead, auth.Target{OwnerID: patientID}); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListDeleted(ctx context.Context, actor auth.Actor, limit, offset int) ([]*AudioSummary, int, error) {
	return s.store.ListDeleted(ctx, actor, limit, offset)
}
