package dictation

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

// CreateInput carries the fields for a new dictation. The author is
// always the acting staff member, never caller-supplied.
type CreateInput struct {
	PatientID  uuid.UUID `json:"patient_id"`
	Title      string    `json:"title"`
	Transcript string    `json:"transcript"`
}

// UpdateInput carries the mutable fields of a dictation.
type UpdateInput struct {
	Title      *string `json:"title"`
	Transcript *string `json:"transcript"`
}

// ErrInvalidInput rejects malformed dictation payloads.
var ErrInvalidInput = fmt.Errorf("invalid input")

// Service manages dictations through the record store, which owns
// authorization, the active-only read filter and the deletion ledger.
type Service struct {
	store *record.Store[*Dictation]
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
		store: record.NewStore[*Dictation](auth.ResourceDictation, engine, repo, ledger, audits, m, logger),
		repo:  repo,
	}
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*Dictation, error) {
	if input.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	d := &Dictation{
		ID:         uuid.New(),
		PatientID:  input.PatientID,
		AuthorID:   actor.ID,
		Title:      strings.TrimSpace(input.Title),
		Transcript: input.Transcript,
	}
	if err := s.store.Create(ctx, actor, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Dictation, error) {
	return s.store.Get(ctx, actor, id)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id uuid.UUID, input UpdateInput) (*Dictation, error) {
	d, err := s.store.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		d.Title = strings.TrimSpace(*input.Title)
	}
	if input.Transcript != nil {
		d.Transcript = *input.Transcript
	}
	if d.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	if err := s.store.Update(ctx, actor, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID, reason softdelete.Reason) error {
	return s.store.Delete(ctx, actor, id, reason)
}

// ListByPatient pages through a patient's active dictations. Patients can
// list their own chart; staff can list any.
func (s *Service) ListByPatient(ctx context.Context, actor auth.Actor, patientID uuid.UUID, limit, offset int) ([]*Dictation, int, error) {
	if err := s.store.Authorize(ctx, actor, auth.OpRead, auth.Target{OwnerID: patientID}); err != nil {
		return nil, 0, err
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListDeleted is the administrative audit view.
func (s *Service) ListDeleted(ctx context.Context, actor auth.Actor, limit, offset int) ([]*Dictation, int, error) {
	return s.store.ListDeleted(ctx, actor, limit, offset)
}
