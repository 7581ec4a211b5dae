package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tshla/medical-core/internal/platform/audit"
	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/metrics"
	"github.com/tshla/medical-core/internal/record"
)

// ClassificationPublicLookup marks the anonymous portal existence check
// for the policy engine. No other identity operation carries it.
const ClassificationPublicLookup = "public_lookup"

// OnboardInput carries the demographic fields for a new patient.
// Identifiers are never accepted from callers; the service mints them.
type OnboardInput struct {
	MRN       string `json:"mrn"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UpdateInput carries the mutable fields of an identity. Pointer fields
// distinguish "not provided" from "set to empty".
type UpdateInput struct {
	MRN       *string `json:"mrn"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Service issues identifiers and enforces their lifecycle rules.
type Service struct {
	engine  *auth.PolicyEngine
	repo    Repository
	issuer  Issuer
	audits  audit.Recorder
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewService(
	engine *auth.PolicyEngine,
	repo Repository,
	issuer Issuer,
	audits audit.Recorder,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	if audits == nil {
		audits = audit.Nop{}
	}
	return &Service{
		engine:  engine,
		repo:    repo,
		issuer:  issuer,
		audits:  audits,
		metrics: m,
		logger:  logger,
	}
}

// Onboard mints both identifiers and creates the identity. On a
// uniqueness collision only the clashing identifier is regenerated; the
// attempt budget is shared across the whole operation.
func (s *Service) Onboard(ctx context.Context, actor auth.Actor, input OnboardInput) (*PatientIdentity, error) {
	if err := s.authorize(ctx, actor, auth.OpCreate, auth.Target{}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}

	patientID, err := s.issuer.MintPatientID()
	if err != nil {
		return nil, err
	}
	portalID, err := s.issuer.MintPortalID()
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		p := &PatientIdentity{
			InternalID: uuid.New(),
			PatientID:  patientID,
			PortalID:   portalID,
			MRN:        strings.TrimSpace(input.MRN),
			FirstName:  strings.TrimSpace(input.FirstName),
			LastName:   strings.TrimSpace(input.LastName),
		}

		err := s.repo.Insert(ctx, p)
		if err == nil {
			s.metrics.RecordIssued(string(KindPatientID))
			s.metrics.RecordIssued(string(KindPortalID))
			s.logAccess(ctx, actor, auth.OpCreate, p.InternalID, audit.OutcomeAllowed)
			s.logger.Info().
				Str("internal_id", p.InternalID.String()).
				Int("attempts", attempt).
				Msg("patient onboarded")
			return p, nil
		}

		if attempt >= issueAttempts {
			if errors.Is(err, errPatientIDTaken) || errors.Is(err, errPortalIDTaken) {
				s.logger.Error().Int("attempts", attempt).Msg("identifier issuance exhausted")
				return nil, ErrExhaustedKeyspace
			}
			return nil, err
		}

		switch {
		case errors.Is(err, errPatientIDTaken):
			if patientID, err = s.issuer.MintPatientID(); err != nil {
				return nil, err
			}
		case errors.Is(err, errPortalIDTaken):
			if portalID, err = s.issuer.MintPortalID(); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
}

// Get returns the identity by its internal key.
func (s *Service) Get(ctx context.Context, actor auth.Actor, internalID uuid.UUID) (*PatientIdentity, error) {
	p, err := s.repo.GetByInternalID(ctx, internalID)
	if errors.Is(err, record.ErrNotFound) {
		// Deny first so unauthorized probes cannot enumerate IDs.
		if authErr := s.authorize(ctx, actor, auth.OpRead, auth.Target{}); authErr != nil {
			return nil, authErr
		}
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, auth.OpRead, auth.Target{OwnerID: p.InternalID}); err != nil {
		return nil, err
	}
	s.logAccess(ctx, actor, auth.OpRead, p.InternalID, audit.OutcomeAllowed)
	return p, nil
}

// GetByPatientID resolves the permanent 8-digit identifier. Malformed
// values are rejected before any lookup.
func (s *Service) GetByPatientID(ctx context.Context, actor auth.Actor, patientID string) (*PatientIdentity, error) {
	if !Validate(patientID, KindPatientID) {
		return nil, ErrInvalidIdentifierFormat
	}
	p, err := s.repo.GetByPatientID(ctx, patientID)
	if errors.Is(err, record.ErrNotFound) {
		if authErr := s.authorize(ctx, actor, auth.OpRead, auth.Target{}); authErr != nil {
			return nil, authErr
		}
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, auth.OpRead, auth.Target{OwnerID: p.InternalID}); err != nil {
		return nil, err
	}
	s.logAccess(ctx, actor, auth.OpRead, p.InternalID, audit.OutcomeAllowed)
	return p, nil
}

// PortalLookup is the pre-login existence check. It is open to anonymous
// callers by policy and returns only whether the value is registered.
func (s *Service) PortalLookup(ctx context.Context, actor auth.Actor, portalID string) (*PortalLookup, error) {
	if !Validate(portalID, KindPortalID) {
		return nil, ErrInvalidIdentifierFormat
	}
	if err := s.authorize(ctx, actor, auth.OpRead, auth.Target{Classification: ClassificationPublicLookup}); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByPortalID(ctx, portalID)
	switch {
	case errors.Is(err, record.ErrNotFound):
		return &PortalLookup{PortalID: portalID, Registered: false}, nil
	case err != nil:
		return nil, err
	}
	return &PortalLookup{PortalID: portalID, Registered: true}, nil
}

// UpdateDetails changes the mutable demographic fields. Identifier fields
// are write-once; there is no code path that updates them here.
func (s *Service) UpdateDetails(ctx context.Context, actor auth.Actor, internalID uuid.UUID, input UpdateInput) (*PatientIdentity, error) {
	p, err := s.repo.GetByInternalID(ctx, internalID)
	if errors.Is(err, record.ErrNotFound) {
		if authErr := s.authorize(ctx, actor, auth.OpUpdate, auth.Target{}); authErr != nil {
			return nil, authErr
		}
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, auth.OpUpdate, auth.Target{OwnerID: p.InternalID}); err != nil {
		return nil, err
	}

	if input.MRN != nil {
		p.MRN = strings.TrimSpace(*input.MRN)
	}
	if input.FirstName != nil {
		p.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		p.LastName = strings.TrimSpace(*input.LastName)
	}
	if p.FirstName == "" || p.LastName == "" {
		return nil, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	s.logAccess(ctx, actor, auth.OpUpdate, p.InternalID, audit.OutcomeAllowed)
	return p, nil
}

// ResetPortalID issues a fresh portal ID for the patient. The replaced
// value is retired permanently and can never be reassigned.
func (s *Service) ResetPortalID(ctx context.Context, actor auth.Actor, internalID uuid.UUID) (*PatientIdentity, error) {
	p, err := s.repo.GetByInternalID(ctx, internalID)
	if errors.Is(err, record.ErrNotFound) {
		if authErr := s.authorize(ctx, actor, auth.OpUpdate, auth.Target{}); authErr != nil {
			return nil, authErr
		}
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, auth.OpUpdate, auth.Target{OwnerID: p.InternalID}); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		portalID, err := s.issuer.MintPortalID()
		if err != nil {
			return nil, err
		}

		err = s.repo.SwapPortalID(ctx, internalID, portalID)
		if err == nil {
			p.PortalID = portalID
			s.metrics.RecordIssued(string(KindPortalID))
			s.logAccess(ctx, actor, auth.OpUpdate, p.InternalID, audit.OutcomeAllowed)
			s.logger.Info().
				Str("internal_id", internalID.String()).
				Int("attempts", attempt).
				Msg("portal id reset")
			return p, nil
		}
		if !errors.Is(err, errPortalIDTaken) {
			return nil, err
		}
		if attempt >= issueAttempts {
			s.logger.Error().Int("attempts", attempt).Msg("portal id issuance exhausted")
			return nil, ErrExhaustedKeyspace
		}
	}
}

// List pages through identities, newest first.
func (s *Service) List(ctx context.Context, actor auth.Actor, limit, offset int) ([]*PatientIdentity, int, error) {
	if err := s.authorize(ctx, actor, auth.OpRead, auth.Target{}); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, op auth.Operation, target auth.Target) error {
	decision := s.engine.Authorize(actor, auth.ResourcePatient, op, target)
	if decision.Allowed {
		return nil
	}
	s.metrics.RecordDenial(auth.ResourcePatient, string(op))
	s.logger.Warn().
		Str("resource", auth.ResourcePatient).
		Str("operation", string(op)).
		Str("actor_role", actor.Role).
		Str("reason", decision.Reason).
		Msg("authorization denied")
	s.logAccess(ctx, actor, op, uuid.Nil, audit.OutcomeDenied)
	return record.ErrForbidden
}

func (s *Service) logAccess(ctx context.Context, actor auth.Actor, op auth.Operation, recordID uuid.UUID, outcome string) {
	entry := &audit.Entry{
		ActorRole: actor.Role,
		Resource:  auth.ResourcePatient,
		Action:    string(op),
		Outcome:   outcome,
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		entry.ActorID = &id
	}
	if recordID != uuid.Nil {
		id := recordID
		entry.ResourceID = &id
	}
	if err := s.audits.Record(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("action", string(op)).Msg("access log write failed")
	}
}
