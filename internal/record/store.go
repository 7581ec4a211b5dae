// Package record implements the façade every auditable record type is
// managed through. The store resolves the actor, consults the policy
// engine before any operation, and routes deletions through the
// soft-delete ledger, so individual domains cannot skip the access checks
// or the active-only read filter.
package record

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tshla/medical-core/internal/platform/audit"
	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/metrics"
	"github.com/tshla/medical-core/internal/platform/softdelete"
)

// Object is any auditable record managed through a Store.
type Object interface {
	ObjectID() uuid.UUID
	// ObjectOwner is the internal ID of the patient the record belongs
	// to, used by ownership predicates.
	ObjectOwner() uuid.UUID
	Deleted() bool
}

// Repository is the storage contract a domain provides to its Store.
// Fetch returns records in any lifecycle state; the Store applies the
// active-only filter.
type Repository[T Object] interface {
	Insert(ctx context.Context, obj T) error
	Fetch(ctx context.Context, id uuid.UUID) (T, error)
	Save(ctx context.Context, obj T) error
	ListDeleted(ctx context.Context, limit, offset int) ([]T, int, error)
}

// Ledger is the slice of the soft-delete ledger the Store drives.
type Ledger interface {
	SoftDelete(ctx context.Context, recordID, actorID uuid.UUID, reason softdelete.Reason) error
}

// Store is the record façade for one resource type.
type Store[T Object] struct {
	resource string
	engine   *auth.PolicyEngine
	repo     Repository[T]
	ledger   Ledger
	audits   audit.Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewStore[T Object](
	resource string,
	engine *auth.PolicyEngine,
	repo Repository[T],
	ledger Ledger,
	audits audit.Recorder,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Store[T] {
	if audits == nil {
		audits = audit.Nop{}
	}
	return &Store[T]{
		resource: resource,
		engine:   engine,
		repo:     repo,
		ledger:   ledger,
		audits:   audits,
		metrics:  m,
		logger:   logger,
	}
}

// Resource returns the policy resource name this store governs.
func (s *Store[T]) Resource() string { return s.resource }

// Authorize evaluates the policy engine for this resource and returns
// ErrForbidden on denial. Denials are counted and access-logged; the deny
// reason stays internal.
func (s *Store[T]) Authorize(ctx context.Context, actor auth.Actor, op auth.Operation, target auth.Target) error {
	decision := s.engine.Authorize(actor, s.resource, op, target)
	if decision.Allowed {
		return nil
	}

	s.metrics.RecordDenial(s.resource, string(op))
	s.logger.Warn().
		Str("resource", s.resource).
		Str("operation", string(op)).
		Str("actor_role", actor.Role).
		Str("reason", decision.Reason).
		Msg("authorization denied")
	s.logAccess(ctx, actor, op, uuid.Nil, audit.OutcomeDenied)

	return ErrForbidden
}

// Create authorizes and persists a new active record.
func (s *Store[T]) Create(ctx context.Context, actor auth.Actor, obj T) error {
	target := auth.Target{OwnerID: obj.ObjectOwner()}
	if err := s.Authorize(ctx, actor, auth.OpCreate, target); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, obj); err != nil {
		return err
	}
	s.logAccess(ctx, actor, auth.OpCreate, obj.ObjectID(), audit.OutcomeAllowed)
	return nil
}

// Get returns an active record. Soft-deleted records are indistinguishable
// from absent ones outside the audit view.
func (s *Store[T]) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (T, error) {
	var zero T

	obj, err := s.repo.Fetch(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// Authorization is still evaluated so a denied caller cannot
		// distinguish absent records from forbidden ones.
		if authErr := s.Authorize(ctx, actor, auth.OpRead, auth.Target{}); authErr != nil {
			return zero, authErr
		}
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, err
	}

	if err := s.Authorize(ctx, actor, auth.OpRead, auth.Target{OwnerID: obj.ObjectOwner()}); err != nil {
		return zero, err
	}
	if obj.Deleted() {
		return zero, ErrNotFound
	}
	return obj, nil
}

// Update persists changes to an active record. The domain service merges
// mutable fields before calling; write-once field checks also happen
// there.
func (s *Store[T]) Update(ctx context.Context, actor auth.Actor, obj T) error {
	existing, err := s.repo.Fetch(ctx, obj.ObjectID())
	if errors.Is(err, ErrNotFound) {
		if authErr := s.Authorize(ctx, actor, auth.OpUpdate, auth.Target{}); authErr != nil {
			return authErr
		}
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := s.Authorize(ctx, actor, auth.OpUpdate, auth.Target{OwnerID: existing.ObjectOwner()}); err != nil {
		return err
	}
	if existing.Deleted() {
		return ErrNotFound
	}

	if err := s.repo.Save(ctx, obj); err != nil {
		return err
	}
	s.logAccess(ctx, actor, auth.OpUpdate, obj.ObjectID(), audit.OutcomeAllowed)
	return nil
}

// Delete transitions the record to the deleted state through the ledger.
// Exactly one delete of a record ever succeeds.
func (s *Store[T]) Delete(ctx context.Context, actor auth.Actor, id uuid.UUID, reason softdelete.Reason) error {
	existing, err := s.repo.Fetch(ctx, id)
	if errors.Is(err, ErrNotFound) {
		if authErr := s.Authorize(ctx, actor, auth.OpDelete, auth.Target{}); authErr != nil {
			return authErr
		}
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := s.Authorize(ctx, actor, auth.OpDelete, auth.Target{OwnerID: existing.ObjectOwner()}); err != nil {
		return err
	}
	if !reason.Valid() {
		return softdelete.ErrInvalidReason
	}

	if err := s.ledger.SoftDelete(ctx, id, actor.ID, reason); err != nil {
		if errors.Is(err, softdelete.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.metrics.RecordSoftDelete(s.resource, string(reason))
	s.logAccess(ctx, actor, auth.OpDelete, id, audit.OutcomeAllowed)
	return nil
}

// ListDeleted is the administrative audit view. It requires the delete
// capability on the resource, so patient and anonymous actors can never
// reach it.
func (s *Store[T]) ListDeleted(ctx context.Context, actor auth.Actor, limit, offset int) ([]T, int, error) {
	if err := s.Authorize(ctx, actor, auth.OpDelete, auth.Target{}); err != nil {
		return nil, 0, err
	}
	return s.repo.ListDeleted(ctx, limit, offset)
}

// logAccess writes a best-effort access-log entry. Audit failures are
// logged, never propagated.
func (s *Store[T]) logAccess(ctx context.Context, actor auth.Actor, op auth.Operation, recordID uuid.UUID, outcome string) {
	entry := &audit.Entry{
		ActorRole: actor.Role,
		Resource:  s.resource,
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
		s.logger.Error().Err(err).
			Str("resource", s.resource).
			Str("action", string(op)).
			Msg("access log write failed")
	}
}
