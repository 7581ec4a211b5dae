package auth

import (
	"fmt"

	"github.com/google/uuid"
)

// Operation is a record operation governed by access policies.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func validOperation(op Operation) bool {
	switch op {
	case OpCreate, OpRead, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Target carries the ownership and classification attributes of the record
// being acted on. Predicates see these attributes and the actor, nothing
// else.
type Target struct {
	OwnerID        uuid.UUID
	Classification string
}

// Predicate is an extra condition a policy may impose beyond the role
// match, e.g. "actor owns the record".
type Predicate func(actor Actor, target Target) bool

// OwnerOnly grants access only when the actor ID matches the record owner.
func OwnerOnly(actor Actor, target Target) bool {
	return actor.ID != uuid.Nil && actor.ID == target.OwnerID
}

// Policy grants one operation on one resource to one role, optionally
// narrowed by a predicate. Policies are disjunctive: any matching policy
// grants access.
type Policy struct {
	Resource  string
	Operation Operation
	Role      string
	Predicate Predicate
}

// ReasonNoApplicablePolicy is the deny reason when no registered policy
// matches. Handlers must never surface deny reasons to callers.
const ReasonNoApplicablePolicy = "no applicable policy"

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// PolicyEngine evaluates access policies. The policy set is registered at
// startup and immutable afterwards, so evaluation needs no locking.
type PolicyEngine struct {
	policies map[policyKey][]Policy
}

type policyKey struct {
	resource  string
	operation Operation
}

func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{policies: make(map[policyKey][]Policy)}
}

// Register adds a policy to the engine. Write policies reachable by
// anonymous actors are rejected here rather than left to predicate
// authors: every non-read policy must name an explicit, non-anonymous
// role.
func (e *PolicyEngine) Register(p Policy) error {
	if p.Resource == "" {
		return fmt.Errorf("policy resource must not be empty")
	}
	if !validOperation(p.Operation) {
		return fmt.Errorf("policy operation %q is not one of create/read/update/delete", p.Operation)
	}
	if p.Operation != OpRead {
		if p.Role == "" {
			return fmt.Errorf("%s policy for %q must name an explicit role", p.Operation, p.Resource)
		}
		if p.Role == RoleAnonymous {
			return fmt.Errorf("%s policy for %q must not be satisfiable by anonymous actors", p.Operation, p.Resource)
		}
	}

	key := policyKey{resource: p.Resource, operation: p.Operation}
	e.policies[key] = append(e.policies[key], p)
	return nil
}

// MustRegister is Register for startup-time configuration, where a bad
// policy is a programming error.
func (e *PolicyEngine) MustRegister(p Policy) {
	if err := e.Register(p); err != nil {
		panic(err)
	}
}

// Authorize decides whether the actor may perform the operation on the
// target. Evaluation order: service bypass, then disjunctive evaluation of
// the policies registered for (resource, operation), then default deny.
func (e *PolicyEngine) Authorize(actor Actor, resource string, op Operation, target Target) Decision {
	if actor.Role == RoleService {
		return Decision{Allowed: true, Reason: "service role"}
	}

	for _, p := range e.policies[policyKey{resource: resource, operation: op}] {
		if p.Role != "" && p.Role != actor.Role {
			continue
		}
		if p.Predicate != nil && !p.Predicate(actor, target) {
			continue
		}
		return Decision{Allowed: true, Reason: "policy match"}
	}

	return Decision{Allowed: false, Reason: ReasonNoApplicablePolicy}
}

// Resource names governed by the default policy set.
const (
	ResourcePatient      = "patient"
	ResourceDictation    = "dictation"
	ResourceAudioSummary = "audio_summary"
)

// DefaultPolicies returns the production policy set. Staff manage all
// record types; patients read their own records; the only anonymous grant
// is the public portal-ID lookup used by the login page.
func DefaultPolicies() []Policy {
	return []Policy{
		{Resource: ResourcePatient, Operation: OpCreate, Role: RoleStaff},
		{Resource: ResourcePatient, Operation: OpRead, Role: RoleStaff},
		{Resource: ResourcePatient, Operation: OpRead, Role: RolePatient, Predicate: OwnerOnly},
		{Resource: ResourcePatient, Operation: OpRead, Role: RoleAnonymous, Predicate: publicLookup},
		{Resource: ResourcePatient, Operation: OpUpdate, Role: RoleStaff},

		{Resource: ResourceDictation, Operation: OpCreate, Role: RoleStaff},
		{Resource: ResourceDictation, Operation: OpRead, Role: RoleStaff},
		{Resource: ResourceDictation, Operation: OpRead, Role: RolePatient, Predicate: OwnerOnly},
		{Resource: ResourceDictation, Operation: OpUpdate, Role: RoleStaff},
		{Resource: ResourceDictation, Operation: OpDelete, Role: RoleStaff},

		{Resource: ResourceAudioSummary, Operation: OpCreate, Role: RoleStaff},
		{Resource: ResourceAudioSummary, Operation: OpRead, Role: RoleStaff},
		{Resource: ResourceAudioSummary, Operation: OpRead, Role: RolePatient, Predicate: OwnerOnly},
		{Resource: ResourceAudioSummary, Operation: OpUpdate, Role: RoleStaff},
		{Resource: ResourceAudioSummary, Operation: OpDelete, Role: RoleStaff},
	}
}

// publicLookup restricts the anonymous patient read to the portal login
// existence check, which targets records classified as public lookups.
func publicLookup(_ Actor, target Target) bool {
	return target.Classification == "public_lookup"
}

// NewDefaultEngine builds an engine loaded with DefaultPolicies.
func NewDefaultEngine() *PolicyEngine {
	e := NewPolicyEngine()
	for _, p := range DefaultPolicies() {
		e.MustRegister(p)
	}
	return e
}
