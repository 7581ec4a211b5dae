package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/record"
)

// memRepo enforces the same uniqueness rules as the Postgres schema,
// including the issued-portal-ID ledger. Guarded by a mutex so concurrent
// issuance tests exercise real contention.
type memRepo struct {
	mu         sync.Mutex
	byInternal map[uuid.UUID]*PatientIdentity
	byPatient  map[string]uuid.UUID
	byPortal   map[string]uuid.UUID
	issued     map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		byInternal: make(map[uuid.UUID]*PatientIdentity),
		byPatient:  make(map[string]uuid.UUID),
		byPortal:   make(map[string]uuid.UUID),
		issued:     make(map[string]bool),
	}
}

func (m *memRepo) Insert(_ context.Context, p *PatientIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued[p.PortalID] {
		return errPortalIDTaken
	}
	if _, taken := m.byPatient[p.PatientID]; taken {
		return errPatientIDTaken
	}
	cp := *p
	m.byInternal[p.InternalID] = &cp
	m.byPatient[p.PatientID] = p.InternalID
	m.byPortal[p.PortalID] = p.InternalID
	m.issued[p.PortalID] = true
	return nil
}

func (m *memRepo) GetByInternalID(_ context.Context, id uuid.UUID) (*PatientIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byInternal[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) GetByPatientID(_ context.Context, patientID string) (*PatientIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPatient[patientID]
	if !ok {
		return nil, record.ErrNotFound
	}
	cp := *m.byInternal[id]
	return &cp, nil
}

func (m *memRepo) GetByPortalID(_ context.Context, portalID string) (*PatientIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPortal[portalID]
	if !ok {
		return nil, record.ErrNotFound
	}
	cp := *m.byInternal[id]
	return &cp, nil
}

func (m *memRepo) Update(_ context.Context, p *PatientIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.byInternal[p.InternalID]
	if !ok {
		return record.ErrNotFound
	}
	existing.MRN = p.MRN
	existing.FirstName = p.FirstName
	existing.LastName = p.LastName
	return nil
}

func (m *memRepo) SwapPortalID(_ context.Context, internalID uuid.UUID, newPortalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issued[newPortalID] {
		return errPortalIDTaken
	}
	p, ok := m.byInternal[internalID]
	if !ok {
		return record.ErrNotFound
	}
	delete(m.byPortal, p.PortalID)
	p.PortalID = newPortalID
	m.byPortal[newPortalID] = internalID
	m.issued[newPortalID] = true
	return nil
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]*PatientIdentity, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*PatientIdentity
	for _, p := range m.byInternal {
		cp := *p
		all = append(all, &cp)
	}
	return all, len(all), nil
}

// scriptIssuer returns queued values first, then falls back to random
// minting. Used to force collisions deterministically.
type scriptIssuer struct {
	patient  []string
	portal   []string
	fallback RandomIssuer
}

func (s *scriptIssuer) MintPatientID() (string, error) {
	if len(s.patient) > 0 {
		v := s.patient[0]
		s.patient = s.patient[1:]
		return v, nil
	}
	return s.fallback.MintPatientID()
}

func (s *scriptIssuer) MintPortalID() (string, error) {
	if len(s.portal) > 0 {
		v := s.portal[0]
		s.portal = s.portal[1:]
		return v, nil
	}
	return s.fallback.MintPortalID()
}

// repeatIssuer returns the same values forever, guaranteeing exhaustion
// once they are taken.
type repeatIssuer struct {
	patientID string
	portalID  string
}

func (r repeatIssuer) MintPatientID() (string, error) { return r.patientID, nil }
func (r repeatIssuer) MintPortalID() (string, error)  { return r.portalID, nil }

func newTestService(repo Repository, issuer Issuer) *Service {
	return NewService(auth.NewDefaultEngine(), repo, issuer, nil, nil, zerolog.Nop())
}

var (
	ctx      = context.Background()
	staff    = auth.Actor{ID: uuid.New(), Role: auth.RoleStaff}
	nobody   = auth.Anonymous()
	demoName = OnboardInput{MRN: "EXT-001", FirstName: "Ada", LastName: "Nguyen"}
)

func TestOnboard_MintsValidIdentifiers(t *testing.T) {
	svc := newTestService(newMemRepo(), NewRandomIssuer())

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if !Validate(p.PatientID, KindPatientID) {
		t.Errorf("patient id %q is malformed", p.PatientID)
	}
	if !Validate(p.PortalID, KindPortalID) {
		t.Errorf("portal id %q is malformed", p.PortalID)
	}
	if p.InternalID == uuid.Nil {
		t.Error("internal id must be assigned")
	}
}

func TestOnboard_IdentifiersAreUnique(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	for i := 0; i < 1000; i++ {
		if _, err := svc.Onboard(ctx, staff, demoName); err != nil {
			t.Fatalf("Onboard #%d: %v", i, err)
		}
	}
	if len(repo.byPatient) != 1000 || len(repo.byPortal) != 1000 {
		t.Errorf("uniqueness violated: %d patient ids, %d portal ids",
			len(repo.byPatient), len(repo.byPortal))
	}
}

func TestOnboard_RetriesOnlyTheCollidingIdentifier(t *testing.T) {
	repo := newMemRepo()
	seed := &PatientIdentity{
		InternalID: uuid.New(),
		PatientID:  "11111111",
		PortalID:   "TSH 111-111",
	}
	if err := repo.Insert(ctx, seed); err != nil {
		t.Fatal(err)
	}

	issuer := &scriptIssuer{
		patient: []string{"11111111", "22222222"},
		portal:  []string{"TSH 222-222"},
	}
	svc := newTestService(repo, issuer)

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if p.PatientID != "22222222" {
		t.Errorf("patient id = %q, want regenerated 22222222", p.PatientID)
	}
	if p.PortalID != "TSH 222-222" {
		t.Errorf("portal id = %q, want original TSH 222-222", p.PortalID)
	}
}

func TestOnboard_ExhaustedKeyspace(t *testing.T) {
	repo := newMemRepo()
	seed := &PatientIdentity{
		InternalID: uuid.New(),
		PatientID:  "33333333",
		PortalID:   "TSH 333-333",
	}
	if err := repo.Insert(ctx, seed); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(repo, repeatIssuer{patientID: "33333333", portalID: "TSH 999-999"})

	_, err := svc.Onboard(ctx, staff, demoName)
	if !errors.Is(err, ErrExhaustedKeyspace) {
		t.Fatalf("Onboard = %v, want ErrExhaustedKeyspace", err)
	}
	if len(repo.byInternal) != 1 {
		t.Error("exhausted onboarding must not persist a partial identity")
	}
}

func TestOnboard_Denied(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	for _, actor := range []auth.Actor{nobody, {ID: uuid.New(), Role: auth.RolePatient}} {
		_, err := svc.Onboard(ctx, actor, demoName)
		if !errors.Is(err, record.ErrForbidden) {
			t.Errorf("%s onboard = %v, want ErrForbidden", actor.Role, err)
		}
	}
	if len(repo.byInternal) != 0 {
		t.Error("denied onboarding must not persist")
	}
}

func TestOnboard_RequiresName(t *testing.T) {
	svc := newTestService(newMemRepo(), NewRandomIssuer())

	_, err := svc.Onboard(ctx, staff, OnboardInput{FirstName: " ", LastName: "Nguyen"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Onboard = %v, want ErrInvalidInput", err)
	}
}

func TestGetByPatientID_RejectsMalformedBeforeLookup(t *testing.T) {
	svc := newTestService(newMemRepo(), NewRandomIssuer())

	for _, bad := range []string{"1234567", "abcdefgh", "12345678 ", ""} {
		_, err := svc.GetByPatientID(ctx, staff, bad)
		if !errors.Is(err, ErrInvalidIdentifierFormat) {
			t.Errorf("GetByPatientID(%q) = %v, want ErrInvalidIdentifierFormat", bad, err)
		}
	}
}

func TestGet_OwnershipAndProbes(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatal(err)
	}

	owner := auth.Actor{ID: p.InternalID, Role: auth.RolePatient}
	if _, err := svc.Get(ctx, owner, p.InternalID); err != nil {
		t.Errorf("owner read: %v", err)
	}

	other := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := svc.Get(ctx, other, p.InternalID); !errors.Is(err, record.ErrForbidden) {
		t.Errorf("other patient read = %v, want ErrForbidden", err)
	}

	// Unauthorized probes of absent IDs must not reveal absence.
	if _, err := svc.Get(ctx, nobody, uuid.New()); !errors.Is(err, record.ErrForbidden) {
		t.Errorf("anonymous probe = %v, want ErrForbidden", err)
	}
	if _, err := svc.Get(ctx, staff, uuid.New()); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("staff read of absent = %v, want ErrNotFound", err)
	}
}

func TestPortalLookup(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.PortalLookup(ctx, nobody, p.PortalID)
	if err != nil {
		t.Fatalf("anonymous lookup: %v", err)
	}
	if !got.Registered {
		t.Error("registered portal id must report Registered")
	}

	got, err = svc.PortalLookup(ctx, nobody, "TSH 000-001")
	if err != nil {
		t.Fatalf("lookup of unknown id: %v", err)
	}
	if got.Registered {
		t.Error("unknown portal id must not report Registered")
	}

	if _, err := svc.PortalLookup(ctx, nobody, "TSH12345"); !errors.Is(err, ErrInvalidIdentifierFormat) {
		t.Errorf("malformed lookup = %v, want ErrInvalidIdentifierFormat", err)
	}
}

func TestUpdateDetails_MutableFieldsOnly(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatal(err)
	}

	newMRN := "EXT-002"
	updated, err := svc.UpdateDetails(ctx, staff, p.InternalID, UpdateInput{MRN: &newMRN})
	if err != nil {
		t.Fatalf("UpdateDetails: %v", err)
	}
	if updated.MRN != "EXT-002" {
		t.Errorf("MRN = %q", updated.MRN)
	}
	if updated.PatientID != p.PatientID || updated.PortalID != p.PortalID {
		t.Error("identifiers must survive a demographic update unchanged")
	}

	empty := ""
	if _, err := svc.UpdateDetails(ctx, staff, p.InternalID, UpdateInput{LastName: &empty}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank last name = %v, want ErrInvalidInput", err)
	}
}

func TestResetPortalID_NeverReissuesOldValues(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatal(err)
	}
	oldPortalID := p.PortalID

	// Force the issuer to propose the retired value first.
	issuer := &scriptIssuer{portal: []string{oldPortalID, "TSH 777-777"}}
	svc = newTestService(repo, issuer)

	reset, err := svc.ResetPortalID(ctx, staff, p.InternalID)
	if err != nil {
		t.Fatalf("ResetPortalID: %v", err)
	}
	if reset.PortalID == oldPortalID {
		t.Fatal("retired portal id was reissued")
	}
	if reset.PortalID != "TSH 777-777" {
		t.Errorf("portal id = %q, want TSH 777-777", reset.PortalID)
	}

	// Old value no longer resolves, but stays reserved in the ledger.
	if _, err := repo.GetByPortalID(ctx, oldPortalID); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("old portal id lookup = %v, want ErrNotFound", err)
	}
	if !repo.issued[oldPortalID] {
		t.Error("old portal id must remain in the issued ledger")
	}
}

func TestResetPortalID_Denied(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, NewRandomIssuer())

	p, err := svc.Onboard(ctx, staff, demoName)
	if err != nil {
		t.Fatal(err)
	}

	owner := auth.Actor{ID: p.InternalID, Role: auth.RolePatient}
	if _, err := svc.ResetPortalID(ctx, owner, p.InternalID); !errors.Is(err, record.ErrForbidden) {
		t.Errorf("patient reset = %v, want ErrForbidden", err)
	}
}

func TestOnboard_AgainstDenseKeyspace(t *testing.T) {
	repo := newMemRepo()
	// Pre-seed 10,000 taken patient IDs and issued portal IDs so random
	// issuance collides with realistic frequency.
	for i := 0; i < 10000; i++ {
		pid := fmt.Sprintf("%08d", i)
		internalID := uuid.New()
		repo.byPatient[pid] = internalID
		repo.issued[FormatPortalID(fmt.Sprintf("%06d", i))] = true
	}

	svc := newTestService(repo, NewRandomIssuer())
	for i := 0; i < 100; i++ {
		p, err := svc.Onboard(ctx, staff, demoName)
		if err != nil {
			t.Fatalf("Onboard #%d: %v", i, err)
		}
		if _, clash := repo.byPatient[p.PatientID]; !clash {
			t.Fatal("issued patient id missing from uniqueness index")
		}
	}
}

func TestOnboard_ConcurrentContention_OneWinner(t *testing.T) {
	repo := newMemRepo()
	// Every worker is forced to propose the same identifiers, simulating a
	// nearly exhausted keyspace: exactly one onboarding may win.
	const workers = 8

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := newTestService(repo, repeatIssuer{patientID: "55555555", portalID: "TSH 555-555"})
			_, errs[i] = svc.Onboard(ctx, staff, demoName)
		}(i)
	}
	wg.Wait()

	var winners, exhausted int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrExhaustedKeyspace):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if exhausted != workers-1 {
		t.Errorf("exhausted = %d, want %d", exhausted, workers-1)
	}
	if len(repo.byInternal) != 1 {
		t.Errorf("persisted identities = %d, want 1", len(repo.byInternal))
	}
}
