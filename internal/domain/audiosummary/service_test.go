package audiosummary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/softdelete"
	"github.com/tshla/medical-core/internal/record"
)

type memRepo struct {
	rows map[uuid.UUID]*AudioSummary
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]*AudioSummary)}
}

func (m *memRepo) Insert(_ context.Context, a *AudioSummary) error {
	m.rows[a.ID] = a
	return nil
}

func (m *memRepo) Fetch(_ context.Context, id uuid.UUID) (*AudioSummary, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	return a, nil
}

func (m *memRepo) Save(_ context.Context, a *AudioSummary) error {
	existing, ok := m.rows[a.ID]
	if !ok || existing.Deleted() {
		return record.ErrNotFound
	}
	m.rows[a.ID] = a
	return nil
}

func (m *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*AudioSummary, int, error) {
	var out []*AudioSummary
	for _, a := range m.rows {
		if a.PatientID == patientID && !a.Deleted() {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) ListDeleted(_ context.Context, limit, offset int) ([]*AudioSummary, int, error) {
	var out []*AudioSummary
	for _, a := range m.rows {
		if a.Deleted() {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

type memLedger struct {
	repo *memRepo
}

func (l *memLedger) SoftDelete(_ context.Context, recordID, actorID uuid.UUID, reason softdelete.Reason) error {
	a, ok := l.repo.rows[recordID]
	if !ok {
		return softdelete.ErrNotFound
	}
	if a.Deleted() {
		return softdelete.ErrAlreadyDeleted
	}
	now := time.Now()
	a.DeletedAt = &now
	a.DeletedBy = &actorID
	a.DeletionReason = &reason
	return nil
}

func newTestService() *Service {
	repo := newMemRepo()
	return NewService(auth.NewDefaultEngine(), repo, &memLedger{repo: repo}, nil, nil, zerolog.Nop())
}

var (
	ctx   = context.Background()
	staff = auth.Actor{ID: uuid.New(), Role: auth.RoleStaff}
)

func TestCreateGetDelete(t *testing.T) {
	svc := newTestService()
	patientID := uuid.New()
	dictationID := uuid.New()

	a, err := svc.Create(ctx, staff, CreateInput{
		PatientID:       patientID,
		DictationID:     &dictationID,
		SummaryText:     "Patient seen for follow-up.",
		VoiceModel:      "nova-2",
		DurationSeconds: 45,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Get(ctx, staff, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.DictationID == nil || *got.DictationID != dictationID {
		t.Error("dictation link lost")
	}

	if err := svc.Delete(ctx, staff, a.ID, softdelete.ReasonTest); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, staff, a.ID); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("read after delete = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, staff, a.ID, softdelete.ReasonTest); !errors.Is(err, softdelete.ErrAlreadyDeleted) {
		t.Errorf("second delete = %v, want ErrAlreadyDeleted", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"missing patient", CreateInput{SummaryText: "x"}},
		{"blank text", CreateInput{PatientID: uuid.New(), SummaryText: "  "}},
		{"negative duration", CreateInput{PatientID: uuid.New(), SummaryText: "x", DurationSeconds: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, staff, tt.input); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Create = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestOwnershipRules(t *testing.T) {
	svc := newTestService()
	patientID := uuid.New()

	a, err := svc.Create(ctx, staff, CreateInput{PatientID: patientID, SummaryText: "summary"})
	if err != nil {
		t.Fatal(err)
	}

	owner := auth.Actor{ID: patientID, Role: auth.RolePatient}
	if _, err := svc.Get(ctx, owner, a.ID); err != nil {
		t.Errorf("owner read: %v", err)
	}

	other := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := svc.Get(ctx, other, a.ID); !errors.Is(err, record.ErrForbidden) {
		t.Errorf("other patient read = %v, want ErrForbidden", err)
	}
	if _, _, err := svc.ListDeleted(ctx, owner, 20, 0); !errors.Is(err, record.ErrForbidden) {
		t.Errorf("patient audit view = %v, want ErrForbidden", err)
	}
}
