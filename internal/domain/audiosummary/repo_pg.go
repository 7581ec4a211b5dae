package audiosummary

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tshla/medical-core/internal/platform/db"
	"github.com/tshla/medical-core/internal/record"
)

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const summaryColumns = `id, patient_id, dictation_id, summary_text, voice_model,
	duration_seconds, created_at, updated_at, deleted_at, deleted_by, deletion_reason`

func (r *PGRepository) Insert(ctx context.Context, a *AudioSummary) error {
	q := db.Conn(ctx, r.pool)
	err := q.QueryRow(ctx, `
		INSERT INTO audio_summary (id, patient_id, dictation_id, summary_text, voice_model, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DictationID, a.SummaryText, a.VoiceModel, a.DurationSeconds,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert audio summary: %w", err)
	}
	return nil
}

func (r *PGRepository) Fetch(ctx context.Context, id uuid.UUID) (*AudioSummary, error) {
	q := db.Conn(ctx, r.pool)
	row := q.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM audio_summary WHERE id = $1`, id)
	a, err := scanSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch audio summary: %w", err)
	}
	return a, nil
}

func (r *PGRepository) Save(ctx context.Context, a *AudioSummary) error {
	q := db.Conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE audio_summary
		SET summary_text = $2, voice_model = $3, duration_seconds = $4, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		a.ID, a.SummaryText, a.VoiceModel, a.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("save audio summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (r *PGRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*AudioSummary, int, error) {
	q := db.Conn(ctx, r.pool)

	var total int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM audio_summary WHERE patient_id = $1 AND deleted_at IS NULL`,
		patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count audio summaries: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+summaryColumns+` FROM audio_summary
		 WHERE patient_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audio summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows, total)
}

func (r *PGRepository) ListDeleted(ctx context.Context, limit, offset int) ([]*AudioSummary, int, error) {
	q := db.Conn(ctx, r.pool)

	var total int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM audio_summary WHERE deleted_at IS NOT NULL`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count deleted audio summaries: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+summaryColumns+` FROM audio_summary
		 WHERE deleted_at IS NOT NULL
		 ORDER BY deleted_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deleted audio summaries: %w", err)
	}
	defer rows.Close()
	return collectSummaries(rows, total)
}

func collectSummaries(rows pgx.Rows, total int) ([]*AudioSummary, int, error) {
	var summaries []*AudioSummary
	for rows.Next() {
		a, err := scanSummary(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan audio summary: %w", err)
		}
		summaries = append(summaries, a)
	}
	return summaries, total, rows.Err()
}

func scanSummary(row pgx.Row) (*AudioSummary, error) {
	var a AudioSummary
	err := row.Scan(
		&a.ID, &a.PatientID, &a.DictationID, &a.SummaryText, &a.VoiceModel,
		&a.DurationSeconds, &a.CreatedAt, &a.UpdatedAt,
		&a.DeletedAt, &a.DeletedBy, &a.DeletionReason,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
