package dictation

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

const dictationColumns = `id, patient_id, author_id, title, transcript,
	created_at, updated_at, deleted_at, deleted_by, deletion_reason`

func (r *PGRepository) Insert(ctx context.Context, d *Dictation) error {
	q := db.Conn(ctx, r.pool)
	err := q.QueryRow(ctx, `
		INSERT INTO dictation (id, patient_id, author_id, title, transcript)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		d.ID, d.PatientID, d.AuthorID, d.Title, d.Transcript,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert dictation: %w", err)
	}
	return nil
}

// Fetch returns the row regardless of lifecycle state.
func (r *PGRepository) Fetch(ctx context.Context, id uuid.UUID) (*Dictation, error) {
	q := db.Conn(ctx, r.pool)
	row := q.QueryRow(ctx,
		`SELECT `+dictationColumns+` FROM dictation WHERE id = $1`, id)
	d, err := scanDictation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch dictation: %w", err)
	}
	return d, nil
}

// Save writes the mutable fields. The audit columns are owned by the
// ledger and never touched here.
func (r *PGRepository) Save(ctx context.Context, d *Dictation) error {
	q := db.Conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE dictation
		SET title = $2, transcript = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		d.ID, d.Title, d.Transcript,
	)
	if err != nil {
		return fmt.Errorf("save dictation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (r *PGRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Dictation, int, error) {
	q := db.Conn(ctx, r.pool)

	var total int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM dictation WHERE patient_id = $1 AND deleted_at IS NULL`,
		patientID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count dictations: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+dictationColumns+` FROM dictation
		 WHERE patient_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list dictations: %w", err)
	}
	defer rows.Close()
	return collectDictations(rows, total)
}

func (r *PGRepository) ListDeleted(ctx context.Context, limit, offset int) ([]*Dictation, int, error) {
	q := db.Conn(ctx, r.pool)

	var total int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM dictation WHERE deleted_at IS NOT NULL`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count deleted dictations: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+dictationColumns+` FROM dictation
		 WHERE deleted_at IS NOT NULL
		 ORDER BY deleted_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deleted dictations: %w", err)
	}
	defer rows.Close()
	return collectDictations(rows, total)
}

func collectDictations(rows pgx.Rows, total int) ([]*Dictation, int, error) {
	var dictations []*Dictation
	for rows.Next() {
		d, err := scanDictation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan dictation: %w", err)
		}
		dictations = append(dictations, d)
	}
	return dictations, total, rows.Err()
}

func scanDictation(row pgx.Row) (*Dictation, error) {
	var d Dictation
	err := row.Scan(
		&d.ID, &d.PatientID, &d.AuthorID, &d.Title, &d.Transcript,
		&d.CreatedAt, &d.UpdatedAt,
		&d.DeletedAt, &d.DeletedBy, &d.DeletionReason,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
