package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

const identityColumns = `internal_id, patient_id, portal_id, mrn, first_name, last_name, created_at, updated_at`

// Insert reserves the portal ID and creates the identity row in one
// transaction, so a crash between the two statements cannot leave a portal
// ID issued without an owner.
func (r *PGRepository) Insert(ctx context.Context, p *PatientIdentity) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO portal_id_issued (portal_id, internal_id)
		VALUES ($1, $2)`,
		p.PortalID, p.InternalID,
	)
	if err != nil {
		return mapCollision(err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO patient_identity (internal_id, patient_id, portal_id, mrn, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.InternalID, p.PatientID, p.PortalID, p.MRN, p.FirstName, p.LastName,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return mapCollision(err)
	}

	return tx.Commit(ctx)
}

func (r *PGRepository) GetByInternalID(ctx context.Context, id uuid.UUID) (*PatientIdentity, error) {
	return r.getBy(ctx, "internal_id", id)
}

func (r *PGRepository) GetByPatientID(ctx context.Context, patientID string) (*PatientIdentity, error) {
	return r.getBy(ctx, "patient_id", patientID)
}

func (r *PGRepository) GetByPortalID(ctx context.Context, portalID string) (*PatientIdentity, error) {
	return r.getBy(ctx, "portal_id", portalID)
}

func (r *PGRepository) getBy(ctx context.Context, column string, value any) (*PatientIdentity, error) {
	q := db.Conn(ctx, r.pool)
	row := q.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM patient_identity WHERE `+column+` = $1`,
		value,
	)
	p, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by %s: %w", column, err)
	}
	return p, nil
}

// Update writes the mutable fields only. Identifier columns are never in
// the SET list.
func (r *PGRepository) Update(ctx context.Context, p *PatientIdentity) error {
	q := db.Conn(ctx, r.pool)
	tag, err := q.Exec(ctx, `
		UPDATE patient_identity
		SET mrn = $2, first_name = $3, last_name = $4, updated_at = NOW()
		WHERE internal_id = $1`,
		p.InternalID, p.MRN, p.FirstName, p.LastName,
	)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}
	return nil
}

// SwapPortalID reserves the new value in the issued ledger and repoints
// the identity at it atomically. The replaced value stays in the ledger.
func (r *PGRepository) SwapPortalID(ctx context.Context, internalID uuid.UUID, newPortalID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO portal_id_issued (portal_id, internal_id)
		VALUES ($1, $2)`,
		newPortalID, internalID,
	)
	if err != nil {
		return mapCollision(err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE patient_identity
		SET portal_id = $2, updated_at = NOW()
		WHERE internal_id = $1`,
		internalID, newPortalID,
	)
	if err != nil {
		return fmt.Errorf("swap portal id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]*PatientIdentity, int, error) {
	q := db.Conn(ctx, r.pool)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient_identity`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT `+identityColumns+` FROM patient_identity
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*PatientIdentity
	for rows.Next() {
		p, err := scanIdentity(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}

func scanIdentity(row pgx.Row) (*PatientIdentity, error) {
	var p PatientIdentity
	err := row.Scan(
		&p.InternalID, &p.PatientID, &p.PortalID,
		&p.MRN, &p.FirstName, &p.LastName,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// CHAR(8) comes back space-padded if anything shorter ever lands.
	p.PatientID = strings.TrimRight(p.PatientID, " ")
	return &p, nil
}

// mapCollision translates unique-violation errors into the collision
// sentinels based on which constraint fired.
func mapCollision(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "patient_identity_patient_id_key":
		return errPatientIDTaken
	case "patient_identity_portal_id_key", "portal_id_issued_pkey":
		return errPortalIDTaken
	}
	return err
}
