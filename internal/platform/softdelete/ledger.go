// Package softdelete implements the lifecycle ledger for auditable
// records. Records are never physically removed: deletion is a single
// conditional transition that stamps deleted_at, deleted_by and
// deletion_reason together, and ordinary reads exclude stamped rows.
package softdelete

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tshla/medical-core/internal/platform/db"
)

var (
	// ErrAlreadyDeleted is returned when the record has already left the
	// active state. Deletes are first-writer-wins and never re-applied.
	ErrAlreadyDeleted = errors.New("record already deleted")
	// ErrNotFound is returned when the record does not exist at all.
	ErrNotFound = errors.New("record not found")
)

// Fields are the audit columns carried by every auditable entity. All
// three are set together by the ledger or not at all.
type Fields struct {
	DeletedAt      *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy      *uuid.UUID `db:"deleted_by" json:"deleted_by,omitempty"`
	DeletionReason *Reason    `db:"deletion_reason" json:"deletion_reason,omitempty"`
}

// Deleted reports whether the record has been soft deleted.
func (f Fields) Deleted() bool {
	return f.DeletedAt != nil
}

// Entry is one ledger row for the administrative audit view.
type Entry struct {
	RecordID       uuid.UUID `json:"record_id"`
	DeletedAt      time.Time `json:"deleted_at"`
	DeletedBy      uuid.UUID `json:"deleted_by"`
	DeletionReason Reason    `json:"deletion_reason"`
}

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Ledger records lifecycle transitions for one auditable table. The table
// name is validated once at construction because it is interpolated into
// SQL.
type Ledger struct {
	pool  *pgxpool.Pool
	table string
}

func NewLedger(pool *pgxpool.Pool, table string) (*Ledger, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	return &Ledger{pool: pool, table: table}, nil
}

// SoftDelete transitions the record from active to deleted. The update is
// conditional on deleted_at IS NULL, so concurrent deletes of the same
// record have exactly one winner; the rest observe ErrAlreadyDeleted.
func (l *Ledger) SoftDelete(ctx context.Context, recordID, actorID uuid.UUID, reason Reason) error {
	if !reason.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}

	conn := db.Conn(ctx, l.pool)
	tag, err := conn.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET deleted_at = NOW(), deleted_by = $2, deletion_reason = $3
		 WHERE id = $1 AND deleted_at IS NULL`, l.table),
		recordID, actorID, reason)
	if err != nil {
		return fmt.Errorf("soft delete %s %s: %w", l.table, recordID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The conditional update matched nothing: either the record is gone
	// or it was already deleted.
	var deleted bool
	err = conn.QueryRow(ctx, fmt.Sprintf(
		`SELECT deleted_at IS NOT NULL FROM %s WHERE id = $1`, l.table), recordID).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("soft delete %s %s: %w", l.table, recordID, err)
	}
	if deleted {
		return ErrAlreadyDeleted
	}
	// The record reappeared active between the two statements; surface a
	// conflict so the caller retries.
	return fmt.Errorf("soft delete %s %s: concurrent state change", l.table, recordID)
}

// IsActive reports whether the record exists and has not been deleted.
func (l *Ledger) IsActive(ctx context.Context, recordID uuid.UUID) (bool, error) {
	var deleted bool
	err := db.Conn(ctx, l.pool).QueryRow(ctx, fmt.Sprintf(
		`SELECT deleted_at IS NOT NULL FROM %s WHERE id = $1`, l.table), recordID).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("is active %s %s: %w", l.table, recordID, err)
	}
	return !deleted, nil
}

// ListDeleted returns ledger entries ordered by deletion time descending.
// Administrative audit views only; ordinary reads never see these rows.
func (l *Ledger) ListDeleted(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	conn := db.Conn(ctx, l.pool)

	var total int
	if err := conn.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE deleted_at IS NOT NULL`, l.table)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count deleted %s: %w", l.table, err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(
		`SELECT id, deleted_at, deleted_by, deletion_reason FROM %s
		 WHERE deleted_at IS NOT NULL
		 ORDER BY deleted_at DESC
		 LIMIT $1 OFFSET $2`, l.table), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list deleted %s: %w", l.table, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RecordID, &e.DeletedAt, &e.DeletedBy, &e.DeletionReason); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
