// Package audit persists an access log of record operations: who acted on
// which record and whether the operation was allowed. Entries are written
// best-effort; an audit write failure is logged but never fails the
// clinical operation it describes.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tshla/medical-core/internal/platform/db"
)

// Outcomes recorded for an operation attempt.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Entry is one access-log row.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorRole  string     `json:"actor_role"`
	Resource   string     `json:"resource"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty"`
	Action     string     `json:"action"`
	Outcome    string     `json:"outcome"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Recorder writes access-log entries.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

type contextKey string

const requestInfoKey contextKey = "audit_request_info"

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequestInfo stores the caller's transport metadata so recorders can
// stamp it onto entries written anywhere below the handler.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey, requestInfo{ip: ip, userAgent: userAgent})
}

func requestInfoFromContext(ctx context.Context) (requestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(requestInfo)
	return info, ok
}

// PGRecorder persists entries to the access_log table.
type PGRecorder struct {
	pool *pgxpool.Pool
}

func NewPGRecorder(pool *pgxpool.Pool) *PGRecorder {
	return &PGRecorder{pool: pool}
}

func (r *PGRecorder) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if info, ok := requestInfoFromContext(ctx); ok {
		if e.IPAddress == "" {
			e.IPAddress = info.ip
		}
		if e.UserAgent == "" {
			e.UserAgent = info.userAgent
		}
	}

	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO access_log (
			id, actor_id, actor_role, resource, resource_id,
			action, outcome, ip_address, user_agent, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.ActorID, e.ActorRole, e.Resource, e.ResourceID,
		e.Action, e.Outcome, e.IPAddress, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record access log: %w", err)
	}
	return nil
}

// List returns access-log entries newest first, optionally filtered by
// resource.
func (r *PGRecorder) List(ctx context.Context, resource string, limit, offset int) ([]*Entry, int, error) {
	conn := db.Conn(ctx, r.pool)

	where := ""
	countArgs := []any{}
	listArgs := []any{limit, offset}
	if resource != "" {
		where = " WHERE resource = $1"
		countArgs = []any{resource}
		listArgs = []any{resource, limit, offset}
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM access_log`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access log: %w", err)
	}

	query := `SELECT id, actor_id, actor_role, resource, resource_id, action, outcome,
			COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM access_log` + where + ` ORDER BY created_at DESC`
	if resource != "" {
		query += ` LIMIT $2 OFFSET $3`
	} else {
		query += ` LIMIT $1 OFFSET $2`
	}

	rows, err := conn.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list access log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Resource, &e.ResourceID,
			&e.Action, &e.Outcome, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Nop discards entries; used in tests and when auditing is disabled.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }
