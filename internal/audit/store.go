// Package audit records authentication events in PostgreSQL.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides database operations for audit events.
type Store struct {
	db DB
}

// NewStore creates a new Store backed by the given database handle.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// BatchInsert writes events in a single multi-row INSERT statement. Events
// without an ID get a new UUID. It is a no-op when events is empty.
func (s *Store) BatchInsert(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 9
	args := make([]any, 0, len(events)*cols)
	rows := make([]string, 0, len(events))

	for i, ev := range events {
		base := i * cols
		rows = append(rows, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		id := ev.ID
		if id == "" {
			id = uuid.NewString()
		}
		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		args = append(args,
			id,
			ev.UserID,
			ev.Email,
			string(ev.Kind),
			ev.Success,
			ev.Detail,
			ev.IP,
			ev.UserAgent,
			createdAt,
		)
	}

	query := `INSERT INTO auth_events
		(id, user_id, email, kind, success, detail, ip, user_agent, created_at)
		VALUES ` + strings.Join(rows, ", ")

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting auth events: %w", err)
	}
	return nil
}

// DeleteOlderThan removes events created before cutoff and returns how many
// were deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM auth_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting old auth events: %w", err)
	}
	return tag.RowsAffected(), nil
}
