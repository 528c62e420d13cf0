package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	txcontext "lexvault/pkg/platform/tx"
)

// PostgresStore persists the trail in PostgreSQL. Id assignment rides on
// BIGSERIAL with INSERT ... RETURNING, so concurrent appends cannot collide
// or observe stale counters.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) (int64, error) {
	query := `
		INSERT INTO audit_entries (actor_id, action, detail, outcome, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := s.execer(ctx).QueryRowContext(ctx, query,
		entry.ActorID,
		string(entry.Action),
		entry.Detail,
		string(entry.Outcome),
		entry.Signature,
		entry.Timestamp,
	).Scan(&entry.ID)
	if err != nil {
		return 0, fmt.Errorf("insert audit entry: %w", err)
	}
	return entry.ID, nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Entry, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, actor_id, action, detail, outcome, signature, created_at
		FROM audit_entries
		WHERE 1=1`)
	var args []any
	if q.AttorneyID != "" {
		args = append(args, q.AttorneyID)
		sb.WriteString(" AND actor_id = $" + strconv.Itoa(len(args)))
	}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		sb.WriteString(" AND created_at >= $" + strconv.Itoa(len(args)))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		sb.WriteString(" AND created_at <= $" + strconv.Itoa(len(args)))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	args = append(args, limit)
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args)))

	rows, err := s.execer(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action, outcome string
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.Detail, &outcome, &e.Signature, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
