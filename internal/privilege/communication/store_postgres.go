package communication

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
	txcontext "lexvault/pkg/platform/tx"
)

// PostgresStore persists ciphertext rows in PostgreSQL. The insert carries
// its relationship check in the same statement, so a relationship closed
// after the service's verify cannot admit a write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) runner(ctx context.Context) dbRunner {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) InsertIfActiveRelationship(ctx context.Context, comm *models.PrivilegedCommunication) error {
	query := `
		INSERT INTO privileged_communications (id, attorney_id, client_id, ciphertext, kind, scope, status, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (
			SELECT 1 FROM privilege_relationships
			WHERE attorney_id = $2 AND client_id = $3 AND status = 'ACTIVE'
		)
		RETURNING id
	`
	var inserted uuid.UUID
	err := s.runner(ctx).QueryRowContext(ctx, query,
		comm.ID,
		comm.AttorneyID,
		comm.ClientID,
		comm.Ciphertext,
		comm.Kind,
		string(comm.Scope),
		string(comm.Status),
		comm.CreatedAt,
	).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert communication: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.PrivilegedCommunication, error) {
	query := `
		SELECT id, attorney_id, client_id, ciphertext, kind, scope, status, created_at
		FROM privileged_communications
		WHERE id = $1
	`
	comm, err := scanCommunication(s.runner(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get communication: %w", err)
	}
	return comm, nil
}

func (s *PostgresStore) ListByPair(ctx context.Context, attorneyID, clientID string, limit int) ([]models.PrivilegedCommunication, error) {
	query := `
		SELECT id, attorney_id, client_id, ciphertext, kind, scope, status, created_at
		FROM privileged_communications
		WHERE attorney_id = $1 AND client_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, attorneyID, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	var out []models.PrivilegedCommunication
	for rows.Next() {
		comm, err := scanCommunication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan communication: %w", err)
		}
		out = append(out, *comm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate communications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DestroyActive(ctx context.Context, attorneyID, clientID string, tombstone []byte) (int64, error) {
	query := `
		UPDATE privileged_communications
		SET status = 'DESTROYED', ciphertext = $3
		WHERE attorney_id = $1 AND client_id = $2 AND status = 'ACTIVE'
	`
	res, err := s.runner(ctx).ExecContext(ctx, query, attorneyID, clientID, tombstone)
	if err != nil {
		return 0, fmt.Errorf("destroy communications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("destroy rows affected: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByAttorney(ctx context.Context, attorneyID string) (int, error) {
	query := `SELECT COUNT(*) FROM privileged_communications WHERE attorney_id = $1`
	var n int
	if err := s.runner(ctx).QueryRowContext(ctx, query, attorneyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count communications: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommunication(row rowScanner) (*models.PrivilegedCommunication, error) {
	var comm models.PrivilegedCommunication
	var scope, status string
	if err := row.Scan(
		&comm.ID,
		&comm.AttorneyID,
		&comm.ClientID,
		&comm.Ciphertext,
		&comm.Kind,
		&scope,
		&status,
		&comm.CreatedAt,
	); err != nil {
		return nil, err
	}
	comm.Scope = models.Scope(scope)
	comm.Status = models.CommunicationStatus(status)
	return &comm, nil
}
