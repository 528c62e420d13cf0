package relationship

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
	txcontext "lexvault/pkg/platform/tx"
)

// PostgresStore persists relationships in PostgreSQL. Uniqueness of the
// ACTIVE (attorney, client, case) triple is enforced by a partial unique
// index, so concurrent intakes cannot both succeed.
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

func (s *PostgresStore) Create(ctx context.Context, rel *models.PrivilegeRelationship) error {
	query := `
		INSERT INTO privilege_relationships (id, attorney_id, client_id, case_id, scope, status, established_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		rel.ID,
		rel.AttorneyID,
		rel.ClientID,
		rel.CaseID,
		string(rel.Scope),
		string(rel.Status),
		rel.EstablishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert relationship: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveExists(ctx context.Context, attorneyID, clientID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM privilege_relationships
			WHERE attorney_id = $1 AND client_id = $2 AND status = 'ACTIVE'
		)
	`
	var exists bool
	if err := s.runner(ctx).QueryRowContext(ctx, query, attorneyID, clientID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active relationship: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Close(ctx context.Context, id uuid.UUID, closedAt time.Time) (*models.PrivilegeRelationship, error) {
	query := `
		UPDATE privilege_relationships
		SET status = 'CLOSED', closed_at = $2
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING attorney_id, client_id, case_id, scope, established_at
	`
	rel := &models.PrivilegeRelationship{
		ID:       id,
		Status:   models.RelationshipClosed,
		ClosedAt: &closedAt,
	}
	var scope string
	err := s.runner(ctx).QueryRowContext(ctx, query, id, closedAt).
		Scan(&rel.AttorneyID, &rel.ClientID, &rel.CaseID, &scope, &rel.EstablishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish unknown id from a second close on the same row.
		var exists bool
		probe := `SELECT EXISTS (SELECT 1 FROM privilege_relationships WHERE id = $1)`
		if probeErr := s.runner(ctx).QueryRowContext(ctx, probe, id).Scan(&exists); probeErr != nil {
			return nil, fmt.Errorf("probe relationship: %w", probeErr)
		}
		if exists {
			return nil, sentinel.ErrInvalidState
		}
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("close relationship: %w", err)
	}
	rel.Scope = models.Scope(scope)
	return rel, nil
}

func (s *PostgresStore) Cases(ctx context.Context, attorneyID, clientID string) ([]models.CaseSummary, error) {
	// strategy_notes is deliberately never selected here.
	query := `
		SELECT DISTINCT c.id, c.name, c.case_type, c.status, c.facts, c.legal_issues
		FROM cases c
		JOIN privilege_relationships r ON r.case_id = c.id
		WHERE r.attorney_id = $1 AND r.client_id = $2
		ORDER BY c.id
	`
	rows, err := s.runner(ctx).QueryContext(ctx, query, attorneyID, clientID)
	if err != nil {
		return nil, fmt.Errorf("query client cases: %w", err)
	}
	defer rows.Close()

	var out []models.CaseSummary
	for rows.Next() {
		var c models.CaseSummary
		if err := rows.Scan(&c.CaseID, &c.Name, &c.Type, &c.Status, &c.Facts, &c.Issues); err != nil {
			return nil, fmt.Errorf("scan case summary: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client cases: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountActiveClients(ctx context.Context, attorneyID string) (int, error) {
	query := `
		SELECT COUNT(DISTINCT client_id) FROM privilege_relationships
		WHERE attorney_id = $1 AND status = 'ACTIVE'
	`
	var n int
	if err := s.runner(ctx).QueryRowContext(ctx, query, attorneyID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active clients: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UpsertCase(ctx context.Context, record CaseRecord) error {
	query := `
		INSERT INTO cases (id, name, case_type, status, facts, legal_issues, strategy_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			case_type = EXCLUDED.case_type,
			status = EXCLUDED.status,
			facts = EXCLUDED.facts,
			legal_issues = EXCLUDED.legal_issues,
			strategy_notes = EXCLUDED.strategy_notes
	`
	_, err := s.runner(ctx).ExecContext(ctx, query,
		record.CaseID,
		record.Name,
		record.Type,
		record.Status,
		record.Facts,
		record.Issues,
		record.StrategyNotes,
	)
	if err != nil {
		return fmt.Errorf("upsert case: %w", err)
	}
	return nil
}
