package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lexvault/internal/privilege/models"
	"lexvault/pkg/platform/sentinel"
)

// PostgresDirectory backs the staff directory with the staff_directory table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, userID, attorneyID string) (*models.StaffMember, error) {
	query := `
		SELECT user_id, entity_type, attorney_id
		FROM staff_directory
		WHERE user_id = $1 AND attorney_id = $2
	`
	var member models.StaffMember
	err := d.db.QueryRowContext(ctx, query, userID, attorneyID).
		Scan(&member.UserID, &member.EntityType, &member.AttorneyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup staff member: %w", err)
	}
	return &member, nil
}

// Register upserts a staff entry.
func (d *PostgresDirectory) Register(ctx context.Context, member models.StaffMember) error {
	query := `
		INSERT INTO staff_directory (user_id, entity_type, attorney_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, attorney_id) DO UPDATE SET entity_type = EXCLUDED.entity_type
	`
	if _, err := d.db.ExecContext(ctx, query, member.UserID, member.EntityType, member.AttorneyID); err != nil {
		return fmt.Errorf("register staff member: %w", err)
	}
	return nil
}
