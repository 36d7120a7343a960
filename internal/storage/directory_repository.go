package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/screening-orchestrator/internal/models"
)

// DirectoryRepository provides the candidate and role lookups the engine
// needs to place calls. Candidate and role management is owned by the
// surrounding platform; the engine only reads (plus a create used by
// intake seeding).
type DirectoryRepository struct {
	db *PostgresDB
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db *PostgresDB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetCandidate retrieves a candidate by ID
func (r *DirectoryRepository) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	query := `
		SELECT id, name, phone_number, email, created_at
		FROM candidates
		WHERE id = $1
	`

	var c models.Candidate
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.PhoneNumber,
		&c.Email,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("candidate not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	return &c, nil
}

// GetRole retrieves a role by ID
func (r *DirectoryRepository) GetRole(ctx context.Context, id string) (*models.Role, error) {
	query := `
		SELECT id, title, voice_agent_id, first_message, call_window_utc, created_at
		FROM roles
		WHERE id = $1
	`

	var role models.Role
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&role.ID,
		&role.Title,
		&role.VoiceAgentID,
		&role.FirstMessage,
		&role.CallWindowUTC,
		&role.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("role not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// CreateCandidate inserts a candidate record
func (r *DirectoryRepository) CreateCandidate(ctx context.Context, c *models.Candidate) error {
	query := `
		INSERT INTO candidates (id, name, phone_number, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query, c.ID, c.Name, c.PhoneNumber, c.Email, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}

	return nil
}

// CreateRole inserts a role record
func (r *DirectoryRepository) CreateRole(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (id, title, voice_agent_id, first_message, call_window_utc, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		role.ID,
		role.Title,
		role.VoiceAgentID,
		role.FirstMessage,
		role.CallWindowUTC,
		role.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	return nil
}
