package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"iterate-orchestrator/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PrincipalRepository stores the authenticated identities the orchestrator
// acts on behalf of. A principal's starting balance is written in the same
// INSERT as the row itself, so no separate balance-seeding step exists.
type PrincipalRepository struct {
	db *sqlx.DB
}

func NewPrincipalRepository(db *sqlx.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

func (r *PrincipalRepository) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (id, email, password_hash, role, credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.PasswordHash, p.Role, p.Credits, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolationError(err) {
			return ErrPrincipalExists
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}
	return nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	query := `SELECT id, email, password_hash, role, credits, created_at, updated_at FROM principals WHERE id = $1`
	var p models.Principal
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal by id: %w", err)
	}
	return &p, nil
}

func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `SELECT id, email, password_hash, role, credits, created_at, updated_at FROM principals WHERE email = $1`
	var p models.Principal
	if err := r.db.GetContext(ctx, &p, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}
	return &p, nil
}
