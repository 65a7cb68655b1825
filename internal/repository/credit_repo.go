package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/pkg/decimal"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
)

// CreditRepository is the durable store backing the credit ledger: a
// single balance row per principal, plus an append-only transaction log.
type CreditRepository struct {
	db *sqlx.DB
}

func NewCreditRepository(db *sqlx.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// GetBalance returns the principal's balance. A principal with no row yet
// is treated as a zero balance, not an error.
func (r *CreditRepository) GetBalance(ctx context.Context, principalID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `SELECT credits FROM principals WHERE id = $1`
	err := r.db.GetContext(ctx, &balance, query, principalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get credit balance: %w", err)
	}
	return balance, nil
}

// GetBalanceForUpdate locks the principal's row for the remainder of tx.
// The row is assumed to already exist (principals are created with an
// initial balance at signup); unlike a lazily-materialized ledger this
// does not need an ON CONFLICT DO NOTHING insert first.
func (r *CreditRepository) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, principalID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT credits FROM principals WHERE id = $1 FOR UPDATE`
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, query, principalID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, ErrCreditNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to get credit balance for update: %w", err)
	}
	return balance, nil
}

// UpdateBalance writes the new balance within tx. Caller must have
// obtained the row with GetBalanceForUpdate first and computed newBalance
// from that locked read.
func (r *CreditRepository) UpdateBalance(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, newBalance decimal.Decimal) error {
	query := `UPDATE principals SET credits = $1, updated_at = $2 WHERE id = $3`
	result, err := tx.Exec(ctx, query, newBalance, time.Now(), principalID)
	if err != nil {
		return fmt.Errorf("failed to update credit balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrCreditNotFound
	}
	return nil
}

// CreateTransaction appends one ledger entry within tx.
func (r *CreditRepository) CreateTransaction(ctx context.Context, tx pgx.Tx, transaction *models.CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions (id, principal_id, amount, kind, description, project_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	transaction.ID = uuid.New()
	transaction.CreatedAt = time.Now()

	var projectID interface{}
	if transaction.ProjectID.Valid {
		projectID = transaction.ProjectID.UUID
	}

	_, err := tx.Exec(ctx, query,
		transaction.ID,
		transaction.PrincipalID,
		transaction.Amount,
		transaction.Kind,
		transaction.Description,
		projectID,
		transaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credit transaction: %w", err)
	}
	return nil
}

// GetTransactionHistory returns a page of the ledger, newest first, always
// bounded by LIMIT/OFFSET to avoid unbounded memory use.
func (r *CreditRepository) GetTransactionHistory(ctx context.Context, filter *models.GetCreditHistoryFilter) ([]*models.CreditTransaction, error) {
	query := `
		SELECT id, principal_id, amount, kind, description, project_id, created_at
		FROM credit_transactions
		WHERE 1=1
	`
	args := []interface{}{}
	argIndex := 1

	if filter != nil {
		if filter.PrincipalID != nil {
			query += fmt.Sprintf(` AND principal_id = $%d`, argIndex)
			args = append(args, *filter.PrincipalID)
			argIndex++
		}
		if filter.Kind != nil {
			query += fmt.Sprintf(` AND kind = $%d`, argIndex)
			args = append(args, *filter.Kind)
			argIndex++
		}
		if filter.StartDate != nil {
			query += fmt.Sprintf(` AND created_at >= $%d`, argIndex)
			args = append(args, *filter.StartDate)
			argIndex++
		}
		if filter.EndDate != nil {
			query += fmt.Sprintf(` AND created_at <= $%d`, argIndex)
			args = append(args, *filter.EndDate)
			argIndex++
		}
	}

	// Stable pagination: ties on created_at break on id.
	query += ` ORDER BY created_at DESC, id DESC`

	limit := models.DefaultWalletTransactionLimit
	if filter != nil && filter.Limit > 0 {
		limit = filter.Limit
	}
	if limit > models.MaxTransactionLimit {
		limit = models.MaxTransactionLimit
	}

	offset := 0
	if filter != nil && filter.Offset > 0 {
		offset = filter.Offset
	}

	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIndex, argIndex+1)
	args = append(args, limit, offset)

	var transactions []*models.CreditTransaction
	err := r.db.SelectContext(ctx, &transactions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	if transactions == nil {
		transactions = []*models.CreditTransaction{}
	}
	return transactions, nil
}
