package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iterate-orchestrator/internal/database"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/internal/utils"
	"iterate-orchestrator/pkg/decimal"
	"iterate-orchestrator/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// CreditLedger is the sole writer of principal balances. Every charge,
// grant, and refund runs inside a Serializable transaction that locks the
// principal's row before reading it, so two concurrent iterations against
// the same principal can never both observe a stale balance.
type CreditLedger struct {
	db         *database.DB
	creditRepo *repository.CreditRepository
}

func NewCreditLedger(db *database.DB, creditRepo *repository.CreditRepository) *CreditLedger {
	return &CreditLedger{db: db, creditRepo: creditRepo}
}

// Wallet is the principal-facing balance summary.
type Wallet struct {
	PrincipalID uuid.UUID       `json:"principal_id"`
	Balance     decimal.Decimal `json:"balance"`
}

func (l *CreditLedger) Wallet(ctx context.Context, principalID uuid.UUID) (*Wallet, error) {
	balance, err := l.creditRepo.GetBalance(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}
	return &Wallet{PrincipalID: principalID, Balance: balance}, nil
}

func (l *CreditLedger) History(ctx context.Context, filter *models.GetCreditHistoryFilter) ([]*models.CreditTransaction, error) {
	return l.creditRepo.GetTransactionHistory(ctx, filter)
}

// Charge debits amount from principalID, refusing if the resulting balance
// would go negative. It is the only path through which the orchestrator
// pays for create/iterate/rebuild/rollback operations.
func (l *CreditLedger) Charge(ctx context.Context, principalID uuid.UUID, amount decimal.Decimal, reason string, projectID uuid.NullUUID) (*models.CreditTransaction, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidCreditAmount
	}
	if reason == "" {
		return nil, models.ErrInvalidReason
	}

	txn, err := l.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) (*models.CreditTransaction, error) {
		balance, err := l.creditRepo.GetBalanceForUpdate(ctx, tx, principalID)
		if err != nil {
			return nil, err
		}
		if balance.LessThan(amount) {
			return nil, models.ErrInsufficientCredits
		}

		newBalance := balance.Sub(amount)
		if err := l.creditRepo.UpdateBalance(ctx, tx, principalID, newBalance); err != nil {
			return nil, err
		}

		transaction := &models.CreditTransaction{
			PrincipalID: principalID,
			Amount:      amount.Neg(),
			Kind:        models.CreditKindCharge,
			Description: reason,
			ProjectID:   projectID,
		}
		if err := l.creditRepo.CreateTransaction(ctx, tx, transaction); err != nil {
			return nil, err
		}
		return transaction, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsChargedTotal.Add(amount.Float64())
	log.Debug().
		Str("principal_id", utils.MaskPrincipalID(principalID)).
		Str("amount", utils.MaskAmount(amount)).
		Msg("credits charged")
	return txn, nil
}

// Grant credits amount to principalID and records a grant transaction.
// Signup credits do not go through Grant: PrincipalRepository.Create writes
// them with the principal row.
func (l *CreditLedger) Grant(ctx context.Context, principalID uuid.UUID, amount decimal.Decimal, reason string) (*models.CreditTransaction, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidCreditAmount
	}
	if reason == "" {
		return nil, models.ErrInvalidReason
	}

	txn, err := l.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) (*models.CreditTransaction, error) {
		balance, err := l.creditRepo.GetBalanceForUpdate(ctx, tx, principalID)
		if err != nil {
			return nil, err
		}

		newBalance := balance.Add(amount)
		if err := l.creditRepo.UpdateBalance(ctx, tx, principalID, newBalance); err != nil {
			return nil, err
		}

		transaction := &models.CreditTransaction{
			PrincipalID: principalID,
			Amount:      amount,
			Kind:        models.CreditKindGrant,
			Description: reason,
		}
		if err := l.creditRepo.CreateTransaction(ctx, tx, transaction); err != nil {
			return nil, err
		}
		return transaction, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsGrantedTotal.Add(amount.Float64())
	log.Debug().
		Str("principal_id", utils.MaskPrincipalID(principalID)).
		Str("amount", utils.MaskAmount(amount)).
		Msg("credits granted")
	return txn, nil
}

// Refund credits amount back to principalID after a charged operation
// failed to complete (e.g. project template setup or the project insert
// failed after the create charge).
func (l *CreditLedger) Refund(ctx context.Context, principalID uuid.UUID, amount decimal.Decimal, reason string, projectID uuid.NullUUID) (*models.CreditTransaction, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidCreditAmount
	}
	if reason == "" {
		return nil, models.ErrInvalidReason
	}

	txn, err := l.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) (*models.CreditTransaction, error) {
		balance, err := l.creditRepo.GetBalanceForUpdate(ctx, tx, principalID)
		if err != nil {
			return nil, err
		}

		newBalance := balance.Add(amount)
		if err := l.creditRepo.UpdateBalance(ctx, tx, principalID, newBalance); err != nil {
			return nil, err
		}

		transaction := &models.CreditTransaction{
			PrincipalID: principalID,
			Amount:      amount,
			Kind:        models.CreditKindRefund,
			Description: reason,
			ProjectID:   projectID,
		}
		if err := l.creditRepo.CreateTransaction(ctx, tx, transaction); err != nil {
			return nil, err
		}
		return transaction, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsRefundedTotal.Add(amount.Float64())
	log.Debug().
		Str("principal_id", utils.MaskPrincipalID(principalID)).
		Str("amount", utils.MaskAmount(amount)).
		Msg("credits refunded")
	return txn, nil
}

// withRetry runs fn inside one Serializable transaction, retrying once on
// a 40001 serialization failure before giving up. Two concurrent ledger
// operations on the same principal resolve by one aborting and retrying
// against the other's committed balance.
func (l *CreditLedger) withRetry(ctx context.Context, fn func(context.Context, pgx.Tx) (*models.CreditTransaction, error)) (*models.CreditTransaction, error) {
	const maxAttempts = 2

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		txn, err := l.runInTx(ctx, fn)
		if err == nil {
			return txn, nil
		}
		if !repository.IsSerializationFailure(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("credit ledger operation aborted after retry: %w", lastErr)
}

func (l *CreditLedger) runInTx(ctx context.Context, fn func(context.Context, pgx.Tx) (*models.CreditTransaction, error)) (*models.CreditTransaction, error) {
	tx, err := l.db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	txn, err := fn(txCtx, tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return nil, fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return txn, nil
}
