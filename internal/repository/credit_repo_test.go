package repository

import (
	"context"
	"testing"

	"iterate-orchestrator/internal/database"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/pkg/decimal"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestPrincipalForCredit(t *testing.T, principalRepo *PrincipalRepository, startingBalance decimal.Decimal) *models.Principal {
	t.Helper()
	p := newTestPrincipal(uniqueEmail("credit"))
	p.Credits = startingBalance
	require.NoError(t, principalRepo.Create(context.Background(), p))
	return p
}

func TestCreditRepository_GetBalance_ExistingPrincipal(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	creditRepo := NewCreditRepository(sqlxDB)
	ctx := context.Background()

	principal := createTestPrincipalForCredit(t, principalRepo, decimal.NewFromFloat(25.00))

	balance, err := creditRepo.GetBalance(ctx, principal.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(25.00)))
}

func TestCreditRepository_GetBalance_UnknownPrincipalIsZero(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	creditRepo := NewCreditRepository(sqlxDB)

	balance, err := creditRepo.GetBalance(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestCreditRepository_GetBalanceForUpdateAndUpdateBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := database.GetTestDBInstance(t)
	principalRepo := NewPrincipalRepository(database.GetTestSqlxDB(t))
	creditRepo := NewCreditRepository(database.GetTestSqlxDB(t))
	ctx := context.Background()

	principal := createTestPrincipalForCredit(t, principalRepo, decimal.NewFromFloat(10.00))

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)

	locked, err := creditRepo.GetBalanceForUpdate(ctx, tx, principal.ID)
	require.NoError(t, err)
	assert.True(t, locked.Equal(decimal.NewFromFloat(10.00)))

	newBalance := locked.Sub(decimal.NewFromFloat(4.50))
	require.NoError(t, creditRepo.UpdateBalance(ctx, tx, principal.ID, newBalance))
	require.NoError(t, tx.Commit(ctx))

	balance, err := creditRepo.GetBalance(ctx, principal.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(5.50)))
}

func TestCreditRepository_UpdateBalance_UnknownPrincipal(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := database.GetTestDBInstance(t)
	creditRepo := NewCreditRepository(database.GetTestSqlxDB(t))
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = creditRepo.UpdateBalance(ctx, tx, uuid.New(), decimal.NewFromFloat(1.00))
	assert.ErrorIs(t, err, ErrCreditNotFound)
}

func TestCreditRepository_CreateTransactionAndHistory(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := database.GetTestDBInstance(t)
	principalRepo := NewPrincipalRepository(database.GetTestSqlxDB(t))
	creditRepo := NewCreditRepository(database.GetTestSqlxDB(t))
	ctx := context.Background()

	principal := createTestPrincipalForCredit(t, principalRepo, decimal.Zero)

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)

	grant := &models.CreditTransaction{
		PrincipalID: principal.ID,
		Amount:      decimal.NewFromFloat(10.00),
		Kind:        models.CreditKindGrant,
		Description: "signup bonus",
	}
	require.NoError(t, creditRepo.CreateTransaction(ctx, tx, grant))

	charge := &models.CreditTransaction{
		PrincipalID: principal.ID,
		Amount:      decimal.NewFromFloat(-3.25),
		Kind:        models.CreditKindCharge,
		Description: "iterate",
	}
	require.NoError(t, creditRepo.CreateTransaction(ctx, tx, charge))
	require.NoError(t, tx.Commit(ctx))

	history, err := creditRepo.GetTransactionHistory(ctx, &models.GetCreditHistoryFilter{PrincipalID: &principal.ID})
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, models.CreditKindCharge, history[0].Kind)
	assert.Equal(t, models.CreditKindGrant, history[1].Kind)
}

func TestCreditRepository_GetTransactionHistory_Pagination(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := database.GetTestDBInstance(t)
	principalRepo := NewPrincipalRepository(database.GetTestSqlxDB(t))
	creditRepo := NewCreditRepository(database.GetTestSqlxDB(t))
	ctx := context.Background()

	principal := createTestPrincipalForCredit(t, principalRepo, decimal.Zero)

	for i := 0; i < 5; i++ {
		tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
		require.NoError(t, err)
		require.NoError(t, creditRepo.CreateTransaction(ctx, tx, &models.CreditTransaction{
			PrincipalID: principal.ID,
			Amount:      decimal.NewFromFloat(1.00),
			Kind:        models.CreditKindGrant,
			Description: "grant",
		}))
		require.NoError(t, tx.Commit(ctx))
	}

	page1, err := creditRepo.GetTransactionHistory(ctx, &models.GetCreditHistoryFilter{PrincipalID: &principal.ID, Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, page1, 2)

	page2, err := creditRepo.GetTransactionHistory(ctx, &models.GetCreditHistoryFilter{PrincipalID: &principal.ID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)

	assert.NotEqual(t, page1[0].ID, page2[0].ID)
}

func TestCreditRepository_GetTransactionHistory_LimitCapped(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	creditRepo := NewCreditRepository(sqlxDB)

	history, err := creditRepo.GetTransactionHistory(context.Background(), &models.GetCreditHistoryFilter{Limit: 10000})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(history), models.MaxTransactionLimit)
}
