package repository

import (
	"context"
	"fmt"
	"testing"

	"iterate-orchestrator/internal/database"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/pkg/decimal"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrincipal(email string) *models.Principal {
	return &models.Principal{
		Email:        email,
		PasswordHash: "test-hash",
		Role:         models.RoleFree,
		Credits:      models.FreeTierStartingCredits,
	}
}

func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@test.com", prefix, uuid.New().String()[:8])
}

func TestPrincipalRepository_CreateAndGetByID(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	repo := NewPrincipalRepository(sqlxDB)
	ctx := context.Background()

	p := newTestPrincipal(uniqueEmail("create"))
	require.NoError(t, repo.Create(ctx, p))
	require.NotEqual(t, uuid.Nil, p.ID)

	fetched, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Email, fetched.Email)
	assert.True(t, fetched.Credits.Equal(models.FreeTierStartingCredits))
}

func TestPrincipalRepository_CreateDuplicateEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	repo := NewPrincipalRepository(sqlxDB)
	ctx := context.Background()

	email := uniqueEmail("dup")
	require.NoError(t, repo.Create(ctx, newTestPrincipal(email)))

	err := repo.Create(ctx, newTestPrincipal(email))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrincipalExists)
}

func TestPrincipalRepository_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	repo := NewPrincipalRepository(sqlxDB)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestPrincipalRepository_GetByEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	repo := NewPrincipalRepository(sqlxDB)
	ctx := context.Background()

	email := uniqueEmail("byemail")
	p := newTestPrincipal(email)
	require.NoError(t, repo.Create(ctx, p))

	fetched, err := repo.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, p.ID, fetched.ID)

	_, err = repo.GetByEmail(ctx, uniqueEmail("missing"))
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestPrincipalRepository_CreditsRoundTripPreservesCents(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	repo := NewPrincipalRepository(sqlxDB)
	ctx := context.Background()

	p := newTestPrincipal(uniqueEmail("cents"))
	p.Credits = decimal.NewFromCents(1234)
	require.NoError(t, repo.Create(ctx, p))

	fetched, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), fetched.Credits.Cents())
}
