package repository

import (
	"context"
	"testing"

	"iterate-orchestrator/internal/database"
	"iterate-orchestrator/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestOwner(t *testing.T, principalRepo *PrincipalRepository) *models.Principal {
	t.Helper()
	p := newTestPrincipal(uniqueEmail("owner"))
	require.NoError(t, principalRepo.Create(context.Background(), p))
	return p
}

func newTestProject(ownerID uuid.UUID, name string) *models.Project {
	return &models.Project{
		OwnerID:       ownerID,
		Name:          name,
		InitialPrompt: "build me a landing page",
		CurrentSpec:   models.ProjectSpec{Pages: []models.Page{{Path: "/", Title: "Home"}}},
	}
}

func TestProjectStore_CreateAndGetByID(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	store := NewProjectStore(sqlxDB)
	ctx := context.Background()

	owner := createTestOwner(t, principalRepo)
	p := newTestProject(owner.ID, "landing-page")
	p.WatermarkEnabled = true
	require.NoError(t, store.Create(ctx, p))
	require.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, models.ProjectStatusDraft, p.Status)

	fetched, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, fetched.Name)
	assert.Equal(t, p.OwnerID, fetched.OwnerID)
	assert.True(t, fetched.WatermarkEnabled)
}

func TestProjectStore_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	store := NewProjectStore(database.GetTestSqlxDB(t))
	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestProjectStore_ListByOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	store := NewProjectStore(sqlxDB)
	ctx := context.Background()

	owner := createTestOwner(t, principalRepo)
	require.NoError(t, store.Create(ctx, newTestProject(owner.ID, "first")))
	require.NoError(t, store.Create(ctx, newTestProject(owner.ID, "second")))

	projects, err := store.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, projects, 2)
}

func TestProjectStore_ListByOwner_Empty(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	store := NewProjectStore(database.GetTestSqlxDB(t))
	projects, err := store.ListByOwner(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestProjectStore_IsOwnedBy(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	store := NewProjectStore(sqlxDB)
	ctx := context.Background()

	owner := createTestOwner(t, principalRepo)
	other := createTestOwner(t, principalRepo)
	p := newTestProject(owner.ID, "owned")
	require.NoError(t, store.Create(ctx, p))

	owned, err := store.IsOwnedBy(ctx, p.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = store.IsOwnedBy(ctx, p.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, owned)

	owned, err = store.IsOwnedBy(ctx, uuid.New(), owner.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestProjectStore_UpdateStatus_WithLock(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	db := database.GetTestDBInstance(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	store := NewProjectStore(sqlxDB)
	ctx := context.Background()

	owner := createTestOwner(t, principalRepo)
	p := newTestProject(owner.ID, "buildable")
	require.NoError(t, store.Create(ctx, p))

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)

	require.NoError(t, LockProject(ctx, tx, p.ID))
	require.NoError(t, store.UpdateStatus(ctx, tx, p.ID, models.ProjectStatusBuilding))
	require.NoError(t, tx.Commit(ctx))

	fetched, err := store.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusBuilding, fetched.Status)
}

func TestVersionRepository_CreateAndNextVersionNumber(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	db := database.GetTestDBInstance(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	projectStore := NewProjectStore(sqlxDB)
	versionRepo := NewVersionRepository(sqlxDB)
	ctx := context.Background()

	owner := createTestOwner(t, principalRepo)
	p := newTestProject(owner.ID, "versioned")
	require.NoError(t, projectStore.Create(ctx, p))

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)

	next, err := versionRepo.NextVersionNumber(ctx, tx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	v := &models.Version{
		ProjectID:     p.ID,
		VersionNumber: next,
		SpecSnapshot:  p.CurrentSpec,
		CreatedBy:     owner.ID,
	}
	require.NoError(t, versionRepo.Create(ctx, tx, v))
	require.NoError(t, tx.Commit(ctx))

	fetched, err := versionRepo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.VersionNumber)

	versions, err := versionRepo.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestVersionRepository_GetByID_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	repo := NewVersionRepository(database.GetTestSqlxDB(t))
	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestBuildRepository_CreateAndUpdateAttempt(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	sqlxDB := database.GetTestSqlxDB(t)
	db := database.GetTestDBInstance(t)
	principalRepo := NewPrincipalRepository(sqlxDB)
	projectStore := NewProjectStore(sqlxDB)
	versionRepo := NewVersionRepository(sqlxDB)
	buildRepo := NewBuildRepository(sqlxDB)
	ctx := context.Background()

	owner := createTestOwner(t, principalRepo)
	p := newTestProject(owner.ID, "buildlog")
	require.NoError(t, projectStore.Create(ctx, p))

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)

	v := &models.Version{ProjectID: p.ID, VersionNumber: 1, SpecSnapshot: p.CurrentSpec, CreatedBy: owner.ID}
	require.NoError(t, versionRepo.Create(ctx, tx, v))

	b := &models.Build{ProjectID: p.ID, VersionID: v.ID, Status: models.BuildStatusBuilding}
	require.NoError(t, buildRepo.Create(ctx, tx, b))
	require.NoError(t, tx.Commit(ctx))

	fetched, err := buildRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.AttemptNumber)

	tx2, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)
	b.Status = models.BuildStatusFailed
	b.AttemptNumber = 2
	b.ErrorMessage = "lint failed"
	require.NoError(t, buildRepo.UpdateAttempt(ctx, tx2, b))
	require.NoError(t, tx2.Commit(ctx))

	fetched, err = buildRepo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fetched.AttemptNumber)
	assert.Equal(t, models.BuildStatusFailed, fetched.Status)

	builds, err := buildRepo.ListByProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, builds, 1)
}

func TestBuildRepository_UpdateAttempt_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := database.GetTestDBInstance(t)
	buildRepo := NewBuildRepository(database.GetTestSqlxDB(t))
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = buildRepo.UpdateAttempt(ctx, tx, &models.Build{ID: uuid.New(), Status: models.BuildStatusFailed})
	assert.ErrorIs(t, err, ErrBuildNotFound)
}
