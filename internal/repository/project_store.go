package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"iterate-orchestrator/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
)

// ProjectStore is the durable store backing projects. Create is a plain
// insert and takes no lock; the orchestrator's mid-iteration writes take
// the project's advisory lock (LockProject) first. An advisory lock is used
// rather than a row lock because it is keyed by the project id, not by an
// existing row.
type ProjectStore struct {
	db *sqlx.DB
}

func NewProjectStore(db *sqlx.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

// projectLockKey derives a stable advisory lock key from a project id, the
// same way the teacher's template-application flow keys its lock off a
// template id and week: a 64-bit hash of the identifier, not the identifier
// itself (pg_advisory_xact_lock takes a bigint, not a uuid).
func projectLockKey(projectID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(projectID[:])
	return int64(h.Sum64())
}

// LockProject acquires a transaction-scoped advisory lock on projectID.
// Released automatically on commit or rollback. The orchestrator takes it
// once per mutating step (append version, write build, update project
// status), so each step runs alone for its project; the lock is not held
// across a whole iteration, and two concurrent iterations on the same
// project can interleave between steps.
func LockProject(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, projectLockKey(projectID)); err != nil {
		return fmt.Errorf("failed to acquire project lock: %w", err)
	}
	return nil
}

func (s *ProjectStore) Create(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (id, owner_id, name, initial_prompt, current_spec, status, watermark_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = models.ProjectStatusDraft
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.OwnerID, p.Name, p.InitialPrompt, p.CurrentSpec, p.Status, p.WatermarkEnabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *ProjectStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT id, owner_id, name, initial_prompt, current_spec, status,
		       preview_url, published_url, custom_domain, watermark_enabled, created_at, updated_at
		FROM projects WHERE id = $1
	`
	var p models.Project
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// ListByOwner returns the owner's projects, newest first.
func (s *ProjectStore) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error) {
	query := `
		SELECT id, owner_id, name, initial_prompt, current_spec, status,
		       preview_url, published_url, custom_domain, watermark_enabled, created_at, updated_at
		FROM projects WHERE owner_id = $1 ORDER BY created_at DESC
	`
	var projects []*models.Project
	if err := s.db.SelectContext(ctx, &projects, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return projects, nil
}

// IsOwnedBy satisfies handlers.ProjectAccessChecker: it reports whether
// principalID owns projectID, without loading the full row.
func (s *ProjectStore) IsOwnedBy(ctx context.Context, projectID, principalID uuid.UUID) (bool, error) {
	var ownerID uuid.UUID
	query := `SELECT owner_id FROM projects WHERE id = $1`
	if err := s.db.GetContext(ctx, &ownerID, query, projectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check project ownership: %w", err)
	}
	return ownerID == principalID, nil
}

// UpdateSpecAndStatus persists the project's current spec and lifecycle
// status within tx. Callers hold LockProject first.
func (s *ProjectStore) UpdateSpecAndStatus(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, spec models.ProjectSpec, status models.ProjectStatus) error {
	query := `UPDATE projects SET current_spec = $1, status = $2, updated_at = $3 WHERE id = $4`
	result, err := tx.Exec(ctx, query, spec, status, time.Now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project spec/status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// UpdateStatus persists only the lifecycle status, e.g. draft -> building.
func (s *ProjectStore) UpdateStatus(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, status models.ProjectStatus) error {
	query := `UPDATE projects SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := tx.Exec(ctx, query, status, time.Now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// UpdatePreviewURL records where a successful build's artifact was published.
func (s *ProjectStore) UpdatePreviewURL(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, previewURL string) error {
	query := `UPDATE projects SET preview_url = $1, updated_at = $2 WHERE id = $3`
	_, err := tx.Exec(ctx, query, previewURL, time.Now(), projectID)
	if err != nil {
		return fmt.Errorf("failed to update project preview url: %w", err)
	}
	return nil
}

// VersionRepository stores the append-only version history of a project.
type VersionRepository struct {
	db *sqlx.DB
}

func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// NextVersionNumber returns the version number the next insert should use,
// read within tx so it observes the lock LockProject already took.
func (r *VersionRepository) NextVersionNumber(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (int, error) {
	var maxNumber sql.NullInt32
	query := `SELECT MAX(version_number) FROM versions WHERE project_id = $1`
	if err := tx.QueryRow(ctx, query, projectID).Scan(&maxNumber); err != nil {
		return 0, fmt.Errorf("failed to read max version number: %w", err)
	}
	if !maxNumber.Valid {
		return 1, nil
	}
	return int(maxNumber.Int32) + 1, nil
}

// Create appends one version row within tx. Never updates an existing row:
// a rollback creates a new version whose snapshot duplicates an earlier
// one, it does not rewrite history.
func (r *VersionRepository) Create(ctx context.Context, tx pgx.Tx, v *models.Version) error {
	query := `
		INSERT INTO versions (id, project_id, version_number, spec_snapshot, code_diff, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	v.ID = uuid.New()
	v.CreatedAt = time.Now()

	_, err := tx.Exec(ctx, query, v.ID, v.ProjectID, v.VersionNumber, v.SpecSnapshot, v.CodeDiff, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Version, error) {
	query := `SELECT id, project_id, version_number, spec_snapshot, code_diff, created_by, created_at FROM versions WHERE id = $1`
	var v models.Version
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &v, nil
}

// ListByProject returns every version of a project, newest first.
func (r *VersionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Version, error) {
	query := `
		SELECT id, project_id, version_number, spec_snapshot, code_diff, created_by, created_at
		FROM versions WHERE project_id = $1 ORDER BY version_number DESC
	`
	var versions []*models.Version
	if err := r.db.SelectContext(ctx, &versions, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if versions == nil {
		versions = []*models.Version{}
	}
	return versions, nil
}

// ListVersionsDesc is the named query the core uses to list a project's
// versions newest first - an alias kept distinct from ListByProject so
// callers spell out the ordering they depend on.
func (r *VersionRepository) ListVersionsDesc(ctx context.Context, projectID uuid.UUID) ([]*models.Version, error) {
	return r.ListByProject(ctx, projectID)
}

// LatestVersion returns the highest-numbered version of a project.
func (r *VersionRepository) LatestVersion(ctx context.Context, projectID uuid.UUID) (*models.Version, error) {
	query := `
		SELECT id, project_id, version_number, spec_snapshot, code_diff, created_by, created_at
		FROM versions WHERE project_id = $1 ORDER BY version_number DESC LIMIT 1
	`
	var v models.Version
	if err := r.db.GetContext(ctx, &v, query, projectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}
	return &v, nil
}

// BuildRepository stores build attempts, one row per logical build,
// mutated in place across repair iterations.
type BuildRepository struct {
	db *sqlx.DB
}

func NewBuildRepository(db *sqlx.DB) *BuildRepository {
	return &BuildRepository{db: db}
}

func (r *BuildRepository) Create(ctx context.Context, tx pgx.Tx, b *models.Build) error {
	query := `
		INSERT INTO builds (id, project_id, version_id, status, attempt_number, build_logs, lint_output, build_output, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	if b.AttemptNumber == 0 {
		b.AttemptNumber = 1
	}

	_, err := tx.Exec(ctx, query,
		b.ID, b.ProjectID, b.VersionID, b.Status, b.AttemptNumber, b.BuildLogs, b.LintOutput, b.BuildOutput, b.ErrorMessage, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

// UpdateAttempt records the outcome of one repair attempt in place: the
// same build row, an incremented attempt number, fresh logs.
func (r *BuildRepository) UpdateAttempt(ctx context.Context, tx pgx.Tx, b *models.Build) error {
	query := `
		UPDATE builds
		SET status = $1, attempt_number = $2, build_logs = $3, lint_output = $4,
		    build_output = $5, error_message = $6, exit_code = $7, preview_url = $8, completed_at = $9
		WHERE id = $10
	`
	result, err := tx.Exec(ctx, query,
		b.Status, b.AttemptNumber, b.BuildLogs, b.LintOutput, b.BuildOutput, b.ErrorMessage,
		b.ExitCode, b.PreviewURL, b.CompletedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update build attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBuildNotFound
	}
	return nil
}

func (r *BuildRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Build, error) {
	query := `
		SELECT id, project_id, version_id, status, attempt_number, build_logs, lint_output,
		       build_output, error_message, exit_code, preview_url, created_at, completed_at
		FROM builds WHERE id = $1
	`
	var b models.Build
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBuildNotFound
		}
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return &b, nil
}

// ListByProject returns every build of a project, newest first.
func (r *BuildRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Build, error) {
	query := `
		SELECT id, project_id, version_id, status, attempt_number, build_logs, lint_output,
		       build_output, error_message, exit_code, preview_url, created_at, completed_at
		FROM builds WHERE project_id = $1 ORDER BY created_at DESC
	`
	var builds []*models.Build
	if err := r.db.SelectContext(ctx, &builds, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	if builds == nil {
		builds = []*models.Build{}
	}
	return builds, nil
}

// LatestBuild returns the most recently created build for a project, the
// one the orchestrator resumes or reports on when no version is specified.
func (r *BuildRepository) LatestBuild(ctx context.Context, projectID uuid.UUID) (*models.Build, error) {
	query := `
		SELECT id, project_id, version_id, status, attempt_number, build_logs, lint_output,
		       build_output, error_message, exit_code, preview_url, created_at, completed_at
		FROM builds WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1
	`
	var b models.Build
	if err := r.db.GetContext(ctx, &b, query, projectID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBuildNotFound
		}
		return nil, fmt.Errorf("failed to get latest build: %w", err)
	}
	return &b, nil
}

// LatestBuildForVersion returns the build row created for a specific
// version, used by Rollback to find the files/spec of the target version's
// build when synthesizing a rebuild after rollback.
func (r *BuildRepository) LatestBuildForVersion(ctx context.Context, versionID uuid.UUID) (*models.Build, error) {
	query := `
		SELECT id, project_id, version_id, status, attempt_number, build_logs, lint_output,
		       build_output, error_message, exit_code, preview_url, created_at, completed_at
		FROM builds WHERE version_id = $1 ORDER BY created_at DESC LIMIT 1
	`
	var b models.Build
	if err := r.db.GetContext(ctx, &b, query, versionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBuildNotFound
		}
		return nil, fmt.Errorf("failed to get build for version: %w", err)
	}
	return &b, nil
}
