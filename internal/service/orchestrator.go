package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"iterate-orchestrator/internal/database"
	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/internal/sandbox"
	"iterate-orchestrator/pkg/decimal"
	"iterate-orchestrator/pkg/metrics"
	"iterate-orchestrator/pkg/redact"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Credit costs for orchestrator-charged operations. create_project and the
// edit-size tiers mirror the original service's CREDIT_COSTS table exactly;
// rebuild/rollback are supplemented operations named in the Control API but
// not priced in the distilled change-size table.
var (
	createProjectCost = decimal.NewFromFloat(5.0)
	rebuildCost       = decimal.NewFromFloat(1.0)
	rollbackCost      = decimal.NewFromFloat(3.0)
)

// promptRateLimitMax/promptRateLimitWindowSeconds bound prompt-iteration
// submissions to 10 per 60 seconds per principal, independent of the
// token-bucket PrincipalRateLimiter fronting the HTTP handler.
const (
	promptRateLimitMax           = 10
	promptRateLimitWindowSeconds = 60

	stableTemplate = "nextjs-stable"
)

type changeSizeRule struct {
	size     models.ChangeSize
	maxFiles int
	maxLines int
	patterns []string
	cost     decimal.Decimal
}

// changeSizeRules are evaluated in order small -> medium -> large; the
// first rule whose keyword matches the message OR whose file/line counts
// stay within its limits wins. Grounded byte-for-byte on
// project_orchestrator.py's CHANGE_SIZE_RULES dict and its iteration order
// (Python dicts preserve insertion order).
var changeSizeRules = []changeSizeRule{
	{models.ChangeSizeSmall, 1, 50, []string{"change", "update", "replace", "fix typo"}, decimal.NewFromFloat(1.0)},
	{models.ChangeSizeMedium, 3, 200, []string{"add", "remove", "modify", "update component"}, decimal.NewFromFloat(3.0)},
	{models.ChangeSizeLarge, math.MaxInt32, math.MaxInt32, []string{"refactor", "restructure", "redesign", "major"}, decimal.NewFromFloat(10.0)},
}

// Orchestrator sequences one prompt iteration end to end: authorize,
// snapshot, diff, apply, build, repair, commit. It is the only writer of
// Projects, Versions, Builds, and Chat Messages.
type Orchestrator struct {
	db       *database.DB
	store    *repository.ProjectStore
	versions *repository.VersionRepository
	builds   *repository.BuildRepository
	chat     *ChatService
	ledger   *CreditLedger
	limiter  middleware.WindowLimiter
	diff     *DiffEngine
	linter   Linter
	runner   *sandbox.RunnerClient
	repair   *RepairAnalyzer

	projectsDir  string
	templatesDir string
}

func NewOrchestrator(
	db *database.DB,
	store *repository.ProjectStore,
	versions *repository.VersionRepository,
	builds *repository.BuildRepository,
	chat *ChatService,
	ledger *CreditLedger,
	limiter middleware.WindowLimiter,
	diff *DiffEngine,
	linter Linter,
	runner *sandbox.RunnerClient,
	repair *RepairAnalyzer,
	projectsDir, templatesDir string,
) *Orchestrator {
	return &Orchestrator{
		db:           db,
		store:        store,
		versions:     versions,
		builds:       builds,
		chat:         chat,
		ledger:       ledger,
		limiter:      limiter,
		diff:         diff,
		linter:       linter,
		runner:       runner,
		repair:       repair,
		projectsDir:  projectsDir,
		templatesDir: templatesDir,
	}
}

// CreateProject materializes a new project from a template, charges the
// creation fee, and runs the initial build loop. Spec §4.7: "project
// creation differs only by template copy, placeholder substitution,
// version_number=1, charge=create_project; otherwise runs the build loop
// identically."
func (o *Orchestrator) CreateProject(ctx context.Context, principal uuid.UUID, name, prompt string) (models.Project, models.Version, models.Build, error) {
	defer observeIterationDuration("create", time.Now())

	var zeroP models.Project
	var zeroV models.Version
	var zeroB models.Build

	if name == "" {
		return zeroP, zeroV, zeroB, models.ErrInvalidProjectName
	}
	if prompt == "" {
		return zeroP, zeroV, zeroB, models.ErrEmptyPrompt
	}
	if len(prompt) > models.MaxPromptLength {
		return zeroP, zeroV, zeroB, models.ErrPromptTooLong
	}

	if _, err := o.ledger.Charge(ctx, principal, createProjectCost, fmt.Sprintf("Create project: %s", name), uuid.NullUUID{}); err != nil {
		return zeroP, zeroV, zeroB, err
	}

	spec := generateInitialSpec(prompt)
	project := &models.Project{
		ID:               uuid.New(),
		OwnerID:          principal,
		Name:             name,
		InitialPrompt:    prompt,
		CurrentSpec:      spec,
		Status:           models.ProjectStatusBuilding,
		WatermarkEnabled: true,
	}

	projectDir := filepath.Join(o.projectsDir, project.ID.String())
	if err := o.initializeProjectDirectory(project, projectDir); err != nil {
		_, _ = o.ledger.Refund(ctx, principal, createProjectCost, "Refund: project template initialization failed", uuid.NullUUID{})
		return zeroP, zeroV, zeroB, fmt.Errorf("failed to initialize project directory: %w", err)
	}

	if err := o.store.Create(ctx, project); err != nil {
		_, _ = o.ledger.Refund(ctx, principal, createProjectCost, "Refund: project creation failed", uuid.NullUUID{})
		return zeroP, zeroV, zeroB, err
	}

	version := &models.Version{ProjectID: project.ID, VersionNumber: 1, SpecSnapshot: spec, CreatedBy: principal}
	if err := o.withProjectLock(ctx, project.ID, func(tx pgx.Tx) error {
		return o.versions.Create(ctx, tx, version)
	}); err != nil {
		return zeroP, zeroV, zeroB, err
	}

	build, err := o.runBuildLoop(ctx, project, version, projectDir)
	if err != nil {
		return zeroP, zeroV, zeroB, err
	}

	if err := o.finalizeProjectStatus(ctx, project, build); err != nil {
		return zeroP, zeroV, zeroB, err
	}

	return *project, *version, *build, nil
}

// Iterate implements spec §4.7 steps 1-15: authorize, guard rails, rate
// limit, lock, persist chat message, snapshot, generate+apply edits,
// classify change size, charge, version, build+repair.
func (o *Orchestrator) Iterate(ctx context.Context, principal, projectID uuid.UUID, message string) (models.Version, models.Build, models.ChangeSize, decimal.Decimal, error) {
	defer observeIterationDuration("iterate", time.Now())

	var zeroV models.Version
	var zeroB models.Build

	project, err := o.store.GetByID(ctx, projectID)
	if err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}
	if project.OwnerID != principal {
		return zeroV, zeroB, "", decimal.Zero, repository.ErrProjectNotFound
	}

	if message == "" {
		return zeroV, zeroB, "", decimal.Zero, models.ErrEmptyPrompt
	}
	if len(message) > models.MaxPromptLength {
		return zeroV, zeroB, "", decimal.Zero, models.ErrPromptTooLong
	}

	allowed, err := o.limiter.Allow(ctx, principal, "prompt", promptRateLimitMax, promptRateLimitWindowSeconds)
	if err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}
	if !allowed {
		return zeroV, zeroB, "", decimal.Zero, models.ErrRateLimited
	}

	projectDir := filepath.Join(o.projectsDir, project.ID.String())

	if _, err := o.chat.RecordPrompt(ctx, project.ID, principal, message); err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	oldFiles, err := collectProjectFiles(projectDir)
	if err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	updatedSpec := updateSpecFromMessage(project.CurrentSpec, message)

	changes, err := o.diff.GenerateFromPrompt(message, projectDir)
	if err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	applied, err := o.diff.ApplyAndVerify(ctx, projectDir, changes, o.linter)
	if err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	newFiles, err := collectProjectFiles(projectDir)
	if err != nil {
		o.diff.Revert(projectDir, applied)
		return zeroV, zeroB, "", decimal.Zero, err
	}
	codeDiff := o.diff.ComputeChanges(oldFiles, newFiles)

	numFiles := len(codeDiff.Modified) + len(codeDiff.Added) + len(codeDiff.Deleted)
	totalLines := diffLineCount(codeDiff)
	size, _, cost := classifyChangeSize(message, numFiles, totalLines)

	reason := fmt.Sprintf("%s edit on %s", capitalize(string(size)), project.Name)
	if _, err := o.ledger.Charge(ctx, principal, cost, reason, uuid.NullUUID{UUID: project.ID, Valid: true}); err != nil {
		o.diff.Revert(projectDir, applied)
		return zeroV, zeroB, "", decimal.Zero, err
	}

	version := &models.Version{ProjectID: project.ID, SpecSnapshot: updatedSpec, CodeDiff: &codeDiff, CreatedBy: principal}
	if err := o.withProjectLock(ctx, project.ID, func(tx pgx.Tx) error {
		next, err := o.versions.NextVersionNumber(ctx, tx, project.ID)
		if err != nil {
			return err
		}
		version.VersionNumber = next
		if err := o.versions.Create(ctx, tx, version); err != nil {
			return err
		}
		return o.store.UpdateSpecAndStatus(ctx, tx, project.ID, updatedSpec, models.ProjectStatusBuilding)
	}); err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	build, err := o.runBuildLoop(ctx, project, version, projectDir)
	if err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	if err := o.finalizeProjectStatus(ctx, project, build); err != nil {
		return zeroV, zeroB, "", decimal.Zero, err
	}

	return *version, *build, size, cost, nil
}

// Rebuild re-runs the build loop against the project's latest version
// without creating a new Version, charged at the flat rebuild rate.
func (o *Orchestrator) Rebuild(ctx context.Context, principal, projectID uuid.UUID) (models.Build, error) {
	defer observeIterationDuration("rebuild", time.Now())

	var zeroB models.Build

	project, err := o.store.GetByID(ctx, projectID)
	if err != nil {
		return zeroB, err
	}
	if project.OwnerID != principal {
		return zeroB, repository.ErrProjectNotFound
	}

	if _, err := o.ledger.Charge(ctx, principal, rebuildCost, fmt.Sprintf("Rebuild %s", project.Name), uuid.NullUUID{UUID: project.ID, Valid: true}); err != nil {
		return zeroB, err
	}

	version, err := o.versions.LatestVersion(ctx, project.ID)
	if err != nil {
		return zeroB, err
	}

	projectDir := filepath.Join(o.projectsDir, project.ID.String())
	build, err := o.runBuildLoop(ctx, project, version, projectDir)
	if err != nil {
		return zeroB, err
	}

	if err := o.finalizeProjectStatus(ctx, project, build); err != nil {
		return zeroB, err
	}
	return *build, nil
}

// Rollback creates a new, append-only Version copying a target version's
// spec_snapshot, then rebuilds against the project's current working
// files. It never mutates the target version, and it never reconstructs
// historical file content: CodeDiff retains unified diffs and add/delete
// path lists, not full snapshots, so "rollback" restores the recorded
// intent (the spec) and re-derives a fresh build from the live tree - the
// same non-contiguous-duplicate-snapshot behavior the original service
// exhibits for any version whose on-disk files have since changed.
func (o *Orchestrator) Rollback(ctx context.Context, principal, projectID, targetVersionID uuid.UUID) (models.Version, models.Build, error) {
	defer observeIterationDuration("rollback", time.Now())

	var zeroV models.Version
	var zeroB models.Build

	project, err := o.store.GetByID(ctx, projectID)
	if err != nil {
		return zeroV, zeroB, err
	}
	if project.OwnerID != principal {
		return zeroV, zeroB, repository.ErrProjectNotFound
	}

	target, err := o.versions.GetByID(ctx, targetVersionID)
	if err != nil {
		return zeroV, zeroB, err
	}
	if target.ProjectID != project.ID {
		return zeroV, zeroB, repository.ErrVersionNotFound
	}

	if _, err := o.ledger.Charge(ctx, principal, rollbackCost, fmt.Sprintf("Rollback %s to v%d", project.Name, target.VersionNumber), uuid.NullUUID{UUID: project.ID, Valid: true}); err != nil {
		return zeroV, zeroB, err
	}

	newVersion := &models.Version{
		ProjectID:    project.ID,
		SpecSnapshot: target.SpecSnapshot,
		CodeDiff:     target.CodeDiff,
		CreatedBy:    principal,
	}
	if err := o.withProjectLock(ctx, project.ID, func(tx pgx.Tx) error {
		next, err := o.versions.NextVersionNumber(ctx, tx, project.ID)
		if err != nil {
			return err
		}
		newVersion.VersionNumber = next
		if err := o.versions.Create(ctx, tx, newVersion); err != nil {
			return err
		}
		return o.store.UpdateSpecAndStatus(ctx, tx, project.ID, target.SpecSnapshot, models.ProjectStatusBuilding)
	}); err != nil {
		return zeroV, zeroB, err
	}

	projectDir := filepath.Join(o.projectsDir, project.ID.String())
	build, err := o.runBuildLoop(ctx, project, newVersion, projectDir)
	if err != nil {
		return zeroV, zeroB, err
	}

	if err := o.finalizeProjectStatus(ctx, project, build); err != nil {
		return zeroV, zeroB, err
	}
	return *newVersion, *build, nil
}

func (o *Orchestrator) finalizeProjectStatus(ctx context.Context, project *models.Project, build *models.Build) error {
	finalStatus := models.ProjectStatusFailed
	if build.Status == models.BuildStatusSuccess {
		finalStatus = models.ProjectStatusReady
	}
	err := o.withProjectLock(ctx, project.ID, func(tx pgx.Tx) error {
		if err := o.store.UpdateStatus(ctx, tx, project.ID, finalStatus); err != nil {
			return err
		}
		if build.PreviewURL.Valid {
			return o.store.UpdatePreviewURL(ctx, tx, project.ID, build.PreviewURL.String)
		}
		return nil
	})
	if err != nil {
		return err
	}
	project.Status = finalStatus
	if build.PreviewURL.Valid {
		project.PreviewURL = build.PreviewURL
	}

	o.chat.BroadcastBuildCompleted(build)
	if build.Status == models.BuildStatusSuccess {
		_, _ = o.chat.RecordAssistantReply(ctx, project.ID, uuid.Nil, "Build succeeded.")
	} else {
		_, _ = o.chat.RecordAssistantReply(ctx, project.ID, uuid.Nil, fmt.Sprintf("Build failed after %d attempt(s).", build.AttemptNumber))
	}
	return nil
}

// withProjectLock runs fn inside a Serializable transaction holding
// projectID's advisory lock, committing on success and rolling back on any
// error fn returns.
func (o *Orchestrator) withProjectLock(ctx context.Context, projectID uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := o.db.BeginTx(ctx, &database.TxOptions{IsolationLevel: "SERIALIZABLE"})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := repository.LockProject(ctx, tx, projectID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// runBuildLoop drives one logical build through up to MaxBuildAttempts
// attempts, mutating a single Build row in place: attempt 1 calls the
// runner's build endpoint, attempts 2-3 analyze the prior failure, generate
// a bounded patch, validate every patched path, and call the runner's
// repair endpoint. Grounded on project_orchestrator.py's
// _build_project_with_repair.
func (o *Orchestrator) runBuildLoop(ctx context.Context, project *models.Project, version *models.Version, projectDir string) (*models.Build, error) {
	build := &models.Build{
		ProjectID:     project.ID,
		VersionID:     version.ID,
		Status:        models.BuildStatusBuilding,
		AttemptNumber: 1,
	}
	if err := o.withProjectLock(ctx, project.ID, func(tx pgx.Tx) error {
		return o.builds.Create(ctx, tx, build)
	}); err != nil {
		return nil, fmt.Errorf("failed to create build record: %w", err)
	}
	o.chat.BroadcastBuildStatus(build)

	for attempt := 1; attempt <= models.MaxBuildAttempts; attempt++ {
		var result sandbox.BuildResult
		var runErr error
		if attempt == 1 {
			result, runErr = o.runner.Build(ctx, sandbox.BuildRequest{
				ProjectID:   project.ID.String(),
				ProjectPath: projectDir,
			})
		} else {
			build.Status = models.BuildStatusRepairing
			o.chat.BroadcastBuildStatus(build)
			result, runErr = o.runner.Repair(ctx, sandbox.RepairRequest{
				ProjectID:   project.ID.String(),
				ProjectPath: projectDir,
				ErrorLogs:   build.BuildLogs,
			})
		}

		if runErr != nil {
			build.Status = models.BuildStatusFailed
			build.ErrorMessage = redact.Logs(runErr.Error())
			o.markBuildCompleted(build, "")
			_ = o.persistBuildAttempt(ctx, project.ID, build)
			metrics.BuildsTotal.WithLabelValues("failed").Inc()
			return build, nil
		}

		build.BuildLogs = redact.Logs(result.BuildLogs)
		build.LintOutput = redact.Logs(result.LintOutput)
		build.BuildOutput = redact.Logs(result.BuildOutput)
		build.ErrorMessage = redact.Logs(result.Error)
		build.ExitCode = sql.NullInt32{Int32: int32(result.ExitCode), Valid: true}

		if result.Success {
			build.Status = models.BuildStatusSuccess
			o.markBuildCompleted(build, fmt.Sprintf("preview/%s/%s", project.ID, build.ID))
			if err := o.persistBuildAttempt(ctx, project.ID, build); err != nil {
				return nil, err
			}
			metrics.BuildsTotal.WithLabelValues("success").Inc()
			return build, nil
		}

		build.Status = models.BuildStatusFailed
		o.markBuildCompleted(build, "")
		if err := o.persistBuildAttempt(ctx, project.ID, build); err != nil {
			return nil, err
		}

		if attempt >= models.MaxBuildAttempts {
			metrics.BuildsTotal.WithLabelValues("failed").Inc()
			return build, nil
		}

		if !o.attemptRepair(projectDir, build) {
			metrics.BuildsTotal.WithLabelValues("failed").Inc()
			return build, nil
		}
		metrics.RepairAttemptsTotal.Inc()
	}

	return build, nil
}

// attemptRepair analyzes the latest failure, generates and validates a
// patch, and applies it to disk. It reports whether a repair was applied
// and the loop should retry; any invalid patched path aborts the whole
// repair attempt, matching the original's all-or-nothing semantics.
func (o *Orchestrator) attemptRepair(projectDir string, build *models.Build) bool {
	analysis := o.repair.Analyze(build.BuildLogs, build.LintOutput, build.BuildOutput)
	if !analysis.Fixable {
		return false
	}

	patch, err := o.repair.GeneratePatch(analysis, projectDir, build.BuildLogs)
	if err != nil || len(patch) == 0 {
		return false
	}

	for relPath := range patch {
		if err := o.diff.ValidateEditable(projectDir, relPath); err != nil {
			build.BuildLogs = fmt.Sprintf("%s\n\n[REPAIR ATTEMPT %d FAILED]\nRepair patch validation failed: %s\n", build.BuildLogs, build.AttemptNumber+1, relPath)
			return false
		}
	}

	for relPath, content := range patch {
		fullPath := filepath.Join(projectDir, relPath)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return false
		}
		if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
			return false
		}
	}

	build.AttemptNumber++
	build.BuildLogs = fmt.Sprintf("%s\n\n[REPAIR ATTEMPT %d]\nApplied fixes: %v\nFiles changed: %d\n",
		build.BuildLogs, build.AttemptNumber, patchKeys(patch), len(patch))
	return true
}

func (o *Orchestrator) persistBuildAttempt(ctx context.Context, projectID uuid.UUID, build *models.Build) error {
	return o.withProjectLock(ctx, projectID, func(tx pgx.Tx) error {
		return o.builds.UpdateAttempt(ctx, tx, build)
	})
}

func (o *Orchestrator) markBuildCompleted(build *models.Build, previewURL string) {
	build.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	if previewURL != "" {
		build.PreviewURL = sql.NullString{String: previewURL, Valid: true}
	}
}

func patchKeys(patch map[string]string) []string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	return keys
}

// classifyChangeSize applies the deterministic small->medium->large rules:
// a size matches if the message contains one of its keywords OR the
// file/line counts stay within its limits; falls back to medium.
func classifyChangeSize(message string, numFiles, totalLines int) (models.ChangeSize, string, decimal.Decimal) {
	lower := strings.ToLower(message)
	for _, rule := range changeSizeRules {
		matchesPattern := false
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				matchesPattern = true
				break
			}
		}
		withinLimits := numFiles <= rule.maxFiles && totalLines <= rule.maxLines
		if matchesPattern || withinLimits {
			ruleApplied := fmt.Sprintf("%s: files=%d<=%d, lines=%d<=%d, pattern_match=%v",
				rule.size, numFiles, rule.maxFiles, totalLines, rule.maxLines, matchesPattern)
			return rule.size, ruleApplied, rule.cost
		}
	}
	return models.ChangeSizeMedium, "default: no rule matched", decimal.NewFromFloat(3.0)
}

// diffLineCount counts changed lines the same way the original service
// does: the occurrences of "\n+" and "\n-" across every modified file's
// unified diff text.
func diffLineCount(diff models.CodeDiff) int {
	total := 0
	for _, d := range diff.Modified {
		total += strings.Count(d, "\n+") + strings.Count(d, "\n-")
	}
	return total
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func observeIterationDuration(operation string, start time.Time) {
	metrics.IterationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// generateInitialSpec stands in for prompt-driven spec generation: a fixed
// starter page/component/theme set, the same placeholder the original
// service leaves for future AI substitution.
func generateInitialSpec(prompt string) models.ProjectSpec {
	_ = prompt
	return models.ProjectSpec{
		Pages: []models.Page{
			{Path: "/", Title: "Home"},
			{Path: "/pricing", Title: "Pricing"},
			{Path: "/about", Title: "About"},
			{Path: "/contact", Title: "Contact"},
		},
		Components: []models.Component{
			{Name: "Header", Kind: "layout"},
			{Name: "Footer", Kind: "layout"},
			{Name: "Hero", Kind: "section"},
			{Name: "Features", Kind: "section"},
			{Name: "CTA", Kind: "section"},
		},
		Theme: models.Theme{
			PrimaryColor:   "#3b82f6",
			SecondaryColor: "#64748b",
			AccentColor:    "#f59e0b",
		},
	}
}

// updateSpecFromMessage stamps authoring metadata onto the current spec -
// a placeholder for future AI-driven spec rewriting, per spec §4.7 step 7.
func updateSpecFromMessage(spec models.ProjectSpec, message string) models.ProjectSpec {
	updated := spec
	updated.LastUpdate = message
	updated.UpdatedAt = time.Now()
	return updated
}

// collectProjectFiles reads every text file under dir into path -> content,
// skipping dotfiles, node_modules, and .next, the same exclusions
// _get_all_project_files applies. A missing directory yields an empty map,
// not an error (a fresh project's first iteration has nothing on disk).
func collectProjectFiles(dir string) (map[string]string, error) {
	files := make(map[string]string)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return files, nil
	}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		if strings.Contains(relSlash, "node_modules") || strings.Contains(relSlash, ".next") {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if !utf8.Valid(content) {
			return nil
		}
		files[relSlash] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk project directory: %w", err)
	}
	return files, nil
}

// initializeProjectDirectory copies the stable template into projectDir
// and substitutes its placeholders, grounded on
// _initialize_project_directory / _replace_placeholders.
func (o *Orchestrator) initializeProjectDirectory(project *models.Project, projectDir string) error {
	templatePath := filepath.Join(o.templatesDir, stableTemplate)
	if _, err := os.Stat(templatePath); err != nil {
		return fmt.Errorf("template %s not found: %w", stableTemplate, err)
	}
	if err := copyTemplateDir(templatePath, projectDir); err != nil {
		return fmt.Errorf("failed to copy template: %w", err)
	}
	return replacePlaceholders(projectDir, project)
}

func copyTemplateDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, content, 0o644)
	})
}

var templatePlaceholderExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".json": true, ".md": true, ".txt": true, ".css": true,
}

func replacePlaceholders(projectDir string, project *models.Project) error {
	nameLower := strings.ToLower(strings.ReplaceAll(project.Name, " ", "-"))
	theme := project.CurrentSpec.Theme
	description := project.InitialPrompt
	if len(description) > 200 {
		description = description[:200]
	}

	replacements := map[string]string{
		"{{PROJECT_NAME}}":        project.Name,
		"{{PROJECT_NAME_LOWER}}":  nameLower,
		"{{PROJECT_DESCRIPTION}}": description,
		"{{YEAR}}":                strconv.Itoa(time.Now().Year()),
		"{{PRIMARY_COLOR}}":       theme.PrimaryColor,
		"{{SECONDARY_COLOR}}":     theme.SecondaryColor,
		"{{ACCENT_COLOR}}":        theme.AccentColor,
		"{{PROJECT_DOMAIN}}":      nameLower + ".com",
	}

	return filepath.Walk(projectDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if !templatePlaceholderExtensions[filepath.Ext(path)] {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		text := string(content)
		for old, replacement := range replacements {
			text = strings.ReplaceAll(text, old, replacement)
		}
		return os.WriteFile(path, []byte(text), 0o644)
	})
}
