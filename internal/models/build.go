package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// BuildStatus tracks one logical build across its repair attempts.
type BuildStatus string

const (
	BuildStatusPending   BuildStatus = "pending"
	BuildStatusBuilding  BuildStatus = "building"
	BuildStatusRepairing BuildStatus = "repairing"
	BuildStatusSuccess   BuildStatus = "success"
	BuildStatusFailed    BuildStatus = "failed"
)

// MaxBuildAttempts bounds the repair loop (spec §3 invariant, §4.7 step 14).
const MaxBuildAttempts = 3

// Build is one logical build record per version. AttemptNumber increments
// in place across repair iterations; the row is never duplicated.
type Build struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	ProjectID     uuid.UUID      `db:"project_id" json:"project_id"`
	VersionID     uuid.UUID      `db:"version_id" json:"version_id"`
	Status        BuildStatus    `db:"status" json:"status"`
	AttemptNumber int            `db:"attempt_number" json:"attempt_number"`
	BuildLogs     string         `db:"build_logs" json:"build_logs"`
	LintOutput    string         `db:"lint_output" json:"lint_output"`
	BuildOutput   string         `db:"build_output" json:"build_output"`
	ErrorMessage  string         `db:"error_message" json:"error_message,omitempty"`
	ExitCode      sql.NullInt32  `db:"exit_code" json:"exit_code,omitempty"`
	PreviewURL    sql.NullString `db:"preview_url" json:"preview_url,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	CompletedAt   sql.NullTime   `db:"completed_at" json:"completed_at,omitempty"`
}

// HasAttemptsRemaining reports whether another repair attempt may be made.
func (b *Build) HasAttemptsRemaining() bool {
	return b.AttemptNumber < MaxBuildAttempts
}
