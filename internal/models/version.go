package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CodeDiff is the structured result of comparing two file snapshots.
// The three sets are disjoint: a path appears in exactly one of them.
type CodeDiff struct {
	Modified map[string]string `json:"modified"`
	Added    []string          `json:"added"`
	Deleted  []string          `json:"deleted"`
}

func (d CodeDiff) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal code diff: %w", err)
	}
	return string(b), nil
}

func (d *CodeDiff) Scan(src interface{}) error {
	if src == nil {
		*d = CodeDiff{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("code diff: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, d)
}

// Version is an append-only, monotonically numbered record of a project's
// state after one accepted edit. Never mutated after creation.
type Version struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	ProjectID     uuid.UUID   `db:"project_id" json:"project_id"`
	VersionNumber int         `db:"version_number" json:"version_number"`
	SpecSnapshot  ProjectSpec `db:"spec_snapshot" json:"spec_snapshot"`
	CodeDiff      *CodeDiff   `db:"code_diff" json:"code_diff,omitempty"`
	CreatedBy     uuid.UUID   `db:"created_by" json:"created_by"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
}

// ChangeSize is the deterministic classification driving credit cost.
type ChangeSize string

const (
	ChangeSizeSmall  ChangeSize = "small"
	ChangeSizeMedium ChangeSize = "medium"
	ChangeSizeLarge  ChangeSize = "large"
)
