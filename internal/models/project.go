package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectStatus tracks the lifecycle of a generated application.
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusBuilding  ProjectStatus = "building"
	ProjectStatusReady     ProjectStatus = "ready"
	ProjectStatusFailed    ProjectStatus = "failed"
	ProjectStatusPublished ProjectStatus = "published"
)

// Page, Component and Theme give the project's structured spec explicit
// shape instead of an arbitrary map, per the dynamic-config-objects design
// note: the spec is a tagged record, not schemaless JSON.
type Page struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

type Component struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type Theme struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	AccentColor    string `json:"accent_color"`
}

// ProjectSpec is the structured description of a project at a point in
// time. It is stored as jsonb and carried verbatim into each Version's
// spec_snapshot.
type ProjectSpec struct {
	Pages        []Page      `json:"pages"`
	Components   []Component `json:"components"`
	Theme        Theme       `json:"theme"`
	LastUpdate   string      `json:"last_update,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at,omitempty"`
}

// Value implements driver.Valuer so ProjectSpec can be written to a jsonb column.
func (s ProjectSpec) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal project spec: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for reading a jsonb column back.
func (s *ProjectSpec) Scan(src interface{}) error {
	if src == nil {
		*s = ProjectSpec{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("project spec: unsupported scan type %T", src)
	}
	return json.Unmarshal(raw, s)
}

// Project is one generated application owned by a Principal.
type Project struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	OwnerID          uuid.UUID      `db:"owner_id" json:"owner_id"`
	Name             string         `db:"name" json:"name"`
	InitialPrompt    string         `db:"initial_prompt" json:"initial_prompt"`
	CurrentSpec      ProjectSpec    `db:"current_spec" json:"current_spec"`
	Status           ProjectStatus  `db:"status" json:"status"`
	PreviewURL       sql.NullString `db:"preview_url" json:"preview_url,omitempty"`
	PublishedURL     sql.NullString `db:"published_url" json:"published_url,omitempty"`
	CustomDomain     sql.NullString `db:"custom_domain" json:"custom_domain,omitempty"`
	WatermarkEnabled bool           `db:"watermark_enabled" json:"watermark_enabled"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// CreateProjectRequest is the POST /projects command.
type CreateProjectRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// MaxPromptLength bounds both project-creation and iteration prompts (spec §4.7 step 2).
const MaxPromptLength = 5000

func (r *CreateProjectRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidProjectName
	}
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if len(r.Prompt) > MaxPromptLength {
		return ErrPromptTooLong
	}
	return nil
}

// PromptRequest is the POST /projects/{id}/prompt command.
type PromptRequest struct {
	Message string `json:"message"`
}

func (r *PromptRequest) Validate() error {
	if r.Message == "" {
		return ErrEmptyPrompt
	}
	if len(r.Message) > MaxPromptLength {
		return ErrPromptTooLong
	}
	return nil
}

// RollbackRequest names the version to roll back to.
type RollbackRequest struct {
	VersionID uuid.UUID `json:"version_id"`
}

func (r *RollbackRequest) Validate() error {
	if r.VersionID == uuid.Nil {
		return ErrInvalidVersionID
	}
	return nil
}
