package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// SSE event types streamed to a client watching a project's build progress.
const (
	SSEEventBuildStatusChanged = "build_status_changed"
	SSEEventBuildCompleted     = "build_completed"
)

type SSEEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type BuildStatusPayload struct {
	ProjectID     uuid.UUID   `json:"project_id"`
	BuildID       uuid.UUID   `json:"build_id"`
	Status        BuildStatus `json:"status"`
	AttemptNumber int         `json:"attempt_number"`
}

type BuildCompletedPayload struct {
	ProjectID  uuid.UUID `json:"project_id"`
	BuildID    uuid.UUID `json:"build_id"`
	Success    bool      `json:"success"`
	PreviewURL string    `json:"preview_url,omitempty"`
}

func BuildStatusChangedEvent(b *Build) SSEEvent {
	return SSEEvent{
		Type: SSEEventBuildStatusChanged,
		Data: BuildStatusPayload{
			ProjectID:     b.ProjectID,
			BuildID:       b.ID,
			Status:        b.Status,
			AttemptNumber: b.AttemptNumber,
		},
	}
}

func BuildCompletedEvent(b *Build) SSEEvent {
	return SSEEvent{
		Type: SSEEventBuildCompleted,
		Data: BuildCompletedPayload{
			ProjectID:  b.ProjectID,
			BuildID:    b.ID,
			Success:    b.Status == BuildStatusSuccess,
			PreviewURL: b.PreviewURL.String,
		},
	}
}

func (e *SSEEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
