package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole distinguishes the prompt author from the synthesized reply.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one append-only entry in a project's iteration history,
// ordered by CreatedAt.
type ChatMessage struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProjectID   uuid.UUID `db:"project_id" json:"project_id"`
	PrincipalID uuid.UUID `db:"principal_id" json:"principal_id"`
	Role        ChatRole  `db:"role" json:"role"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
