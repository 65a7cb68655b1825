package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"iterate-orchestrator/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ChatRepository stores the append-only prompt/reply history of a project,
// one row per message, ordered by creation time.
type ChatRepository struct {
	db *sqlx.DB
}

func NewChatRepository(db *sqlx.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, project_id, principal_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	message.ID = uuid.New()
	message.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		message.ID, message.ProjectID, message.PrincipalID, message.Role, message.Content, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChatMessage, error) {
	query := `SELECT id, project_id, principal_id, role, content, created_at FROM chat_messages WHERE id = $1`
	var message models.ChatMessage
	if err := r.db.GetContext(ctx, &message, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrChatMessageNotFound
		}
		return nil, fmt.Errorf("failed to get chat message: %w", err)
	}
	return &message, nil
}

// ListChatMessagesAsc is the named query the core uses to replay a
// project's conversation in order, capped at the default page size.
func (r *ChatRepository) ListChatMessagesAsc(ctx context.Context, projectID uuid.UUID) ([]*models.ChatMessage, error) {
	return r.ListByProject(ctx, projectID, 0, 0)
}

// ListByProject returns a project's chat history oldest-first, the order a
// conversation transcript is read in.
func (r *ChatRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*models.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, project_id, principal_id, role, content, created_at
		FROM chat_messages
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	var messages []*models.ChatMessage
	if err := r.db.SelectContext(ctx, &messages, query, projectID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	return messages, nil
}
