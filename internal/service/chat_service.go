package service

import (
	"context"
	"fmt"

	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/sse"

	"github.com/google/uuid"
)

// chatRepository is the persistence seam ChatService depends on, narrowed
// to what the orchestrator actually drives.
type chatRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*models.ChatMessage, error)
}

// ChatService persists a project's prompt/reply history and fans out
// build-progress events to anyone watching that project over SSE.
type ChatService struct {
	chatRepo   chatRepository
	sseManager *sse.ConnectionManager
}

func NewChatService(chatRepo chatRepository, sseManager *sse.ConnectionManager) *ChatService {
	return &ChatService{
		chatRepo:   chatRepo,
		sseManager: sseManager,
	}
}

// RecordPrompt appends the principal's prompt message to the project's
// chat history.
func (s *ChatService) RecordPrompt(ctx context.Context, projectID, principalID uuid.UUID, content string) (*models.ChatMessage, error) {
	message := &models.ChatMessage{
		ProjectID:   projectID,
		PrincipalID: principalID,
		Role:        models.ChatRoleUser,
		Content:     content,
	}
	if err := s.chatRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to record prompt: %w", err)
	}
	return message, nil
}

// RecordAssistantReply appends the orchestrator's synthesized summary of
// an iteration (what changed, or why it failed) to the chat history.
func (s *ChatService) RecordAssistantReply(ctx context.Context, projectID, principalID uuid.UUID, content string) (*models.ChatMessage, error) {
	message := &models.ChatMessage{
		ProjectID:   projectID,
		PrincipalID: principalID,
		Role:        models.ChatRoleAssistant,
		Content:     content,
	}
	if err := s.chatRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to record assistant reply: %w", err)
	}
	return message, nil
}

func (s *ChatService) History(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*models.ChatMessage, error) {
	messages, err := s.chatRepo.ListByProject(ctx, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return messages, nil
}

// BroadcastBuildStatus pushes a build-status transition to every client
// watching the project's SSE stream. Delivery is best-effort: a project
// with no subscribers, or a full channel buffer, silently drops the event
// since polling GET /projects/{id}/builds remains the source of truth.
func (s *ChatService) BroadcastBuildStatus(build *models.Build) {
	if s.sseManager == nil {
		return
	}
	event := models.BuildStatusChangedEvent(build)
	s.sseManager.SendToProject(build.ProjectID, sse.Event{Type: event.Type, Data: event.Data})
}

func (s *ChatService) BroadcastBuildCompleted(build *models.Build) {
	if s.sseManager == nil {
		return
	}
	event := models.BuildCompletedEvent(build)
	s.sseManager.SendToProject(build.ProjectID, sse.Event{Type: event.Type, Data: event.Data})
}
