package service

import (
	"context"
	"testing"

	"iterate-orchestrator/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatRepository struct {
	messages []*models.ChatMessage
}

func (f *fakeChatRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	message.ID = uuid.New()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeChatRepository) ListByProject(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*models.ChatMessage, error) {
	var out []*models.ChatMessage
	for _, m := range f.messages {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestChatService_RecordPrompt(t *testing.T) {
	repo := &fakeChatRepository{}
	svc := NewChatService(repo, nil)

	projectID := uuid.New()
	principalID := uuid.New()

	message, err := svc.RecordPrompt(context.Background(), projectID, principalID, "make the button blue")
	require.NoError(t, err)
	assert.Equal(t, models.ChatRoleUser, message.Role)
	assert.Equal(t, "make the button blue", message.Content)
	assert.NotEqual(t, uuid.Nil, message.ID)
}

func TestChatService_RecordAssistantReply(t *testing.T) {
	repo := &fakeChatRepository{}
	svc := NewChatService(repo, nil)

	projectID := uuid.New()

	message, err := svc.RecordAssistantReply(context.Background(), projectID, uuid.Nil, "updated the button color")
	require.NoError(t, err)
	assert.Equal(t, models.ChatRoleAssistant, message.Role)
}

func TestChatService_History(t *testing.T) {
	repo := &fakeChatRepository{}
	svc := NewChatService(repo, nil)

	projectID := uuid.New()
	otherProjectID := uuid.New()

	_, err := svc.RecordPrompt(context.Background(), projectID, uuid.New(), "first")
	require.NoError(t, err)
	_, err = svc.RecordPrompt(context.Background(), otherProjectID, uuid.New(), "other project")
	require.NoError(t, err)
	_, err = svc.RecordAssistantReply(context.Background(), projectID, uuid.Nil, "reply")
	require.NoError(t, err)

	history, err := svc.History(context.Background(), projectID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestChatService_BroadcastBuildStatus_NilManagerIsNoop(t *testing.T) {
	repo := &fakeChatRepository{}
	svc := NewChatService(repo, nil)

	svc.BroadcastBuildStatus(&models.Build{ID: uuid.New(), ProjectID: uuid.New(), Status: models.BuildStatusBuilding})
	svc.BroadcastBuildCompleted(&models.Build{ID: uuid.New(), ProjectID: uuid.New(), Status: models.BuildStatusSuccess})
}
