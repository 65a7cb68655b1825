package sse

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

const (
	// EventChannelBufferSize is the buffer size for event channels
	EventChannelBufferSize = 10
)

// Event is an SSE event pushed to clients watching a project's build
// progress.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ConnectionManager fans out build-progress events to every client
// currently subscribed to a project. Subscription is per-project, not
// per-principal: any client that opened the project's event stream
// receives everything broadcast to it, since access was already checked
// by the handler before the stream was opened.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]chan Event
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[uuid.UUID][]chan Event),
	}
}

func (cm *ConnectionManager) AddConnection(projectID uuid.UUID, eventChan chan Event) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.connections[projectID] = append(cm.connections[projectID], eventChan)
}

func (cm *ConnectionManager) RemoveConnection(projectID uuid.UUID, eventChan chan Event) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	channels, exists := cm.connections[projectID]
	if !exists {
		return
	}

	for i, ch := range channels {
		if ch == eventChan {
			cm.connections[projectID] = append(channels[:i], channels[i+1:]...)
			close(eventChan)
			break
		}
	}

	if len(cm.connections[projectID]) == 0 {
		delete(cm.connections, projectID)
	}
}

// SendToProject pushes event to every client subscribed to projectID.
// Returns true if at least one connection received it.
func (cm *ConnectionManager) SendToProject(projectID uuid.UUID, event Event) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	channels, exists := cm.connections[projectID]
	if !exists || len(channels) == 0 {
		return false
	}

	sent := false
	for i, ch := range channels {
		select {
		case ch <- event:
			sent = true
		default:
			log.Printf("[WARNING] event dropped for project %s (channel %d) - buffer full\n", projectID, i)
		}
	}

	return sent
}

func CreateEventChannel() chan Event {
	return make(chan Event, EventChannelBufferSize)
}

func (cm *ConnectionManager) GetConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	count := 0
	for _, channels := range cm.connections {
		count += len(channels)
	}
	return count
}

func (cm *ConnectionManager) GetProjectConnectionCount(projectID uuid.UUID) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.connections[projectID])
}

func (cm *ConnectionManager) IsProjectWatched(projectID uuid.UUID) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	channels, exists := cm.connections[projectID]
	return exists && len(channels) > 0
}
