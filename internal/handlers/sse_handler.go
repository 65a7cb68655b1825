package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/sse"
	"iterate-orchestrator/pkg/response"
)

const heartbeatInterval = 30 * time.Second

// ProjectAccessChecker reports whether principalID may watch projectID's
// build stream. Satisfied by repository.ProjectStore; kept as an
// interface here so the handler doesn't depend on storage internals.
type ProjectAccessChecker interface {
	IsOwnedBy(ctx context.Context, projectID, principalID uuid.UUID) (bool, error)
}

// SSEHandler streams build-progress events for a single project to every
// client with its event stream open.
type SSEHandler struct {
	connManager *sse.ConnectionManager
	access      ProjectAccessChecker
}

func NewSSEHandler(connManager *sse.ConnectionManager, access ProjectAccessChecker) *SSEHandler {
	return &SSEHandler{
		connManager: connManager,
		access:      access,
	}
}

// HandleProjectEvents handles GET /api/v1/projects/{id}/events.
func (h *SSEHandler) HandleProjectEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := middleware.GetPrincipalFromContext(ctx)
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid project ID")
		return
	}

	owned, err := h.access.IsOwnedBy(ctx, projectID, principal.ID)
	if err != nil {
		response.InternalError(w, "Failed to verify project access")
		return
	}
	if !owned {
		response.Forbidden(w, "You do not have access to this project")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error().Msg("SSE: ResponseWriter does not support Flusher interface")
		response.InternalError(w, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	eventChan := sse.CreateEventChannel()
	h.connManager.AddConnection(projectID, eventChan)

	defer func() {
		h.connManager.RemoveConnection(projectID, eventChan)
		log.Debug().
			Str("project_id", projectID.String()).
			Msg("SSE: connection closed")
	}()

	log.Debug().
		Str("project_id", projectID.String()).
		Msg("SSE: connection established")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := h.writeEvent(w, flusher, event); err != nil {
				log.Error().Err(err).
					Str("project_id", projectID.String()).
					Str("event_type", event.Type).
					Msg("SSE: failed to write event")
				return
			}

		case <-ticker.C:
			if err := h.writeHeartbeat(w, flusher); err != nil {
				log.Debug().Err(err).
					Str("project_id", projectID.String()).
					Msg("SSE: heartbeat failed, closing connection")
				return
			}

		case <-ctx.Done():
			log.Debug().
				Str("project_id", projectID.String()).
				Msg("SSE: context cancelled")
			return
		}
	}
}

func (h *SSEHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, string(dataBytes)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}

func (h *SSEHandler) writeHeartbeat(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
