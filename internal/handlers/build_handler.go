package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/pkg/response"
)

// BuildHandler exposes a project's build attempts. Every row is written by
// the orchestrator's build loop; this handler only reads.
type BuildHandler struct {
	store  *repository.ProjectStore
	builds *repository.BuildRepository
}

func NewBuildHandler(store *repository.ProjectStore, builds *repository.BuildRepository) *BuildHandler {
	return &BuildHandler{store: store, builds: builds}
}

// List handles GET /api/v1/projects/{id}/builds.
func (h *BuildHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid project ID")
		return
	}

	owned, err := h.store.IsOwnedBy(r.Context(), projectID, principal.ID)
	if err != nil {
		writeProjectError(w, err)
		return
	}
	if !owned {
		response.NotFound(w, "Project not found")
		return
	}

	builds, err := h.builds.ListByProject(r.Context(), projectID)
	if err != nil {
		response.InternalError(w, "Failed to list builds")
		return
	}

	response.OK(w, map[string]interface{}{"builds": builds})
}
