package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/pkg/response"
)

// VersionHandler exposes a project's append-only version history. It never
// writes - every version is created as a side effect of an orchestrator
// operation (iterate, rollback).
type VersionHandler struct {
	store    *repository.ProjectStore
	versions *repository.VersionRepository
}

func NewVersionHandler(store *repository.ProjectStore, versions *repository.VersionRepository) *VersionHandler {
	return &VersionHandler{store: store, versions: versions}
}

// versionResponse wraps a Version with its diff rendered as one unified
// text block: CodeDiff.Modified already holds a per-file unified diff
// (DiffEngine.GenerateUnifiedDiff), so this just concatenates them and
// appends the added/deleted path lists.
type versionResponse struct {
	*models.Version
	UnifiedDiffText string `json:"unified_diff_text"`
}

func renderVersion(v *models.Version) versionResponse {
	var b strings.Builder
	if v.CodeDiff != nil {
		for _, diff := range v.CodeDiff.Modified {
			b.WriteString(diff)
		}
		for _, path := range v.CodeDiff.Added {
			b.WriteString("added: " + path + "\n")
		}
		for _, path := range v.CodeDiff.Deleted {
			b.WriteString("deleted: " + path + "\n")
		}
	}
	return versionResponse{Version: v, UnifiedDiffText: b.String()}
}

// List handles GET /api/v1/projects/{id}/versions.
func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
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

	versions, err := h.versions.ListVersionsDesc(r.Context(), projectID)
	if err != nil {
		response.InternalError(w, "Failed to list versions")
		return
	}

	rendered := make([]versionResponse, len(versions))
	for i, v := range versions {
		rendered[i] = renderVersion(v)
	}

	response.OK(w, map[string]interface{}{"versions": rendered})
}
