package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/internal/service"
	"iterate-orchestrator/pkg/response"
)

// ProjectHandler exposes the orchestrator's project lifecycle: create,
// list, fetch, and the three mutating operations that advance a project
// through a new version (prompt, rebuild, rollback).
type ProjectHandler struct {
	orchestrator *service.Orchestrator
	store        *repository.ProjectStore
	ledger       *service.CreditLedger
}

func NewProjectHandler(orchestrator *service.Orchestrator, store *repository.ProjectStore, ledger *service.CreditLedger) *ProjectHandler {
	return &ProjectHandler{orchestrator: orchestrator, store: store, ledger: ledger}
}

// Create handles POST /api/v1/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeProjectError(w, err)
		return
	}

	project, version, build, err := h.orchestrator.CreateProject(r.Context(), principal.ID, req.Name, req.Prompt)
	if err != nil {
		writeProjectError(w, err)
		return
	}

	response.Created(w, map[string]interface{}{
		"project": project,
		"version": version,
		"build":   build,
	})
}

// List handles GET /api/v1/projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	projects, err := h.store.ListByOwner(r.Context(), principal.ID)
	if err != nil {
		response.InternalError(w, "Failed to list projects")
		return
	}

	response.OK(w, map[string]interface{}{"projects": projects})
}

// Get handles GET /api/v1/projects/{id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	project, err := h.store.GetByID(r.Context(), projectID)
	if err != nil {
		writeProjectError(w, err)
		return
	}
	// Forbidden collapses to NotFound for cross-tenant resources (spec §7).
	if project.OwnerID != principal.ID {
		response.NotFound(w, "Project not found")
		return
	}

	response.OK(w, map[string]interface{}{"project": project})
}

// Prompt handles POST /api/v1/projects/{id}/prompt.
func (h *ProjectHandler) Prompt(w http.ResponseWriter, r *http.Request) {
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

	var req models.PromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeProjectError(w, err)
		return
	}

	version, build, changeSize, cost, err := h.orchestrator.Iterate(r.Context(), principal.ID, projectID, req.Message)
	if err != nil {
		writeProjectError(w, err)
		return
	}

	resp := map[string]interface{}{
		"version":         version,
		"build":           build,
		"change_size":     changeSize,
		"credits_charged": cost,
	}
	if wallet, err := h.ledger.Wallet(r.Context(), principal.ID); err == nil {
		resp["credit_info"] = wallet
	}

	response.OK(w, resp)
}

// Rebuild handles POST /api/v1/projects/{id}/rebuild.
func (h *ProjectHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
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

	build, err := h.orchestrator.Rebuild(r.Context(), principal.ID, projectID)
	if err != nil {
		writeProjectError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"build": build})
}

// Rollback handles POST /api/v1/projects/{id}/rollback.
func (h *ProjectHandler) Rollback(w http.ResponseWriter, r *http.Request) {
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

	var req models.RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeProjectError(w, err)
		return
	}

	version, build, err := h.orchestrator.Rollback(r.Context(), principal.ID, projectID, req.VersionID)
	if err != nil {
		writeProjectError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"version": version, "build": build})
}

// writeProjectError maps the orchestrator's domain and sentinel errors onto
// the Control API's error taxonomy (spec §7). Authorization failures
// collapse to NOT_FOUND rather than FORBIDDEN so a cross-tenant request
// can't distinguish "doesn't exist" from "not yours".
func writeProjectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProjectNotFound),
		errors.Is(err, repository.ErrVersionNotFound),
		errors.Is(err, repository.ErrBuildNotFound):
		response.NotFound(w, "Resource not found")
	case errors.Is(err, models.ErrInvalidProjectName),
		errors.Is(err, models.ErrInvalidVersionID),
		errors.Is(err, models.ErrEmptyPrompt),
		errors.Is(err, models.ErrUnsupportedPrompt),
		errors.Is(err, models.ErrPatternNotFound),
		errors.Is(err, models.ErrInvalidPath),
		errors.Is(err, models.ErrTooManyFiles),
		errors.Is(err, models.ErrFileTooLarge),
		errors.Is(err, models.ErrLocalVerifyFailed):
		response.BadRequest(w, response.ErrCodeValidationFailed, err.Error())
	case errors.Is(err, models.ErrPromptTooLong):
		response.BadRequest(w, "PROMPT_TOO_LONG", err.Error())
	case errors.Is(err, models.ErrRateLimited):
		response.TooManyRequests(w, err.Error())
	case errors.Is(err, models.ErrInsufficientCredits):
		response.BadRequest(w, response.ErrCodeInsufficientCredits, err.Error())
	case errors.Is(err, models.ErrRunnerUnavailable), errors.Is(err, models.ErrRunnerTimeout):
		response.ServiceUnavailable(w, err.Error())
	default:
		response.InternalError(w, "Failed to process request")
	}
}
