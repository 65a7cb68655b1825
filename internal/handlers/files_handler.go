package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/internal/service"
	"iterate-orchestrator/pkg/response"
)

// FilesHandler exposes read-only access to a project's working directory,
// the same tree the build runner mounts read-only into the sandbox. It
// never writes - edits happen only through the diff engine, inside an
// orchestrator iteration.
type FilesHandler struct {
	store       *repository.ProjectStore
	diff        *service.DiffEngine
	projectsDir string
}

func NewFilesHandler(store *repository.ProjectStore, diff *service.DiffEngine, projectsDir string) *FilesHandler {
	return &FilesHandler{store: store, diff: diff, projectsDir: projectsDir}
}

// fileNode is one entry in the recursive file tree response.
type fileNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Type     string     `json:"type"`
	Children []fileNode `json:"children,omitempty"`
}

// excludedDirs mirrors collectProjectFiles' walk exclusions: build output
// and dependency directories are never part of the editable or browsable
// project surface.
var excludedDirs = map[string]bool{
	"node_modules": true,
	".next":        true,
	".git":         true,
}

// Tree handles GET /api/v1/projects/{id}/files/tree.
func (h *FilesHandler) Tree(w http.ResponseWriter, r *http.Request) {
	projectDir, ok := h.authorizeProject(w, r)
	if !ok {
		return
	}

	nodes, err := buildFileTree(projectDir, "")
	if err != nil {
		response.InternalError(w, "Failed to read project files")
		return
	}

	response.OK(w, map[string]interface{}{"tree": nodes})
}

// Content handles GET /api/v1/projects/{id}/files/content?path=.
func (h *FilesHandler) Content(w http.ResponseWriter, r *http.Request) {
	projectDir, ok := h.authorizeProject(w, r)
	if !ok {
		return
	}

	relPath := r.URL.Query().Get("path")
	if relPath == "" {
		response.BadRequest(w, "INVALID_PATH", "path query parameter is required")
		return
	}
	if err := h.diff.ValidateEditable(projectDir, relPath); err != nil {
		if errors.Is(err, models.ErrInvalidPath) {
			response.BadRequest(w, "INVALID_PATH", "path is outside the project's editable scope")
			return
		}
		response.InternalError(w, "Failed to resolve path")
		return
	}

	content, err := os.ReadFile(filepath.Join(projectDir, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			response.NotFound(w, "File not found")
			return
		}
		response.InternalError(w, "Failed to read file")
		return
	}

	response.OK(w, map[string]interface{}{"path": relPath, "content": string(content)})
}

// authorizeProject resolves and ownership-checks the project named in the
// URL, returning its on-disk directory.
func (h *FilesHandler) authorizeProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
		return "", false
	}

	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid project ID")
		return "", false
	}

	owned, err := h.store.IsOwnedBy(r.Context(), projectID, principal.ID)
	if err != nil {
		writeProjectError(w, err)
		return "", false
	}
	if !owned {
		response.NotFound(w, "Project not found")
		return "", false
	}

	return filepath.Join(h.projectsDir, projectID.String()), true
}

// buildFileTree walks dir (relative path rel from the project root)
// producing one node per non-excluded, non-dotfile entry, sorted
// directories-first then alphabetically, matching the original service's
// file-explorer ordering.
func buildFileTree(dir, rel string) ([]fileNode, error) {
	absDir := filepath.Join(dir, rel)
	entries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var nodes []fileNode
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || excludedDirs[name] {
			continue
		}

		entryRel := filepath.ToSlash(filepath.Join(rel, name))
		if entry.IsDir() {
			children, err := buildFileTree(dir, filepath.Join(rel, name))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, fileNode{Name: name, Path: entryRel, Type: "dir", Children: children})
			continue
		}
		nodes = append(nodes, fileNode{Name: name, Path: entryRel, Type: "file"})
	}

	sort.Slice(nodes, func(i, j int) bool {
		if (nodes[i].Type == "dir") != (nodes[j].Type == "dir") {
			return nodes[i].Type == "dir"
		}
		return nodes[i].Name < nodes[j].Name
	})

	return nodes, nil
}
