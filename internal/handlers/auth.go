package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/service"
	"iterate-orchestrator/pkg/response"
)

// AuthHandler exposes the dev-mode principal register/login/logout flow.
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterPrincipalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid request body")
		return
	}

	principal, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		h.handleAuthError(w, err)
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &service.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	}, clientIP(r), r.Header.Get("User-Agent"))
	if err != nil {
		response.InternalError(w, "Failed to create session")
		return
	}

	response.Created(w, map[string]interface{}{
		"principal": principal,
		"token":     loginResp.SessionToken,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, response.ErrCodeInvalidInput, "Invalid request body")
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req, clientIP(r), r.Header.Get("User-Agent"))
	if err != nil {
		response.Unauthorized(w, "Invalid email or password")
		return
	}

	response.OK(w, map[string]interface{}{
		"principal": loginResp.Principal,
		"token":     loginResp.SessionToken,
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	if err := h.authService.LogoutToken(r.Context(), token); err != nil {
		response.InternalError(w, "Failed to logout")
		return
	}

	response.OK(w, map[string]string{"message": "Logged out successfully"})
}

// GetMe handles GET /api/v1/auth/me.
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "Not authenticated")
		return
	}

	response.OK(w, map[string]interface{}{"principal": principal})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

func clientIP(r *http.Request) string {
	return r.RemoteAddr
}

// handleAuthError normalizes registration errors into a validation response
// without leaking which rule the request violated when that distinction
// would let an attacker enumerate registered emails.
func (h *AuthHandler) handleAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrInvalidEmail) {
		response.BadRequest(w, response.ErrCodeValidationFailed, "Invalid email address")
		return
	}
	if errors.Is(err, models.ErrPasswordTooShort) {
		response.BadRequest(w, response.ErrCodeValidationFailed, "Password must be at least 8 characters long")
		return
	}
	response.BadRequest(w, response.ErrCodeValidationFailed, "Unable to complete this operation")
}
