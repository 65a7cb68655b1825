package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/repository"
	"iterate-orchestrator/internal/utils"
	"iterate-orchestrator/pkg/auth"
	"iterate-orchestrator/pkg/hash"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// SessionExpiryBuffer guards against a request racing a session's exact
// expiry instant; it is never used to reject a session that is still valid.
const SessionExpiryBuffer = 30 * time.Second

// AuthService is a minimal principal register/login flow: a bearer
// session token backed by a database row, with no role hierarchy, email
// verification, or brute-force lockout. The platform's real identity
// provider sits in front of this in production; this is the control
// plane's own dev-mode stand-in.
type AuthService struct {
	principalRepo *repository.PrincipalRepository
	sessionRepo   *repository.SessionRepository
	sessionMgr    *auth.SessionManager
	sessionMaxAge time.Duration
}

func NewAuthService(
	principalRepo *repository.PrincipalRepository,
	sessionRepo *repository.SessionRepository,
	sessionMgr *auth.SessionManager,
	sessionMaxAge time.Duration,
) *AuthService {
	return &AuthService{
		principalRepo: principalRepo,
		sessionRepo:   sessionRepo,
		sessionMgr:    sessionMgr,
		sessionMaxAge: sessionMaxAge,
	}
}

// Register creates a principal with the free-tier starting balance.
func (s *AuthService) Register(ctx context.Context, req *models.RegisterPrincipalRequest) (*models.Principal, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.principalRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, repository.ErrPrincipalExists
	} else if !errors.Is(err, repository.ErrPrincipalNotFound) {
		return nil, fmt.Errorf("failed to check existing principal: %w", err)
	}

	hashedPassword, err := hash.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	principal := &models.Principal{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Role:         models.RoleFree,
		Credits:      models.FreeTierStartingCredits,
	}
	if err := s.principalRepo.Create(ctx, principal); err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}

	log.Info().Str("email", utils.MaskEmail(principal.Email)).Msg("principal registered")
	return principal, nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Principal    *models.Principal `json:"principal"`
	SessionToken string             `json:"-"`
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest, ipAddress, userAgent string) (*LoginResponse, error) {
	principal, err := s.principalRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}

	if err := hash.CheckPassword(req.Password, principal.PasswordHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.createSession(ctx, principal.ID, ipAddress, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &LoginResponse{Principal: principal, SessionToken: token}, nil
}

func (s *AuthService) createSession(ctx context.Context, principalID uuid.UUID, ipAddress, userAgent string) (string, error) {
	expiresAt := time.Now().Add(s.sessionMaxAge)

	session := &models.Session{
		PrincipalID: principalID,
		ExpiresAt:   expiresAt,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}

	token, err := s.sessionMgr.CreateSessionToken(session.ID, principalID, expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to create session token: %w", err)
	}
	return token, nil
}

// ValidatePrincipal resolves a bearer token to its principal, consulting
// the database record (not the token's own expiry claim) as the source of
// truth, since a token is never re-signed when its session row changes.
func (s *AuthService) ValidatePrincipal(ctx context.Context, token string) (*models.Principal, error) {
	sessionData, err := s.sessionMgr.ValidateSessionToken(token)
	if err != nil {
		if !errors.Is(err, auth.ErrExpiredSession) || sessionData == nil {
			return nil, err
		}
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionData.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if time.Now().Add(SessionExpiryBuffer).After(session.ExpiresAt) {
		return nil, auth.ErrExpiredSession
	}

	principal, err := s.principalRepo.GetByID(ctx, session.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load principal: %w", err)
	}
	return principal, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	return s.sessionRepo.Delete(ctx, sessionID)
}

// LogoutToken resolves token back to its session id and deletes it,
// sparing callers from unpacking the token themselves.
func (s *AuthService) LogoutToken(ctx context.Context, token string) error {
	sessionData, err := s.sessionMgr.ValidateSessionToken(token)
	if err != nil && !errors.Is(err, auth.ErrExpiredSession) {
		return err
	}
	return s.Logout(ctx, sessionData.SessionID)
}

func (s *AuthService) CleanupExpiredSessions(ctx context.Context) error {
	return s.sessionRepo.DeleteExpired(ctx)
}
