package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session has expired")
)

// SessionManager signs and validates opaque bearer tokens carrying a
// session id and principal id.
type SessionManager struct {
	secret []byte
}

func NewSessionManager(secret string) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
	}
}

// SessionData is the payload embedded in a signed session token.
type SessionData struct {
	SessionID   uuid.UUID `json:"session_id"`
	PrincipalID uuid.UUID `json:"principal_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (sm *SessionManager) CreateSessionToken(sessionID, principalID uuid.UUID, expiresAt time.Time) (string, error) {
	data := SessionData{
		SessionID:   sessionID,
		PrincipalID: principalID,
		ExpiresAt:   expiresAt,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session data: %w", err)
	}

	encodedData := base64.URLEncoding.EncodeToString(jsonData)
	signature := sm.sign(encodedData)
	token := fmt.Sprintf("%s.%s", encodedData, signature)

	return token, nil
}

// ValidateSessionToken checks the signature and returns the embedded data.
// On an expired token it still returns the data alongside ErrExpiredSession,
// so the caller can decide against the database record (which may have
// been refreshed) rather than trusting the token's own expiry alone.
func (sm *SessionManager) ValidateSessionToken(token string) (*SessionData, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidSession
	}

	encodedData := parts[0]
	signature := parts[1]

	expectedSignature := sm.sign(encodedData)
	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return nil, ErrInvalidSession
	}

	jsonData, err := base64.URLEncoding.DecodeString(encodedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}

	var data SessionData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	if time.Now().After(data.ExpiresAt) {
		return &data, ErrExpiredSession
	}

	return &data, nil
}

func (sm *SessionManager) sign(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

