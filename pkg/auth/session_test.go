package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewSessionManager(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"

	sm := NewSessionManager(secret)

	if sm == nil {
		t.Fatal("SessionManager should not be nil")
	}
}

func TestCreateSessionToken(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	sessionID := uuid.New()
	principalID := uuid.New()
	expiresAt := time.Now().Add(1 * time.Hour)

	token, err := sm.CreateSessionToken(sessionID, principalID, expiresAt)

	if err != nil {
		t.Fatalf("CreateSessionToken failed: %v", err)
	}

	if token == "" {
		t.Error("Token should not be empty")
	}

	// Token should be reasonably long
	if len(token) < 50 {
		t.Error("Token seems too short")
	}
}

func TestValidateSessionToken(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	sessionID := uuid.New()
	principalID := uuid.New()
	expiresAt := time.Now().Add(1 * time.Hour)

	token, _ := sm.CreateSessionToken(sessionID, principalID, expiresAt)

	// Validate the token
	data, err := sm.ValidateSessionToken(token)

	if err != nil {
		t.Fatalf("ValidateSessionToken failed: %v", err)
	}

	if data.PrincipalID != principalID {
		t.Errorf("Expected principalID %s, got %s", principalID, data.PrincipalID)
	}

	if data.SessionID != sessionID {
		t.Errorf("Expected sessionID %s, got %s", sessionID, data.SessionID)
	}
}

func TestValidateSessionTokenInvalid(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	// Try to validate invalid token
	_, err := sm.ValidateSessionToken("invalid-token")

	if err == nil {
		t.Error("ValidateSessionToken should fail for invalid token")
	}
}

func TestValidateSessionTokenExpired(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	sessionID := uuid.New()
	principalID := uuid.New()
	// Create token with past expiry
	expiresAt := time.Now().Add(-1 * time.Hour)

	token, _ := sm.CreateSessionToken(sessionID, principalID, expiresAt)

	// Try to validate expired token
	_, err := sm.ValidateSessionToken(token)

	if err == nil {
		t.Error("ValidateSessionToken should fail for expired token")
	}
}

func TestValidateSessionTokenDifferentSecret(t *testing.T) {
	secret1 := "my-secret-key-32-characters-long!"
	secret2 := "different-secret-key-characters!"

	sm1 := NewSessionManager(secret1)
	sm2 := NewSessionManager(secret2)

	sessionID := uuid.New()
	principalID := uuid.New()
	expiresAt := time.Now().Add(1 * time.Hour)

	token, _ := sm1.CreateSessionToken(sessionID, principalID, expiresAt)

	// Try to validate with different secret
	_, err := sm2.ValidateSessionToken(token)

	if err == nil {
		t.Error("ValidateSessionToken should fail with different secret")
	}
}

func TestSessionManagerMultipleTokens(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	sessionID1 := uuid.New()
	principal1 := uuid.New()
	token1, _ := sm.CreateSessionToken(sessionID1, principal1, time.Now().Add(1*time.Hour))

	sessionID2 := uuid.New()
	principal2 := uuid.New()
	token2, _ := sm.CreateSessionToken(sessionID2, principal2, time.Now().Add(1*time.Hour))

	if token1 == token2 {
		t.Error("Different sessions should get different tokens")
	}

	data1, _ := sm.ValidateSessionToken(token1)
	data2, _ := sm.ValidateSessionToken(token2)

	if data1.PrincipalID != principal1 {
		t.Errorf("Token1 should belong to principal1, got %s", data1.PrincipalID)
	}

	if data2.PrincipalID != principal2 {
		t.Errorf("Token2 should belong to principal2, got %s", data2.PrincipalID)
	}
}

func TestSessionTokenContainsPrincipalID(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	sessionID := uuid.New()
	principalID := uuid.New()
	expiresAt := time.Now().Add(1 * time.Hour)

	token, _ := sm.CreateSessionToken(sessionID, principalID, expiresAt)

	data, _ := sm.ValidateSessionToken(token)

	if data.PrincipalID != principalID {
		t.Errorf("Data should contain correct principalID: expected %s, got %s", principalID, data.PrincipalID)
	}
}

func TestSecretLength(t *testing.T) {
	// Session manager should work with 32-character secrets (minimum recommended)
	secret := "0123456789abcdef0123456789abcdef" // 32 chars
	sm := NewSessionManager(secret)

	if sm == nil {
		t.Error("SessionManager should be created with 32-char secret")
	}

	// Should be able to create token
	token, err := sm.CreateSessionToken(uuid.New(), uuid.New(), time.Now().Add(1*time.Hour))
	if err != nil {
		t.Errorf("Should work with 32-char secret: %v", err)
	}

	if token == "" {
		t.Error("Token should be created")
	}
}

func TestValidTokenWithinExpiry(t *testing.T) {
	secret := "my-secret-key-32-characters-long!"
	sm := NewSessionManager(secret)

	sessionID := uuid.New()
	principalID := uuid.New()
	// Token expires 1 hour from now
	expiresAt := time.Now().Add(1 * time.Hour)

	token, _ := sm.CreateSessionToken(sessionID, principalID, expiresAt)

	// Should validate successfully
	data, err := sm.ValidateSessionToken(token)

	if err != nil {
		t.Errorf("Token should be valid: %v", err)
	}

	if data.PrincipalID != principalID {
		t.Errorf("PrincipalID should match: expected %s, got %s", principalID, data.PrincipalID)
	}
}
