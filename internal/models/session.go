package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated principal's login, referenced by the
// session cookie/bearer token the auth middleware resolves on each request.
type Session struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PrincipalID uuid.UUID `db:"principal_id" json:"principal_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	IPAddress   string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string    `db:"user_agent" json:"user_agent,omitempty"`
}

func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

func (s *Session) IsValid() bool {
	return !s.IsExpired()
}
