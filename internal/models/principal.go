package models

import (
	"time"

	"iterate-orchestrator/pkg/decimal"

	"github.com/google/uuid"
)

// PrincipalRole determines credit grants and top-up eligibility.
type PrincipalRole string

const (
	RoleFree       PrincipalRole = "free"
	RolePro        PrincipalRole = "pro"
	RoleEnterprise PrincipalRole = "enterprise"
)

// FreeTierStartingCredits is granted to a Principal at signup.
var FreeTierStartingCredits = decimal.NewFromFloat(10.00)

// Principal is the authenticated identity the orchestrator acts on behalf
// of. Sessions are issued by AuthService.Login; handlers receive an already
// authenticated principal id from the auth middleware.
type Principal struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	Email        string        `db:"email" json:"email"`
	PasswordHash string        `db:"password_hash" json:"-"`
	Role         PrincipalRole `db:"role" json:"role"`
	Credits      decimal.Decimal `db:"credits" json:"credits"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// RegisterPrincipalRequest is the signup command.
type RegisterPrincipalRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *RegisterPrincipalRequest) Validate() error {
	if r.Email == "" || !isValidEmailShape(r.Email) {
		return ErrInvalidEmail
	}
	if len(r.Password) < 8 {
		return ErrPasswordTooShort
	}
	return nil
}

func isValidEmailShape(email string) bool {
	at := -1
	for i, ch := range email {
		if ch == '@' {
			at = i
			break
		}
	}
	return at > 0 && at < len(email)-1
}
