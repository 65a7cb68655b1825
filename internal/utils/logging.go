package utils

import (
	"fmt"

	"github.com/google/uuid"

	"iterate-orchestrator/pkg/decimal"
)

// MaskPrincipalID masks a principal's UUID for safe logging, showing only
// the first 8 characters plus a marker.
// Example: "d3c8c7a6-1234-5678-abcd-ef1234567890" -> "d3c8c7a6***"
func MaskPrincipalID(id uuid.UUID) string {
	s := id.String()
	if len(s) > 8 {
		return s[:8] + "***"
	}
	return "***"
}

// MaskAmount buckets a credit amount into a coarse range instead of
// logging the exact figure.
func MaskAmount(amount decimal.Decimal) string {
	if amount.IsNegative() {
		amount = amount.Neg()
	}

	switch {
	case amount.LessThan(decimal.NewFromFloat(1)):
		return "0-1"
	case amount.LessThan(decimal.NewFromFloat(10)):
		return "1-10"
	case amount.LessThan(decimal.NewFromFloat(100)):
		return "10-100"
	default:
		return "100+"
	}
}

// MaskEmail masks an email for logging, keeping only the first character
// and the domain.
// Example: "user@example.com" -> "u***@example.com"
func MaskEmail(email string) string {
	if len(email) == 0 {
		return "***"
	}

	atIndex := -1
	for i, c := range email {
		if c == '@' {
			atIndex = i
			break
		}
	}

	if atIndex <= 0 {
		return "***"
	}

	return fmt.Sprintf("%c***%s", rune(email[0]), email[atIndex:])
}
