package models

import (
	"time"

	"iterate-orchestrator/pkg/decimal"

	"github.com/google/uuid"
)

// CreditTransactionKind classifies one ledger entry.
type CreditTransactionKind string

const (
	CreditKindCharge   CreditTransactionKind = "charge"
	CreditKindGrant    CreditTransactionKind = "grant"
	CreditKindRefund   CreditTransactionKind = "refund"
	CreditKindBonus    CreditTransactionKind = "bonus"
	CreditKindPurchase CreditTransactionKind = "purchase"
)

// CreditTransaction is one append-only ledger entry. Signed amount: a
// charge is negative, a grant/refund/bonus/purchase is positive.
type CreditTransaction struct {
	ID          uuid.UUID             `db:"id" json:"id"`
	PrincipalID uuid.UUID             `db:"principal_id" json:"principal_id"`
	Amount      decimal.Decimal       `db:"amount" json:"amount"`
	Kind        CreditTransactionKind `db:"kind" json:"kind"`
	Description string                `db:"description" json:"description"`
	ProjectID   uuid.NullUUID         `db:"project_id" json:"project_id,omitempty"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
}

// DefaultWalletTransactionLimit caps recent_transactions in the wallet
// response (spec §4.1).
const DefaultWalletTransactionLimit = 50

// MaxTransactionLimit is the hard ceiling on any history query page size.
const MaxTransactionLimit = 500

// GetCreditHistoryFilter scopes a transaction-history query.
type GetCreditHistoryFilter struct {
	PrincipalID *uuid.UUID
	Kind        *CreditTransactionKind
	StartDate   *time.Time
	EndDate     *time.Time
	Limit       int
	Offset      int
}

// ChargeRequest is the internal command the ledger validates before
// debiting a principal's balance.
type ChargeRequest struct {
	PrincipalID uuid.UUID
	Amount      decimal.Decimal
	Reason      string
	ProjectID   uuid.NullUUID
}

func (r *ChargeRequest) Validate() error {
	if r.PrincipalID == uuid.Nil {
		return ErrInvalidUserID
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidCreditAmount
	}
	if r.Reason == "" {
		return ErrInvalidReason
	}
	return nil
}
