package handlers

import (
	"net/http"

	"iterate-orchestrator/internal/middleware"
	"iterate-orchestrator/internal/models"
	"iterate-orchestrator/internal/service"
	"iterate-orchestrator/pkg/response"
)

// CreditHandler exposes the principal's own wallet. There is no admin
// balance-adjustment endpoint: every credit movement is a side effect of
// an orchestrator operation (register grant, iterate charge, repair
// refund), never a direct API call.
type CreditHandler struct {
	ledger *service.CreditLedger
}

func NewCreditHandler(ledger *service.CreditLedger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// GetWallet handles GET /api/v1/credits/wallet.
func (h *CreditHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		response.Unauthorized(w, "authentication required")
		return
	}

	wallet, err := h.ledger.Wallet(r.Context(), principal.ID)
	if err != nil {
		response.InternalError(w, "Failed to retrieve wallet")
		return
	}

	transactions, err := h.ledger.History(r.Context(), &models.GetCreditHistoryFilter{
		PrincipalID: &principal.ID,
		Limit:       models.DefaultWalletTransactionLimit,
	})
	if err != nil {
		response.InternalError(w, "Failed to retrieve transaction history")
		return
	}

	response.OK(w, map[string]interface{}{
		"credits":      wallet.Balance,
		"transactions": transactions,
	})
}
