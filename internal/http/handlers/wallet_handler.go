// Wallet HTTP handlers.
//
// Operator-facing endpoints for ledger visibility:
//   - GET  /wallets/{tenant_id}        (balance and recent ledger entries)
//   - POST /wallets/{tenant_id}/topup  (credit the wallet)
//
// Top-ups append an "in" ledger row; the balance is never written without a
// matching WalletTransaction.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

//
// DTOs
//

// WalletResponse reports a wallet's balance and its most recent ledger rows.
type WalletResponse struct {
	TenantID     string                     `json:"tenant_id"`
	Balance      decimal.Decimal            `json:"balance"`
	Status       string                     `json:"status"`
	Transactions []domain.WalletTransaction `json:"transactions"`
}

// TopupRequest is the JSON payload for crediting a wallet.
type TopupRequest struct {
	// Amount is a positive decimal string, e.g. "25.00".
	Amount string `json:"amount" binding:"required"`
	// Reference optionally tags the credit with an external payment id.
	Reference string `json:"reference"`
}

//
// Handlers
//

// GetWallet handles GET /wallets/:tenant_id.
func (h *Handlers) GetWallet(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := strings.TrimSpace(c.Param("tenant_id"))

	w, err := repo.GetWalletByTenant(ctx, h.db, tenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "wallet not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	txs, err := repo.ListWalletTransactions(ctx, h.db, w.ID, 50)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, WalletResponse{
		TenantID:     w.TenantID,
		Balance:      w.Balance,
		Status:       w.Status,
		Transactions: txs,
	})
}

// TopupWallet handles POST /wallets/:tenant_id/topup.
func (h *Handlers) TopupWallet(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := strings.TrimSpace(c.Param("tenant_id"))

	var req TopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount required")
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil || !amount.IsPositive() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "amount must be a positive decimal")
		return
	}

	w, err := repo.GetWalletByTenant(ctx, h.db, tenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "wallet not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTopupFailed, err.Error())
		return
	}

	tx, err := repo.CreditWallet(ctx, h.db, w.ID, amount, "topup", req.Reference)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTopupFailed, err.Error())
		return
	}

	ok(c, http.StatusCreated, tx)
}
