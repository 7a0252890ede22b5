// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Wallet
// ledger: balance reads, the atomic conditional debit, and top-ups.
//
// The debit is intentionally a single conditional UPDATE
// ("decrement if balance >= amount") so that two concurrent replies sharing
// one tenant wallet can never both pass a stale balance check and spend past
// zero. Callers wrap it together with the usage-record and ledger inserts in
// one transaction.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

// ErrInsufficientFunds indicates the conditional debit matched no row:
// either the wallet is missing or its balance is below the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// GetWalletByTenant fetches the tenant's wallet or ErrNotFound.
func GetWalletByTenant(ctx context.Context, db *gorm.DB, tenantID string) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallet inserts a wallet for a tenant with an opening balance.
func CreateWallet(ctx context.Context, db *gorm.DB, tenantID string, opening decimal.Decimal) (*domain.Wallet, error) {
	w := &domain.Wallet{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Balance:   opening,
		Status:    domain.WalletActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(w).Error; err != nil {
		return nil, err
	}
	return w, nil
}

// DebitWallet performs the atomic conditional decrement and appends the
// matching "out" ledger row. It must be called inside a transaction together
// with the usage-record writes. Returns ErrInsufficientFunds when the guard
// predicate (balance >= amount) does not hold at execution time.
func DebitWallet(ctx context.Context, tx *gorm.DB, walletID string, amount decimal.Decimal, refType, refID string) (*domain.WalletTransaction, error) {
	res := tx.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("id = ? AND balance >= ?", walletID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientFunds
	}

	wt := &domain.WalletTransaction{
		ID:            uuid.NewString(),
		WalletID:      walletID,
		Direction:     domain.TxOut,
		Amount:        amount,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(wt).Error; err != nil {
		return nil, err
	}
	return wt, nil
}

// CreditWallet increments the balance and appends the matching "in" ledger
// row (top-ups). Runs both writes in one transaction.
func CreditWallet(ctx context.Context, db *gorm.DB, walletID string, amount decimal.Decimal, refType, refID string) (*domain.WalletTransaction, error) {
	var wt *domain.WalletTransaction
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Wallet{}).
			Where("id = ?", walletID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		wt = &domain.WalletTransaction{
			ID:            uuid.NewString(),
			WalletID:      walletID,
			Direction:     domain.TxIn,
			Amount:        amount,
			ReferenceType: refType,
			ReferenceID:   refID,
			CreatedAt:     time.Now().UTC(),
		}
		return tx.Create(wt).Error
	})
	if err != nil {
		return nil, err
	}
	return wt, nil
}

// ListWalletTransactions returns the ledger for a wallet, newest first.
func ListWalletTransactions(ctx context.Context, db *gorm.DB, walletID string, limit int) ([]domain.WalletTransaction, error) {
	var out []domain.WalletTransaction
	q := db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
