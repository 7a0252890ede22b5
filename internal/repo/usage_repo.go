// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for UsageRecord
// rows: creation before debit and the transaction back-link afterwards.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

// CreateUsageRecord inserts a usage row with a nil wallet-transaction link.
// The link is back-filled by LinkUsageTransaction once the debit lands;
// the FK always flows usage -> transaction, never the reverse.
func CreateUsageRecord(ctx context.Context, db *gorm.DB, tenantID, conversationID, provider, model string, inTok, outTok int64, estCost, charged decimal.Decimal) (*domain.UsageRecord, error) {
	u := &domain.UsageRecord{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Provider:       provider,
		Model:          model,
		InputTokens:    inTok,
		OutputTokens:   outTok,
		EstimatedCost:  estCost,
		ChargedAmount:  charged,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// LinkUsageTransaction back-fills the wallet-transaction id on a usage row.
func LinkUsageTransaction(ctx context.Context, db *gorm.DB, usageID, txID string) error {
	res := db.WithContext(ctx).
		Model(&domain.UsageRecord{}).
		Where("id = ?", usageID).
		Update("wallet_transaction_id", txID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UnlinkedUsageRecords returns usage rows older than cutoff that never got a
// wallet transaction. A non-empty result after dispatched replies means the
// ledger is inconsistent and must be flagged by the operator.
func UnlinkedUsageRecords(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.UsageRecord, error) {
	var out []domain.UsageRecord
	err := db.WithContext(ctx).
		Where("wallet_transaction_id IS NULL AND created_at < ?", cutoff.UTC()).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
