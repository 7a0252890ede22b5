package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet statuses.
const (
	WalletActive   = "active"
	WalletInactive = "inactive"
)

// Wallet transaction directions.
const (
	TxIn  = "in"
	TxOut = "out"
)

// Wallet is the prepaid balance for one tenant. There is exactly one wallet
// per tenant; the cached Balance column is mutated only through debit/credit
// transactions so that it never diverges from the WalletTransaction ledger.
type Wallet struct {
	ID                string          `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID          string          `json:"tenant_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_wallet_tenant"`
	Balance           decimal.Decimal `json:"balance"    gorm:"type:decimal(12,2);not null;default:0"`
	Status            string          `json:"status"     gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','inactive')"`
	LowThreshold      decimal.Decimal `json:"low_threshold"      gorm:"type:decimal(12,2);not null;default:0"`
	CriticalThreshold decimal.Decimal `json:"critical_threshold" gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Wallet.
func (Wallet) TableName() string { return "wallets" }

// WalletTransaction is one entry in the append-only balance ledger. The
// reference fields link a debit back to the UsageRecord (or a top-up back to
// its payment) that caused it.
type WalletTransaction struct {
	ID            string          `json:"id"        gorm:"type:char(36);primaryKey"`
	WalletID      string          `json:"wallet_id" gorm:"type:char(36);not null;index"`
	Direction     string          `json:"direction" gorm:"type:varchar(4);not null;check:direction IN ('in','out')"`
	Amount        decimal.Decimal `json:"amount"    gorm:"type:decimal(12,2);not null"`
	ReferenceType string          `json:"reference_type" gorm:"type:varchar(32)"`
	ReferenceID   string          `json:"reference_id"   gorm:"type:char(36);index"`
	CreatedAt     time.Time       `json:"created_at"`

	Wallet Wallet `json:"-" gorm:"foreignKey:WalletID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WalletTransaction.
func (WalletTransaction) TableName() string { return "wallet_transactions" }

// UsageRecord logs one billable LLM completion: token counts, the internal
// cost estimate (margin analytics, never billed) and the flat customer
// charge. It is created before the debit; WalletTransactionID is back-filled
// once the debit lands. A nil WalletTransactionID after a dispatched reply
// means the ledger is inconsistent and must be flagged, never ignored.
type UsageRecord struct {
	ID                  string          `json:"id"              gorm:"type:char(36);primaryKey"`
	TenantID            string          `json:"tenant_id"       gorm:"type:varchar(64);not null;index:idx_tenant_usage"`
	ConversationID      string          `json:"conversation_id" gorm:"type:char(36);not null;index"`
	Provider            string          `json:"provider"        gorm:"type:varchar(32);not null"`
	Model               string          `json:"model"           gorm:"type:varchar(64);not null"`
	InputTokens         int64           `json:"input_tokens"    gorm:"not null"`
	OutputTokens        int64           `json:"output_tokens"   gorm:"not null"`
	EstimatedCost       decimal.Decimal `json:"estimated_cost"  gorm:"type:decimal(12,6);not null"`
	ChargedAmount       decimal.Decimal `json:"charged_amount"  gorm:"type:decimal(12,2);not null"`
	WalletTransactionID *string         `json:"wallet_transaction_id" gorm:"type:char(36)"`
	CreatedAt           time.Time       `json:"created_at"`
}

// TableName returns the database table name for UsageRecord.
func (UsageRecord) TableName() string { return "usage_records" }
