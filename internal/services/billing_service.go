// Package services – BillingService
//
// Enforces the prepaid-wallet contract around every billable completion.
// Two numbers are intentionally decoupled: the customer-facing charge is a
// flat product price per (provider, model) pair, while the internal cost
// estimate is computed from token counts and feeds margin analytics only.
//
// Settlement runs as one database transaction whose core is a conditional
// decrement ("balance = balance - charge WHERE balance >= charge"). The
// early pre-check alone is not enough: two concurrent replies sharing one
// tenant wallet can both pass a stale read, so the guard predicate is
// re-evaluated atomically at debit time.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

// usageReferenceType links wallet transactions back to usage records.
const usageReferenceType = "usage_record"

// Usage describes one completed LLM call to be settled.
type Usage struct {
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// BillingService performs the wallet pre-check and the atomic settlement.
type BillingService struct {
	DB *gorm.DB

	// Prices maps lowercase "provider/model" to the flat customer charge.
	Prices map[string]decimal.Decimal

	// Internal cost rates per 1K tokens (estimate only, never billed).
	InputCostPer1K  decimal.Decimal
	OutputCostPer1K decimal.Decimal
}

// Precheck loads the tenant wallet and verifies it can be billed at all.
// Greetings bypass this entirely; every other message is rejected with
// ErrWalletUnavailable when the wallet is missing or inactive.
func (s *BillingService) Precheck(ctx context.Context, tenantID string) (*domain.Wallet, error) {
	w, err := repo.GetWalletByTenant(ctx, s.DB, tenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletUnavailable
	}
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WalletActive {
		return nil, ErrWalletUnavailable
	}
	return w, nil
}

// Charge returns the flat customer price for a provider/model pair.
func (s *BillingService) Charge(provider, model string) (decimal.Decimal, error) {
	key := strings.ToLower(provider + "/" + model)
	charge, ok := s.Prices[key]
	if !ok {
		return decimal.Zero, ErrUnpricedModel
	}
	return charge, nil
}

// EstimateCost computes the internal cost estimate from token counts.
func (s *BillingService) EstimateCost(inputTokens, outputTokens int64) decimal.Decimal {
	per1K := decimal.NewFromInt(1000)
	in := decimal.NewFromInt(inputTokens).Mul(s.InputCostPer1K).Div(per1K)
	out := decimal.NewFromInt(outputTokens).Mul(s.OutputCostPer1K).Div(per1K)
	return in.Add(out)
}

// Settle executes the post-completion billing sequence in one transaction:
// insert the usage record, conditionally debit the wallet, append the ledger
// row, and back-link the usage record to the transaction. When the balance
// no longer covers the charge the whole transaction rolls back and
// ErrInsufficientBalance is returned — no partial debit, no orphan usage
// row, and the caller must not send any reply.
func (s *BillingService) Settle(ctx context.Context, wallet *domain.Wallet, conversationID string, u Usage) (*domain.UsageRecord, error) {
	tr := otel.Tracer("services/BillingService")
	ctx, span := tr.Start(ctx, "Settle",
		trace.WithAttributes(
			attribute.String("tenant.id", wallet.TenantID),
			attribute.String("llm.provider", u.Provider),
			attribute.String("llm.model", u.Model),
		),
	)
	defer span.End()

	charge, err := s.Charge(u.Provider, u.Model)
	if err != nil {
		return nil, err
	}
	estimate := s.EstimateCost(u.InputTokens, u.OutputTokens)

	var usage *domain.UsageRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		usage, err = repo.CreateUsageRecord(ctx, tx, wallet.TenantID, conversationID,
			u.Provider, u.Model, u.InputTokens, u.OutputTokens, estimate, charge)
		if err != nil {
			return err
		}
		wt, err := repo.DebitWallet(ctx, tx, wallet.ID, charge, usageReferenceType, usage.ID)
		if err != nil {
			return err
		}
		if err := repo.LinkUsageTransaction(ctx, tx, usage.ID, wt.ID); err != nil {
			return err
		}
		usage.WalletTransactionID = &wt.ID
		return nil
	})
	if errors.Is(err, repo.ErrInsufficientFunds) {
		return nil, ErrInsufficientBalance
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("billing.charged", charge.String()))
	return usage, nil
}
