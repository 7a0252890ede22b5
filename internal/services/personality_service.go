// Package services – PersonalityService
//
// Resolves the tenant (and sub-tenant) tone and business-rule configuration
// that shapes every generated reply. Sub-tenant profile rows override the
// non-empty fields of the tenant-wide row, so a Service department can speak
// differently from Sales without duplicating the whole profile.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

// Personality is the merged tenant/sub-tenant reply configuration.
type Personality struct {
	Tone            string
	BusinessRules   string
	FallbackMessage string
	Provider        string
	Model           string
}

// PersonalityService loads and merges tenant profiles.
type PersonalityService struct {
	DB *gorm.DB

	// DefaultFallback is used when neither profile level sets a fallback
	// message. A provider outage must always degrade to some templated
	// reply.
	DefaultFallback string

	// DefaultProvider and DefaultModel back-stop tenants whose profiles do
	// not pin a model, so resolution always yields a routable target.
	DefaultProvider string
	DefaultModel    string
}

// Resolve returns the effective personality for a tenant/sub-tenant pair.
// A tenant without any profile rows resolves to an all-defaults personality
// rather than an error: personality is advisory, never a reason to drop a
// customer message.
func (s *PersonalityService) Resolve(ctx context.Context, tenantID string, subTenantID *string) (*Personality, error) {
	out := &Personality{
		FallbackMessage: s.DefaultFallback,
		Provider:        s.DefaultProvider,
		Model:           s.DefaultModel,
	}

	base, err := repo.GetTenantProfile(ctx, s.DB, tenantID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if base != nil {
		applyProfile(out, base.Tone, base.BusinessRules, base.FallbackMessage, base.Provider, base.Model)
	}

	if subTenantID != nil {
		over, err := repo.GetSubTenantProfile(ctx, s.DB, tenantID, *subTenantID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if over != nil {
			applyProfile(out, over.Tone, over.BusinessRules, over.FallbackMessage, over.Provider, over.Model)
		}
	}

	return out, nil
}

// applyProfile overwrites only the fields the row actually sets.
func applyProfile(p *Personality, tone, rules, fallback, provider, model string) {
	if tone != "" {
		p.Tone = tone
	}
	if rules != "" {
		p.BusinessRules = rules
	}
	if fallback != "" {
		p.FallbackMessage = fallback
	}
	if provider != "" {
		p.Provider = provider
	}
	if model != "" {
		p.Model = model
	}
}
