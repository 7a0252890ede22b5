// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for tenant
// personality profiles.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

// GetTenantProfile returns the tenant-wide profile row (nil sub-tenant),
// or ErrNotFound.
func GetTenantProfile(ctx context.Context, db *gorm.DB, tenantID string) (*domain.TenantProfile, error) {
	var p domain.TenantProfile
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND sub_tenant_id IS NULL", tenantID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSubTenantProfile returns the override row for a sub-tenant, or
// ErrNotFound when the sub-tenant has no overrides.
func GetSubTenantProfile(ctx context.Context, db *gorm.DB, tenantID, subTenantID string) (*domain.TenantProfile, error) {
	var p domain.TenantProfile
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND sub_tenant_id = ?", tenantID, subTenantID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
