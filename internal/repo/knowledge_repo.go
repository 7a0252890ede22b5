// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for knowledge
// articles and chunks, including the scope rule shared by both retrieval
// passes: an article is visible when it belongs to the tenant and is either
// tenant-wide (NULL sub-tenant) or owned by the requesting sub-tenant.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

// scopeArticles composes the tenant/sub-tenant visibility predicate.
func scopeArticles(q *gorm.DB, tenantID string, subTenantID *string) *gorm.DB {
	q = q.Where("tenant_id = ?", tenantID)
	if subTenantID != nil {
		return q.Where("sub_tenant_id IS NULL OR sub_tenant_id = ?", *subTenantID)
	}
	return q.Where("sub_tenant_id IS NULL")
}

// FindArticleByTitleToken returns the first in-scope article whose title
// contains token (case-insensitive), or ErrNotFound. Ordering is by creation
// time ascending so that results are deterministic.
func FindArticleByTitleToken(ctx context.Context, db *gorm.DB, tenantID string, subTenantID *string, token string) (*domain.KnowledgeArticle, error) {
	var a domain.KnowledgeArticle
	err := scopeArticles(db.WithContext(ctx).Model(&domain.KnowledgeArticle{}), tenantID, subTenantID).
		Where("LOWER(title) LIKE ?", "%"+token+"%").
		Order("created_at ASC, id ASC").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArticleChunks returns all chunks of an article ordered by sequence.
func ListArticleChunks(ctx context.Context, db *gorm.DB, articleID string) ([]domain.KnowledgeChunk, error) {
	var out []domain.KnowledgeChunk
	err := db.WithContext(ctx).
		Where("article_id = ?", articleID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// ListScopedChunks returns every chunk whose parent article is in scope,
// joined so the caller can rank them by embedding similarity.
func ListScopedChunks(ctx context.Context, db *gorm.DB, tenantID string, subTenantID *string) ([]domain.KnowledgeChunk, error) {
	var out []domain.KnowledgeChunk
	q := db.WithContext(ctx).
		Model(&domain.KnowledgeChunk{}).
		Joins("JOIN knowledge_articles ON knowledge_articles.id = knowledge_chunks.article_id").
		Where("knowledge_articles.deleted_at IS NULL").
		Where("knowledge_articles.tenant_id = ?", tenantID)
	if subTenantID != nil {
		q = q.Where("knowledge_articles.sub_tenant_id IS NULL OR knowledge_articles.sub_tenant_id = ?", *subTenantID)
	} else {
		q = q.Where("knowledge_articles.sub_tenant_id IS NULL")
	}
	err := q.Order("knowledge_chunks.article_id ASC, knowledge_chunks.seq ASC").Find(&out).Error
	return out, err
}
