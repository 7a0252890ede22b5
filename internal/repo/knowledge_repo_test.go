package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

func seedArticle(t *testing.T, db *gorm.DB, tenantID string, subTenantID *string, title string, chunks ...string) *domain.KnowledgeArticle {
	t.Helper()
	a := &domain.KnowledgeArticle{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		SubTenantID: subTenantID,
		Title:       title,
		Content:     title,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("article: %v", err)
	}
	for i, c := range chunks {
		ch := &domain.KnowledgeChunk{
			ID:        uuid.NewString(),
			ArticleID: a.ID,
			Seq:       i,
			Content:   c,
		}
		if err := db.Create(ch).Error; err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}
	return a
}

func TestFindArticleByTitleToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedArticle(t, db, "tenant-1", nil, "Warranty Policy", "covered for 5 years")
	seedArticle(t, db, "tenant-2", nil, "Warranty Terms", "other tenant")

	a, err := FindArticleByTitleToken(ctx, db, "tenant-1", nil, "warranty")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if a.Title != "Warranty Policy" {
		t.Fatalf("matched %q", a.Title)
	}

	if _, err := FindArticleByTitleToken(ctx, db, "tenant-1", nil, "financing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestScoping_SubTenantVisibility(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sales := "sales"
	service := "service"
	seedArticle(t, db, "tenant-1", nil, "Opening Hours", "9 to 5")
	seedArticle(t, db, "tenant-1", &sales, "Sales Promotions", "0% financing")
	seedArticle(t, db, "tenant-1", &service, "Service Pricing", "oil change 40")

	// Sub-tenant sees tenant-wide plus its own.
	if _, err := FindArticleByTitleToken(ctx, db, "tenant-1", &sales, "hours"); err != nil {
		t.Fatalf("tenant-wide not visible to sub-tenant: %v", err)
	}
	if _, err := FindArticleByTitleToken(ctx, db, "tenant-1", &sales, "promotions"); err != nil {
		t.Fatalf("own article not visible: %v", err)
	}
	if _, err := FindArticleByTitleToken(ctx, db, "tenant-1", &sales, "pricing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("sibling sub-tenant article leaked: %v", err)
	}

	// No sub-tenant: only tenant-wide rows.
	if _, err := FindArticleByTitleToken(ctx, db, "tenant-1", nil, "promotions"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("sub-tenant article leaked tenant-wide: %v", err)
	}
}

func TestListScopedChunks_JoinsAndOrders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := seedArticle(t, db, "tenant-1", nil, "Winter Tires", "chunk a", "chunk b")
	seedArticle(t, db, "tenant-2", nil, "Other", "foreign chunk")

	chunks, err := ListScopedChunks(ctx, db, "tenant-1", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len = %d; want 2", len(chunks))
	}
	if chunks[0].ArticleID != a.ID || chunks[0].Seq != 0 || chunks[1].Seq != 1 {
		t.Fatalf("order wrong: %+v", chunks)
	}

	// Soft-deleted articles drop out of scope.
	if err := db.Delete(&domain.KnowledgeArticle{}, "id = ?", a.ID).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	chunks, err = ListScopedChunks(ctx, db, "tenant-1", nil)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("chunks of deleted article leaked: %d", len(chunks))
	}
}

func TestListArticleChunks_SeqOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := seedArticle(t, db, "tenant-1", nil, "Financing", "first", "second", "third")
	chunks, err := ListArticleChunks(ctx, db, a.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chunks) != 3 || chunks[0].Content != "first" || chunks[2].Content != "third" {
		t.Fatalf("chunks wrong: %+v", chunks)
	}
}
