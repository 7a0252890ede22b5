package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// KnowledgeArticle is one authored knowledge base entry, scoped to a tenant
// and optionally a sub-tenant. A nil SubTenantID makes the article visible
// tenant-wide.
type KnowledgeArticle struct {
	ID          string         `json:"id"            gorm:"type:char(36);primaryKey"`
	TenantID    string         `json:"tenant_id"     gorm:"type:varchar(64);not null;index:idx_tenant_articles"`
	SubTenantID *string        `json:"sub_tenant_id" gorm:"type:varchar(64)"`
	Title       string         `json:"title"         gorm:"type:varchar(255);not null;index"`
	Content     string         `json:"content"       gorm:"type:text;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for KnowledgeArticle.
func (KnowledgeArticle) TableName() string { return "knowledge_articles" }

// KnowledgeChunk is one retrievable slice of an article with its embedding
// vector, stored as a JSON float array. Chunks are ordered within their
// article by Seq.
type KnowledgeChunk struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ArticleID string    `json:"article_id" gorm:"type:char(36);not null;index:idx_article_chunks,priority:1"`
	Seq       int       `json:"seq"        gorm:"not null;index:idx_article_chunks,priority:2"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Embedding string    `json:"-"          gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`

	Article KnowledgeArticle `json:"-" gorm:"foreignKey:ArticleID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for KnowledgeChunk.
func (KnowledgeChunk) TableName() string { return "knowledge_chunks" }

// Vector decodes the stored embedding. Returns nil when the chunk has no
// embedding or the blob is unreadable.
func (k *KnowledgeChunk) Vector() []float64 {
	if k.Embedding == "" {
		return nil
	}
	var v []float64
	if err := json.Unmarshal([]byte(k.Embedding), &v); err != nil {
		return nil
	}
	return v
}

// SetVector encodes v into the embedding column.
func (k *KnowledgeChunk) SetVector(v []float64) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	k.Embedding = string(b)
}
