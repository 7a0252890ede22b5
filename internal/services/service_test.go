package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/gateway"
	"github.com/velora-ai/dealer-chat-backend/internal/llm"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

// fakeCompleter scripts the provider behind a test Router.
type fakeCompleter struct {
	text   string
	inTok  int64
	outTok int64
	err    error
	calls  int

	// lastPrompt and lastHistory capture what the pipeline actually sent.
	lastPrompt  string
	lastHistory []llm.Turn
}

func (f *fakeCompleter) Name() string     { return llm.ProviderPrimary }
func (f *fakeCompleter) Configured() bool { return true }

func (f *fakeCompleter) Complete(_ context.Context, _, systemPrompt string, history []llm.Turn) (*llm.Completion, error) {
	f.calls++
	f.lastPrompt = systemPrompt
	f.lastHistory = history
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, InputTokens: f.inTok, OutputTokens: f.outTok}, nil
}

// fakeEmbedder returns a fixed vector per text, or a global error.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

// fakeSender records outbound gateway messages.
type fakeSender struct {
	sent []gateway.OutboundMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg gateway.OutboundMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func seedConversation(t *testing.T, db *gorm.DB, tenantID string) *domain.Conversation {
	t.Helper()
	conv, err := repo.CreateConversation(context.Background(), db, tenantID, nil, "whatsapp", "+3069"+uuid.NewString()[:8])
	if err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}

func seedArticleWithChunks(t *testing.T, db *gorm.DB, tenantID, title string, chunks ...domain.KnowledgeChunk) *domain.KnowledgeArticle {
	t.Helper()
	a := &domain.KnowledgeArticle{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Title:    title,
		Content:  title,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed article: %v", err)
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].ArticleID = a.ID
		if err := db.Create(&chunks[i]).Error; err != nil {
			t.Fatalf("seed chunk: %v", err)
		}
	}
	return a
}

func seedWorkflow(t *testing.T, db *gorm.DB, tenantID, triggerType string, triggers []string, guidance ...string) *domain.WorkflowDefinition {
	t.Helper()
	def := &domain.WorkflowDefinition{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        "test-flow",
		TriggerType: triggerType,
		Active:      true,
	}
	def.SetTriggers(triggers)
	if err := db.Create(def).Error; err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	for i, g := range guidance {
		step := &domain.WorkflowStep{
			ID:         uuid.NewString(),
			WorkflowID: def.ID,
			Seq:        i,
			Guidance:   g,
		}
		if err := db.Create(step).Error; err != nil {
			t.Fatalf("seed step: %v", err)
		}
		def.Steps = append(def.Steps, *step)
	}
	return def
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
