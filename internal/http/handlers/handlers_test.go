package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/velora-ai/dealer-chat-backend/internal/repo"
	"github.com/velora-ai/dealer-chat-backend/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
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

// fakeOrchestrator scripts the pipeline behind the HTTP layer.
type fakeOrchestrator struct {
	res *services.ReplyResult
	err error

	// captured inputs
	gotConversationID string
	gotText           string
	gotKey            string
	suggestCalls      int
	replyCalls        int
}

func (f *fakeOrchestrator) Reply(_ context.Context, conversationID, text, dedupeKey string) (*services.ReplyResult, error) {
	f.replyCalls++
	f.gotConversationID = conversationID
	f.gotText = text
	f.gotKey = dedupeKey
	return f.res, f.err
}

func (f *fakeOrchestrator) SuggestFollowup(_ context.Context, conversationID, text string) (*services.ReplyResult, error) {
	f.suggestCalls++
	f.gotConversationID = conversationID
	f.gotText = text
	return f.res, f.err
}

func newTestRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/messages/inbound", h.InboundMessage)
	r.GET("/conversations/:id/messages", h.ListConversationMessages)
	r.GET("/wallets/:tenant_id", h.GetWallet)
	r.POST("/wallets/:tenant_id/topup", h.TopupWallet)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

// The error envelope's JSON key names are an external contract; clients
// branch on `error_code` and display `error`.
func TestErrorEnvelope_WireKeys(t *testing.T) {
	r := newTestRouter(New(&fakeOrchestrator{}, newTestDB(t)))

	w := doJSON(t, r, "GET", "/wallets/ghost-tenant", "")
	if w.Code != 404 {
		t.Fatalf("status = %d; want 404", w.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["error"]; !ok {
		t.Fatalf("missing `error` key: %q", w.Body.String())
	}
	if raw["error_code"] != ErrCodeNotFound {
		t.Fatalf("error_code = %v; want %q", raw["error_code"], ErrCodeNotFound)
	}
	if _, ok := raw["code"]; ok {
		t.Fatalf("legacy `code` key present: %q", w.Body.String())
	}
}
