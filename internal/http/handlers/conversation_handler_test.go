package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

func seedConversationWithMessages(t *testing.T, db *gorm.DB, n int) *domain.Conversation {
	t.Helper()
	ctx := context.Background()
	conv, err := repo.CreateConversation(ctx, db, "tenant-1", nil, "whatsapp", "+306912345678")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := repo.CreateMessage(ctx, db, conv.ID, domain.SenderCustomer, "text",
			fmt.Sprintf("message %d", i), "whatsapp", nil, nil); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	return conv
}

func TestListConversationMessages_Validation(t *testing.T) {
	r := newTestRouter(New(&fakeOrchestrator{}, newTestDB(t)))

	w := doJSON(t, r, http.MethodGet, "/conversations/not-a-uuid/messages", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/conversations/123e4567-e89b-12d3-a456-426614174000/messages", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
	if e := decodeError(t, w); e.Code != ErrCodeNotFound {
		t.Fatalf("code = %q", e.Code)
	}
}

func TestListConversationMessages_Pagination(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversationWithMessages(t, db, 25)
	r := newTestRouter(New(&fakeOrchestrator{}, db))

	w := doJSON(t, r, http.MethodGet, "/conversations/"+conv.ID+"/messages?page=2&page_size=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 10 {
		t.Fatalf("page len = %d; want 10", len(resp.Messages))
	}
	p := resp.Pagination
	if p.Page != 2 || p.PageSize != 10 || p.Total != 25 || p.TotalPages != 3 || !p.HasNext {
		t.Fatalf("pagination = %+v", p)
	}
}

func TestListConversationMessages_ClampsPageSize(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversationWithMessages(t, db, 1)
	r := newTestRouter(New(&fakeOrchestrator{}, db))

	w := doJSON(t, r, http.MethodGet, "/conversations/"+conv.ID+"/messages?page_size=9999", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pagination.PageSize != 100 {
		t.Fatalf("page_size = %d; want clamped to 100", resp.Pagination.PageSize)
	}
}

func TestListConversationMessages_ETagRoundtrip(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversationWithMessages(t, db, 3)
	r := newTestRouter(New(&fakeOrchestrator{}, db))

	first := doJSON(t, r, http.MethodGet, "/conversations/"+conv.ID+"/messages", "")
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d", first.Code)
	}
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("no ETag on list response")
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+conv.ID+"/messages", nil)
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	r.ServeHTTP(second, req)
	if second.Code != http.StatusNotModified {
		t.Fatalf("status = %d; want 304 on unchanged history", second.Code)
	}

	// A new message invalidates the tag.
	if _, err := repo.CreateMessage(context.Background(), db, conv.ID, domain.SenderBot, "text", "hi", "whatsapp", nil, nil); err != nil {
		t.Fatalf("message: %v", err)
	}
	third := httptest.NewRecorder()
	r.ServeHTTP(third, req)
	if third.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 after new message", third.Code)
	}
}
