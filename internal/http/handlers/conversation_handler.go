// Conversation HTTP handlers.
//
// This file exposes read endpoints for conversation history:
//   - GET /conversations/{id}/messages  (list, paginated, ETag support)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
	"github.com/velora-ai/dealer-chat-backend/internal/utils"
)

// Handlers groups the HTTP endpoints for messages, conversations, and
// wallets. It depends on the ReplyOrchestrator interface to keep transport
// concerns separate from pipeline logic; read endpoints go straight to the
// repository layer.
type Handlers struct {
	reply ReplyOrchestrator
	db    *gorm.DB
}

// New constructs a Handlers instance bound to the given orchestrator and DB.
func New(reply ReplyOrchestrator, db *gorm.DB) *Handlers {
	return &Handlers{reply: reply, db: db}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// ListConversationMessages handles GET /conversations/:id/messages. It
// returns a page of the conversation's history and supports a weak ETag
// derived from the message count and last-activity timestamp.
func (h *Handlers) ListConversationMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := c.Param("id")

	if _, err := uuid.Parse(convID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	conv, err := repo.GetConversation(ctx, h.db, convID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	// ETag pre-check (best effort).
	if count, err := repo.CountMessages(ctx, h.db, convID); err == nil {
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, convID, count, conv.LastMessageAt.Unix())
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, pageSize := clampPagination(c)

	total, err := repo.CountMessages(ctx, h.db, convID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	items, err := repo.ListMessagesPage(ctx, h.db, convID, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
