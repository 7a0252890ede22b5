// Inbound message HTTP handlers.
//
// This file exposes the pipeline entrypoint:
//   - POST /messages/inbound  (run the reply pipeline for one customer message)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Billing rejections map to 402 so
// the gateway can distinguish a broke tenant from a broken server.
//
// Idempotency:
// If the client supplies an Idempotency-Key header, reply persistence is
// deduplicated on that key: a retried delivery returns the previously
// produced reply and sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/velora-ai/dealer-chat-backend/internal/http/middleware"
	"github.com/velora-ai/dealer-chat-backend/internal/services"
)

// ReplyOrchestrator defines the pipeline operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type ReplyOrchestrator interface {
	// Reply runs the full inbound pipeline and returns the outcome.
	Reply(ctx context.Context, conversationID, text, dedupeKey string) (*services.ReplyResult, error)
	// SuggestFollowup generates a re-engagement draft without side effects.
	SuggestFollowup(ctx context.Context, conversationID, text string) (*services.ReplyResult, error)
}

// replyOutcomes counts pipeline results by action, the operational signal for
// suppression rate and billing rejections.
var replyOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reply_pipeline_outcomes_total",
		Help: "Total inbound pipeline runs by outcome.",
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(replyOutcomes)
}

// Pipeline modes accepted on the inbound endpoint.
const (
	ModeReply           = "reply"
	ModeSuggestFollowup = "suggest_followup"
)

//
// DTOs
//

// InboundMessageRequest is the JSON payload delivered by the channel gateway
// for each customer message.
type InboundMessageRequest struct {
	// ConversationID identifies the conversation the message belongs to.
	ConversationID string `json:"conversation_id" binding:"required"`
	// UserMessage is the raw customer text. It must be non-empty for reply mode.
	UserMessage string `json:"user_message"`
	// Mode selects the pipeline: "reply" (default) or "suggest_followup".
	Mode string `json:"mode"`
}

// InboundMessageResponse reports the pipeline outcome.
type InboundMessageResponse struct {
	// Action is one of replied, none, suppressed.
	Action string `json:"action"`
	// Reply carries the produced text when Action is replied.
	Reply string `json:"reply,omitempty"`
	// MessageID references the persisted bot message, when one exists.
	MessageID string `json:"message_id,omitempty"`
	// RequestID echoes the correlation id.
	RequestID string `json:"request_id,omitempty"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes customer text: CRLF/CR to LF, collapsed blank
// runs, trimmed whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// maxMessageRunes caps inbound text at the edge; channel messages beyond this
// are not plausible customer input.
const maxMessageRunes = 4000

//
// Handlers
//

// InboundMessage handles POST /messages/inbound. It validates the payload,
// routes to the requested pipeline mode, and maps service sentinels onto the
// HTTP error taxonomy.
func (h *Handlers) InboundMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation_id required")
		return
	}

	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = ModeReply
	}
	if mode != ModeReply && mode != ModeSuggestFollowup {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "mode must be reply or suggest_followup")
		return
	}

	text := sanitizeContent(req.UserMessage)
	if utf8.RuneCountInString(text) > maxMessageRunes {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_message too long")
		return
	}
	if mode == ModeReply && text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_message required")
		return
	}

	var (
		res *services.ReplyResult
		err error
	)
	if mode == ModeSuggestFollowup {
		res, err = h.reply.SuggestFollowup(ctx, req.ConversationID, text)
	} else {
		idemKey, _ := middleware.GetIdempotencyKey(c)
		res, err = h.reply.Reply(ctx, req.ConversationID, text, idemKey)
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_message required")
		case errors.Is(err, services.ErrWalletUnavailable):
			replyOutcomes.WithLabelValues("wallet_unavailable").Inc()
			fail(c, http.StatusPaymentRequired, ErrCodeWalletUnavailable, "tenant wallet missing or inactive")
		case errors.Is(err, services.ErrInsufficientBalance):
			replyOutcomes.WithLabelValues("insufficient_balance").Inc()
			fail(c, http.StatusPaymentRequired, ErrCodeInsufficientBalance, "wallet balance too low for this reply")
		case errors.Is(err, services.ErrUnpricedModel):
			fail(c, http.StatusInternalServerError, ErrCodeReplyFailed, "no price configured for the tenant's model")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeReplyFailed, err.Error())
		}
		return
	}

	replyOutcomes.WithLabelValues(res.Action).Inc()
	if middleware.IsReplay(c) {
		c.Header("Idempotency-Replayed", "true")
	}

	resp := InboundMessageResponse{
		Action:    res.Action,
		Reply:     res.Text,
		RequestID: c.Writer.Header().Get("X-Request-ID"),
	}
	if res.Message != nil {
		resp.MessageID = res.Message.ID
	}
	ok(c, http.StatusOK, resp)
}
