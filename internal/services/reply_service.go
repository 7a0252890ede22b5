// Package services – ReplyService
//
// The top-level coordinator of the inbound-message pipeline. Given one
// customer message it produces exactly one of: a dispatched reply, a
// deliberate no-reply, or a typed rejection. Side effects are strictly
// ordered: load conversation → greeting short-circuit → billing pre-check →
// knowledge + workflow prompt assembly → completion call → billing
// settlement → persist + dispatch → workflow advance.
//
// The pipeline persists only bot-authored messages; inbound customer
// messages are recorded by channel ingestion before this handler runs.
// Two deliberate non-reply outcomes exist and must not be confused:
// suppression (the provider returned the decline sentinel — only the
// conversation's last-activity timestamp moves) and billing rejection
// (operator-visible, nothing customer-visible happens).
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/gateway"
	"github.com/velora-ai/dealer-chat-backend/internal/llm"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

// Actions reported by the pipeline.
const (
	ActionReplied    = "replied"
	ActionNone       = "none"
	ActionSuppressed = "suppressed"
)

// ReplyResult is the outcome of one pipeline run.
type ReplyResult struct {
	Action  string
	Text    string
	Message *domain.Message // set when a bot message was persisted
}

// ReplyService sequences the full inbound pipeline.
type ReplyService struct {
	DB          *gorm.DB
	Billing     *BillingService
	Knowledge   *KnowledgeService
	Workflow    *WorkflowService
	Personality *PersonalityService
	Router      *llm.Router
	Gateway     gateway.Sender

	// Greeting short circuit: greetings always succeed, never bill, and
	// never call a provider, because a depleted wallet must not block a
	// hello.
	Greetings     []string
	GreetingReply string

	// DeclineToken is the exact sentinel the provider returns when no
	// reply adds value. Only an exact match (after trim) suppresses.
	DeclineToken string

	// HistoryWindow caps the recent messages pulled for the prompt.
	HistoryWindow int
}

// Reply runs the full pipeline for one inbound customer message. dedupeKey,
// when non-empty, makes reply persistence idempotent across webhook retries.
func (s *ReplyService) Reply(ctx context.Context, conversationID, text, dedupeKey string) (*ReplyResult, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "Reply",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	text = strings.TrimSpace(text)
	if conversationID == "" || text == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	// AI switched off: no action, no error.
	if !conv.AIEnabled {
		span.SetAttributes(attribute.String("reply.action", ActionNone))
		return &ReplyResult{Action: ActionNone}, nil
	}

	// Webhook retry replay: the reply for this key was already produced.
	if dedupeKey != "" {
		if prev, err := repo.FindMessageByDedupeKey(ctx, s.DB, conv.ID, dedupeKey); err == nil {
			span.SetAttributes(attribute.Bool("reply.replay", true))
			return &ReplyResult{Action: ActionReplied, Text: prev.Content, Message: prev}, nil
		}
	}

	// Greeting short circuit: no provider call, no billing.
	if s.isGreeting(text) {
		return s.dispatchReply(ctx, conv, s.GreetingReply, dedupeKey)
	}

	// Billing pre-check. The balance itself is re-verified atomically at
	// settlement; this check only rejects unusable wallets early.
	wallet, err := s.Billing.Precheck(ctx, conv.TenantID)
	if err != nil {
		return nil, err
	}

	// Assemble prompt: personality + knowledge + workflow guidance.
	prompt, state, persona, err := s.buildPrompt(ctx, conv, text)
	if err != nil {
		return nil, err
	}

	history, err := s.history(ctx, conv.ID, text)
	if err != nil {
		return nil, err
	}

	out, err := s.Router.Complete(ctx, persona.Provider, persona.Model, prompt, history)
	if err != nil {
		// Provider outage degrades to the templated fallback: no billable
		// usage happened, so settlement is skipped.
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("all providers failed, using fallback message")
		span.SetAttributes(attribute.Bool("reply.fallback", true))
		return s.dispatchReply(ctx, conv, persona.FallbackMessage, dedupeKey)
	}

	// Intentional suppression: exact sentinel only. No message row, no
	// debit; just the activity timestamp.
	if strings.TrimSpace(out.Text) == s.DeclineToken {
		if err := repo.TouchConversation(ctx, s.DB, conv.ID, time.Now()); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("touch conversation failed")
		}
		span.SetAttributes(attribute.String("reply.action", ActionSuppressed))
		return &ReplyResult{Action: ActionSuppressed}, nil
	}

	// Settlement re-checks the balance atomically; a concurrent debit on a
	// shared tenant wallet can reject here even after the pre-check passed.
	if _, err := s.Billing.Settle(ctx, wallet, conv.ID, Usage{
		Provider:     out.Provider,
		Model:        out.Model,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
	}); err != nil {
		return nil, err
	}

	res, err := s.dispatchReply(ctx, conv, out.Text, dedupeKey)
	if err != nil {
		return nil, err
	}

	// Cursor moves only after a produced reply.
	if err := s.Workflow.Advance(ctx, state); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("workflow advance failed")
	}

	return res, nil
}

// SuggestFollowup is the read-only preview path: knowledge- and
// personality-aware generation with no persistence, no billing, and no send.
func (s *ReplyService) SuggestFollowup(ctx context.Context, conversationID, text string) (*ReplyResult, error) {
	tr := otel.Tracer("services/ReplyService")
	ctx, span := tr.Start(ctx, "SuggestFollowup",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	if conversationID == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := repo.GetConversation(ctx, s.DB, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if !conv.AIEnabled {
		return &ReplyResult{Action: ActionNone}, nil
	}

	prompt, _, persona, err := s.buildPrompt(ctx, conv, text)
	if err != nil {
		return nil, err
	}
	prompt += "\n\nThe customer has gone quiet. Suggest one short, natural follow-up message to re-engage them."

	history, err := s.history(ctx, conv.ID, text)
	if err != nil {
		return nil, err
	}

	out, err := s.Router.Complete(ctx, persona.Provider, persona.Model, prompt, history)
	if err != nil {
		return &ReplyResult{Action: ActionReplied, Text: persona.FallbackMessage}, nil
	}
	return &ReplyResult{Action: ActionReplied, Text: out.Text}, nil
}

// dispatchReply persists the bot message (idempotent on dedupeKey), sends it
// through the gateway best-effort, and bumps the conversation activity
// timestamp. Message persistence is the source of truth: a gateway failure
// is logged and swallowed, never rolled back.
func (s *ReplyService) dispatchReply(ctx context.Context, conv *domain.Conversation, text, dedupeKey string) (*ReplyResult, error) {
	var key *string
	if dedupeKey != "" {
		key = &dedupeKey
	}

	msg, err := repo.CreateMessage(ctx, s.DB, conv.ID, domain.SenderBot, "text", text, conv.Channel, nil, key)
	if errors.Is(err, repo.ErrDuplicate) {
		// Raced a concurrent retry of the same event; serve its message.
		prev, ferr := repo.FindMessageByDedupeKey(ctx, s.DB, conv.ID, dedupeKey)
		if ferr != nil {
			return nil, ferr
		}
		return &ReplyResult{Action: ActionReplied, Text: prev.Content, Message: prev}, nil
	}
	if err != nil {
		return nil, err
	}

	if s.Gateway != nil {
		if err := s.Gateway.Send(ctx, gateway.OutboundMessage{
			TenantID:    conv.TenantID,
			SubTenantID: conv.SubTenantID,
			Destination: conv.ContactID,
			Type:        "text",
			Text:        text,
		}); err != nil {
			log.Warn().Err(err).
				Str("conversation_id", conv.ID).
				Str("message_id", msg.ID).
				Msg("gateway send failed, message persisted")
		}
	}

	if err := repo.TouchConversation(ctx, s.DB, conv.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("touch conversation failed")
	}

	return &ReplyResult{Action: ActionReplied, Text: text, Message: msg}, nil
}

// buildPrompt assembles the system prompt from personality, knowledge
// context, workflow guidance, and the conversation's last known entities.
func (s *ReplyService) buildPrompt(ctx context.Context, conv *domain.Conversation, text string) (string, *RunState, *Personality, error) {
	persona, err := s.Personality.Resolve(ctx, conv.TenantID, conv.SubTenantID)
	if err != nil {
		return "", nil, nil, err
	}

	knowledgeCtx, topic, err := s.Knowledge.Resolve(ctx, conv.TenantID, conv.SubTenantID, text)
	if err != nil {
		return "", nil, nil, err
	}
	if topic != "" {
		s.rememberTopic(ctx, conv, topic)
	}

	state, err := s.Workflow.Guidance(ctx, conv, text)
	if err != nil {
		return "", nil, nil, err
	}

	var b strings.Builder
	b.WriteString("You are a helpful assistant for a dealership, replying to a customer over chat.\n")
	if persona.Tone != "" {
		b.WriteString("\nTONE OF VOICE:\n" + persona.Tone + "\n")
	}
	if persona.BusinessRules != "" {
		b.WriteString("\nBUSINESS RULES:\n" + persona.BusinessRules + "\n")
	}
	b.WriteString("\nKNOWLEDGE CONTEXT:\n" + knowledgeCtx + "\n")
	if state.Kind == StateRunning && state.Step != nil {
		// Guidance is a goal, not a script: verbatim repetition across
		// turns reads as broken to the customer.
		b.WriteString("\nCURRENT GOAL:\nTreat the following as the intent of your reply and express it in your own words: " +
			state.Step.Guidance + "\n")
	}
	if ents := conv.Entities(); len(ents) > 0 {
		b.WriteString("\nPREVIOUSLY DISCUSSED:\n")
		for k, v := range ents {
			b.WriteString(k + ": " + v + "\n")
		}
	}
	b.WriteString("\nIf you determine that no reply adds value, respond with exactly " + s.DeclineToken + " and nothing else.")

	return b.String(), state, persona, nil
}

// history returns the recent window in ascending order with the current
// inbound text appended as the final user turn.
func (s *ReplyService) history(ctx context.Context, conversationID, text string) ([]llm.Turn, error) {
	msgs, err := repo.RecentMessages(ctx, s.DB, conversationID, s.HistoryWindow)
	if err != nil {
		return nil, err
	}
	turns := make([]llm.Turn, 0, len(msgs)+1)
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Sender != domain.SenderCustomer {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}
	turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: text})
	return turns, nil
}

// rememberTopic stores the matched article title as the conversation's last
// discussed topic. Non-critical effect: failure is logged and swallowed.
func (s *ReplyService) rememberTopic(ctx context.Context, conv *domain.Conversation, topic string) {
	ents := conv.Entities()
	ents["last_topic"] = topic
	conv.SetEntities(ents)
	if err := repo.UpdateConversationEntities(ctx, s.DB, conv.ID, conv.LastEntities); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("entity update failed")
	}
}

// isGreeting reports whether the message is a greeting: a case-insensitive
// exact or prefix match against the configured set. A prefix only counts on
// a word boundary, so "hi there" greets but "hit me" does not.
func (s *ReplyService) isGreeting(text string) bool {
	low := strings.ToLower(strings.TrimSpace(text))
	for _, g := range s.Greetings {
		if g == "" || !strings.HasPrefix(low, g) {
			continue
		}
		rest := low[len(g):]
		if rest == "" {
			return true
		}
		if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
