// Package services – WorkflowService
//
// Owns the per-conversation workflow state machine. Each conversation is in
// exactly one of three states: Idle (no run), Running (incomplete run), or
// Completed (terminal; the run row is retained for audit). Trigger detection
// only happens in Idle — an active run is resumed, never re-triggered — and
// the step cursor advances only after a reply was actually produced.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
	"github.com/velora-ai/dealer-chat-backend/internal/llm"
	"github.com/velora-ai/dealer-chat-backend/internal/repo"
)

// RunStateKind enumerates the workflow states of a conversation.
type RunStateKind int

const (
	// StateIdle means no run exists for the conversation.
	StateIdle RunStateKind = iota
	// StateRunning means an incomplete run exists.
	StateRunning
	// StateCompleted means the most recent run finished; trigger detection
	// may start a fresh run on a later message.
	StateCompleted
)

// RunState is the tagged variant describing a conversation's workflow
// position. Run/Step/StepCount are set only for StateRunning.
type RunState struct {
	Kind      RunStateKind
	Run       *domain.WorkflowRunLog
	Step      *domain.WorkflowStep
	StepCount int
}

// WorkflowService resolves guidance for the current message and advances
// run cursors.
type WorkflowService struct {
	DB     *gorm.DB
	Router *llm.Router // used for intent-trigger classification
}

// Guidance returns the workflow state for this conversation after trigger
// detection, including the guidance text of the step at the cursor when a
// run is active. It never fails the pipeline on classification errors: an
// unclassifiable message simply does not trigger an intent workflow.
func (s *WorkflowService) Guidance(ctx context.Context, conv *domain.Conversation, messageText string) (*RunState, error) {
	tr := otel.Tracer("services/WorkflowService")
	ctx, span := tr.Start(ctx, "Guidance",
		trace.WithAttributes(attribute.String("conversation.id", conv.ID)),
	)
	defer span.End()

	state, err := s.currentState(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	if state.Kind == StateIdle {
		run, err := s.detectTrigger(ctx, conv, messageText)
		if err != nil {
			return nil, err
		}
		if run == nil {
			span.SetAttributes(attribute.String("workflow.state", "idle"))
			return &RunState{Kind: StateIdle}, nil
		}
		state, err = s.stateForRun(ctx, run)
		if err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("workflow.step", stateCursor(state)))
	return state, nil
}

// Advance moves the run cursor forward by one and records the fulfilled
// step in the run's accumulated variables. Called only after a reply was
// actually produced, never on suppression or failure.
func (s *WorkflowService) Advance(ctx context.Context, state *RunState) error {
	if state == nil || state.Kind != StateRunning || state.Run == nil {
		return nil
	}
	run, err := repo.AdvanceRun(ctx, s.DB, state.Run.ID, state.StepCount)
	if err != nil {
		return err
	}

	// Non-critical effect: the audit blob must never fail the pipeline.
	vars := map[string]any{}
	if state.Run.Variables != "" {
		_ = json.Unmarshal([]byte(state.Run.Variables), &vars)
	}
	vars[fmt.Sprintf("step_%d_completed_at", state.Run.StepIndex)] = time.Now().UTC().Format(time.RFC3339)
	if b, merr := json.Marshal(vars); merr == nil {
		if uerr := repo.UpdateRunVariables(ctx, s.DB, run.ID, string(b)); uerr != nil {
			log.Warn().Err(uerr).Str("run_id", run.ID).Msg("run variable update failed")
		}
	}
	return nil
}

// currentState maps the run-log table onto the tagged variant.
func (s *WorkflowService) currentState(ctx context.Context, conversationID string) (*RunState, error) {
	run, err := repo.GetIncompleteRun(ctx, s.DB, conversationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &RunState{Kind: StateIdle}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.stateForRun(ctx, run)
}

// stateForRun loads the definition behind a run and picks the step at the
// cursor. A cursor already past the last step is treated as completed.
func (s *WorkflowService) stateForRun(ctx context.Context, run *domain.WorkflowRunLog) (*RunState, error) {
	def, err := repo.GetDefinition(ctx, s.DB, run.WorkflowID)
	if err != nil {
		return nil, err
	}
	if run.StepIndex >= len(def.Steps) {
		return &RunState{Kind: StateCompleted, Run: run, StepCount: len(def.Steps)}, nil
	}
	step := def.Steps[run.StepIndex]
	return &RunState{Kind: StateRunning, Run: run, Step: &step, StepCount: len(def.Steps)}, nil
}

// detectTrigger checks the active in-scope definitions against the message
// and starts a run for the first match. A concurrent double-trigger for the
// same conversation loses the unique-index race and resumes the winner's
// run instead of erroring.
func (s *WorkflowService) detectTrigger(ctx context.Context, conv *domain.Conversation, messageText string) (*domain.WorkflowRunLog, error) {
	defs, err := repo.ListActiveDefinitions(ctx, s.DB, conv.TenantID, conv.SubTenantID)
	if err != nil {
		return nil, err
	}

	for i := range defs {
		def := &defs[i]
		if len(def.Steps) == 0 {
			continue
		}
		matched, err := s.matches(ctx, def, messageText)
		if err != nil {
			return nil, err
		}
		if !matched {
			continue
		}
		run, err := repo.CreateRun(ctx, s.DB, def.ID, conv.ID)
		if errors.Is(err, repo.ErrRunExists) {
			return repo.GetIncompleteRun(ctx, s.DB, conv.ID)
		}
		if err != nil {
			return nil, err
		}
		return run, nil
	}
	return nil, nil
}

// matches evaluates one definition's trigger against the message.
func (s *WorkflowService) matches(ctx context.Context, def *domain.WorkflowDefinition, messageText string) (bool, error) {
	switch def.TriggerType {
	case domain.TriggerAlways:
		return true, nil
	case domain.TriggerKeyword:
		low := strings.ToLower(messageText)
		for _, kw := range def.Triggers() {
			if kw != "" && strings.Contains(low, strings.ToLower(kw)) {
				return true, nil
			}
		}
		return false, nil
	case domain.TriggerIntent:
		return s.classifyIntent(ctx, def.Triggers(), messageText), nil
	default:
		return false, nil
	}
}

// classifyIntent runs one constrained classification call. The model must
// answer with exactly one of the candidate labels (case-insensitive exact
// match) or NONE; anything else is treated as no match. Classification
// failures are swallowed: they must not fail the reply pipeline.
func (s *WorkflowService) classifyIntent(ctx context.Context, labels []string, messageText string) bool {
	if s.Router == nil || len(labels) == 0 {
		return false
	}

	prompt := "You are an intent classifier. Classify the customer message into exactly one of the following intents: " +
		strings.Join(labels, ", ") +
		". Respond with only the intent label, or NONE if none applies."

	out, err := s.Router.Complete(ctx, "", "", prompt, []llm.Turn{{Role: llm.RoleUser, Content: messageText}})
	if err != nil {
		return false
	}
	answer := strings.TrimSpace(out.Text)
	for _, l := range labels {
		if strings.EqualFold(answer, l) {
			return true
		}
	}
	return false
}

func stateCursor(st *RunState) int {
	if st == nil || st.Run == nil {
		return -1
	}
	return st.Run.StepIndex
}
