// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for workflow
// definitions, steps, and run logs.
//
// Run-log invariant: at most one incomplete run per conversation. The
// ActiveConversationID column mirrors ConversationID while a run is
// incomplete and carries a unique index, so a second concurrent insert fails
// at the database rather than racing a read-then-write check.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

// ErrRunExists indicates an incomplete workflow run already exists for the
// conversation.
var ErrRunExists = errors.New("active workflow run exists")

// ListActiveDefinitions returns the active workflow definitions in scope,
// steps preloaded in sequence order.
func ListActiveDefinitions(ctx context.Context, db *gorm.DB, tenantID string, subTenantID *string) ([]domain.WorkflowDefinition, error) {
	q := db.WithContext(ctx).
		Preload("Steps", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq ASC") }).
		Where("active = ?", true).
		Where("tenant_id = ?", tenantID)
	if subTenantID != nil {
		q = q.Where("sub_tenant_id IS NULL OR sub_tenant_id = ?", *subTenantID)
	} else {
		q = q.Where("sub_tenant_id IS NULL")
	}
	var out []domain.WorkflowDefinition
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// GetDefinition fetches one definition with its ordered steps.
func GetDefinition(ctx context.Context, db *gorm.DB, id string) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	err := db.WithContext(ctx).
		Preload("Steps", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq ASC") }).
		Where("id = ?", id).
		First(&def).Error
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// GetIncompleteRun returns the single incomplete run for a conversation,
// or ErrNotFound.
func GetIncompleteRun(ctx context.Context, db *gorm.DB, conversationID string) (*domain.WorkflowRunLog, error) {
	var run domain.WorkflowRunLog
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND completed = ?", conversationID, false).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRun starts a run for (workflow, conversation). The unique index on
// active_conversation_id turns a concurrent double-trigger into ErrRunExists.
func CreateRun(ctx context.Context, db *gorm.DB, workflowID, conversationID string) (*domain.WorkflowRunLog, error) {
	now := time.Now().UTC()
	active := conversationID
	run := &domain.WorkflowRunLog{
		ID:                   uuid.NewString(),
		WorkflowID:           workflowID,
		ConversationID:       conversationID,
		ActiveConversationID: &active,
		StepIndex:            0,
		Variables:            "{}",
		Completed:            false,
		CreatedAt:            now,
	}
	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrRunExists
		}
		return nil, err
	}
	return run, nil
}

// AdvanceRun moves the cursor forward by one step. When the new cursor is
// past the last step the run is marked completed and its active marker is
// cleared, releasing the one-incomplete-run slot for the conversation.
func AdvanceRun(ctx context.Context, db *gorm.DB, runID string, stepCount int) (*domain.WorkflowRunLog, error) {
	var run domain.WorkflowRunLog
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", runID).First(&run).Error; err != nil {
			return err
		}
		run.StepIndex++
		updates := map[string]any{"step_index": run.StepIndex}
		if run.StepIndex >= stepCount {
			run.Completed = true
			run.ActiveConversationID = nil
			updates["completed"] = true
			updates["active_conversation_id"] = nil
		}
		return tx.Model(&domain.WorkflowRunLog{}).Where("id = ?", runID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunVariables replaces the accumulated variables blob on a run.
func UpdateRunVariables(ctx context.Context, db *gorm.DB, runID, variablesJSON string) error {
	return db.WithContext(ctx).
		Model(&domain.WorkflowRunLog{}).
		Where("id = ?", runID).
		Update("variables", variablesJSON).Error
}
