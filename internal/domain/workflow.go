package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Workflow trigger types.
const (
	TriggerKeyword = "keyword"
	TriggerIntent  = "intent"
	TriggerAlways  = "always"
)

// WorkflowDefinition is a configurable step-based conversation flow, scoped
// to a tenant and optionally a sub-tenant. TriggerValues is a JSON string
// list: keywords for "keyword" triggers, candidate intent labels for
// "intent" triggers, unused for "always".
type WorkflowDefinition struct {
	ID            string         `json:"id"            gorm:"type:char(36);primaryKey"`
	TenantID      string         `json:"tenant_id"     gorm:"type:varchar(64);not null;index:idx_tenant_workflows"`
	SubTenantID   *string        `json:"sub_tenant_id" gorm:"type:varchar(64)"`
	Name          string         `json:"name"          gorm:"type:varchar(128);not null"`
	TriggerType   string         `json:"trigger_type"  gorm:"type:varchar(16);not null;check:trigger_type IN ('keyword','intent','always')"`
	TriggerValues string         `json:"-"             gorm:"type:text"`
	Active        bool           `json:"active"        gorm:"not null;default:true"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	Steps []WorkflowStep `json:"steps,omitempty" gorm:"foreignKey:WorkflowID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for WorkflowDefinition.
func (WorkflowDefinition) TableName() string { return "workflow_definitions" }

// Triggers decodes the TriggerValues JSON list. A broken or empty blob
// decodes to nil.
func (w *WorkflowDefinition) Triggers() []string {
	if w.TriggerValues == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(w.TriggerValues), &out); err != nil {
		return nil
	}
	return out
}

// SetTriggers encodes values into the TriggerValues column.
func (w *WorkflowDefinition) SetTriggers(values []string) {
	b, err := json.Marshal(values)
	if err != nil {
		return
	}
	w.TriggerValues = string(b)
}

// WorkflowStep is one ordered step of a definition. Guidance is a goal
// description injected into the system prompt, never a literal sentence for
// the model to parrot.
type WorkflowStep struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	WorkflowID string    `json:"workflow_id" gorm:"type:char(36);not null;index:idx_workflow_steps,priority:1"`
	Seq        int       `json:"seq"         gorm:"not null;index:idx_workflow_steps,priority:2"`
	Guidance   string    `json:"guidance"    gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for WorkflowStep.
func (WorkflowStep) TableName() string { return "workflow_steps" }

// WorkflowRunLog is one execution of a definition against one conversation.
// StepIndex is the cursor into the definition's ordered steps; Variables is
// a JSON map accumulated across steps.
//
// ActiveConversationID mirrors ConversationID while the run is incomplete
// and is cleared when the run finishes. Its unique index is what guarantees
// at most one incomplete run per conversation even under concurrent trigger
// detection.
type WorkflowRunLog struct {
	ID                   string    `json:"id"              gorm:"type:char(36);primaryKey"`
	WorkflowID           string    `json:"workflow_id"     gorm:"type:char(36);not null;index"`
	ConversationID       string    `json:"conversation_id" gorm:"type:char(36);not null;index"`
	ActiveConversationID *string   `json:"-"               gorm:"type:char(36);uniqueIndex:ux_active_run"`
	StepIndex            int       `json:"step_index"      gorm:"not null;default:0"`
	Variables            string    `json:"-"               gorm:"type:text"`
	Completed            bool      `json:"completed"       gorm:"not null;default:false"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName returns the database table name for WorkflowRunLog.
func (WorkflowRunLog) TableName() string { return "workflow_run_logs" }
