// Package domain defines the persistence models for conversations, messages,
// billing, knowledge, and workflows. These types are mapped with GORM and form
// the core data layer of the dealer chat backend.
package domain

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Message sender roles.
const (
	SenderCustomer = "customer"
	SenderBot      = "bot"
	SenderAgent    = "agent"
)

// Conversation represents an ongoing exchange with one customer contact on
// one channel, scoped to a tenant (and optionally a sub-tenant department).
// It is created on first contact and mutated on every inbound and outbound
// message.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TenantID / SubTenantID: data-isolation scope; SubTenantID is nil for
//     tenant-wide conversations.
//   - Channel: originating channel identifier (e.g. "whatsapp").
//   - ContactID: the customer contact this conversation belongs to.
//   - AIEnabled: when false the reply pipeline takes no action at all.
//   - LastMessageAt: bumped on every inbound/outbound message (last writer
//     wins under concurrent deliveries; see services.ReplyService).
//   - CampaignID / WorkflowID: optional links set by outer systems.
//   - LastEntities: JSON-serialized map of the last discussed entities
//     (e.g. last product), used to keep short follow-up replies coherent.
type Conversation struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	TenantID      string         `json:"tenant_id"       gorm:"type:varchar(64);not null;index:idx_tenant_convs"`
	SubTenantID   *string        `json:"sub_tenant_id"   gorm:"type:varchar(64)"`
	Channel       string         `json:"channel"         gorm:"type:varchar(32);not null"`
	ContactID     string         `json:"contact_id"      gorm:"type:varchar(64);not null;index"`
	AIEnabled     bool           `json:"ai_enabled"      gorm:"not null;default:true"`
	LastMessageAt time.Time      `json:"last_message_at"`
	CampaignID    *string        `json:"campaign_id,omitempty"  gorm:"type:char(36)"`
	WorkflowID    *string        `json:"workflow_id,omitempty"  gorm:"type:char(36)"`
	LastEntities  string         `json:"-"               gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Entities decodes the LastEntities JSON blob. A broken or empty blob
// decodes to an empty map rather than an error.
func (c *Conversation) Entities() map[string]string {
	out := map[string]string{}
	if c.LastEntities != "" {
		_ = json.Unmarshal([]byte(c.LastEntities), &out)
	}
	return out
}

// SetEntities encodes m into the LastEntities JSON blob.
func (c *Conversation) SetEntities(m map[string]string) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	c.LastEntities = string(b)
}

// Message represents a single utterance within a conversation. Messages are
// append-only: they are never mutated or deleted by the reply pipeline.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ConversationID: foreign key to the owning conversation (indexed).
//   - Sender: "customer", "bot", or "agent" (enforced by DB constraint).
//   - Type: payload type ("text", "image", "document").
//   - Content: text content of the message.
//   - MediaRef: optional reference to an externally stored media object.
//   - DedupeKey: optional outbound idempotency key on bot messages; a
//     retried webhook delivery that replays the same key never yields a
//     second customer-visible message (unique when present).
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	Sender         string    `json:"sender"          gorm:"type:varchar(16);not null;check:sender IN ('customer','bot','agent')"`
	Type           string    `json:"type"            gorm:"type:varchar(16);not null;default:'text'"`
	Content        string    `json:"content"         gorm:"type:text;not null"`
	MediaRef       *string   `json:"media_ref,omitempty" gorm:"type:varchar(255)"`
	Channel        string    `json:"channel"         gorm:"type:varchar(32);not null"`
	DedupeKey      *string   `json:"-"               gorm:"type:varchar(200);uniqueIndex:ux_msg_dedupe"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`

	// Conversation is the parent. Messages are cascade-deleted if their
	// conversation is removed.
	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// TenantProfile holds tenant (and sub-tenant) personality and provider
// configuration: tone of voice, business rules injected into every system
// prompt, the fallback reply used when all providers fail, and the preferred
// provider/model pair. A row with a nil SubTenantID is the tenant-wide
// profile; a sub-tenant row overrides the non-empty fields of its parent.
type TenantProfile struct {
	ID              string         `json:"id"            gorm:"type:char(36);primaryKey"`
	TenantID        string         `json:"tenant_id"     gorm:"type:varchar(64);not null;index:idx_tenant_profiles"`
	SubTenantID     *string        `json:"sub_tenant_id" gorm:"type:varchar(64)"`
	Tone            string         `json:"tone"          gorm:"type:text"`
	BusinessRules   string         `json:"business_rules" gorm:"type:text"`
	FallbackMessage string         `json:"fallback_message" gorm:"type:text"`
	Provider        string         `json:"provider"      gorm:"type:varchar(32)"`
	Model           string         `json:"model"         gorm:"type:varchar(64)"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for TenantProfile.
func (TenantProfile) TableName() string { return "tenant_profiles" }
