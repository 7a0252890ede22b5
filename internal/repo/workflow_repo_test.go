package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/domain"
)

func seedDefinition(t *testing.T, db *gorm.DB, tenantID, triggerType string, triggers []string, steps ...string) *domain.WorkflowDefinition {
	t.Helper()
	def := &domain.WorkflowDefinition{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        "test-flow",
		TriggerType: triggerType,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	def.SetTriggers(triggers)
	if err := db.Create(def).Error; err != nil {
		t.Fatalf("definition: %v", err)
	}
	for i, g := range steps {
		s := &domain.WorkflowStep{
			ID:         uuid.NewString(),
			WorkflowID: def.ID,
			Seq:        i,
			Guidance:   g,
		}
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return def
}

func TestCreateRun_SecondIncompleteRunRejected(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conv, _ := CreateConversation(ctx, db, "tenant-1", nil, "whatsapp", "cust-1")
	def := seedDefinition(t, db, "tenant-1", domain.TriggerAlways, nil, "ask name", "ask model")
	other := seedDefinition(t, db, "tenant-1", domain.TriggerAlways, nil, "greet")

	if _, err := CreateRun(ctx, db, def.ID, conv.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Any second incomplete run for the conversation loses, even for a
	// different definition.
	if _, err := CreateRun(ctx, db, other.ID, conv.ID); !errors.Is(err, ErrRunExists) {
		t.Fatalf("want ErrRunExists, got %v", err)
	}
}

func TestCreateRun_ConcurrentTriggerSingleWinner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conv, _ := CreateConversation(ctx, db, "tenant-1", nil, "whatsapp", "cust-1")
	def := seedDefinition(t, db, "tenant-1", domain.TriggerAlways, nil, "step one")

	// SQLite allows a single writer; a one-connection pool makes the loser
	// observe the constraint instead of a transient table lock.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	// Two trigger detections race on the same conversation; the unique
	// index must let exactly one through.
	start := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := CreateRun(ctx, db, def.ID, conv.ID)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrRunExists):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Fatalf("winners = %d, rejected = %d; want exactly one of each", ok, rejected)
	}

	var count int64
	if err := db.Model(&domain.WorkflowRunLog{}).
		Where("conversation_id = ? AND completed = ?", conv.ID, false).
		Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("incomplete runs = %d; want 1", count)
	}
}

func TestAdvanceRun_CompletionReleasesSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	conv, _ := CreateConversation(ctx, db, "tenant-1", nil, "whatsapp", "cust-1")
	def := seedDefinition(t, db, "tenant-1", domain.TriggerAlways, nil, "step one", "step two")

	run, err := CreateRun(ctx, db, def.ID, conv.ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	run, err = AdvanceRun(ctx, db, run.ID, 2)
	if err != nil {
		t.Fatalf("advance 1: %v", err)
	}
	if run.Completed || run.StepIndex != 1 {
		t.Fatalf("after one advance: %+v", run)
	}

	run, err = AdvanceRun(ctx, db, run.ID, 2)
	if err != nil {
		t.Fatalf("advance 2: %v", err)
	}
	if !run.Completed {
		t.Fatalf("run not completed after last step")
	}

	// The slot is free again: a fresh run may start.
	if _, err := GetIncompleteRun(ctx, db, conv.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("incomplete run still visible: %v", err)
	}
	if _, err := CreateRun(ctx, db, def.ID, conv.ID); err != nil {
		t.Fatalf("fresh run after completion: %v", err)
	}
}

func TestListActiveDefinitions_Scoping(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedDefinition(t, db, "tenant-1", domain.TriggerKeyword, []string{"test drive"}, "collect date")
	inactive := seedDefinition(t, db, "tenant-1", domain.TriggerAlways, nil, "x")
	if err := db.Model(&domain.WorkflowDefinition{}).Where("id = ?", inactive.ID).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	seedDefinition(t, db, "tenant-2", domain.TriggerAlways, nil, "other tenant")

	defs, err := ListActiveDefinitions(ctx, db, "tenant-1", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(defs) != 1 || defs[0].TriggerType != domain.TriggerKeyword {
		t.Fatalf("defs = %+v", defs)
	}
	if len(defs[0].Steps) != 1 || defs[0].Steps[0].Guidance != "collect date" {
		t.Fatalf("steps not preloaded in order: %+v", defs[0].Steps)
	}
}
