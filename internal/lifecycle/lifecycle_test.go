package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
	"github.com/opscore/core/internal/store"
)

func newTestManager() *Manager {
	return New(store.NewMemory())
}

func TestRegisterAgentSetsInitialUnknownState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	reg := &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://h/run"}
	if _, err := m.RegisterAgent(ctx, reg); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	state, err := m.GetState(ctx, "a1")
	if err != nil {
		t.Fatalf("get state failed: %v", err)
	}
	if state == nil || state.State != model.StateUnknown {
		t.Fatalf("expected UNKNOWN state after registration, got %v", state)
	}
}

func TestRegisterAgentRejectsDuplicate(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	reg := &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://h/run"}
	if _, err := m.RegisterAgent(ctx, reg); err != nil {
		t.Fatal(err)
	}
	_, err := m.RegisterAgent(ctx, reg)
	if !apperrors.Is(err, apperrors.KindAgentAlreadyExists) {
		t.Fatalf("expected AgentAlreadyExists, got: %v", err)
	}
}

func TestSetStateRejectsUnknownAgent(t *testing.T) {
	m := newTestManager()
	err := m.SetState(context.Background(), "ghost", model.StateIdle, time.Now(), nil)
	if !apperrors.Is(err, apperrors.KindAgentNotFound) {
		t.Fatalf("expected AgentNotFound, got: %v", err)
	}
}

func TestSetStateRejectsInvalidState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	reg := &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://h/run"}
	if _, err := m.RegisterAgent(ctx, reg); err != nil {
		t.Fatal(err)
	}

	err := m.SetState(ctx, "a1", model.AgentState("bogus"), time.Now(), nil)
	if !apperrors.Is(err, apperrors.KindInvalidState) {
		t.Fatalf("expected InvalidState, got: %v", err)
	}
}

func TestStartSessionRequiresExistingAgentAndWorkflow(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	if _, err := m.StartSession(ctx, "ghost", "w1", nil); !apperrors.Is(err, apperrors.KindAgentNotFound) {
		t.Fatalf("expected AgentNotFound, got: %v", err)
	}

	reg := &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://h/run"}
	if _, err := m.RegisterAgent(ctx, reg); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartSession(ctx, "a1", "missing-workflow", nil); !apperrors.Is(err, apperrors.KindWorkflowDefinitionNotFound) {
		t.Fatalf("expected WorkflowDefinitionNotFound, got: %v", err)
	}
}

func TestUpdateSessionMergesPatch(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	reg := &model.AgentRegistration{AgentID: "a1", AgentName: "A", ContactEndpoint: "http://h/run"}
	if _, err := m.RegisterAgent(ctx, reg); err != nil {
		t.Fatal(err)
	}
	def := &model.WorkflowDefinition{ID: "w1", Name: "w", Version: "1", Tasks: []model.TaskDescriptor{{TaskName: "t1"}}}
	if err := m.store.SaveWorkflowDefinition(ctx, def); err != nil {
		t.Fatal(err)
	}

	session, err := m.StartSession(ctx, "a1", "w1", nil)
	if err != nil {
		t.Fatal(err)
	}

	status := model.SessionFailed
	updated, err := m.UpdateSession(ctx, session.SessionID, model.SessionPatch{
		Status:   &status,
		Metadata: map[string]interface{}{"lastError": "boom"},
	})
	if err != nil {
		t.Fatalf("update session failed: %v", err)
	}
	if updated.Status != model.SessionFailed {
		t.Fatalf("expected failed status, got %s", updated.Status)
	}
	if updated.Metadata["lastError"] != "boom" {
		t.Fatalf("expected lastError metadata to be set, got %v", updated.Metadata)
	}
}
