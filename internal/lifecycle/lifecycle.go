// Package lifecycle implements agent registration, state transitions, and
// session tracking, operating exclusively through a store.Store.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
	"github.com/opscore/core/internal/store"
)

// Manager is the lifecycle manager. It holds no mutable state of its own;
// every method delegates to the injected store.
type Manager struct {
	store store.Store
}

// New builds a Manager over the given store.
func New(s store.Store) *Manager {
	return &Manager{store: s}
}

// RegisterAgent saves a new registration (failing AgentAlreadyExists on
// duplicate) then appends an initial UNKNOWN state. The two writes are
// not transactional: if the state write fails after the registration
// succeeded, the registration is logged as orphaned rather than rolled
// back, since re-registration requires operator intervention anyway.
func (m *Manager) RegisterAgent(ctx context.Context, details *model.AgentRegistration) (*model.AgentRegistration, error) {
	if err := details.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid agent registration", err)
	}
	if details.RegistrationTime.IsZero() {
		details.RegistrationTime = time.Now().UTC()
	}

	if err := m.store.SaveAgentRegistration(ctx, details); err != nil {
		return nil, err
	}

	initial := &model.AgentStateRecord{
		AgentID:   details.AgentID,
		Timestamp: time.Now().UTC(),
		State:     model.StateUnknown,
	}
	if err := m.store.SaveAgentState(ctx, initial); err != nil {
		log.Printf("[LIFECYCLE] orphaned registration for agent %s: initial state write failed: %v", details.AgentID, err)
	}

	return details, nil
}

// SetState validates and records a new state for an existing agent.
func (m *Manager) SetState(ctx context.Context, agentID string, newState model.AgentState, timestamp time.Time, details map[string]interface{}) error {
	exists, err := m.store.AgentExists(ctx, agentID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.New(apperrors.KindAgentNotFound, agentID)
	}
	if !model.IsValidState(newState) {
		return apperrors.New(apperrors.KindInvalidState, string(newState))
	}

	rec := &model.AgentStateRecord{
		AgentID:   agentID,
		Timestamp: timestamp,
		State:     newState,
		Details:   details,
	}
	return m.store.SaveAgentState(ctx, rec)
}

// GetState returns the latest state record for agentID, or nil if none
// exists (e.g. the agent was never registered).
func (m *Manager) GetState(ctx context.Context, agentID string) (*model.AgentStateRecord, error) {
	rec, err := m.store.ReadLatestAgentState(ctx, agentID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindAgentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// StartSession verifies the agent and workflow both exist, then creates
// a new session with status "started".
func (m *Manager) StartSession(ctx context.Context, agentID, workflowID string, metadata map[string]interface{}) (*model.WorkflowSession, error) {
	exists, err := m.store.AgentExists(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.New(apperrors.KindAgentNotFound, agentID)
	}
	if _, err := m.store.ReadWorkflowDefinition(ctx, workflowID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &model.WorkflowSession{
		SessionID:       uuid.NewString(),
		AgentID:         agentID,
		WorkflowID:      workflowID,
		Status:          model.SessionStarted,
		StartTime:       now,
		LastUpdatedTime: now,
		Metadata:        metadata,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateSession merges patch into the existing session record.
func (m *Manager) UpdateSession(ctx context.Context, sessionID string, patch model.SessionPatch) (*model.WorkflowSession, error) {
	return m.store.UpdateSessionData(ctx, sessionID, patch)
}

// GetSession returns the session record, or nil if it does not exist.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*model.WorkflowSession, error) {
	session, err := m.store.ReadSession(ctx, sessionID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// AgentExists is exposed for callers (e.g. the workflow engine) that need
// a plain existence check without reading a full registration.
func (m *Manager) AgentExists(ctx context.Context, agentID string) (bool, error) {
	return m.store.AgentExists(ctx, agentID)
}

// DescribeState renders a state record for logging.
func DescribeState(rec *model.AgentStateRecord) string {
	if rec == nil {
		return "none"
	}
	return fmt.Sprintf("%s@%s", rec.State, rec.Timestamp.Format(time.RFC3339))
}
