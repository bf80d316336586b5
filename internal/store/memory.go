package store

import (
	"context"
	"sync"
	"time"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/model"
)

// Memory is a process-local Store backed by mutex-guarded maps, one per
// collection. Modeled on the teacher's JSONStore: a collection-per-mutex
// layout rather than one giant lock, so unrelated collections (sessions
// vs. registrations) never contend. latest/history share stateMu because
// SaveAgentState always updates both together and they must stay
// consistent with each other, not because they're one collection.
type Memory struct {
	regMu         sync.RWMutex
	registrations map[string]*model.AgentRegistration

	stateMu sync.RWMutex
	latest  map[string]*model.AgentStateRecord
	history map[string][]*model.AgentStateRecord

	sessionMu sync.RWMutex
	sessions  map[string]*model.WorkflowSession

	defMu       sync.RWMutex
	definitions map[string]*model.WorkflowDefinition
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		registrations: make(map[string]*model.AgentRegistration),
		latest:        make(map[string]*model.AgentStateRecord),
		history:       make(map[string][]*model.AgentStateRecord),
		sessions:      make(map[string]*model.WorkflowSession),
		definitions:   make(map[string]*model.WorkflowDefinition),
	}
}

func (m *Memory) SaveAgentRegistration(_ context.Context, reg *model.AgentRegistration) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()

	if _, exists := m.registrations[reg.AgentID]; exists {
		return apperrors.New(apperrors.KindAgentAlreadyExists, reg.AgentID)
	}
	cp := *reg
	m.registrations[reg.AgentID] = &cp
	return nil
}

func (m *Memory) ReadAgentRegistration(_ context.Context, agentID string) (*model.AgentRegistration, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()

	reg, ok := m.registrations[agentID]
	if !ok {
		return nil, apperrors.New(apperrors.KindAgentNotFound, agentID)
	}
	cp := *reg
	return &cp, nil
}

func (m *Memory) AgentExists(_ context.Context, agentID string) (bool, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	_, ok := m.registrations[agentID]
	return ok, nil
}

func (m *Memory) SaveAgentState(_ context.Context, state *model.AgentStateRecord) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	cp := *state
	m.history[state.AgentID] = appendBounded(m.history[state.AgentID], &cp, HistoryRetentionLimit)

	cur, ok := m.latest[state.AgentID]
	if !ok || !state.Timestamp.Before(cur.Timestamp) {
		latestCp := *state
		m.latest[state.AgentID] = &latestCp
	}
	return nil
}

// appendBounded appends v to history, dropping the oldest entries once
// the bound is exceeded. History is kept newest-last internally; callers
// reverse it on read to return newest-first per the contract.
func appendBounded(history []*model.AgentStateRecord, v *model.AgentStateRecord, limit int) []*model.AgentStateRecord {
	history = append(history, v)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func (m *Memory) ReadLatestAgentState(_ context.Context, agentID string) (*model.AgentStateRecord, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	rec, ok := m.latest[agentID]
	if !ok {
		return nil, apperrors.New(apperrors.KindAgentNotFound, agentID)
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) ReadAgentStateHistory(_ context.Context, agentID string, limit int) ([]*model.AgentStateRecord, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	entries := m.history[agentID]
	out := make([]*model.AgentStateRecord, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		cp := *entries[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CreateSession(_ context.Context, session *model.WorkflowSession) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, exists := m.sessions[session.SessionID]; exists {
		return apperrors.New(apperrors.KindInvalidRequest, "duplicate session id "+session.SessionID)
	}
	cp := *session
	m.sessions[session.SessionID] = &cp
	return nil
}

func (m *Memory) ReadSession(_ context.Context, sessionID string) (*model.WorkflowSession, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperrors.New(apperrors.KindSessionNotFound, sessionID)
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) UpdateSessionData(_ context.Context, sessionID string, patch model.SessionPatch) (*model.WorkflowSession, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperrors.New(apperrors.KindSessionNotFound, sessionID)
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.Metadata != nil {
		if s.Metadata == nil {
			s.Metadata = make(map[string]interface{}, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			s.Metadata[k] = v
		}
	}
	s.LastUpdatedTime = time.Now().UTC()
	cp := *s
	return &cp, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *Memory) SaveWorkflowDefinition(_ context.Context, def *model.WorkflowDefinition) error {
	m.defMu.Lock()
	defer m.defMu.Unlock()
	cp := *def
	m.definitions[def.ID] = &cp
	return nil
}

func (m *Memory) ReadWorkflowDefinition(_ context.Context, id string) (*model.WorkflowDefinition, error) {
	m.defMu.RLock()
	defer m.defMu.RUnlock()

	def, ok := m.definitions[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindWorkflowDefinitionNotFound, id)
	}
	cp := *def
	return &cp, nil
}

// ClearAll locks every collection's mutex in a fixed order
// (registrations, state, sessions, definitions) to avoid deadlocking
// against concurrent calls that lock more than one of them.
func (m *Memory) ClearAll(_ context.Context) error {
	m.regMu.Lock()
	defer m.regMu.Unlock()
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	m.defMu.Lock()
	defer m.defMu.Unlock()

	m.registrations = make(map[string]*model.AgentRegistration)
	m.latest = make(map[string]*model.AgentStateRecord)
	m.history = make(map[string][]*model.AgentStateRecord)
	m.sessions = make(map[string]*model.WorkflowSession)
	m.definitions = make(map[string]*model.WorkflowDefinition)
	return nil
}
