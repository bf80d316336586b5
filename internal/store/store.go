// Package store defines the polymorphic state-store abstraction shared by
// the lifecycle manager and workflow engine, and its two concrete
// backends: an in-memory store for tests and single-process deployments,
// and a Redis-backed store for production.
//
// All operations are asynchronous-capable: callers pass a context and
// always await. Any I/O error from a backend is surfaced as an
// *apperrors.Error of kind StorageError; the underlying cause is
// preserved for logging but never leaked past that wrapper.
package store

import (
	"context"
	"time"

	"github.com/opscore/core/internal/model"
)

// HistoryRetentionLimit bounds per-agent state-history length. History
// retention is backend policy, not a spec-mandated count; this value is
// the operational default for both backends.
const HistoryRetentionLimit = 500

// Store is the operation set every backend must implement.
type Store interface {
	SaveAgentRegistration(ctx context.Context, reg *model.AgentRegistration) error
	ReadAgentRegistration(ctx context.Context, agentID string) (*model.AgentRegistration, error)
	AgentExists(ctx context.Context, agentID string) (bool, error)

	SaveAgentState(ctx context.Context, state *model.AgentStateRecord) error
	ReadLatestAgentState(ctx context.Context, agentID string) (*model.AgentStateRecord, error)
	ReadAgentStateHistory(ctx context.Context, agentID string, limit int) ([]*model.AgentStateRecord, error)

	CreateSession(ctx context.Context, session *model.WorkflowSession) error
	ReadSession(ctx context.Context, sessionID string) (*model.WorkflowSession, error)
	UpdateSessionData(ctx context.Context, sessionID string, patch model.SessionPatch) (*model.WorkflowSession, error)
	DeleteSession(ctx context.Context, sessionID string) error

	SaveWorkflowDefinition(ctx context.Context, def *model.WorkflowDefinition) error
	ReadWorkflowDefinition(ctx context.Context, id string) (*model.WorkflowDefinition, error)

	// ClearAll wipes all persisted records. Test/setup use only.
	ClearAll(ctx context.Context) error
}

// OpTimeout is the default per-operation timeout a caller should apply
// around any Store call, per the 5s state-store budget.
const OpTimeout = 5 * time.Second
