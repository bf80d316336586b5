// Package eventlog implements the structured event bus that supplements
// spec.md's explicit "the core emits structured events; transport is
// pluggable" note: an in-process fan-out Bus, an optional durable SQLite
// history, and an optional NATS publisher sink for external subscribers.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Type names one of the structured events this repo emits. These are
// Ops-Core's own domain events (agent/session/task lifecycle), not the
// teacher's dashboard-oriented event types.
type Type string

const (
	TypeAgentRegistered   Type = "agent_registered"
	TypeAgentStateChanged Type = "agent_state_changed"
	TypeSessionStarted    Type = "session_started"
	TypeSessionUpdated    Type = "session_updated"
	TypeTaskEnqueued      Type = "task_enqueued"
	TypeTaskDispatched    Type = "task_dispatched"
	TypeTaskRequeued      Type = "task_requeued"
	TypeTaskFailed        Type = "task_failed"
	TypeTaskExhausted     Type = "task_exhausted"
)

// Priority mirrors the teacher's events.Priority scale. It is carried on
// every event for consumers; no sink or bus path filters on it.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityNormal   Priority = 3
	PriorityLow      Priority = 4
)

// Event is one structured record flowing through the Bus.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	AgentID    string                 `json:"agentId,omitempty"`
	SessionID  string                 `json:"sessionId,omitempty"`
	TaskID     string                 `json:"taskId,omitempty"`
	Priority   Priority               `json:"priority"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// New builds an Event with a generated ID and current timestamp.
func New(typ Type, priority Priority, agentID, sessionID, taskID string, payload map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		AgentID:   agentID,
		SessionID: sessionID,
		TaskID:    taskID,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
