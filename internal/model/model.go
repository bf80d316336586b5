// Package model defines the typed records that flow through the agent
// registry, state store, and workflow engine.
package model

import (
	"fmt"
	"reflect"
	"time"
)

// AgentState is the lifecycle state of a registered agent.
type AgentState string

const (
	StateUnknown      AgentState = "UNKNOWN"
	StateInitializing AgentState = "initializing"
	StateIdle         AgentState = "idle"
	StateActive       AgentState = "active"
	StateFinished     AgentState = "finished"
	StateError        AgentState = "error"
)

// validStates is the allowed state set used by setState validation.
var validStates = map[AgentState]bool{
	StateUnknown:      true,
	StateInitializing: true,
	StateIdle:         true,
	StateActive:       true,
	StateFinished:     true,
	StateError:        true,
}

// IsValidState reports whether s is one of the recognized lifecycle states.
func IsValidState(s AgentState) bool {
	return validStates[s]
}

// AgentRegistration records an agent's identity and contact details.
// Created by webhook ingestion; never mutated once saved.
type AgentRegistration struct {
	AgentID          string            `json:"agentId"`
	AgentName        string            `json:"agentName"`
	Version          string            `json:"version"`
	Capabilities     []string          `json:"capabilities,omitempty"`
	ContactEndpoint  string            `json:"contactEndpoint"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	RegistrationTime time.Time         `json:"registrationTime"`
}

// Validate checks the required fields for a registration record.
func (r *AgentRegistration) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("agentId is required")
	}
	if r.AgentName == "" {
		return fmt.Errorf("agentName is required")
	}
	if r.ContactEndpoint == "" {
		return fmt.Errorf("contactEndpoint is required")
	}
	return nil
}

// AgentStateRecord is one reported state snapshot for an agent.
type AgentStateRecord struct {
	AgentID   string                 `json:"agentId"`
	Timestamp time.Time              `json:"timestamp"`
	State     AgentState             `json:"state"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// TaskDescriptor is one entry in a WorkflowDefinition's ordered task list.
type TaskDescriptor struct {
	TaskName   string                 `json:"taskName" yaml:"taskName"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Overrides  map[string]interface{} `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// WorkflowDefinition is a declarative, named, versioned, ordered task list.
// Immutable once saved under an ID.
type WorkflowDefinition struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Tasks   []TaskDescriptor `json:"tasks"`
}

// Validate checks the presence rules from the workflow template loader:
// name, version, and a non-empty task list each carrying a taskName.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("tasks must be non-empty")
	}
	for i, t := range d.Tasks {
		if t.TaskName == "" {
			return fmt.Errorf("tasks[%d].taskName is required", i)
		}
	}
	return nil
}

// Equal reports whether two definitions carry the same name, version, and
// task list (task names, parameters, and overrides), used to detect
// whether an inline trigger collides with an already-saved definition
// under the same ID. An empty and a nil map compare equal.
func (d *WorkflowDefinition) Equal(other *WorkflowDefinition) bool {
	if d.Name != other.Name || d.Version != other.Version {
		return false
	}
	if len(d.Tasks) != len(other.Tasks) {
		return false
	}
	for i := range d.Tasks {
		a, b := d.Tasks[i], other.Tasks[i]
		if a.TaskName != b.TaskName {
			return false
		}
		if (len(a.Parameters) > 0 || len(b.Parameters) > 0) && !reflect.DeepEqual(a.Parameters, b.Parameters) {
			return false
		}
		if (len(a.Overrides) > 0 || len(b.Overrides) > 0) && !reflect.DeepEqual(a.Overrides, b.Overrides) {
			return false
		}
	}
	return true
}

// SessionStatus is the lifecycle status of a WorkflowSession.
type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// WorkflowSession is a runtime instance of a workflow for a specific agent.
// Created by startSession; mutated only through updateSession.
type WorkflowSession struct {
	SessionID       string                 `json:"sessionId"`
	AgentID         string                 `json:"agentId"`
	WorkflowID      string                 `json:"workflowId"`
	Status          SessionStatus          `json:"status"`
	StartTime       time.Time              `json:"startTime"`
	LastUpdatedTime time.Time              `json:"lastUpdatedTime"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// SessionPatch carries the mutable fields accepted by updateSession.
type SessionPatch struct {
	Status   *SessionStatus
	Metadata map[string]interface{}
}

// Task is a single unit of work emitted from a workflow. It is transient:
// it lives in the queue and in in-flight dispatch state, and is not
// persisted by the state store once dispatch completes successfully.
type Task struct {
	TaskID     string                 `json:"taskId"`
	SessionID  string                 `json:"sessionId"`
	AgentID    string                 `json:"agentId"`
	WorkflowID string                 `json:"workflowId"`
	TaskName   string                 `json:"taskName"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	RetryCount int                    `json:"retryCount"`
	MaxRetries int                    `json:"maxRetries"`
	EnqueuedAt time.Time              `json:"enqueuedAt"`
	// NotBefore is the earliest-dispatch timestamp for scheduled tasks.
	// Zero means "eligible immediately".
	NotBefore time.Time `json:"notBefore,omitempty"`
}

// Ready reports whether t's scheduled dispatch time has arrived.
func (t *Task) Ready(now time.Time) bool {
	return t.NotBefore.IsZero() || !t.NotBefore.After(now)
}
