package workflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/opscore/core/internal/apperrors"
	"github.com/opscore/core/internal/eventlog"
	"github.com/opscore/core/internal/lifecycle"
	"github.com/opscore/core/internal/model"
	"github.com/opscore/core/internal/routing"
	"github.com/opscore/core/internal/store"
)

// DefaultMaxRetries is the MaxRetries given to every task enqueued from a
// trigger; task descriptor overrides are not consulted for it. spec.md
// leaves the per-task default unstated beyond the retryCount/maxRetries
// fields existing.
const DefaultMaxRetries = 3

// StateReadTimeout bounds each dispatch-loop state lookup; on expiry the
// task is treated as contention (re-enqueued), not failure, per spec.md §5.
const StateReadTimeout = 5 * time.Second

// Engine is the workflow engine: template persistence, trigger
// processing, and the dispatch loop.
type Engine struct {
	store     store.Store
	lifecycle *lifecycle.Manager
	routing   *routing.Client
	queue     *Queue
	bus       *eventlog.Bus
}

// New builds an Engine over the given collaborators.
func New(s store.Store, lc *lifecycle.Manager, rc *routing.Client, bus *eventlog.Bus) *Engine {
	return &Engine{
		store:     s,
		lifecycle: lc,
		routing:   rc,
		queue:     NewQueue(),
		bus:       bus,
	}
}

// CreateWorkflow persists def, assigning an id if one was not supplied.
func (e *Engine) CreateWorkflow(ctx context.Context, def *model.WorkflowDefinition) (string, error) {
	if err := def.Validate(); err != nil {
		return "", apperrors.Wrap(apperrors.KindInvalidRequest, "invalid workflow definition", err)
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if err := e.store.SaveWorkflowDefinition(ctx, def); err != nil {
		return "", err
	}
	return def.ID, nil
}

// TriggerResult is the response shape for a successful trigger.
type TriggerResult struct {
	SessionID         string
	WorkflowID        string
	EnqueuedTaskCount int
}

// Trigger implements spec.md §4.4's trigger algorithm: resolve or save
// the definition, verify the agent exists, start a session, and enqueue
// one Task per entry in the definition's task list.
func (e *Engine) Trigger(ctx context.Context, agentID string, workflowDefinitionID string, inline *model.WorkflowDefinition, initialPayload map[string]interface{}) (*TriggerResult, error) {
	def, err := e.resolveDefinition(ctx, workflowDefinitionID, inline)
	if err != nil {
		return nil, err
	}

	exists, err := e.lifecycle.AgentExists(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.New(apperrors.KindAgentNotFound, agentID)
	}

	session, err := e.lifecycle.StartSession(ctx, agentID, def.ID, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	e.publish(eventlog.New(eventlog.TypeSessionStarted, eventlog.PriorityNormal, agentID, session.SessionID, "", nil))

	now := time.Now().UTC()
	for _, desc := range def.Tasks {
		payload := mergePayload(initialPayload, desc.Parameters)
		task := &model.Task{
			TaskID:     uuid.NewString(),
			SessionID:  session.SessionID,
			AgentID:    agentID,
			WorkflowID: def.ID,
			TaskName:   desc.TaskName,
			Payload:    payload,
			RetryCount: 0,
			MaxRetries: DefaultMaxRetries,
			EnqueuedAt: now,
		}
		e.queue.Enqueue(task)
		e.publish(eventlog.New(eventlog.TypeTaskEnqueued, eventlog.PriorityNormal, agentID, session.SessionID, task.TaskID, nil))
	}

	return &TriggerResult{
		SessionID:         session.SessionID,
		WorkflowID:        def.ID,
		EnqueuedTaskCount: len(def.Tasks),
	}, nil
}

func mergePayload(initial, params map[string]interface{}) map[string]interface{} {
	if len(initial) == 0 && len(params) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(initial)+len(params))
	for k, v := range params {
		out[k] = v
	}
	for k, v := range initial {
		out[k] = v
	}
	return out
}

// resolveDefinition implements spec.md §4.4 step 1: exactly one of
// workflowDefinitionID / inline must be usable.
func (e *Engine) resolveDefinition(ctx context.Context, workflowDefinitionID string, inline *model.WorkflowDefinition) (*model.WorkflowDefinition, error) {
	if inline != nil {
		if err := inline.Validate(); err != nil {
			return nil, apperrors.Wrap(apperrors.KindInvalidRequest, "invalid inline workflow definition", err)
		}
		if inline.ID == "" {
			inline.ID = uuid.NewString()
		}
		existing, err := e.store.ReadWorkflowDefinition(ctx, inline.ID)
		if err != nil {
			if apperrors.Is(err, apperrors.KindWorkflowDefinitionNotFound) {
				if saveErr := e.store.SaveWorkflowDefinition(ctx, inline); saveErr != nil {
					return nil, saveErr
				}
				return inline, nil
			}
			return nil, err
		}
		if !existing.Equal(inline) {
			return nil, apperrors.New(apperrors.KindWorkflowDefinitionConflict, inline.ID)
		}
		return existing, nil
	}

	if workflowDefinitionID == "" {
		return nil, apperrors.New(apperrors.KindInvalidRequest, "exactly one of workflowDefinitionId or workflowDefinition is required")
	}
	return e.store.ReadWorkflowDefinition(ctx, workflowDefinitionID)
}

func (e *Engine) publish(evt eventlog.Event) {
	if e.bus != nil {
		e.bus.Publish(evt)
	}
}

// Run starts the cooperative dispatch loop. It blocks until ctx is
// canceled, at which point it finishes any task currently being
// processed and returns (no mid-dispatch cancellation, per spec.md §5).
func (e *Engine) Run(ctx context.Context) {
	for {
		task, err := e.queue.Dequeue(ctx)
		if err != nil {
			log.Printf("[WORKFLOW] dispatch loop stopping: %v", err)
			return
		}
		e.dispatchSafely(ctx, task)
	}
}

// dispatchSafely runs dispatchOne with panic recovery so a single bad
// task (e.g. malformed task data) can't take down the one loop serving
// every agent's dispatch, matching the teacher's per-goroutine recover
// pattern in internal/handlers/captain.go.
func (e *Engine) dispatchSafely(ctx context.Context, task *model.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WORKFLOW] recovered panic dispatching task %s for agent %s: %v", task.TaskID, task.AgentID, r)
		}
	}()
	e.dispatchOne(ctx, task)
}

// dispatchOne implements spec.md §4.4's dispatch-loop body for a single
// dequeued task.
func (e *Engine) dispatchOne(ctx context.Context, task *model.Task) {
	stateCtx, cancel := context.WithTimeout(ctx, StateReadTimeout)
	state, err := e.lifecycle.GetState(stateCtx, task.AgentID)
	cancel()

	if err != nil {
		// Includes context-deadline-exceeded: per spec.md §5, a
		// state-read timeout is contention, not failure.
		log.Printf("[WORKFLOW] state read for agent %s failed, treating as contention: %v", task.AgentID, err)
		e.requeueContention(task)
		return
	}

	if state == nil {
		// Agent vanished: no registration/state at all.
		e.handleTaskFailure(ctx, task, "agent no longer available")
		return
	}

	switch state.State {
	case model.StateIdle:
		e.attemptDispatch(ctx, task)
	case model.StateInitializing, model.StateActive, model.StateUnknown:
		e.requeueContention(task)
	case model.StateError:
		e.handleTaskFailure(ctx, task, "agent reported error state")
	case model.StateFinished:
		e.handleTaskFailure(ctx, task, "agent no longer available")
	default:
		e.requeueContention(task)
	}
}

func (e *Engine) requeueContention(task *model.Task) {
	e.publish(eventlog.New(eventlog.TypeTaskRequeued, eventlog.PriorityLow, task.AgentID, task.SessionID, task.TaskID, map[string]interface{}{"reason": "contention"}))
	e.queue.RequeueAfter(task, RequeueDelay)
}

func (e *Engine) attemptDispatch(ctx context.Context, task *model.Task) {
	dispatchCtx, cancel := context.WithTimeout(ctx, routing.DefaultTimeout)
	defer cancel()

	err := e.routing.Dispatch(dispatchCtx, task.AgentID, task)
	if err == nil {
		e.publish(eventlog.New(eventlog.TypeTaskDispatched, eventlog.PriorityNormal, task.AgentID, task.SessionID, task.TaskID, nil))
		return
	}

	var dispatchErr *routing.DispatchError
	if de, ok := err.(*routing.DispatchError); ok {
		dispatchErr = de
	}

	if dispatchErr != nil && !dispatchErr.Retryable() {
		e.handleTaskFailure(ctx, task, dispatchErr.Error())
		return
	}

	// 5xx/network: retryable per spec.md §4.4 step 2.
	e.handleTaskFailure(ctx, task, err.Error())
}

// handleTaskFailure implements spec.md §4.4's failure/retry policy.
func (e *Engine) handleTaskFailure(ctx context.Context, task *model.Task, reason string) {
	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		e.publish(eventlog.New(eventlog.TypeTaskFailed, eventlog.PriorityHigh, task.AgentID, task.SessionID, task.TaskID, map[string]interface{}{
			"reason":     reason,
			"retryCount": task.RetryCount,
		}))
		e.queue.RequeueAfter(task, RequeueDelay)
		return
	}

	e.fallback(ctx, task, reason)
}

// fallback logs the terminal failure and marks the owning session failed.
func (e *Engine) fallback(ctx context.Context, task *model.Task, reason string) {
	log.Printf("[WORKFLOW] task %s for agent %s failed terminally: %s", task.TaskID, task.AgentID, reason)
	e.publish(eventlog.New(eventlog.TypeTaskExhausted, eventlog.PriorityCritical, task.AgentID, task.SessionID, task.TaskID, map[string]interface{}{
		"reason": reason,
	}))

	failed := model.SessionFailed
	_, err := e.lifecycle.UpdateSession(ctx, task.SessionID, model.SessionPatch{
		Status:   &failed,
		Metadata: map[string]interface{}{"lastError": reason},
	})
	if err != nil {
		log.Printf("[WORKFLOW] failed to mark session %s failed: %v", task.SessionID, err)
	}
}

// QueueLen exposes the dispatch queue's depth for diagnostics/tests.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Enqueue is exposed for tests and for seeding scheduled tasks directly.
func (e *Engine) Enqueue(task *model.Task) {
	e.queue.Enqueue(task)
}
