package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/opscore/core/internal/model"
)

// RequeueDelay is the fixed delay applied before a contention-requeued
// task becomes dispatch-eligible again. spec.md leaves the backoff curve
// unspecified ("an implementation should choose a small bounded delay");
// this repo uses a flat delay rather than a growing one, since nothing in
// the contract distinguishes first contention from the tenth.
const RequeueDelay = 250 * time.Millisecond

// agentShard is one agent's FIFO sub-queue. Tasks enqueued for the same
// agent are always popped in enqueue order (modulo contention re-queues,
// which go to the tail like any other enqueue).
type agentShard struct {
	tasks []*model.Task
}

// Queue is a per-agent-sharded FIFO task queue with a cooperative,
// blocking Dequeue: callers suspend when the queue is empty rather than
// busy-polling, waking on the next Enqueue or on a scheduled task's
// earliest-dispatch time. Modeled on the teacher's tasks.Queue
// (mutex-guarded slice-plus-index layout) for the shard mechanics, and on
// internal/events/bus.go's buffered-channel signaling for the blocking
// wake-up, since the teacher's own Queue has no blocking-consumer
// behavior to draw from directly.
type Queue struct {
	mu         sync.Mutex
	shards     map[string]*agentShard
	roundRobin []string
	rrNext     int
	signal     chan struct{}
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{
		shards: make(map[string]*agentShard),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends task to the tail of its agent's shard.
func (q *Queue) Enqueue(task *model.Task) {
	q.mu.Lock()
	s, ok := q.shards[task.AgentID]
	if !ok {
		s = &agentShard{}
		q.shards[task.AgentID] = s
		q.roundRobin = append(q.roundRobin, task.AgentID)
	}
	s.tasks = append(s.tasks, task)
	q.mu.Unlock()
	q.wake()
}

// RequeueAfter re-enqueues task after delay, used for both contention
// re-queues (spec.md §4.4 step 3) and retry backoff (handleTaskFailure).
func (q *Queue) RequeueAfter(task *model.Task, delay time.Duration) {
	if delay <= 0 {
		q.Enqueue(task)
		return
	}
	time.AfterFunc(delay, func() { q.Enqueue(task) })
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Dequeue blocks until a dispatch-eligible task is available or ctx is
// canceled. "Eligible" means the front of some agent's shard whose
// Task.NotBefore (if any) has already elapsed; a shard whose front task
// is scheduled for the future is skipped without being popped.
func (q *Queue) Dequeue(ctx context.Context) (*model.Task, error) {
	for {
		task, wait, ok := q.tryPop()
		if ok {
			return task, nil
		}

		var timer *time.Timer
		var timerCh <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerCh = timer.C
		}

		select {
		case <-q.signal:
			if timer != nil {
				timer.Stop()
			}
		case <-timerCh:
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		}
	}
}

// tryPop attempts a single non-blocking pop across agent shards in
// round-robin order. If nothing is eligible but a scheduled task exists,
// it returns the shortest wait until the earliest such task becomes
// eligible so Dequeue can avoid a tight loop.
func (q *Queue) tryPop() (*model.Task, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.compactRoundRobinLocked()
	if len(q.roundRobin) == 0 {
		return nil, 0, false
	}

	now := time.Now()
	var shortestWait time.Duration

	n := len(q.roundRobin)
	for i := 0; i < n; i++ {
		idx := (q.rrNext + i) % n
		agentID := q.roundRobin[idx]
		shard := q.shards[agentID]
		if shard == nil || len(shard.tasks) == 0 {
			continue
		}
		front := shard.tasks[0]
		if front.Ready(now) {
			shard.tasks = shard.tasks[1:]
			q.rrNext = (idx + 1) % n
			return front, 0, true
		}
		wait := front.NotBefore.Sub(now)
		if shortestWait == 0 || wait < shortestWait {
			shortestWait = wait
		}
	}

	if shortestWait <= 0 {
		shortestWait = 50 * time.Millisecond
	}
	return nil, shortestWait, false
}

// compactRoundRobinLocked drops agent ids whose shard is empty, called
// with q.mu held. Cheap and lazy: only runs on the pop path.
func (q *Queue) compactRoundRobinLocked() {
	kept := q.roundRobin[:0]
	for _, id := range q.roundRobin {
		if shard, ok := q.shards[id]; ok && len(shard.tasks) > 0 {
			kept = append(kept, id)
		} else {
			delete(q.shards, id)
		}
	}
	q.roundRobin = kept
	if q.rrNext >= len(q.roundRobin) {
		q.rrNext = 0
	}
}

// Len returns the total number of queued tasks across all shards, for
// diagnostics/tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, s := range q.shards {
		total += len(s.tasks)
	}
	return total
}
