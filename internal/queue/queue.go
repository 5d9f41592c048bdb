// Package queue implements spec.md §4.G: a durable delayed-job register
// with at-most-one active lease per job, exponential-backoff retry, and
// recovery from Store on boot. Grounded on the teacher's
// internal/queue/queue.go InMemoryQueue (mutex-guarded map, retry-with-
// backoff in processJob), generalized from a pub/sub fan-out into a
// due-time-ordered lease register since the spec needs precise scheduling
// rather than immediate dispatch.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/reachinbox/bulkmail-core/internal/store"
)

// Outcome tags what LeaseNext returned, mirroring the exception-to-tagged-
// result rework called for in spec.md §9 ("explicit tagged results").
type Outcome int

const (
	OutcomeJob Outcome = iota
	OutcomeEmpty
	OutcomeWaitUntil
)

// LeaseResult is the return value of LeaseNext.
type LeaseResult struct {
	Outcome  Outcome
	JobID    string
	Attempts int
	WaitTime time.Time
}

// FailResult is the return value of Fail.
type FailResult struct {
	Retried   bool
	Permanent bool
	Attempts  int
	NextDue   time.Time
}

// RetryPolicy configures Fail's backoff (spec.md §4.G defaults).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches spec.md §4.G's stated defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   2 * time.Second,
	MaxDelay:    15 * time.Minute,
}

// Stats is the Queue-local contribution to spec.md §6's QueueStats().
type Stats struct {
	Waiting int
	Active  int
	Delayed int
}

// Queue is spec.md's component G.
type Queue interface {
	Enqueue(ctx context.Context, jobID string, due time.Time) error
	LeaseNext(ctx context.Context, workerID string, leaseDuration time.Duration) (LeaseResult, error)
	Complete(ctx context.Context, jobID string) error
	Defer(ctx context.Context, jobID string, until time.Time) error
	Fail(ctx context.Context, jobID string, policy RetryPolicy) (FailResult, error)
	RecoverFromStore(ctx context.Context) error
	Stats() Stats
}

type entry struct {
	jobID      string
	due        time.Time
	attempts   int
	leaseUntil time.Time
	leaseOwner string
}

// InMemory is the default Queue: a mutex-guarded min-heap of pending
// entries ordered by (due, jobID), plus a side map of currently-leased
// entries. Volatile by design (spec.md §4.G: "Queue state may live in a
// volatile store; Store is the recovery source of truth").
type InMemory struct {
	mu      sync.Mutex
	pending pendingHeap
	leased  map[string]*entry
	index   map[string]*entry // jobID -> entry, spans both pending and leased
	now     func() time.Time
	store   store.Store
}

func NewInMemory(s store.Store, now func() time.Time) *InMemory {
	return &InMemory{
		pending: pendingHeap{},
		leased:  make(map[string]*entry),
		index:   make(map[string]*entry),
		now:     now,
		store:   s,
	}
}

func (q *InMemory) Enqueue(ctx context.Context, jobID string, due time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueueLocked(jobID, due, 0)
}

func (q *InMemory) enqueueLocked(jobID string, due time.Time, attempts int) error {
	if _, exists := q.index[jobID]; exists {
		return nil // idempotent on jobId
	}
	e := &entry{jobID: jobID, due: due, attempts: attempts}
	q.index[jobID] = e
	heap.Push(&q.pending, e)
	return nil
}

func (q *InMemory) LeaseNext(ctx context.Context, workerID string, leaseDuration time.Duration) (LeaseResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.reclaimExpiredLeasesLocked(now)

	if len(q.pending) == 0 {
		return LeaseResult{Outcome: OutcomeEmpty}, nil
	}

	next := q.pending[0]
	if next.due.After(now) {
		return LeaseResult{Outcome: OutcomeWaitUntil, WaitTime: next.due}, nil
	}

	heap.Pop(&q.pending)
	next.leaseUntil = now.Add(leaseDuration)
	next.leaseOwner = workerID
	q.leased[next.jobID] = next

	return LeaseResult{Outcome: OutcomeJob, JobID: next.jobID, Attempts: next.attempts}, nil
}

// reclaimExpiredLeasesLocked moves any lease past its deadline back into
// the pending heap so a worker that died mid-send doesn't strand its job
// forever (spec.md §4.G: "A job crashed mid-processing ... reappears for
// lease after leaseUntil passes").
func (q *InMemory) reclaimExpiredLeasesLocked(now time.Time) {
	for jobID, e := range q.leased {
		if !e.leaseUntil.After(now) {
			delete(q.leased, jobID)
			e.leaseUntil = time.Time{}
			e.leaseOwner = ""
			heap.Push(&q.pending, e)
		}
	}
}

func (q *InMemory) Complete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leased, jobID)
	delete(q.index, jobID)
	return nil
}

func (q *InMemory) Defer(ctx context.Context, jobID string, until time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.leased[jobID]
	if ok {
		delete(q.leased, jobID)
	} else {
		e, ok = q.index[jobID]
		if !ok {
			return nil
		}
	}
	e.due = until
	e.leaseUntil = time.Time{}
	e.leaseOwner = ""
	heap.Push(&q.pending, e)
	return nil
}

func (q *InMemory) Fail(ctx context.Context, jobID string, policy RetryPolicy) (FailResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.leased[jobID]
	if !ok {
		return FailResult{}, nil
	}
	delete(q.leased, jobID)
	e.attempts++

	if e.attempts < policy.MaxAttempts {
		delay := backoff(e.attempts, policy)
		due := q.now().Add(delay)
		e.due = due
		e.leaseUntil = time.Time{}
		e.leaseOwner = ""
		heap.Push(&q.pending, e)
		return FailResult{Retried: true, Attempts: e.attempts, NextDue: due}, nil
	}

	delete(q.index, jobID)
	return FailResult{Permanent: true, Attempts: e.attempts}, nil
}

// backoff computes base * 2^(attempts-1), capped at policy.MaxDelay
// (spec.md §4.G).
func backoff(attempts int, policy RetryPolicy) time.Duration {
	d := policy.BaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d > policy.MaxDelay {
			return policy.MaxDelay
		}
	}
	if d > policy.MaxDelay {
		return policy.MaxDelay
	}
	return d
}

// RecoverFromStore re-enqueues every pending job Store knows about with no
// active lease, using due = max(scheduledTime, now) (spec.md §4.G).
func (q *InMemory) RecoverFromStore(ctx context.Context) error {
	results, err := q.store.LoadPendingJobs(ctx, time.Time{})
	if err != nil {
		return err
	}

	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()

	for r := range results {
		if r.Err != nil {
			return r.Err
		}
		due := r.Job.ScheduledTime
		if due.Before(now) {
			due = now
		}
		q.enqueueLocked(r.Job.ID, due, r.Job.Attempts)
	}
	return nil
}

func (q *InMemory) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	stats := Stats{Active: len(q.leased)}
	for _, e := range q.pending {
		if e.due.After(now) {
			stats.Delayed++
		} else {
			stats.Waiting++
		}
	}
	return stats
}

var _ Queue = (*InMemory)(nil)
