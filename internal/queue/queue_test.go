package queue

import (
	"context"
	"testing"
	"time"

	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

func TestLeaseNextReturnsEmptyOnEmptyQueue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewInMemory(store.NewMemory(), func() time.Time { return now })

	res, err := q.LeaseNext(context.Background(), "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeEmpty {
		t.Fatalf("expected OutcomeEmpty, got %v", res.Outcome)
	}
}

func TestLeaseNextReturnsWaitUntilForFutureJob(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewInMemory(store.NewMemory(), func() time.Time { return now })

	due := now.Add(time.Minute)
	q.Enqueue(context.Background(), "job-1", due)

	res, err := q.LeaseNext(context.Background(), "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeWaitUntil || !res.WaitTime.Equal(due) {
		t.Fatalf("expected WaitUntil at %v, got %v/%v", due, res.Outcome, res.WaitTime)
	}
}

func TestLeaseNextOrdersByDueThenJobID(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewInMemory(store.NewMemory(), func() time.Time { return now })

	q.Enqueue(context.Background(), "job-b", now)
	q.Enqueue(context.Background(), "job-a", now)

	res, _ := q.LeaseNext(context.Background(), "worker-1", time.Minute)
	if res.JobID != "job-a" {
		t.Fatalf("expected job-a to win the tie-break, got %s", res.JobID)
	}
}

func TestLeaseIsExclusiveUntilComplete(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewInMemory(store.NewMemory(), func() time.Time { return now })
	q.Enqueue(context.Background(), "job-1", now)

	first, _ := q.LeaseNext(context.Background(), "worker-1", time.Minute)
	if first.Outcome != OutcomeJob {
		t.Fatalf("expected a job lease, got %v", first.Outcome)
	}

	second, _ := q.LeaseNext(context.Background(), "worker-2", time.Minute)
	if second.Outcome != OutcomeEmpty {
		t.Fatalf("expected leased job to be unavailable to a second worker, got %v", second.Outcome)
	}

	q.Complete(context.Background(), "job-1")
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockNow := now
	q := NewInMemory(store.NewMemory(), func() time.Time { return clockNow })
	q.Enqueue(context.Background(), "job-1", now)

	q.LeaseNext(context.Background(), "worker-1", time.Minute)

	clockNow = now.Add(2 * time.Minute)
	res, _ := q.LeaseNext(context.Background(), "worker-2", time.Minute)
	if res.Outcome != OutcomeJob || res.JobID != "job-1" {
		t.Fatalf("expected expired lease to be reclaimed, got %v", res)
	}
}

func TestFailRetriesWithBackoffUntilMaxAttempts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clockNow := now
	q := NewInMemory(store.NewMemory(), func() time.Time { return clockNow })
	q.Enqueue(context.Background(), "job-1", now)

	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute}

	q.LeaseNext(context.Background(), "worker-1", time.Minute)
	result, err := q.Fail(context.Background(), "job-1", policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Retried || result.Attempts != 1 {
		t.Fatalf("expected a retry at attempt 1, got %+v", result)
	}

	// The retry is due after the first backoff step (BaseDelay).
	clockNow = now.Add(policy.BaseDelay)
	q.LeaseNext(context.Background(), "worker-1", time.Minute)
	result, err = q.Fail(context.Background(), "job-1", policy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Permanent || result.Attempts != 2 {
		t.Fatalf("expected permanent failure at attempt 2, got %+v", result)
	}

	stats := q.Stats()
	if stats.Waiting != 0 || stats.Active != 0 || stats.Delayed != 0 {
		t.Fatalf("expected job to be gone from the queue after permanent failure, got %+v", stats)
	}
}

func TestDeferMovesJobToFutureDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewInMemory(store.NewMemory(), func() time.Time { return now })
	q.Enqueue(context.Background(), "job-1", now)

	q.LeaseNext(context.Background(), "worker-1", time.Minute)
	future := now.Add(time.Hour)
	q.Defer(context.Background(), "job-1", future)

	res, _ := q.LeaseNext(context.Background(), "worker-2", time.Minute)
	if res.Outcome != OutcomeWaitUntil || !res.WaitTime.Equal(future) {
		t.Fatalf("expected deferred job to wait until %v, got %+v", future, res)
	}
}

func TestRecoverFromStoreEnqueuesPendingJobs(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := store.NewMemory()

	campaign := &model.Campaign{ID: "c1", Owner: "alice", Subject: "hi", Body: "hi", TotalCount: 1, CreatedAt: now, UpdatedAt: now}
	job := &model.Job{ID: "j1", CampaignID: "c1", Owner: "alice", Recipient: "a@x.io", ScheduledTime: now.Add(-time.Hour), Status: model.JobPending, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateCampaignWithJobs(context.Background(), campaign, []*model.Job{job}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	q := NewInMemory(s, func() time.Time { return now })
	if err := q.RecoverFromStore(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	res, _ := q.LeaseNext(context.Background(), "worker-1", time.Minute)
	if res.Outcome != OutcomeJob || res.JobID != "j1" {
		t.Fatalf("expected recovered job to be leasable immediately, got %+v", res)
	}
}
