package worker

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/clock"
	"github.com/reachinbox/bulkmail-core/internal/kv"
	"github.com/reachinbox/bulkmail-core/internal/mailer"
	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/queue"
	"github.com/reachinbox/bulkmail-core/internal/ratelimiter"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

type noopAggregator struct{ notified chan string }

func (a *noopAggregator) Notify(campaignID string) {
	select {
	case a.notified <- campaignID:
	default:
	}
}

func setupPool(t *testing.T, m mailer.Mailer) (*Pool, store.Store, *noopAggregator, string) {
	t.Helper()
	s := store.NewMemory()
	now := time.Now().UTC()
	campaign := &model.Campaign{ID: "c1", Owner: "alice", Subject: "hi", Body: "hi", HourlyLimit: 10, TotalCount: 1, CreatedAt: now, UpdatedAt: now}
	job := &model.Job{ID: "j1", CampaignID: "c1", Owner: "alice", Recipient: "a@x.io", ScheduledTime: now.Add(-time.Second), Status: model.JobPending, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateCampaignWithJobs(context.Background(), campaign, []*model.Job{job}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	realClock := clock.NewReal()
	q := queue.NewInMemory(s, realClock.Now)
	q.Enqueue(context.Background(), job.ID, job.ScheduledTime)

	limiter := ratelimiter.New(kv.NewMemory(), s, realClock, zap.NewNop())
	agg := &noopAggregator{notified: make(chan string, 4)}

	pool := New(Config{
		ID:          "worker-test",
		Size:        1,
		Queue:       q,
		Store:       s,
		Limiter:     limiter,
		Mailer:      m,
		Aggregator:  agg,
		DefaultFrom: "noreply@reachinbox.app",
		Log:         zap.NewNop(),
		Now:         realClock.Now,
	})
	return pool, s, agg, job.ID
}

func TestProcessJobMarksSuccessfulSend(t *testing.T) {
	fakeMailer := mailer.NewFake()
	pool, s, agg, jobID := setupPool(t, fakeMailer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(done)
	}()

	select {
	case campaignID := <-agg.notified:
		if campaignID != "c1" {
			t.Fatalf("expected notify for c1, got %s", campaignID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for aggregator notification")
	}

	job, err := s.ReadJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != model.JobSent {
		t.Fatalf("expected job to be sent, got %s", job.Status)
	}
	if fakeMailer.CallCount("a@x.io") != 1 {
		t.Fatalf("expected exactly one send, got %d", fakeMailer.CallCount("a@x.io"))
	}

	cancel()
	<-done
}

func TestProcessJobRetriesTransientFailure(t *testing.T) {
	fakeMailer := mailer.NewFake()
	fakeMailer.Script["a@x.io"] = []error{&transientForTest{}}
	pool, s, _, jobID := setupPool(t, fakeMailer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go pool.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.ReadJob(context.Background(), jobID)
		if err == nil && job.Status == model.JobSent {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected job to eventually succeed after one retry")
}

type transientForTest struct{}

func (e *transientForTest) Error() string { return "450 try again" }
