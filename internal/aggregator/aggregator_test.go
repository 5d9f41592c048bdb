package aggregator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

func TestFlushRecomputesImmediately(t *testing.T) {
	s := store.NewMemory()
	now := time.Now().UTC()
	campaign := &model.Campaign{ID: "c1", Owner: "alice", Subject: "hi", Body: "hi", TotalCount: 1, CreatedAt: now, UpdatedAt: now}
	job := &model.Job{ID: "j1", CampaignID: "c1", Owner: "alice", Recipient: "a@x.io", ScheduledTime: now, Status: model.JobSent, CreatedAt: now, UpdatedAt: now}
	s.CreateCampaignWithJobs(context.Background(), campaign, []*model.Job{job})

	a := New(s, zap.NewNop())
	if err := a.Flush(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, _ := s.ReadCampaign(context.Background(), "c1")
	if updated.SentCount != 1 || updated.Status != model.CampaignCompleted {
		t.Fatalf("expected recompute to reflect sent job, got %+v", updated)
	}
}

func TestNotifyCoalescesRepeatedCalls(t *testing.T) {
	s := store.NewMemory()
	now := time.Now().UTC()
	campaign := &model.Campaign{ID: "c1", Owner: "alice", Subject: "hi", Body: "hi", TotalCount: 1, CreatedAt: now, UpdatedAt: now}
	s.CreateCampaignWithJobs(context.Background(), campaign, nil)

	a := New(s, zap.NewNop())
	a.Notify("c1")
	a.Notify("c1")
	a.Notify("c1")

	time.Sleep(CoalesceWindow + 100*time.Millisecond)

	a.mu.Lock()
	_, pending := a.pending["c1"]
	a.mu.Unlock()
	if pending {
		t.Fatal("expected the coalesced timer to have fired and cleared itself")
	}
}
