package store

import (
	"context"
	"errors"
	"testing"
	"time"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/model"
)

func seedCampaign(t *testing.T, s *Memory, id string, now time.Time) *model.Job {
	t.Helper()
	campaign := &model.Campaign{ID: id, Owner: "alice", Subject: "hi", Body: "hi", TotalCount: 1, CreatedAt: now, UpdatedAt: now}
	job := &model.Job{ID: id + "-job", CampaignID: id, Owner: "alice", Recipient: "a@x.io", ScheduledTime: now, Status: model.JobPending, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateCampaignWithJobs(context.Background(), campaign, []*model.Job{job}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return job
}

func TestCreateCampaignWithJobsRejectsDuplicateID(t *testing.T) {
	s := NewMemory()
	now := time.Now().UTC()
	seedCampaign(t, s, "c1", now)

	campaign := &model.Campaign{ID: "c1", Owner: "alice", Subject: "hi", Body: "hi", CreatedAt: now, UpdatedAt: now}
	err := s.CreateCampaignWithJobs(context.Background(), campaign, nil)

	var alreadyExists *appErrors.ErrAlreadyExists
	if !errors.As(err, &alreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateJobCASSucceedsOnMatchingStatus(t *testing.T) {
	s := NewMemory()
	now := time.Now().UTC()
	job := seedCampaign(t, s, "c1", now)

	applied, err := s.UpdateJob(context.Background(), job.ID, model.JobPending, model.JobPatch{Status: model.JobSent})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatal("expected CAS update to apply")
	}
}

func TestUpdateJobCASFailsOnStatusMismatch(t *testing.T) {
	s := NewMemory()
	now := time.Now().UTC()
	job := seedCampaign(t, s, "c1", now)

	applied, err := s.UpdateJob(context.Background(), job.ID, model.JobSent, model.JobPatch{Status: model.JobFailed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Fatal("expected CAS update to be rejected when current status doesn't match")
	}
}

func TestRecomputeCampaignDerivesStatus(t *testing.T) {
	s := NewMemory()
	now := time.Now().UTC()
	job := seedCampaign(t, s, "c1", now)

	s.UpdateJob(context.Background(), job.ID, model.JobPending, model.JobPatch{Status: model.JobSent})
	if err := s.RecomputeCampaign(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	campaign, err := s.ReadCampaign(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if campaign.SentCount != 1 || campaign.Status != model.CampaignCompleted {
		t.Fatalf("expected sentCount=1, status=completed, got %+v", campaign)
	}
}

func TestReadCampaignNotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.ReadCampaign(context.Background(), "missing")
	var notFound *appErrors.ErrCampaignNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestRateCounterUpsertAndRead(t *testing.T) {
	s := NewMemory()
	if err := s.UpsertRateCounter(context.Background(), "2026-01-01T10", "alice", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := s.ReadRateCounter(context.Background(), "2026-01-01T10", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 7 {
		t.Fatalf("expected 7, got %d", count)
	}
}
