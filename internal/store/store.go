// Package store implements spec.md §4.D: the durable ground truth for
// campaigns and jobs. Grounded on the teacher's
// internal/repository/campaign_repository.go (raw SQL via database/sql,
// CAS-style conditional updates, sql.ErrNoRows -> domain sentinel mapping).
package store

import (
	"context"
	"time"

	"github.com/reachinbox/bulkmail-core/internal/model"
)

// JobResult is one element of the LoadPendingJobs stream.
type JobResult struct {
	Job *model.Job
	Err error
}

// Store is the durable persistence capability (spec.md §4.D).
type Store interface {
	// CreateCampaignWithJobs commits both the campaign row and its jobs
	// atomically. Returns appErrors.ErrAlreadyExists if campaign.ID
	// already exists; callers must treat that as success and keep the
	// existing id (spec.md §4.F step 4).
	CreateCampaignWithJobs(ctx context.Context, campaign *model.Campaign, jobs []*model.Job) error

	// LoadPendingJobs streams every job whose status is pending and whose
	// scheduledTime is <= beforeOrAt, ordered by scheduledTime. Pass the
	// zero time.Time{} for "no upper bound" (boot-time recovery sweep).
	LoadPendingJobs(ctx context.Context, beforeOrAt time.Time) (<-chan JobResult, error)

	// UpdateJob applies patch to the job identified by id, but only if its
	// current status equals casStatus; returns applied=false (no error) on
	// CAS mismatch so callers can treat it as §7's InternalInvariantViolation.
	UpdateJob(ctx context.Context, id string, casStatus model.JobStatus, patch model.JobPatch) (applied bool, err error)

	// RecomputeCampaign re-reads COUNT(*) GROUP BY status for the
	// campaign's jobs and writes back sentCount/failedCount/status/updatedAt.
	RecomputeCampaign(ctx context.Context, campaignID string) error

	ReadCampaign(ctx context.Context, id string) (*model.Campaign, error)
	ReadJob(ctx context.Context, id string) (*model.Job, error)
	ListCampaignsByOwner(ctx context.Context, owner string) ([]*model.Campaign, error)
	ListTerminalJobsByOwner(ctx context.Context, owner string) ([]*model.Job, error)
	ListJobsByCampaign(ctx context.Context, campaignID string) ([]*model.Job, error)

	// CountJobsByStatus returns the total number of jobs across every
	// campaign currently in the given status, backing QueueStats()'s
	// completed/failed fields (spec.md §6).
	CountJobsByStatus(ctx context.Context, status model.JobStatus) (int, error)

	// UpsertRateCounter and ReadRateCounter back the RateLimiter's Store
	// mirror (spec.md §4.E): authoritative only for reseeding KV after
	// eviction, never read on the hot Check/Increment path.
	UpsertRateCounter(ctx context.Context, hourBucket, sender string, count int) error
	ReadRateCounter(ctx context.Context, hourBucket, sender string) (int, error)

	Close() error
}
