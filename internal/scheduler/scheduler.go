// Package scheduler implements spec.md §4.F: Submit() validates a
// campaign, assigns deterministic ids, fans out per-recipient jobs with
// staggered due-times, and commits them atomically to Store before
// handing them to the Queue. Grounded on the teacher's
// internal/service/campaign_service.go CreateCampaign/SendCampaign split,
// reworked into a single idempotent entry point per the spec.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/idgen"
	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/queue"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

// emailPattern is the canonical addr-spec check from spec.md §4.F step 1.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Input is the caller-supplied campaign request (spec.md §3, §6).
type Input struct {
	Owner       string
	Subject     string
	Body        string
	Recipients  []string
	StartTime   time.Time
	DelayMs     int64
	HourlyLimit int
	Attachments []model.Attachment
}

// DefaultHourlyLimit is used when the caller omits HourlyLimit (spec.md §6
// maxEmailsPerHour).
const DefaultHourlyLimit = 200

// Broker is the narrow slice of internal/broker.Broker the scheduler needs:
// announcing a freshly enqueued campaign so any worker process already
// blocked in WaitUntil wakes immediately instead of on its next poll tick.
type Broker interface {
	Publish(ctx context.Context, campaignID string) error
}

type Scheduler struct {
	store  store.Store
	queue  queue.Queue
	broker Broker
	log    *zap.Logger
	now    func() time.Time
}

func New(s store.Store, q queue.Queue, b Broker, log *zap.Logger, now func() time.Time) *Scheduler {
	return &Scheduler{store: s, queue: q, broker: b, log: log, now: now}
}

// Submit validates input, commits the campaign+jobs atomically, and
// enqueues each job. Resubmitting identical input returns the existing
// campaign id without creating new jobs (spec.md §8 idempotence).
func (s *Scheduler) Submit(ctx context.Context, in Input) (string, error) {
	if err := validate(in); err != nil {
		return "", err
	}

	recipients := dedupLowercase(in.Recipients)
	if len(recipients) == 0 {
		return "", appErrors.NewValidation("recipients", "no valid recipients after dedup")
	}

	hourlyLimit := in.HourlyLimit
	if hourlyLimit <= 0 {
		hourlyLimit = DefaultHourlyLimit
	}

	campaignID := idgen.CampaignID(in.Owner, in.Subject, in.StartTime, recipients)
	now := s.now()

	campaign := &model.Campaign{
		ID:          campaignID,
		Owner:       in.Owner,
		Subject:     in.Subject,
		Body:        in.Body,
		Attachments: in.Attachments,
		StartTime:   in.StartTime,
		DelayMs:     in.DelayMs,
		HourlyLimit: hourlyLimit,
		TotalCount:  len(recipients),
		Status:      model.CampaignScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	jobs := make([]*model.Job, len(recipients))
	for i, recipient := range recipients {
		jobs[i] = &model.Job{
			ID:            idgen.JobID(campaignID, recipient),
			CampaignID:    campaignID,
			Owner:         in.Owner,
			Recipient:     recipient,
			ScheduledTime: in.StartTime.Add(time.Duration(int64(i) * in.DelayMs * int64(time.Millisecond))),
			Status:        model.JobPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
	}

	err := s.store.CreateCampaignWithJobs(ctx, campaign, jobs)
	var alreadyExists *appErrors.ErrAlreadyExists
	switch {
	case errors.As(err, &alreadyExists):
		s.log.Info("submit deduplicated by existing campaign", zap.String("campaignId", campaignID))
		return campaignID, nil
	case err != nil:
		return "", fmt.Errorf("create campaign with jobs: %w", err)
	}

	for _, j := range jobs {
		if err := s.queue.Enqueue(ctx, j.ID, j.ScheduledTime); err != nil {
			// Store commit already happened: durability is satisfied.
			// The boot-time recovery sweep (Queue.RecoverFromStore) will
			// pick this job up even if the process dies right now.
			s.log.Warn("queue enqueue failed after store commit; job will be recovered",
				zap.String("jobId", j.ID), zap.Error(err))
		}
	}

	if s.broker != nil {
		if err := s.broker.Publish(ctx, campaignID); err != nil {
			s.log.Warn("wakeup publish failed after submit; workers fall back to polling",
				zap.String("campaignId", campaignID), zap.Error(err))
		}
	}

	return campaignID, nil
}

func validate(in Input) error {
	if strings.TrimSpace(in.Subject) == "" {
		return appErrors.NewValidation("subject", "required")
	}
	if strings.TrimSpace(in.Body) == "" {
		return appErrors.NewValidation("body", "required")
	}
	if len(in.Recipients) == 0 {
		return appErrors.NewValidation("recipients", "at least one recipient required")
	}
	if in.StartTime.IsZero() {
		return appErrors.NewValidation("startTime", "required")
	}
	if in.DelayMs < 0 {
		return appErrors.NewValidation("delayMs", "must be non-negative")
	}
	for _, r := range in.Recipients {
		trimmed := strings.TrimSpace(r)
		if !emailPattern.MatchString(trimmed) {
			return appErrors.NewValidation("recipients", fmt.Sprintf("invalid address: %q", r))
		}
	}
	return nil
}

func dedupLowercase(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		lower := strings.ToLower(strings.TrimSpace(r))
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}
