package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/model"
)

// Memory is an in-process Store for tests, following the mock-repository
// style of the teacher's campaign_service_test.go (plain structs
// implementing the interface, no mocking framework).
type Memory struct {
	mu            sync.Mutex
	campaigns     map[string]*model.Campaign
	jobs          map[string]*model.Job
	rateCounters  map[string]int // key: hourBucket + "|" + sender
}

func NewMemory() *Memory {
	return &Memory{
		campaigns:    make(map[string]*model.Campaign),
		jobs:         make(map[string]*model.Job),
		rateCounters: make(map[string]int),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateCampaignWithJobs(ctx context.Context, c *model.Campaign, jobs []*model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.campaigns[c.ID]; exists {
		return appErrors.NewAlreadyExists(c.ID)
	}

	cCopy := *c
	cCopy.Attachments = append([]model.Attachment(nil), c.Attachments...)
	m.campaigns[c.ID] = &cCopy

	for _, j := range jobs {
		jCopy := *j
		m.jobs[j.ID] = &jCopy
	}
	return nil
}

func (m *Memory) LoadPendingJobs(ctx context.Context, beforeOrAt time.Time) (<-chan JobResult, error) {
	m.mu.Lock()
	var pending []*model.Job
	for _, j := range m.jobs {
		if j.Status != model.JobPending {
			continue
		}
		if !beforeOrAt.IsZero() && j.ScheduledTime.After(beforeOrAt) {
			continue
		}
		jCopy := *j
		pending = append(pending, &jCopy)
	}
	m.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].ScheduledTime.Before(pending[j].ScheduledTime) })

	out := make(chan JobResult, len(pending))
	for _, j := range pending {
		out <- JobResult{Job: j}
	}
	close(out)
	return out, nil
}

func (m *Memory) UpdateJob(ctx context.Context, id string, casStatus model.JobStatus, patch model.JobPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.Status != casStatus {
		return false, nil
	}
	j.Status = patch.Status
	j.UpdatedAt = time.Now().UTC()
	if patch.Attempts != nil {
		j.Attempts = *patch.Attempts
	}
	if patch.SentTime != nil {
		j.SentTime = patch.SentTime
	}
	if patch.LastError != nil {
		j.LastError = *patch.LastError
	}
	if patch.ClearLease {
		j.LeaseUntil = nil
	} else if patch.LeaseUntil != nil {
		j.LeaseUntil = patch.LeaseUntil
	}
	return true, nil
}

func (m *Memory) RecomputeCampaign(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[campaignID]
	if !ok {
		return appErrors.NewCampaignNotFound(campaignID)
	}

	var sent, failed int
	for _, j := range m.jobs {
		if j.CampaignID != campaignID {
			continue
		}
		switch j.Status {
		case model.JobSent:
			sent++
		case model.JobFailed:
			failed++
		}
	}

	c.SentCount, c.FailedCount = sent, failed
	switch {
	case sent+failed >= c.TotalCount && c.TotalCount > 0:
		c.Status = model.CampaignCompleted
	case sent+failed >= 1:
		c.Status = model.CampaignInProgress
	default:
		c.Status = model.CampaignScheduled
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ReadCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cCopy := *c
	return &cCopy, nil
}

func (m *Memory) ReadJob(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	jCopy := *j
	return &jCopy, nil
}

func (m *Memory) ListCampaignsByOwner(ctx context.Context, owner string) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Campaign
	for _, c := range m.campaigns {
		if c.Owner == owner {
			cCopy := *c
			out = append(out, &cCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListTerminalJobsByOwner(ctx context.Context, owner string) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.Owner == owner && j.Status != model.JobPending {
			jCopy := *j
			out = append(out, &jCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Memory) ListJobsByCampaign(ctx context.Context, campaignID string) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.jobs {
		if j.CampaignID == campaignID {
			jCopy := *j
			out = append(out, &jCopy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (m *Memory) CountJobsByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, j := range m.jobs {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *Memory) UpsertRateCounter(ctx context.Context, hourBucket, sender string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateCounters[hourBucket+"|"+sender] = count
	return nil
}

func (m *Memory) ReadRateCounter(ctx context.Context, hourBucket, sender string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rateCounters[hourBucket+"|"+sender], nil
}

var _ Store = (*Memory)(nil)
var _ Store = (*Postgres)(nil)
