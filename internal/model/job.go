package model

import "time"

// JobStatus is the lifecycle state of a Job (spec.md §3).
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSent    JobStatus = "sent"
	JobFailed  JobStatus = "failed"
)

// Job is one recipient's attempt record for a Campaign. ScheduledTime is
// immutable once set by the Scheduler; retries move the Queue's internal
// due-time but never touch this field (invariant 6).
type Job struct {
	ID            string     `db:"id" json:"id"`
	CampaignID    string     `db:"campaign_id" json:"campaignId"`
	Owner         string     `db:"owner" json:"owner"`
	Recipient     string     `db:"recipient" json:"recipient"`
	ScheduledTime time.Time  `db:"scheduled_time" json:"scheduledTime"`
	Status        JobStatus  `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastError     string     `db:"last_error" json:"lastError,omitempty"`
	SentTime      *time.Time `db:"sent_time" json:"sentTime,omitempty"`
	LeaseUntil    *time.Time `db:"lease_until" json:"-"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// JobPatch is the set of fields Store.UpdateJob may change, guarded by a
// CAS predicate on the job's current status (spec.md §4.D).
type JobPatch struct {
	Status     JobStatus
	Attempts   *int
	SentTime   *time.Time
	LastError  *string
	LeaseUntil *time.Time
	ClearLease bool
}
