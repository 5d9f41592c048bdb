// internal/model/campaign.go
package model

import "time"

// CampaignStatus is the lifecycle state of a Campaign (spec.md §3).
type CampaignStatus string

const (
	CampaignScheduled  CampaignStatus = "scheduled"
	CampaignInProgress CampaignStatus = "in-progress"
	CampaignCompleted  CampaignStatus = "completed"
)

// Attachment is a single file attached to a Campaign. Bytes are stored
// base64-decoded; the base64 form only exists on the wire (§6 HTTP surface).
type Attachment struct {
	Filename    string `db:"filename" json:"filename"`
	ContentType string `db:"content_type" json:"contentType"`
	Bytes       []byte `db:"bytes" json:"bytes"`
}

// Campaign represents one bulk send request. Subject, Body and Attachments
// are immutable after creation; SentCount/FailedCount/Status are owned by
// the Aggregator and must never be written from any other component.
type Campaign struct {
	ID          string         `db:"id" json:"id"`
	Owner       string         `db:"owner" json:"owner"`
	Subject     string         `db:"subject" json:"subject"`
	Body        string         `db:"body" json:"body"`
	Attachments []Attachment   `db:"-" json:"attachments,omitempty"`
	StartTime   time.Time      `db:"start_time" json:"startTime"`
	DelayMs     int64          `db:"delay_ms" json:"delayMs"`
	HourlyLimit int            `db:"hourly_limit" json:"hourlyLimit"`
	TotalCount  int            `db:"total_count" json:"totalCount"`
	SentCount   int            `db:"sent_count" json:"sentCount"`
	FailedCount int            `db:"failed_count" json:"failedCount"`
	Status      CampaignStatus `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
}

// Sender is the envelope-from identity this campaign's hourly budget is
// counted against. Resolves the open question in spec.md §9.1: rather than
// a single global sender string, the sender is derived per-campaign from
// the owner, falling back to defaultSender when the owner is unset.
func (c *Campaign) Sender(defaultSender string) string {
	if c.Owner == "" {
		return defaultSender
	}
	return c.Owner
}
