package mailer

import "github.com/reachinbox/bulkmail-core/internal/model"

// Compose builds the Email sent to a Mailer implementation from a Job and
// its parent Campaign (spec.md §4.H step 5).
func Compose(from string, job *model.Job, campaign *model.Campaign) Email {
	email := Email{
		From:    from,
		To:      job.Recipient,
		Subject: campaign.Subject,
		HTML:    campaign.Body,
	}
	for _, a := range campaign.Attachments {
		email.Attachments = append(email.Attachments, Attachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Bytes:       a.Bytes,
		})
	}
	return email
}
