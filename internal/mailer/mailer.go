// Package mailer defines the Mailer capability from spec.md §4.B: an
// opaque Send(msg) -> (messageId, error) collaborator. Concrete
// implementations (SMTP, SendGrid) live alongside this interface, grounded
// on jsndz-signalbus/pkg/gomailer.
package mailer

import "context"

// Email is the composed message handed to a Mailer implementation. It is
// built by the worker pool from a Job + its Campaign (subject/body/
// attachments), never constructed by callers of the core API directly.
type Email struct {
	From        string
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
	Headers     map[string]string
}

// Attachment mirrors model.Attachment but lives in this package's vocabulary
// so Mailer implementations don't import internal/model.
type Attachment struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// Mailer is the opaque SMTP-delivery capability (spec.md §4.B). Send may
// block up to the caller's context deadline; the worker pool always calls
// it with a per-call deadline per spec.md §4.H step 5.
type Mailer interface {
	Send(ctx context.Context, email Email) (messageID string, err error)
}
