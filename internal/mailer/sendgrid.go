package mailer

import (
	"context"
	"encoding/base64"
	"fmt"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer sends mail through the SendGrid HTTP API. Grounded on
// jsndz-signalbus/pkg/gomailer/sendgrid.go; reworked to carry attachments
// (spec.md §3 Campaign.attachments) and classify HTTP status into the §7
// taxonomy instead of returning a bare error string.
type SendGridMailer struct {
	APIKey   string
	FromName string
	client   *sendgrid.Client
}

func NewSendGridMailer(apiKey, fromName string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:   apiKey,
		FromName: fromName,
		client:   sendgrid.NewSendClient(apiKey),
	}
}

func (s *SendGridMailer) Send(ctx context.Context, email Email) (string, error) {
	from := mail.NewEmail(s.FromName, email.From)
	to := mail.NewEmail("", email.To)

	message := mail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = email.Subject

	p := mail.NewPersonalization()
	p.AddTos(to)
	message.AddPersonalizations(p)

	if email.Text != "" {
		message.AddContent(mail.NewContent("text/plain", email.Text))
	}
	if email.HTML != "" {
		message.AddContent(mail.NewContent("text/html", email.HTML))
	}
	for _, att := range email.Attachments {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Bytes))
		a.SetType(att.ContentType)
		a.SetFilename(att.Filename)
		a.SetDisposition("attachment")
		message.AddAttachment(a)
	}

	resp, err := s.client.Send(message)
	if err != nil {
		return "", appErrors.NewTransientTransport(err)
	}
	switch {
	case resp.StatusCode >= 500:
		return "", appErrors.NewTransientTransport(fmt.Errorf("sendgrid %d: %s", resp.StatusCode, resp.Body))
	case resp.StatusCode >= 400:
		return "", appErrors.NewPermanentTransport(fmt.Errorf("sendgrid %d: %s", resp.StatusCode, resp.Body))
	}
	return messageIDFromHeaders(resp.Headers), nil
}

func messageIDFromHeaders(headers map[string][]string) string {
	if ids, ok := headers["X-Message-Id"]; ok && len(ids) > 0 {
		return ids[0]
	}
	return ""
}
