package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
)

// SMTPMailer sends mail over a direct SMTP connection. Grounded on
// jsndz-signalbus/pkg/gomailer/smtp.go; reworked to classify failures into
// the §7 taxonomy instead of returning raw net/smtp errors.
type SMTPMailer struct {
	Host      string
	Port      int
	Username  string
	Password  string
	UseAuth   bool
	TLSConfig *tls.Config
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	if m.TLSConfig != nil {
		return m.TLSConfig
	}
	return &tls.Config{ServerName: m.Host}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) (string, error) {
	headers := map[string]string{
		"From":         email.From,
		"To":           email.To,
		"Subject":      email.Subject,
		"MIME-Version": "1.0",
	}
	if email.HTML != "" {
		headers["Content-Type"] = `text/html; charset="UTF-8"`
	} else {
		headers["Content-Type"] = `text/plain; charset="UTF-8"`
	}
	for k, v := range email.Headers {
		headers[k] = v
	}

	var msg strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, v)
	}
	if email.HTML != "" {
		msg.WriteString("\r\n" + email.HTML)
	} else {
		msg.WriteString("\r\n" + email.Text)
	}

	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	var auth smtp.Auth
	if m.UseAuth {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	deadline, hasDeadline := ctx.Deadline()
	done := make(chan error, 1)

	go func() {
		if m.Port == 465 {
			done <- m.sendTLS(addr, auth, email, msg.String())
			return
		}
		done <- smtp.SendMail(addr, auth, email.From, []string{email.To}, []byte(msg.String()))
	}()

	var sendErr error
	if hasDeadline {
		select {
		case sendErr = <-done:
		case <-time.After(time.Until(deadline)):
			sendErr = fmt.Errorf("smtp send timed out after %s", time.Until(deadline))
		}
	} else {
		sendErr = <-done
	}

	if sendErr == nil {
		return fmt.Sprintf("smtp:%s:%d", email.To, time.Now().UnixNano()), nil
	}
	return "", classify(sendErr)
}

func (m *SMTPMailer) sendTLS(addr string, auth smtp.Auth, email Email, body string) error {
	conn, err := tls.Dial("tcp", addr, m.tlsConfig())
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(email.From); err != nil {
		return err
	}
	if err := c.Rcpt(email.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return err
	}
	return w.Close()
}

// classify maps a raw net/smtp error onto the §7 taxonomy. SMTP replies
// carry their status code as the leading three digits of the error text;
// 5xx is a hard bounce (non-retryable), everything else is treated as
// transient (network errors, timeouts, 4xx).
func classify(err error) error {
	msg := err.Error()
	if len(msg) >= 3 {
		if code, convErr := strconv.Atoi(msg[:3]); convErr == nil && code >= 500 && code < 600 {
			return appErrors.NewPermanentTransport(err)
		}
	}
	return appErrors.NewTransientTransport(err)
}
