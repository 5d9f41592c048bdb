package appErrors

import (
	"errors"
	"testing"
)

func TestTransientTransportUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransientTransport(cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through ErrTransientTransport to its cause")
	}

	var transient *ErrTransientTransport
	if !errors.As(err, &transient) {
		t.Fatal("expected errors.As to match ErrTransientTransport")
	}
}

func TestPermanentTransportUnwraps(t *testing.T) {
	cause := errors.New("550 no such user")
	err := NewPermanentTransport(cause)

	var permanent *ErrPermanentTransport
	if !errors.As(err, &permanent) {
		t.Fatal("expected errors.As to match ErrPermanentTransport")
	}
	if permanent.Cause != cause {
		t.Fatal("expected Cause to be preserved")
	}
}

func TestCampaignNotFoundMessage(t *testing.T) {
	err := NewCampaignNotFound("abc-123")
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
	var notFound *ErrCampaignNotFound
	if !errors.As(err, &notFound) || notFound.CampaignID != "abc-123" {
		t.Fatal("expected CampaignID to round-trip")
	}
}
