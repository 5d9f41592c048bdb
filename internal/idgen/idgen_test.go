package idgen

import (
	"testing"
	"time"
)

func TestCampaignIDIsDeterministic(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := CampaignID("alice", "Hi", start, []string{"b@x.io", "a@x.io"})
	b := CampaignID("alice", "Hi", start, []string{"a@x.io", "b@x.io"})
	if a != b {
		t.Fatalf("expected recipient order to not affect id: %s vs %s", a, b)
	}
}

func TestCampaignIDDiffersOnSubject(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := CampaignID("alice", "Hi", start, []string{"a@x.io"})
	b := CampaignID("alice", "Hello", start, []string{"a@x.io"})
	if a == b {
		t.Fatal("expected different subjects to produce different ids")
	}
}

func TestJobIDStableAcrossRetries(t *testing.T) {
	campaignID := "7f3a1e2c-5b4d-4e6f-9a8b-1c2d3e4f5a6b"
	first := JobID(campaignID, "a@x.io")
	second := JobID(campaignID, "a@x.io")
	if first != second {
		t.Fatalf("expected stable job id, got %s and %s", first, second)
	}
}

func TestJobIDDiffersByRecipient(t *testing.T) {
	campaignID := "7f3a1e2c-5b4d-4e6f-9a8b-1c2d3e4f5a6b"
	a := JobID(campaignID, "a@x.io")
	b := JobID(campaignID, "b@x.io")
	if a == b {
		t.Fatal("expected different recipients to produce different job ids")
	}
}

func TestWorkerIDIncludesSlot(t *testing.T) {
	id := WorkerID(3)
	if id[:9] != "worker-3-" {
		t.Fatalf("expected worker id to start with worker-3-, got %s", id)
	}
}
