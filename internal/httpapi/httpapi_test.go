package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/clock"
	"github.com/reachinbox/bulkmail-core/internal/core"
	"github.com/reachinbox/bulkmail-core/internal/kv"
	"github.com/reachinbox/bulkmail-core/internal/mailer"
	"github.com/reachinbox/bulkmail-core/internal/queue"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	s := store.NewMemory()
	realClock := clock.NewReal()
	q := queue.NewInMemory(s, realClock.Now)

	c := core.New(core.Config{
		Store:             s,
		Clock:             realClock,
		Mailer:            mailer.NewFake(),
		KV:                kv.NewMemory(),
		Queue:             q,
		Log:               zap.NewNop(),
		WorkerConcurrency: 1,
		DefaultSender:     "noreply@reachinbox.app",
		MaxEmailsPerHour:  200,
	})
	return New(c, zap.NewNop(), nil)
}

func TestScheduleEmailsRequiresOwnerHeader(t *testing.T) {
	api := newTestAPI(t)
	body := bytes.NewBufferString(`{"subject":"hi","body":"hi","recipients":["a@x.io"],"startTime":"2026-01-01T00:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/emails/schedule", body)
	rec := httptest.NewRecorder()

	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScheduleEmailsCreatesJobsAndReturns201(t *testing.T) {
	api := newTestAPI(t)
	payload := map[string]any{
		"subject":    "hi",
		"body":       "hi",
		"recipients": []string{"a@x.io", "b@x.io"},
		"startTime":  time.Now().UTC().Format(time.RFC3339),
		"delayMs":    100,
	}
	raw, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/emails/schedule", bytes.NewReader(raw))
	req.Header.Set(OwnerHeader, "alice")
	rec := httptest.NewRecorder()

	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp scheduleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CreatedJobs != 2 {
		t.Fatalf("expected 2 created jobs, got %d", resp.CreatedJobs)
	}
	if resp.ScheduleID == "" {
		t.Fatal("expected a non-empty scheduleId")
	}
}

func TestGetScheduleReturns404ForUnknownID(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/emails/schedule/does-not-exist", nil)
	rec := httptest.NewRecorder()

	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListScheduledToleratesMissingOwner(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/emails/scheduled", nil)
	rec := httptest.NewRecorder()

	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReportsOK(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	api.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOwnerRateLimitReturns429AfterBurst(t *testing.T) {
	api := newTestAPI(t)

	var last *httptest.ResponseRecorder
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/emails/scheduled", nil)
		req.Header.Set(OwnerHeader, "rate-limited-owner")
		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, req)
		last = rec
		if rec.Code == http.StatusTooManyRequests {
			return
		}
	}
	t.Fatalf("expected a 429 within 20 requests, last status was %d", last.Code)
}
