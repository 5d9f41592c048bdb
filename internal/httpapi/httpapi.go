// Package httpapi is the HTTP façade from spec.md §6, translating JSON
// requests into internal/core.Core calls. Grounded on the teacher's
// internal/handler/campaign_handler.go and internal/controller's chi
// handler style (struct-held dependency, json.NewDecoder/Encoder,
// http.Error for failures), generalized to the new route table and to the
// §7 error-kind -> HTTP-status mapping the teacher's handlers never had to
// do (they always returned 500).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reachinbox/bulkmail-core/internal/core"
	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/metrics"
	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/scheduler"
)

// OwnerHeader is the header carrying spec.md §6's caller identity.
const OwnerHeader = "x-user-id"

type API struct {
	core    *core.Core
	log     *zap.Logger
	metrics *metrics.Collectors
	limiter *ownerLimiter
}

func New(c *core.Core, log *zap.Logger, m *metrics.Collectors) *API {
	return &API{core: c, log: log, metrics: m, limiter: newOwnerLimiter(rate.Limit(5), 10)}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requireOwnerOnMutations)
	r.Use(a.limiter.middleware)

	r.Post("/emails/schedule", a.scheduleEmails)
	r.Get("/emails/scheduled", a.listScheduled)
	r.Get("/emails/sent", a.listSent)
	r.Get("/emails/schedule/{id}", a.getSchedule)
	r.Get("/emails/queue/status", a.queueStatus)
	r.Get("/health", a.health)
	return r
}

type scheduleRequest struct {
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	Recipients  []string            `json:"recipients"`
	StartTime   time.Time           `json:"startTime"`
	DelayMs     int64               `json:"delayMs"`
	HourlyLimit int                 `json:"hourlyLimit"`
	Attachments []model.Attachment  `json:"attachments"`
}

type scheduleResponse struct {
	ScheduleID  string `json:"scheduleId"`
	TotalEmails int    `json:"totalEmails"`
	Status      string `json:"status"`
	CreatedJobs int    `json:"createdJobs"`
}

func (a *API) scheduleEmails(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := r.Header.Get(OwnerHeader)
	id, err := a.core.Submit(r.Context(), scheduler.Input{
		Owner:       owner,
		Subject:     req.Subject,
		Body:        req.Body,
		Recipients:  req.Recipients,
		StartTime:   req.StartTime,
		DelayMs:     req.DelayMs,
		HourlyLimit: req.HourlyLimit,
		Attachments: req.Attachments,
	})
	if err != nil {
		a.writeCoreError(w, err)
		return
	}

	view, err := a.core.GetCampaign(r.Context(), id)
	if err != nil {
		a.writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, scheduleResponse{
		ScheduleID:  id,
		TotalEmails: view.Campaign.TotalCount,
		Status:      string(view.Campaign.Status),
		CreatedJobs: len(view.Jobs),
	})
}

func (a *API) listScheduled(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(OwnerHeader)
	if owner == "" {
		writeJSON(w, http.StatusOK, []*model.Campaign{})
		return
	}
	campaigns, err := a.core.ListCampaigns(r.Context(), owner)
	if err != nil {
		a.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (a *API) listSent(w http.ResponseWriter, r *http.Request) {
	owner := r.Header.Get(OwnerHeader)
	if owner == "" {
		writeJSON(w, http.StatusOK, []*model.Job{})
		return
	}
	jobs, err := a.core.ListTerminalJobs(r.Context(), owner)
	if err != nil {
		a.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := a.core.GetCampaign(r.Context(), id)
	if err != nil {
		a.writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) queueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.core.QueueStats(r.Context()))
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.core.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireOwnerOnMutations enforces spec.md §6's "401 if owner absent" for
// the one route that creates state; read routes tolerate a missing owner
// (they simply return an empty list).
func (a *API) requireOwnerOnMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Header.Get(OwnerHeader) == "" {
			writeError(w, http.StatusUnauthorized, "x-user-id header required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) writeCoreError(w http.ResponseWriter, err error) {
	var validation *appErrors.ErrValidation
	var notFound *appErrors.ErrCampaignNotFound
	var storeUnavailable *appErrors.ErrStoreUnavailable

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &storeUnavailable):
		a.log.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		a.log.Error("unhandled core error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
