// Package worker implements spec.md §4.H: a pool of goroutines that lease
// jobs from the Queue, consult the RateLimiter, render and send via the
// Mailer, and record the outcome durably through Store. Grounded on the
// teacher's internal/service/worker.go (Worker struct wrapping a job
// channel and a SendFunc) and cmd/worker/main.go's processMessage
// (fetch -> render -> send -> update), generalized from a single hardcoded
// mock sender into the Mailer capability and from an unconditional send
// into one gated by RateLimiter.Check.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/idgen"
	"github.com/reachinbox/bulkmail-core/internal/mailer"
	"github.com/reachinbox/bulkmail-core/internal/metrics"
	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/queue"
	"github.com/reachinbox/bulkmail-core/internal/ratelimiter"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

// LeaseDuration bounds how long a worker may hold a job before another
// worker may reclaim it (spec.md §4.G).
const LeaseDuration = 2 * time.Minute

// PollInterval is the fallback poll cadence used when the queue is empty
// and no wakeup broadcast arrives (spec.md §5).
const PollInterval = 500 * time.Millisecond

// Aggregator is the narrow slice of internal/aggregator.Aggregator the
// worker needs: notify-after-terminal-transition.
type Aggregator interface {
	Notify(campaignID string)
}

// Wakeups is the narrow slice of internal/broker.Broker the worker needs to
// receive wakeups.
type Wakeups interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Publisher is the narrow slice of internal/broker.Broker the worker needs
// to announce a wakeup-worthy change (a job deferred into a future rate
// bucket) to every other process sharing the same Store.
type Publisher interface {
	Publish(ctx context.Context, campaignID string) error
}

// Pool is spec.md's component H.
type Pool struct {
	id          string
	size        int
	queue       queue.Queue
	store       store.Store
	limiter     *ratelimiter.RateLimiter
	mailer      mailer.Mailer
	aggregator  Aggregator
	wakeups     Wakeups
	publisher   Publisher
	defaultFrom string
	log         *zap.Logger
	now         func() time.Time
	metrics     *metrics.Collectors
}

type Config struct {
	ID          string
	Size        int
	Queue       queue.Queue
	Store       store.Store
	Limiter     *ratelimiter.RateLimiter
	Mailer      mailer.Mailer
	Aggregator  Aggregator
	Wakeups     Wakeups
	Publisher   Publisher
	DefaultFrom string
	Log         *zap.Logger
	Now         func() time.Time
	Metrics     *metrics.Collectors
}

func New(cfg Config) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	return &Pool{
		id:          cfg.ID,
		size:        size,
		queue:       cfg.Queue,
		store:       cfg.Store,
		limiter:     cfg.Limiter,
		mailer:      cfg.Mailer,
		aggregator:  cfg.Aggregator,
		wakeups:     cfg.Wakeups,
		publisher:   cfg.Publisher,
		defaultFrom: cfg.DefaultFrom,
		log:         cfg.Log,
		now:         cfg.Now,
		metrics:     cfg.Metrics,
	}
}

// Run starts size goroutines and blocks until ctx is cancelled, then waits
// for in-flight sends to finish (spec.md §4.H: "graceful shutdown lets an
// in-flight send finish before exiting").
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		slot := i
		go func() {
			defer wg.Done()
			p.runSlot(ctx, slot)
		}()
	}
	wg.Wait()
}

func (p *Pool) runSlot(ctx context.Context, slot int) {
	workerID := idgen.WorkerID(slot)
	p.log.Info("worker slot starting", zap.String("pool", p.id), zap.String("workerId", workerID))

	var wake <-chan string
	if p.wakeups != nil {
		ch, err := p.wakeups.Subscribe(ctx)
		if err != nil {
			p.log.Warn("worker wakeup subscribe failed; falling back to polling", zap.String("workerId", workerID), zap.Error(err))
		} else {
			wake = ch
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-wake:
		}

		waitUntil, err := p.drainOnce(ctx, workerID)
		if err != nil {
			p.log.Error("worker drain failed", zap.String("workerId", workerID), zap.Error(err))
			timer.Reset(PollInterval)
			continue
		}
		if waitUntil.IsZero() {
			timer.Reset(PollInterval)
		} else {
			delay := waitUntil.Sub(p.now())
			if delay < 0 {
				delay = 0
			}
			timer.Reset(delay)
		}
	}
}

// drainOnce leases and processes jobs until the queue reports Empty or
// WaitUntil, returning the wait time in the WaitUntil case.
func (p *Pool) drainOnce(ctx context.Context, workerID string) (time.Time, error) {
	for {
		if ctx.Err() != nil {
			return time.Time{}, nil
		}
		res, err := p.queue.LeaseNext(ctx, workerID, LeaseDuration)
		if err != nil {
			return time.Time{}, err
		}
		switch res.Outcome {
		case queue.OutcomeEmpty:
			return time.Time{}, nil
		case queue.OutcomeWaitUntil:
			return res.WaitTime, nil
		case queue.OutcomeJob:
			p.processJob(ctx, res.JobID, res.Attempts)
		}
	}
}

// processJob implements spec.md §4.H's per-job state machine: rate check
// -> defer, or send -> complete/retry/fail.
func (p *Pool) processJob(ctx context.Context, jobID string, attempts int) {
	job, err := p.store.ReadJob(ctx, jobID)
	if err != nil {
		p.log.Error("worker failed to read leased job", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	if job.Status != model.JobPending {
		// Already terminal (e.g. a racing worker finished it first under
		// an earlier lease generation); drop it from the queue quietly.
		p.queue.Complete(ctx, jobID)
		return
	}

	campaign, err := p.store.ReadCampaign(ctx, job.CampaignID)
	if err != nil {
		p.log.Error("worker failed to read campaign", zap.String("campaignId", job.CampaignID), zap.Error(err))
		return
	}

	sender := campaign.Sender(p.defaultFrom)
	decision, err := p.limiter.Check(ctx, sender, campaign.HourlyLimit)
	if err != nil {
		p.log.Error("rate limiter check failed", zap.Error(err))
		return
	}
	if !decision.Allowed {
		p.queue.Defer(ctx, jobID, decision.NextBucketStart)
		if p.metrics != nil {
			p.metrics.RateDeferrals.Inc()
		}
		if p.publisher != nil {
			if err := p.publisher.Publish(ctx, job.CampaignID); err != nil {
				p.log.Warn("wakeup publish failed after defer", zap.String("campaignId", job.CampaignID), zap.Error(err))
			}
		}
		return
	}

	// Increment precedes the Mailer call (spec.md §4.H step 4): bounding the
	// hourly budget by dispatch concurrency rather than by send latency means
	// a slow Mailer can never let more than `concurrency` sends overshoot the
	// limit while they're in flight.
	p.limiter.Increment(ctx, sender)

	email := mailer.Compose(sender, job, campaign)
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	messageID, sendErr := p.mailer.Send(sendCtx, email)
	cancel()

	if sendErr == nil {
		p.onSendSuccess(ctx, job, messageID)
		return
	}

	var permanent *appErrors.ErrPermanentTransport
	p.onSendFailure(ctx, job, sendErr, errors.As(sendErr, &permanent))
}

func (p *Pool) onSendSuccess(ctx context.Context, job *model.Job, messageID string) {
	now := p.now()
	sentAttempts := job.Attempts + 1
	patch := model.JobPatch{
		Status:     model.JobSent,
		Attempts:   &sentAttempts,
		SentTime:   &now,
		ClearLease: true,
	}
	applied, err := p.store.UpdateJob(ctx, job.ID, model.JobPending, patch)
	if err != nil {
		p.log.Error("store update failed after successful send", zap.String("jobId", job.ID), zap.Error(err))
		return
	}
	if !applied {
		p.log.Warn("job CAS mismatch on send success; leaving as-is", zap.String("jobId", job.ID))
	}

	p.queue.Complete(ctx, job.ID)
	if p.metrics != nil {
		p.metrics.EmailsSent.Inc()
	}
	p.aggregator.Notify(job.CampaignID)
	p.log.Info("email sent", zap.String("jobId", job.ID), zap.String("messageId", messageID))
}

func (p *Pool) onSendFailure(ctx context.Context, job *model.Job, sendErr error, permanent bool) {
	policy := queue.DefaultRetryPolicy
	if permanent {
		policy.MaxAttempts = 1
	}

	result, err := p.queue.Fail(ctx, job.ID, policy)
	if err != nil {
		p.log.Error("queue fail bookkeeping errored", zap.Error(err))
	}

	errMsg := sendErr.Error()
	if result.Retried {
		attempts := result.Attempts
		patch := model.JobPatch{
			Status:     model.JobPending,
			Attempts:   &attempts,
			LastError:  &errMsg,
			ClearLease: true,
		}
		if _, err := p.store.UpdateJob(ctx, job.ID, model.JobPending, patch); err != nil {
			p.log.Error("store update failed after retryable send failure", zap.String("jobId", job.ID), zap.Error(err))
		}
		if p.metrics != nil {
			p.metrics.SendRetries.Inc()
		}
		return
	}

	attempts := job.Attempts + 1
	patch := model.JobPatch{
		Status:     model.JobFailed,
		Attempts:   &attempts,
		LastError:  &errMsg,
		ClearLease: true,
	}
	if _, err := p.store.UpdateJob(ctx, job.ID, model.JobPending, patch); err != nil {
		p.log.Error("store update failed after permanent send failure", zap.String("jobId", job.ID), zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.EmailsFailed.Inc()
	}
	p.aggregator.Notify(job.CampaignID)
	p.log.Warn("email permanently failed", zap.String("jobId", job.ID), zap.Error(sendErr))
}
