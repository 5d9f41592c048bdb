// Package core wires Clock, Mailer, KV, and Store into the Scheduler,
// Queue, RateLimiter, WorkerPool, and Aggregator, and exposes spec.md §6's
// language-neutral Core API. Grounded on the teacher's
// internal/service/campaign_service.go (a single struct holding every
// repository, exposing the operations the controller calls), generalized
// from concrete repository fields to the injected capability interfaces
// spec.md §9 calls for.
package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/aggregator"
	"github.com/reachinbox/bulkmail-core/internal/broker"
	"github.com/reachinbox/bulkmail-core/internal/clock"
	appErrors "github.com/reachinbox/bulkmail-core/internal/errors"
	"github.com/reachinbox/bulkmail-core/internal/kv"
	"github.com/reachinbox/bulkmail-core/internal/mailer"
	"github.com/reachinbox/bulkmail-core/internal/metrics"
	"github.com/reachinbox/bulkmail-core/internal/model"
	"github.com/reachinbox/bulkmail-core/internal/queue"
	"github.com/reachinbox/bulkmail-core/internal/ratelimiter"
	"github.com/reachinbox/bulkmail-core/internal/scheduler"
	"github.com/reachinbox/bulkmail-core/internal/store"
	"github.com/reachinbox/bulkmail-core/internal/worker"
)

// QueueStatsView mirrors spec.md §6's QueueStats() shape.
type QueueStatsView struct {
	Waiting   int
	Active    int
	Delayed   int
	Completed int
	Failed    int
}

// CampaignView is a campaign with its jobs embedded, for GetCampaign.
type CampaignView struct {
	Campaign *model.Campaign
	Jobs     []*model.Job
}

// Config bundles the capabilities and tunables needed to build a Core. All
// fields are required except Broker and Metrics, which fall back to
// single-process/no-op behavior when nil.
type Config struct {
	Store             store.Store
	Clock             clock.Clock
	Mailer            mailer.Mailer
	KV                kv.KV
	Queue             queue.Queue
	Broker            broker.Broker
	Metrics           *metrics.Collectors
	Log               *zap.Logger
	WorkerConcurrency int
	DefaultSender     string
	MaxEmailsPerHour  int
}

// Core is the capability-injected object spec.md §9 calls for: every
// dependency arrives through Config rather than being constructed inline,
// so tests can assemble a Core from fakes.
type Core struct {
	store              store.Store
	queue              queue.Queue
	limiter            *ratelimiter.RateLimiter
	scheduler          *scheduler.Scheduler
	aggregator         *aggregator.Aggregator
	pool               *worker.Pool
	metrics            *metrics.Collectors
	log                *zap.Logger
	defaultHourlyLimit int
}

func New(cfg Config) *Core {
	limiter := ratelimiter.New(cfg.KV, cfg.Store, cfg.Clock, cfg.Log)
	agg := aggregator.New(cfg.Store, cfg.Log)

	// cfg.Broker is passed directly as the scheduler's publish-only slice and
	// the worker's Publisher; the worker's Wakeups slice gets it through
	// brokerAdapter. A nil Broker (single-process deployments without AMQP)
	// flows through as a nil interface in each, and every caller nil-checks
	// before using it.
	sched := scheduler.New(cfg.Store, cfg.Queue, cfg.Broker, cfg.Log, cfg.Clock.Now)

	var wakeups worker.Wakeups
	if cfg.Broker != nil {
		wakeups = brokerAdapter{cfg.Broker}
	}

	pool := worker.New(worker.Config{
		ID:          "worker",
		Size:        cfg.WorkerConcurrency,
		Queue:       cfg.Queue,
		Store:       cfg.Store,
		Limiter:     limiter,
		Mailer:      cfg.Mailer,
		Aggregator:  agg,
		Wakeups:     wakeups,
		Publisher:   cfg.Broker,
		DefaultFrom: cfg.DefaultSender,
		Log:         cfg.Log,
		Now:         cfg.Clock.Now,
		Metrics:     cfg.Metrics,
	})

	hourlyLimit := cfg.MaxEmailsPerHour
	if hourlyLimit <= 0 {
		hourlyLimit = scheduler.DefaultHourlyLimit
	}

	return &Core{
		store:              cfg.Store,
		queue:              cfg.Queue,
		limiter:            limiter,
		scheduler:          sched,
		aggregator:         agg,
		pool:               pool,
		metrics:            cfg.Metrics,
		log:                cfg.Log,
		defaultHourlyLimit: hourlyLimit,
	}
}

// Submit implements spec.md §6's Submit.
func (c *Core) Submit(ctx context.Context, in scheduler.Input) (string, error) {
	if in.HourlyLimit <= 0 {
		in.HourlyLimit = c.defaultHourlyLimit
	}
	return c.scheduler.Submit(ctx, in)
}

// GetCampaign implements spec.md §6's GetCampaign, embedding jobs.
func (c *Core) GetCampaign(ctx context.Context, id string) (*CampaignView, error) {
	campaign, err := c.store.ReadCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := c.store.ListJobsByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignView{Campaign: campaign, Jobs: jobs}, nil
}

// ListCampaigns implements spec.md §6's ListCampaigns(owner).
func (c *Core) ListCampaigns(ctx context.Context, owner string) ([]*model.Campaign, error) {
	if owner == "" {
		return nil, appErrors.NewValidation("owner", "required")
	}
	return c.store.ListCampaignsByOwner(ctx, owner)
}

// ListTerminalJobs implements spec.md §6's ListTerminalJobs(owner).
func (c *Core) ListTerminalJobs(ctx context.Context, owner string) ([]*model.Job, error) {
	if owner == "" {
		return nil, appErrors.NewValidation("owner", "required")
	}
	return c.store.ListTerminalJobsByOwner(ctx, owner)
}

// QueueStats implements spec.md §6's QueueStats(): waiting/active/delayed
// come from the live Queue, completed/failed are counted from Store since
// the Queue drops a job from its own bookkeeping the moment it's terminal.
func (c *Core) QueueStats(ctx context.Context) QueueStatsView {
	s := c.queue.Stats()
	view := QueueStatsView{Waiting: s.Waiting, Active: s.Active, Delayed: s.Delayed}

	if sent, err := c.store.CountJobsByStatus(ctx, model.JobSent); err == nil {
		view.Completed = sent
	} else {
		c.log.Warn("queue stats: count sent jobs failed", zap.Error(err))
	}
	if failed, err := c.store.CountJobsByStatus(ctx, model.JobFailed); err == nil {
		view.Failed = failed
	} else {
		c.log.Warn("queue stats: count failed jobs failed", zap.Error(err))
	}

	if c.metrics != nil {
		c.metrics.ObserveQueueStats(s.Waiting, s.Active, s.Delayed)
	}
	return view
}

// ReconcileInterval is how often Run re-syncs the in-memory Queue against
// Store. Each process (cmd/server, cmd/worker) owns its own Queue, so a
// campaign submitted to one process's Scheduler is invisible to another
// process's Queue until a RecoverFromStore runs in that process. The
// Broker wakeup from Scheduler.Submit only makes workers re-poll their own
// Queue and does not carry the job, so this sweep is what loads it there.
const ReconcileInterval = 10 * time.Second

// Run starts the worker pool plus a periodic Store reconcile sweep, and
// blocks until ctx is cancelled (spec.md §4.H graceful shutdown). Safe to
// call from both cmd/server and cmd/worker.
func (c *Core) Run(ctx context.Context) {
	go c.reconcileLoop(ctx)
	c.pool.Run(ctx)
}

func (c *Core) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.RecoverFromStore(ctx); err != nil {
				c.log.Warn("periodic reconcile failed", zap.Error(err))
			}
		}
	}
}

// Recover replays every pending job from Store into the Queue; call once
// at boot before Run (spec.md §4.G recovery-from-Store).
func (c *Core) Recover(ctx context.Context) error {
	return c.queue.RecoverFromStore(ctx)
}

// HealthCheck implements the façade's GET /health by exercising Store.
func (c *Core) HealthCheck(ctx context.Context) error {
	_, err := c.store.ReadRateCounter(ctx, "health", "health")
	return err
}

type brokerAdapter struct {
	b broker.Broker
}

func (a brokerAdapter) Subscribe(ctx context.Context) (<-chan string, error) {
	return a.b.Subscribe(ctx)
}
