// Package aggregator implements spec.md §4.I: campaign-level counters are
// derived from job state, not maintained incrementally, and recomputation
// is coalesced per campaign so a burst of job completions triggers one
// Store.RecomputeCampaign call instead of one per job. Grounded on the
// teacher's mutex-guarded in-memory bookkeeping style (internal/queue's
// original InMemoryQueue) and on the async best-effort mirror pattern in
// internal/ratelimiter.RateLimiter.Increment, applied here to debounce
// rather than to decouple a write from its caller.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/store"
)

// CoalesceWindow is the debounce delay: a campaign that receives repeated
// Notify calls within this window is recomputed only once, after the
// window elapses with no further calls (spec.md §4.I: "~250ms window").
const CoalesceWindow = 250 * time.Millisecond

// Aggregator is spec.md's component I.
type Aggregator struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	store   store.Store
	log     *zap.Logger
	window  time.Duration
}

func New(s store.Store, log *zap.Logger) *Aggregator {
	return &Aggregator{
		pending: make(map[string]*time.Timer),
		store:   s,
		log:     log,
		window:  CoalesceWindow,
	}
}

// Notify schedules a recompute for campaignID after the coalesce window,
// resetting the window if one is already pending (single-writer per
// campaign: only one timer/goroutine exists per campaignID at a time).
func (a *Aggregator) Notify(campaignID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if t, ok := a.pending[campaignID]; ok {
		t.Reset(a.window)
		return
	}

	a.pending[campaignID] = time.AfterFunc(a.window, func() {
		a.mu.Lock()
		delete(a.pending, campaignID)
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.store.RecomputeCampaign(ctx, campaignID); err != nil {
			a.log.Error("campaign recompute failed", zap.String("campaignId", campaignID), zap.Error(err))
		}
	})
}

// Flush forces any pending recompute to run immediately and waits for
// completion; used by tests. No shutdown path in this module calls it.
func (a *Aggregator) Flush(ctx context.Context, campaignID string) error {
	a.mu.Lock()
	if t, ok := a.pending[campaignID]; ok {
		t.Stop()
		delete(a.pending, campaignID)
	}
	a.mu.Unlock()
	return a.store.RecomputeCampaign(ctx, campaignID)
}
