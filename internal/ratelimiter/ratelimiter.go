// Package ratelimiter implements spec.md §4.E: a rolling, hour-aligned
// send budget per sender, backed by KV and mirrored to Store. Grounded on
// the redis INCR + TTL rate-limiting pattern in
// srk09sri-email_campaign's workerLoop (IncrRateCount/GetRateLimit).
package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/clock"
	"github.com/reachinbox/bulkmail-core/internal/kv"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

// bucketOverlap is the extra TTL margin past one hour applied on a key's
// first increment, so a counter never expires mid-bucket even under clock
// skew between the KV host and this process (spec.md §4.E).
const bucketOverlap = 60 * time.Second

// Decision is the result of Check.
type Decision struct {
	Allowed         bool
	Current         int64
	NextBucketStart time.Time
}

// RateLimiter is spec.md's component E.
type RateLimiter struct {
	kv    kv.KV
	store store.Store
	clock clock.Clock
	log   *zap.Logger
}

func New(k kv.KV, s store.Store, c clock.Clock, log *zap.Logger) *RateLimiter {
	return &RateLimiter{kv: k, store: s, clock: c, log: log}
}

func hourBucket(t time.Time) string {
	u := t.UTC()
	return u.Format("2006-01-02T15")
}

func bucketKey(hourBucket, sender string) string {
	return fmt.Sprintf("rate-limit:%s:%s", hourBucket, sender)
}

// Check reads the current hour's counter for sender, reseeding from the
// Store mirror if KV has no entry (e.g. after eviction). It does not
// mutate any state.
func (r *RateLimiter) Check(ctx context.Context, sender string, limit int) (Decision, error) {
	now := r.clock.Now()
	bucket := hourBucket(now)
	key := bucketKey(bucket, sender)

	current, found, err := r.kv.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if !found {
		seeded, serr := r.store.ReadRateCounter(ctx, bucket, sender)
		if serr != nil {
			r.log.Warn("rate limiter store reseed failed", zap.String("sender", sender), zap.Error(serr))
		} else {
			current = int64(seeded)
		}
	}

	next := nextBucketStart(now)
	return Decision{Allowed: current < int64(limit), Current: current, NextBucketStart: next}, nil
}

// Increment atomically bumps sender's counter for the current hour and
// asynchronously mirrors it to Store. A mirror failure is logged but never
// fails the call: KV is authoritative within the hour (spec.md §4.E).
func (r *RateLimiter) Increment(ctx context.Context, sender string) (int64, error) {
	now := r.clock.Now()
	bucket := hourBucket(now)
	key := bucketKey(bucket, sender)

	newCount, err := r.kv.IncrWithTTL(ctx, key, time.Hour+bucketOverlap)
	if err != nil {
		return 0, err
	}

	go func() {
		mirrorCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.store.UpsertRateCounter(mirrorCtx, bucket, sender, int(newCount)); err != nil {
			r.log.Warn("rate limiter store mirror failed", zap.String("sender", sender), zap.Error(err))
		}
	}()

	return newCount, nil
}

func nextBucketStart(now time.Time) time.Time {
	u := now.UTC()
	truncated := time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
	return truncated.Add(time.Hour)
}
