package ratelimiter

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/clock"
	"github.com/reachinbox/bulkmail-core/internal/kv"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

func TestCheckAllowsUnderLimit(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	rl := New(kv.NewMemory(), store.NewMemory(), c, zap.NewNop())

	decision, err := rl.Check(context.Background(), "alice", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("expected an empty counter to be allowed")
	}
}

func TestIncrementThenCheckDeniesAtLimit(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	rl := New(kv.NewMemory(), store.NewMemory(), c, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := rl.Increment(context.Background(), "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	decision, err := rl.Check(context.Background(), "alice", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected counter at the limit to be denied")
	}
	if decision.Current != 3 {
		t.Fatalf("expected current=3, got %d", decision.Current)
	}
}

func TestCheckReportsNextBucketStart(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC))
	rl := New(kv.NewMemory(), store.NewMemory(), c, zap.NewNop())

	decision, err := rl.Check(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	if !decision.NextBucketStart.Equal(want) {
		t.Fatalf("expected next bucket at %v, got %v", want, decision.NextBucketStart)
	}
}

func TestDifferentSendersHaveIndependentBudgets(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	rl := New(kv.NewMemory(), store.NewMemory(), c, zap.NewNop())

	rl.Increment(context.Background(), "alice")
	rl.Increment(context.Background(), "alice")

	decision, _ := rl.Check(context.Background(), "bob", 1)
	if !decision.Allowed || decision.Current != 0 {
		t.Fatalf("expected bob's budget to be untouched by alice's sends, got %+v", decision)
	}
}
