package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if got := f.Now(); !got.Equal(start) {
		t.Fatalf("expected %v, got %v", start, got)
	}

	f.Advance(90 * time.Second)
	want := start.Add(90 * time.Second)
	if got := f.Now(); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFakeAfterAdvancesAndSignals(t *testing.T) {
	f := NewFake(time.Now())
	before := f.Now()

	ch := f.After(5 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(before.Add(5 * time.Second)) {
			t.Fatalf("expected After to fire at advanced time, got %v", got)
		}
	default:
		t.Fatal("expected After's channel to be immediately ready")
	}
}

var _ Clock = (*Fake)(nil)
var _ Clock = Real{}
