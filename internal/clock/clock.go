// Package clock provides the monotonic "now" and sleep primitive described
// in spec.md §4.A, injectable so tests never depend on wall-clock time.
package clock

import "time"

// Clock is the capability every time-sensitive component depends on
// instead of calling time.Now()/time.Sleep() directly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

// Real is the production Clock, backed by the standard library.
type Real struct{}

func NewReal() Real { return Real{} }

func (Real) Now() time.Time                   { return time.Now().UTC() }
func (Real) Sleep(d time.Duration)            { time.Sleep(d) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
