// Package clock abstracts wall-clock reads and periodic ticking so the
// attempt engine can be driven by a fake time source in tests.
package clock

import "time"

// Ticker is a stoppable periodic tick source.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock supplies the current time and new tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Real is the production Clock backed by the time package.
type Real struct{}

func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }
