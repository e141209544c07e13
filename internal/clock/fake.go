package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests. Advance moves the wall clock
// and fires due tickers synchronously, so tests control tick ordering
// without sleeping.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFake creates a Fake clock pinned to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set jumps the wall clock without firing tickers. Used to simulate a gap
// between sessions (process down, tab closed).
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := &fakeTicker{
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 1),
		clk:      f,
	}
	f.tickers = append(f.tickers, ft)
	return ft
}

// Advance moves the clock forward by d, delivering ticks for every elapsed
// interval of each live ticker. Delivery is non-blocking per ticker (a slow
// consumer coalesces ticks, like time.Ticker).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		var earliest *fakeTicker
		for _, t := range f.tickers {
			if t.stopped {
				continue
			}
			if !t.next.After(target) && (earliest == nil || t.next.Before(earliest.next)) {
				earliest = t
			}
		}
		if earliest == nil {
			break
		}
		f.now = earliest.next
		earliest.next = earliest.next.Add(earliest.interval)
		tick := f.now
		select {
		case earliest.ch <- tick:
		default:
		}
	}
	f.now = target
	f.mu.Unlock()
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	clk      *Fake
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clk.mu.Lock()
	t.stopped = true
	t.clk.mu.Unlock()
}
