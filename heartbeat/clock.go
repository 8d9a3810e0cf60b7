package heartbeat

import (
	"sync"
	"time"
)

// Clock abstracts the periodic timer source so tests can drive ticks
// deterministically.
type Clock interface {
	// NewTicker returns a ticker firing every d, first tick at t = d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is a cancellable periodic timer.
type Ticker interface {
	// Chan returns the tick channel.
	Chan() <-chan time.Time

	// Stop cancels the ticker. Idempotent.
	Stop()
}

// SystemClock returns the wall clock backed by time.Ticker.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) Chan() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()                  { s.t.Stop() }

// FakeClock is a manual clock for tests. Advance moves virtual time
// forward and fires due tickers. Like time.Ticker, a ticker whose
// previous tick was not yet consumed coalesces further ticks.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock creates a fake clock positioned at the zero time.
func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

// NewTicker registers a virtual ticker firing every d of virtual time.
func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves virtual time forward by d, delivering every tick that
// becomes due.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
	for _, t := range f.tickers {
		t.fireUpTo(f.now)
	}
}

// Now returns the current virtual time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

type fakeTicker struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) fireUpTo(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.stopped && !t.next.After(now) {
		select {
		case t.ch <- t.next:
		default:
			// Consumer still busy with the previous tick; coalesce.
		}
		t.next = t.next.Add(t.interval)
	}
}
