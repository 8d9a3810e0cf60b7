package heartbeat

import (
	"sync"
	"sync/atomic"

	"github.com/vinayprograms/connkit/conn"
	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/logging"
)

// Monitor owns the heartbeat timer and the drift counter for one
// connection. Each tick increments drift before checking it against
// the tolerance; each received marker decrements it. Drift may go
// negative when the peer heartbeats faster than the local timer; that
// is surplus acknowledgment and harmless.
//
// Timeout and submission failure are fatal: the monitor stops itself
// and reports the cause through the fatal callback exactly once.
type Monitor struct {
	target    conn.Conn
	cfg       Config
	tolerance int64
	clock     Clock
	logger    *logging.Logger

	// fatal receives the terminal cause. Called at most once, never
	// from more than one path.
	fatal func(error)

	drift atomic.Int64

	fatalOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewMonitor creates a monitor for target. The fatal callback is
// invoked with the terminal cause when the monitor declares the
// connection dead; it must not block. The timer does not run until
// Start is called.
func NewMonitor(target conn.Conn, cfg Config, fatal func(error)) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if fatal == nil {
		fatal = func(error) {}
	}

	return &Monitor{
		target:    target,
		cfg:       cfg,
		tolerance: int64(cfg.Tolerance),
		clock:     cfg.Clock,
		logger:    cfg.Logger.WithComponent("heartbeat").WithConn(target.Name()),
		fatal:     fatal,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins firing ticks at the configured interval. The first tick
// occurs one full interval after Start.
func (m *Monitor) Start() {
	go m.run()
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := m.clock.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.Chan():
			m.tick()
		}
	}
}

// tick increments drift, then either declares the connection dead or
// submits one heartbeat marker. The increment always happens before
// the threshold check so the drift value at the failure boundary is
// exact.
func (m *Monitor) tick() {
	d := m.drift.Add(1)
	if d > m.tolerance {
		m.logger.HeartbeatMissed(d, int(m.tolerance))
		m.Stop()
		m.reportFatal(ckerrors.HeartbeatTimeout(m.target.Name()))
		return
	}

	m.logger.HeartbeatSent(d)
	res := m.target.Submit(conn.Heartbeat{})
	go func() {
		if err := <-res; err != nil {
			m.logger.SubmitFailed(err)
			m.Stop()
			m.reportFatal(ckerrors.SubmitFailed(m.target.Name(), err))
		}
	}()
}

// HeartbeatReceived records one inbound heartbeat marker. Safe to call
// from any goroutine, including after Stop, where it is a harmless
// no-op on a counter nobody reads anymore.
func (m *Monitor) HeartbeatReceived() {
	d := m.drift.Add(-1)
	m.logger.HeartbeatReceived(d)
}

// Drift returns the current drift value. Diagnostic only; the value
// may be stale by the time it is observed.
func (m *Monitor) Drift() int64 {
	return m.drift.Load()
}

// Stop cancels the timer. Idempotent, safe under concurrent
// invocation, and non-blocking so it can be called from the tick path
// itself.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// Stopped returns a channel closed once the timer goroutine exited.
func (m *Monitor) Stopped() <-chan struct{} {
	return m.doneCh
}

func (m *Monitor) reportFatal(err error) {
	m.fatalOnce.Do(func() {
		m.fatal(err)
	})
}
