package heartbeat

import (
	"sync"
	"time"

	"github.com/vinayprograms/connkit/conn"
	"github.com/vinayprograms/connkit/logging"
	"github.com/vinayprograms/connkit/stream"
)

// Conn decorates a delegate connection with heartbeat monitoring. It
// implements the same contract as the delegate; the only observable
// difference is that heartbeat markers vanish from the incoming
// stream, consumed by the monitor instead.
//
// The decorator does not own the delegate's lifecycle. It observes it:
// when the delegate terminates for any reason the internal teardown
// runs without issuing another shutdown call downward.
type Conn struct {
	delegate conn.Conn
	monitor  *Monitor
	filtered *stream.Stream
	insub    *stream.Subscription
	logger   *logging.Logger

	teardownOnce sync.Once
}

var _ conn.Conn = (*Conn)(nil)

// NewConn wraps delegate with heartbeat monitoring. The monitor's
// timer starts immediately; the first heartbeat goes out one interval
// from now.
func NewConn(delegate conn.Conn, cfg Config) (*Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if cfg.Buffer <= 0 {
		cfg.Buffer = conn.DefaultBuffer
	}

	c := &Conn{
		delegate: delegate,
		filtered: stream.New(cfg.Buffer),
		logger:   cfg.Logger.WithComponent("heartbeat").WithConn(delegate.Name()),
	}

	monitor, err := NewMonitor(delegate, cfg, c.onFatal)
	if err != nil {
		return nil, err
	}
	c.monitor = monitor

	c.insub = delegate.Incoming().Subscribe()
	go c.filterLoop()
	go c.watchDelegate()

	c.monitor.Start()
	return c, nil
}

// filterLoop consumes the delegate's incoming stream: heartbeat
// markers feed the monitor and are never forwarded, everything else is
// republished in its original order.
func (c *Conn) filterLoop() {
	for item := range c.insub.Items() {
		if conn.IsHeartbeat(item) {
			c.monitor.HeartbeatReceived()
			continue
		}
		c.filtered.Publish(item)
	}
}

// watchDelegate runs internal teardown when the delegate's lifecycle
// ends on its own, whether gracefully or with an error. The delegate
// owns re-propagation of its cause; nothing is re-reported here.
func (c *Conn) watchDelegate() {
	<-c.delegate.Done()
	c.teardown()
}

// onFatal handles a monitor-declared failure: tear down this layer,
// then push the cause into the delegate's shutdown path so lifecycle
// observers see it.
func (c *Conn) onFatal(cause error) {
	c.teardown()
	c.delegate.ShutdownWithError(cause)
}

// teardown stops the timer, cancels the filter subscription and ends
// the exposed stream. Exactly one execution regardless of how many
// triggers race; later invocations are no-ops.
func (c *Conn) teardown() {
	c.teardownOnce.Do(func() {
		c.monitor.Stop()
		c.insub.Cancel()
		c.filtered.Close()
	})
}

// Name returns the delegate's name.
func (c *Conn) Name() string {
	return c.delegate.Name()
}

// Submit passes through to the delegate.
func (c *Conn) Submit(msg any) <-chan error {
	return c.delegate.Submit(msg)
}

// SubmitWithAck passes through to the delegate.
func (c *Conn) SubmitWithAck(msg any, timeout time.Duration) <-chan error {
	return c.delegate.SubmitWithAck(msg, timeout)
}

// Incoming returns the filtered stream: every delegate payload except
// heartbeat markers, in original order. Slow subscribers miss items;
// this layer adds no buffering beyond the configured stream buffer.
func (c *Conn) Incoming() *stream.Stream {
	return c.filtered
}

// Done passes through the delegate's lifecycle channel. This layer
// introduces no separate externally visible closing state.
func (c *Conn) Done() <-chan struct{} {
	return c.delegate.Done()
}

// Err passes through the delegate's close cause.
func (c *Conn) Err() error {
	return c.delegate.Err()
}

// Monitor exposes the underlying monitor for diagnostics.
func (c *Conn) Monitor() *Monitor {
	return c.monitor
}

// Shutdown tears down the heartbeat layer, then shuts down the
// delegate.
func (c *Conn) Shutdown() {
	c.teardown()
	c.delegate.Shutdown()
}

// ShutdownWithError tears down the heartbeat layer, then shuts down
// the delegate with the given cause.
func (c *Conn) ShutdownWithError(cause error) {
	c.teardown()
	c.delegate.ShutdownWithError(cause)
}
