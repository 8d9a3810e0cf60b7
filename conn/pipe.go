package conn

import (
	"sync"
	"time"

	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/logging"
	"github.com/vinayprograms/connkit/stream"
)

// PipeConfig configures an in-memory connection pair.
type PipeConfig struct {
	// NameA and NameB name the two ends. Defaults: "pipe-<id>-a" / "-b".
	NameA string
	NameB string

	// Buffer sizes the incoming streams. Default: DefaultBuffer.
	Buffer int

	// Logger for connection events. Default: discard.
	Logger *logging.Logger
}

// PipeConn is one end of an in-memory connection pair. Messages
// submitted on one end appear, unserialized, on the peer's incoming
// stream. Shutting down either end terminates both lifecycles, the
// way closing one side of a socket ends the conversation.
type PipeConn struct {
	name     string
	peer     *PipeConn
	incoming *stream.Stream
	logger   *logging.Logger

	done      chan struct{}
	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
}

var _ Conn = (*PipeConn)(nil)

// Pipe creates a connected in-memory pair.
func Pipe(cfg PipeConfig) (*PipeConn, *PipeConn) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	id := shortID()
	if cfg.NameA == "" {
		cfg.NameA = "pipe-" + id + "-a"
	}
	if cfg.NameB == "" {
		cfg.NameB = "pipe-" + id + "-b"
	}

	a := &PipeConn{
		name:     cfg.NameA,
		incoming: stream.New(cfg.Buffer),
		logger:   cfg.Logger.WithConn(cfg.NameA),
		done:     make(chan struct{}),
	}
	b := &PipeConn{
		name:     cfg.NameB,
		incoming: stream.New(cfg.Buffer),
		logger:   cfg.Logger.WithConn(cfg.NameB),
		done:     make(chan struct{}),
	}
	a.peer = b
	b.peer = a

	a.logger.ConnOpened("pipe")
	b.logger.ConnOpened("pipe")
	return a, b
}

// Name returns the connection name.
func (c *PipeConn) Name() string {
	return c.name
}

// Submit delivers msg to the peer's incoming stream.
func (c *PipeConn) Submit(msg any) <-chan error {
	return Result(c.deliver(msg))
}

// SubmitWithAck delivers msg to the peer. On a pipe, delivery is the
// acknowledgment; the timeout is never exceeded.
func (c *PipeConn) SubmitWithAck(msg any, _ time.Duration) <-chan error {
	return Result(c.deliver(msg))
}

func (c *PipeConn) deliver(msg any) error {
	select {
	case <-c.done:
		return ckerrors.ConnClosed(c.name)
	default:
	}
	select {
	case <-c.peer.done:
		return ckerrors.New(ckerrors.ErrCodePeerGone, "peer closed", ckerrors.WithConn(c.name))
	default:
	}
	c.peer.incoming.Publish(msg)
	return nil
}

// Incoming returns the stream of payloads submitted by the peer.
func (c *PipeConn) Incoming() *stream.Stream {
	return c.incoming
}

// Done returns the lifecycle channel.
func (c *PipeConn) Done() <-chan struct{} {
	return c.done
}

// Err returns the close cause, nil on graceful close.
func (c *PipeConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Shutdown gracefully terminates both ends of the pipe.
func (c *PipeConn) Shutdown() {
	c.close(nil)
}

// ShutdownWithError terminates both ends, propagating cause to the
// peer's lifecycle as well.
func (c *PipeConn) ShutdownWithError(cause error) {
	c.close(cause)
}

func (c *PipeConn) close(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		c.incoming.Close()
		close(c.done)
		c.logger.ConnClosed(cause)

		// Mutual: the peer observes the same fate. Recursion stops at
		// the peer's closeOnce.
		c.peer.close(cause)
	})
}
