package conn

import (
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/connkit/stream"
)

// DefaultBuffer is the buffer applied to incoming streams and send
// queues when a config leaves it unset.
const DefaultBuffer = 256

// Conn is a bidirectional asynchronous message connection.
//
// All operations are non-blocking. Failures never surface as
// synchronous errors or panics; they arrive on the returned result
// channel or through the lifecycle.
type Conn interface {
	// Name returns a stable identifier for diagnostics.
	Name() string

	// Submit queues a message for delivery to the peer. The returned
	// one-shot channel resolves with nil once the message was handed to
	// the transport, or with an error otherwise. The channel is closed
	// after the result is delivered.
	Submit(msg any) <-chan error

	// SubmitWithAck behaves like Submit but additionally waits for the
	// peer to acknowledge receipt. The result resolves with an
	// ACK_TIMEOUT error when no acknowledgment arrives within timeout.
	SubmitWithAck(msg any, timeout time.Duration) <-chan error

	// Incoming returns the hot stream of inbound payloads. Subscribing
	// late misses earlier items; slow subscribers miss items rather
	// than applying backpressure.
	Incoming() *stream.Stream

	// Done returns a channel closed when the connection reaches its
	// terminal state. Safe to receive from repeatedly and from multiple
	// goroutines.
	Done() <-chan struct{}

	// Err reports the abnormal-close cause. It returns nil before Done
	// is closed and nil after a graceful close.
	Err() error

	// Shutdown gracefully terminates the connection. Idempotent.
	Shutdown()

	// ShutdownWithError terminates the connection, recording cause as
	// the close reason and forwarding it to the peer where the
	// transport allows. Idempotent.
	ShutdownWithError(cause error)
}

// Result builds a resolved one-shot result channel. A nil err
// signals success.
func Result(err error) <-chan error {
	ch := make(chan error, 1)
	if err != nil {
		ch <- err
	}
	close(ch)
	return ch
}

// shortID returns a compact random identifier for default connection
// names.
func shortID() string {
	return uuid.NewString()[:8]
}
