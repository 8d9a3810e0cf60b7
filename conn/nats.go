package conn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/logging"
	"github.com/vinayprograms/connkit/stream"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// Ignored by NewNATSConnFrom.
	URL string

	// Name identifies the connection in logs and errors.
	// Default: "nats-<id>".
	Name string

	// Subject is the subject this end subscribes to.
	Subject string

	// PeerSubject is the subject this end publishes to. The peer uses
	// the mirrored pair.
	PeerSubject string

	// Buffer sizes the incoming stream and the subscription channel.
	// Default: DefaultBuffer.
	Buffer int

	// ConnectTimeout for the initial connection. Default: 5 seconds.
	ConnectTimeout time.Duration

	// Logger for connection events. Default: discard.
	Logger *logging.Logger
}

// Validate checks the configuration.
func (c *NATSConfig) Validate() error {
	if c.Subject == "" || c.PeerSubject == "" {
		return ckerrors.InvalidInput("nats conn requires Subject and PeerSubject")
	}
	if c.Subject == c.PeerSubject {
		return ckerrors.InvalidInput("Subject and PeerSubject must differ")
	}
	return nil
}

// NATSConn implements Conn as a point-to-point channel over a pair of
// NATS subjects. NATS gives no liveness signal for a silent peer,
// which is exactly what the heartbeat decorator adds on top.
type NATSConn struct {
	name     string
	nc       *nats.Conn
	ownsConn bool
	cfg      NATSConfig
	logger   *logging.Logger

	sub      *nats.Subscription
	msgCh    chan *nats.Msg
	incoming *stream.Stream

	pendingMu sync.Mutex
	pending   map[string]chan error

	done      chan struct{}
	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
}

var _ Conn = (*NATSConn)(nil)

// NewNATSConn dials a NATS server and builds a connection over it.
// The returned Conn owns the underlying NATS connection and closes it
// on shutdown.
func NewNATSConn(cfg NATSConfig) (*NATSConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.ConnectTimeout),
		nats.Name(cfg.Name),
	)
	if err != nil {
		return nil, ckerrors.WrapWithCode(err, ckerrors.ErrCodeUnavailable, "nats connect")
	}

	c, err := newNATSConn(nc, cfg, true)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// NewNATSConnFrom builds a connection over an existing NATS
// connection, which the caller keeps owning.
func NewNATSConnFrom(nc *nats.Conn, cfg NATSConfig) (*NATSConn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newNATSConn(nc, cfg, false)
}

func newNATSConn(nc *nats.Conn, cfg NATSConfig, owns bool) (*NATSConn, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Name == "" {
		cfg.Name = "nats-" + shortID()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	c := &NATSConn{
		name:     cfg.Name,
		nc:       nc,
		ownsConn: owns,
		cfg:      cfg,
		logger:   cfg.Logger.WithConn(cfg.Name),
		msgCh:    make(chan *nats.Msg, cfg.Buffer),
		incoming: stream.New(cfg.Buffer),
		pending:  make(map[string]chan error),
		done:     make(chan struct{}),
	}

	sub, err := nc.ChanSubscribe(cfg.Subject, c.msgCh)
	if err != nil {
		return nil, ckerrors.WrapWithCode(err, ckerrors.ErrCodeUnavailable, "nats subscribe")
	}
	c.sub = sub

	go c.recvLoop()

	c.logger.ConnOpened("nats")
	return c, nil
}

// Name returns the connection name.
func (c *NATSConn) Name() string {
	return c.name
}

// Submit publishes msg to the peer subject.
func (c *NATSConn) Submit(msg any) <-chan error {
	return Result(c.publish(msg, "", false))
}

// SubmitWithAck publishes msg and resolves once the peer acknowledged
// it, or with ACK_TIMEOUT after timeout.
func (c *NATSConn) SubmitWithAck(msg any, timeout time.Duration) <-chan error {
	id := uuid.NewString()

	ackCh := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[id] = ackCh
	c.pendingMu.Unlock()

	if err := c.publish(msg, id, true); err != nil {
		c.dropPending(id)
		return Result(err)
	}

	out := make(chan error, 1)
	go func() {
		defer close(out)
		select {
		case err := <-ackCh:
			if err != nil {
				out <- err
			}
		case <-time.After(timeout):
			c.dropPending(id)
			out <- ckerrors.AckTimeout(c.name)
		case <-c.done:
			out <- ckerrors.ConnClosed(c.name)
		}
	}()
	return out
}

func (c *NATSConn) publish(msg any, id string, wantAck bool) error {
	select {
	case <-c.done:
		return ckerrors.ConnClosed(c.name)
	default:
	}

	data, err := EncodeEnvelope(msg, id, wantAck)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.cfg.PeerSubject, data); err != nil {
		return ckerrors.WrapWithCode(err, ckerrors.ErrCodeNetworkErr, "nats publish",
			ckerrors.WithConn(c.name))
	}
	return nil
}

func (c *NATSConn) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Incoming returns the stream of inbound payloads: json.RawMessage
// for data frames, the Heartbeat marker for heartbeat frames.
func (c *NATSConn) Incoming() *stream.Stream {
	return c.incoming
}

// Done returns the lifecycle channel.
func (c *NATSConn) Done() <-chan struct{} {
	return c.done
}

// Err returns the close cause, nil on graceful close.
func (c *NATSConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Shutdown gracefully terminates the connection, telling the peer
// about the close first.
func (c *NATSConn) Shutdown() {
	c.sendClose(nil)
	c.close(nil)
}

// ShutdownWithError terminates the connection, forwarding cause to
// the peer.
func (c *NATSConn) ShutdownWithError(cause error) {
	c.sendClose(cause)
	c.close(cause)
}

func (c *NATSConn) sendClose(cause error) {
	select {
	case <-c.done:
		return
	default:
	}
	data, err := EncodeClose(cause)
	if err != nil {
		return
	}
	c.nc.Publish(c.cfg.PeerSubject, data)
	c.nc.Flush()
}

// recvLoop dispatches frames from the subscription.
func (c *NATSConn) recvLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.msgCh:
			if !ok {
				return
			}
			env, err := DecodeEnvelope(msg.Data)
			if err != nil {
				c.logger.FrameDropped(err.Error())
				continue
			}
			c.dispatch(env)
		}
	}
}

func (c *NATSConn) dispatch(env *Envelope) {
	switch env.Kind {
	case KindAck:
		c.pendingMu.Lock()
		ackCh, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ackCh <- nil
		}

	case KindClose:
		c.close(env.CloseCause())

	default:
		if env.WantAck && env.ID != "" {
			if ack, err := EncodeAck(env.ID); err == nil {
				c.nc.Publish(c.cfg.PeerSubject, ack)
			}
		}
		c.incoming.Publish(env.Payload())
	}
}

func (c *NATSConn) close(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		close(c.done)
		c.incoming.Close()
		c.sub.Unsubscribe()
		if c.ownsConn {
			c.nc.Close()
		}

		c.pendingMu.Lock()
		for id, ackCh := range c.pending {
			ackCh <- ckerrors.ConnClosed(c.name)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		c.logger.ConnClosed(cause)
	})
}
