package conn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/logging"
	"github.com/vinayprograms/connkit/stream"
)

// WebSocketConfig holds WebSocket connection configuration.
type WebSocketConfig struct {
	// Name identifies the connection in logs and errors.
	// Default: "ws-<id>".
	Name string

	// Buffer sizes the incoming stream and the send queue.
	// Default: DefaultBuffer.
	Buffer int

	// WriteTimeout bounds each write to the socket.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// MaxMessageSize limits incoming frame size. Default: 1MB.
	MaxMessageSize int64

	// Logger for connection events. Default: discard.
	Logger *logging.Logger
}

// DefaultWebSocketConfig returns configuration with sensible defaults.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Buffer:         DefaultBuffer,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1024 * 1024,
	}
}

// WebSocketConn implements Conn over an established WebSocket.
// Envelopes are serialized as JSON text frames; a writer goroutine
// owns the socket for writes so frames never interleave.
type WebSocketConn struct {
	name   string
	ws     *websocket.Conn
	cfg    WebSocketConfig
	logger *logging.Logger

	incoming *stream.Stream
	send     chan wsFrame

	pendingMu sync.Mutex
	pending   map[string]chan error

	writeMu sync.Mutex

	done      chan struct{}
	errMu     sync.Mutex
	err       error
	closeOnce sync.Once
}

type wsFrame struct {
	data []byte
	res  chan error // may be nil for fire-and-forget control frames
}

var _ Conn = (*WebSocketConn)(nil)

// NewWebSocketConn wraps an already-established WebSocket (either the
// dialing or the accepting side) in the Conn contract and starts its
// read/write loops.
func NewWebSocketConn(ws *websocket.Conn, cfg WebSocketConfig) *WebSocketConn {
	def := DefaultWebSocketConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.Name == "" {
		cfg.Name = "ws-" + shortID()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	ws.SetReadLimit(cfg.MaxMessageSize)

	c := &WebSocketConn{
		name:     cfg.Name,
		ws:       ws,
		cfg:      cfg,
		logger:   cfg.Logger.WithConn(cfg.Name),
		incoming: stream.New(cfg.Buffer),
		send:     make(chan wsFrame, cfg.Buffer),
		pending:  make(map[string]chan error),
		done:     make(chan struct{}),
	}

	go c.readLoop()
	go c.writeLoop()

	c.logger.ConnOpened("websocket")
	return c
}

// DialWebSocket establishes a WebSocket to url and wraps it in the
// Conn contract.
func DialWebSocket(ctx context.Context, url string, cfg WebSocketConfig) (*WebSocketConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, ckerrors.WrapWithCode(err, ckerrors.ErrCodeUnavailable, "websocket dial")
	}
	return NewWebSocketConn(ws, cfg), nil
}

// Name returns the connection name.
func (c *WebSocketConn) Name() string {
	return c.name
}

// Submit queues msg for delivery. The result resolves once the frame
// was written to the socket.
func (c *WebSocketConn) Submit(msg any) <-chan error {
	data, err := EncodeEnvelope(msg, "", false)
	if err != nil {
		return Result(err)
	}
	res := make(chan error, 1)
	if err := c.enqueue(wsFrame{data: data, res: res}); err != nil {
		return Result(err)
	}

	// Resolve even if teardown races the writer and the frame is never
	// drained from the queue.
	out := make(chan error, 1)
	go func() {
		defer close(out)
		select {
		case err := <-res:
			if err != nil {
				out <- err
			}
		case <-c.done:
			out <- ckerrors.ConnClosed(c.name)
		}
	}()
	return out
}

// SubmitWithAck queues msg and resolves once the peer acknowledged it,
// or with ACK_TIMEOUT after timeout.
func (c *WebSocketConn) SubmitWithAck(msg any, timeout time.Duration) <-chan error {
	id := uuid.NewString()
	data, err := EncodeEnvelope(msg, id, true)
	if err != nil {
		return Result(err)
	}

	ackCh := make(chan error, 1)
	c.pendingMu.Lock()
	c.pending[id] = ackCh
	c.pendingMu.Unlock()

	writeRes := make(chan error, 1)
	if err := c.enqueue(wsFrame{data: data, res: writeRes}); err != nil {
		c.dropPending(id)
		return Result(err)
	}

	out := make(chan error, 1)
	go func() {
		defer close(out)
		select {
		case err := <-writeRes:
			if err != nil {
				c.dropPending(id)
				out <- err
				return
			}
		case <-c.done:
			c.dropPending(id)
			out <- ckerrors.ConnClosed(c.name)
			return
		}
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

func (c *WebSocketConn) enqueue(f wsFrame) error {
	select {
	case <-c.done:
		return ckerrors.ConnClosed(c.name)
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ckerrors.FromCode(ckerrors.ErrCodeQueueFull, ckerrors.WithConn(c.name))
	}
}

func (c *WebSocketConn) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Incoming returns the stream of inbound payloads: json.RawMessage
// for data frames, the Heartbeat marker for heartbeat frames.
func (c *WebSocketConn) Incoming() *stream.Stream {
	return c.incoming
}

// Done returns the lifecycle channel.
func (c *WebSocketConn) Done() <-chan struct{} {
	return c.done
}

// Err returns the close cause, nil on graceful close.
func (c *WebSocketConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Shutdown gracefully terminates the connection, telling the peer
// about the close first.
func (c *WebSocketConn) Shutdown() {
	c.sendClose(nil)
	c.close(nil)
}

// ShutdownWithError terminates the connection, forwarding cause to
// the peer.
func (c *WebSocketConn) ShutdownWithError(cause error) {
	c.sendClose(cause)
	c.close(cause)
}

// sendClose writes a close envelope directly, best effort.
func (c *WebSocketConn) sendClose(cause error) {
	select {
	case <-c.done:
		return
	default:
	}
	data, err := EncodeClose(cause)
	if err != nil {
		return
	}
	c.writeFrame(data)
}

func (c *WebSocketConn) writeFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return ckerrors.WrapWithCode(err, ckerrors.ErrCodeNetworkErr, "websocket write",
			ckerrors.WithConn(c.name))
	}
	return nil
}

// readLoop reads frames and dispatches them until the socket fails or
// the connection closes.
func (c *WebSocketConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Local teardown already in progress.
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.close(nil)
				} else {
					c.close(ckerrors.WrapWithCode(err, ckerrors.ErrCodeNetworkErr,
						"websocket read", ckerrors.WithConn(c.name)))
				}
			}
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.logger.FrameDropped(err.Error())
			continue
		}
		c.dispatch(env)
	}
}

func (c *WebSocketConn) dispatch(env *Envelope) {
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
				c.enqueue(wsFrame{data: ack})
			}
		}
		c.incoming.Publish(env.Payload())
	}
}

// writeLoop serializes all regular writes to the socket.
func (c *WebSocketConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			err := c.writeFrame(f.data)
			if f.res != nil {
				f.res <- err
				close(f.res)
			}
			if err != nil {
				c.close(err)
				return
			}
		}
	}
}

func (c *WebSocketConn) close(cause error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = cause
		c.errMu.Unlock()

		close(c.done)
		c.incoming.Close()

		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.ws.Close()
		c.writeMu.Unlock()

		// Fail every submit still waiting for an ack.
		c.pendingMu.Lock()
		for id, ackCh := range c.pending {
			ackCh <- ckerrors.ConnClosed(c.name)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()

		c.logger.ConnClosed(cause)
	})
}
