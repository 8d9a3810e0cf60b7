package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/vinayprograms/connkit/conn"
	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/logging"
)

// Handler closes one resource. The context is cancelled when the
// shutdown deadline passes.
type Handler func(ctx context.Context) error

// Config configures the coordinator.
type Config struct {
	// Timeout bounds the whole shutdown when triggered by a signal or
	// ShutdownWithTimeout. Default: 30 seconds.
	Timeout time.Duration

	// Logger for shutdown progress. Default: discard.
	Logger *logging.Logger
}

type registration struct {
	name    string
	handler Handler
	phase   int
}

// Coordinator runs registered handlers by phase: lower phases first,
// handlers within a phase concurrently. Shutdown executes exactly
// once regardless of how many triggers race.
type Coordinator struct {
	cfg    Config
	logger *logging.Logger

	mu       sync.Mutex
	handlers []registration

	shutdownOnce sync.Once
	err          error
	done         chan struct{}
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Coordinator{
		cfg:    cfg,
		logger: cfg.Logger.WithComponent("shutdown"),
		done:   make(chan struct{}),
	}
}

// RegisterFunc adds a handler at the given phase.
func (c *Coordinator) RegisterFunc(name string, fn Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, handler: fn, phase: phase})
}

// RegisterConn adds a connection at the given phase. On shutdown the
// connection is closed gracefully and its lifecycle is awaited, so a
// later phase never pulls a transport out from under an earlier one.
func (c *Coordinator) RegisterConn(name string, cn conn.Conn, phase int) {
	c.RegisterFunc(name, func(ctx context.Context) error {
		cn.Shutdown()
		select {
		case <-cn.Done():
			return nil
		case <-ctx.Done():
			return ckerrors.Timeout("waiting for connection teardown",
				ckerrors.WithConn(cn.Name()))
		}
	}, phase)
}

// Shutdown runs all handlers. Later calls return the first run's
// result without running anything again.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.err = c.run(ctx)
		close(c.done)
	})
	<-c.done
	return c.err
}

// ShutdownWithTimeout runs Shutdown bounded by the configured timeout.
func (c *Coordinator) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals triggers shutdown on SIGINT or SIGTERM.
func (c *Coordinator) HandleSignals() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			c.logger.Info("signal received, shutting down", map[string]interface{}{"signal": sig.String()})
			c.ShutdownWithTimeout()
		case <-c.done:
		}
		signal.Stop(ch)
	}()
}

// Done returns a channel closed when shutdown completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error. Valid once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	phases := make(map[int][]registration)
	for _, reg := range handlers {
		phases[reg.phase] = append(phases[reg.phase], reg)
	}
	order := make([]int, 0, len(phases))
	for p := range phases {
		order = append(order, p)
	}
	sort.Ints(order)

	var errs []error
	for _, phase := range order {
		regs := phases[phase]

		var wg sync.WaitGroup
		results := make([]error, len(regs))
		for i, reg := range regs {
			wg.Add(1)
			go func(i int, reg registration) {
				defer wg.Done()
				start := time.Now()
				err := reg.handler(ctx)
				if err != nil {
					c.logger.Warn("handler failed", map[string]interface{}{
						"handler": reg.name, "error": err.Error(),
					})
				} else {
					c.logger.Debug("handler done", map[string]interface{}{
						"handler": reg.name, "elapsed": time.Since(start).String(),
					})
				}
				results[i] = err
			}(i, reg)
		}
		wg.Wait()

		for _, err := range results {
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	return ckerrors.Join(errs...)
}
