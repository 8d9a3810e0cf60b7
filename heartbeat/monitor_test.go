package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/connkit/conn"
	ckerrors "github.com/vinayprograms/connkit/errors"
)

// --- Unit Tests ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Interval: time.Second, Tolerance: 3}, false},
		{"missing interval", Config{Tolerance: 3}, true},
		{"negative interval", Config{Interval: -time.Second, Tolerance: 3}, true},
		{"missing tolerance", Config{Interval: time.Second}, true},
		{"negative tolerance", Config{Interval: time.Second, Tolerance: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// fatalRecorder collects fatal callbacks from a monitor.
type fatalRecorder struct {
	mu    sync.Mutex
	errs  []error
	fired chan struct{}
}

func newFatalRecorder() *fatalRecorder {
	return &fatalRecorder{fired: make(chan struct{}, 8)}
}

func (r *fatalRecorder) callback(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.fired <- struct{}{}
}

func (r *fatalRecorder) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-r.fired:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for fatal callback")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errs[len(r.errs)-1]
}

func (r *fatalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// markerCounter subscribes to a conn's incoming stream and counts
// heartbeat markers as they arrive.
type markerCounter struct {
	seen chan struct{}
}

func countMarkers(c conn.Conn) *markerCounter {
	mc := &markerCounter{seen: make(chan struct{}, 64)}
	sub := c.Incoming().Subscribe()
	go func() {
		for item := range sub.Items() {
			if conn.IsHeartbeat(item) {
				mc.seen <- struct{}{}
			}
		}
	}()
	return mc
}

func (mc *markerCounter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-mc.seen:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for heartbeat marker")
	}
}

func (mc *markerCounter) none(t *testing.T) {
	t.Helper()
	select {
	case <-mc.seen:
		t.Fatal("unexpected heartbeat marker")
	case <-time.After(50 * time.Millisecond):
	}
}

// waitForTicker blocks until the monitor goroutine has registered its
// ticker with the fake clock, so an Advance cannot race the Start.
func waitForTicker(t *testing.T, clock *FakeClock) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		clock.mu.Lock()
		n := len(clock.tickers)
		clock.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("ticker was never registered with the fake clock")
}

func newTestMonitor(t *testing.T, target conn.Conn, tolerance int) (*Monitor, *fatalRecorder) {
	t.Helper()
	rec := newFatalRecorder()
	m, err := NewMonitor(target, Config{
		Interval:  time.Second,
		Tolerance: tolerance,
		Clock:     NewFakeClock(),
	}, rec.callback)
	if err != nil {
		t.Fatalf("NewMonitor error: %v", err)
	}
	return m, rec
}

func TestMonitor_TickSubmitsMarker(t *testing.T) {
	a, b := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	m, _ := newTestMonitor(t, a, 3)
	peer := countMarkers(b)

	m.tick()

	peer.wait(t)
	if d := m.Drift(); d != 1 {
		t.Errorf("Drift() = %d, want 1", d)
	}
}

func TestMonitor_ReceiveDecrements(t *testing.T) {
	a, _ := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	m, _ := newTestMonitor(t, a, 3)

	// No lower bound: surplus acknowledgments drive drift negative.
	m.HeartbeatReceived()
	m.HeartbeatReceived()
	if d := m.Drift(); d != -2 {
		t.Errorf("Drift() = %d, want -2", d)
	}
}

func TestMonitor_IncrementBeforeCheck(t *testing.T) {
	// Scenario A at monitor level: tolerance 2, no markers received.
	// Ticks drive drift 1, 2, 3; the third tick crosses the boundary
	// with drift exactly 3 and submits nothing.
	a, b := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	m, rec := newTestMonitor(t, a, 2)
	peer := countMarkers(b)

	m.tick()
	peer.wait(t)
	m.tick()
	peer.wait(t)

	m.tick()
	err := rec.wait(t)
	if !ckerrors.Is(err, ckerrors.ErrCodeHeartbeatTimeout) {
		t.Errorf("fatal error = %v, want HEARTBEAT_TIMEOUT", err)
	}
	if d := m.Drift(); d != 3 {
		t.Errorf("Drift() at failure = %d, want 3", d)
	}
	peer.none(t)
}

func TestMonitor_ReceiptKeepsConnAlive(t *testing.T) {
	// Scenario B at monitor level: one receipt between ticks keeps
	// drift at the tolerance boundary without crossing it.
	a, b := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	m, rec := newTestMonitor(t, a, 2)
	peer := countMarkers(b)

	m.tick() // drift 1
	peer.wait(t)
	m.HeartbeatReceived() // drift 0
	m.tick()              // drift 1
	peer.wait(t)
	m.tick() // drift 2, still within tolerance
	peer.wait(t)

	if n := rec.count(); n != 0 {
		t.Errorf("fatal callbacks = %d, want 0", n)
	}
	if d := m.Drift(); d != 2 {
		t.Errorf("Drift() = %d, want 2", d)
	}
}

func TestMonitor_SubmitFailureIsFatal(t *testing.T) {
	a, _ := conn.Pipe(conn.PipeConfig{})
	a.Shutdown() // every subsequent submit fails

	m, rec := newTestMonitor(t, a, 3)

	m.tick()

	err := rec.wait(t)
	if !ckerrors.Is(err, ckerrors.ErrCodeSubmitFailed) {
		t.Errorf("fatal error = %v, want SUBMIT_FAILED", err)
	}
}

func TestMonitor_FatalReportedOnce(t *testing.T) {
	a, _ := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	m, rec := newTestMonitor(t, a, 1)

	m.tick() // drift 1
	m.tick() // drift 2 > 1, fatal
	rec.wait(t)
	m.tick() // still over the threshold, must not report again

	time.Sleep(20 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("fatal callbacks = %d, want 1", n)
	}
}

func TestMonitor_StopIdempotent(t *testing.T) {
	a, _ := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	m, _ := newTestMonitor(t, a, 3)
	m.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Stop()
		}()
	}
	wg.Wait()

	select {
	case <-m.Stopped():
	case <-time.After(time.Second):
		t.Fatal("timer goroutine did not exit after Stop")
	}
}

// --- Integration Tests ---

func TestMonitor_ClockDrivesTicks(t *testing.T) {
	a, b := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	clock := NewFakeClock()
	rec := newFatalRecorder()
	m, err := NewMonitor(a, Config{
		Interval:  time.Second,
		Tolerance: 5,
		Clock:     clock,
	}, rec.callback)
	if err != nil {
		t.Fatalf("NewMonitor error: %v", err)
	}
	peer := countMarkers(b)

	m.Start()
	waitForTicker(t, clock)

	// Nothing fires before one full interval has elapsed.
	clock.Advance(500 * time.Millisecond)
	peer.none(t)

	clock.Advance(500 * time.Millisecond)
	peer.wait(t)

	m.Stop()
	<-m.Stopped()

	clock.Advance(5 * time.Second)
	peer.none(t)
}
