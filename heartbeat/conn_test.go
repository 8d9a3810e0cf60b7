package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/connkit/conn"
	ckerrors "github.com/vinayprograms/connkit/errors"
	"github.com/vinayprograms/connkit/stream"
)

func newDecorated(t *testing.T, tolerance int) (*Conn, *conn.PipeConn, *FakeClock) {
	t.Helper()
	a, b := conn.Pipe(conn.PipeConfig{NameA: "local", NameB: "remote"})
	clock := NewFakeClock()
	hc, err := NewConn(a, Config{
		Interval:  time.Second,
		Tolerance: tolerance,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("NewConn error: %v", err)
	}
	t.Cleanup(hc.Shutdown)
	waitForTicker(t, clock)
	return hc, b, clock
}

func recvItem(t *testing.T, sub *stream.Subscription) any {
	t.Helper()
	select {
	case item, ok := <-sub.Items():
		if !ok {
			t.Fatal("stream closed while waiting for item")
		}
		return item
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stream item")
		return nil
	}
}

func waitDrift(t *testing.T, m *Monitor, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Drift() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Drift() = %d, want %d", m.Drift(), want)
}

func waitClosed(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

// --- Unit Tests ---

func TestNewConn_ValidatesConfig(t *testing.T) {
	a, _ := conn.Pipe(conn.PipeConfig{})
	defer a.Shutdown()

	if _, err := NewConn(a, Config{Tolerance: 3}); !ckerrors.Is(err, ckerrors.ErrCodeInvalidInput) {
		t.Errorf("NewConn without interval: error = %v, want INVALID_INPUT", err)
	}
	if _, err := NewConn(a, Config{Interval: time.Second}); !ckerrors.Is(err, ckerrors.ErrCodeInvalidInput) {
		t.Errorf("NewConn without tolerance: error = %v, want INVALID_INPUT", err)
	}
}

func TestHeartbeatMarkerEquality(t *testing.T) {
	// Markers carry no payload and compare equal by value, so any
	// layer can recognize them without a shared singleton.
	if (conn.Heartbeat{}) != (conn.Heartbeat{}) {
		t.Error("two heartbeat markers are not equal")
	}
	if !conn.IsHeartbeat(conn.Heartbeat{}) {
		t.Error("IsHeartbeat rejected a marker value")
	}
	if !conn.IsHeartbeat(&conn.Heartbeat{}) {
		t.Error("IsHeartbeat rejected a marker pointer")
	}
	if conn.IsHeartbeat("heartbeat") {
		t.Error("IsHeartbeat accepted a plain string")
	}
}

func TestConn_FiltersMarkersPreservesOrder(t *testing.T) {
	hc, peer, _ := newDecorated(t, 3)
	sub := hc.Incoming().Subscribe()
	defer sub.Cancel()

	<-peer.Submit("one")
	<-peer.Submit(conn.Heartbeat{})
	<-peer.Submit("two")
	<-peer.Submit(conn.Heartbeat{})
	<-peer.Submit("three")

	for _, want := range []string{"one", "two", "three"} {
		if got := recvItem(t, sub); got != want {
			t.Errorf("received %v, want %q", got, want)
		}
	}
	// Both markers were consumed by the monitor.
	waitDrift(t, hc.Monitor(), -2)
}

func TestConn_Passthrough(t *testing.T) {
	hc, peer, _ := newDecorated(t, 3)

	if hc.Name() != "local" {
		t.Errorf("Name() = %q, want %q", hc.Name(), "local")
	}

	peerSub := peer.Incoming().Subscribe()
	defer peerSub.Cancel()

	if err := <-hc.Submit("hello"); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if got := recvItem(t, peerSub); got != "hello" {
		t.Errorf("peer received %v, want %q", got, "hello")
	}

	if err := <-hc.SubmitWithAck("ack me", time.Second); err != nil {
		t.Fatalf("SubmitWithAck error: %v", err)
	}
	if got := recvItem(t, peerSub); got != "ack me" {
		t.Errorf("peer received %v, want %q", got, "ack me")
	}
}

// --- Integration Tests ---

func TestConn_SilentPeerTimesOut(t *testing.T) {
	// Interval 1s, tolerance 2, peer never responds: heartbeats go
	// out at t=1s and t=2s, and the tick at t=3s declares the
	// connection dead without submitting a third marker.
	hc, peer, clock := newDecorated(t, 2)
	markers := countMarkers(peer)

	clock.Advance(time.Second)
	markers.wait(t)
	clock.Advance(time.Second)
	markers.wait(t)

	clock.Advance(time.Second)
	waitClosed(t, hc.Done(), "connection teardown")

	if err := hc.Err(); !ckerrors.Is(err, ckerrors.ErrCodeHeartbeatTimeout) {
		t.Errorf("Err() = %v, want HEARTBEAT_TIMEOUT", err)
	}
	markers.none(t)
}

func TestConn_PeerMarkerResetsDeadline(t *testing.T) {
	// One marker from the peer between ticks pulls drift back down,
	// so the connection survives past the point where a silent peer
	// would have been declared dead.
	hc, peer, clock := newDecorated(t, 2)
	markers := countMarkers(peer)

	clock.Advance(time.Second)
	markers.wait(t)

	<-peer.Submit(conn.Heartbeat{})
	waitDrift(t, hc.Monitor(), 0)

	clock.Advance(time.Second)
	markers.wait(t)
	clock.Advance(time.Second)
	markers.wait(t)

	select {
	case <-hc.Done():
		t.Fatal("connection declared dead despite peer heartbeat")
	default:
	}
}

func TestConn_DelegateFailureCancelsTimer(t *testing.T) {
	// The delegate dies before the first tick; the monitor must stop
	// and never submit into the dead connection.
	hc, _, clock := newDecorated(t, 2)

	cause := ckerrors.FromCode(ckerrors.ErrCodeNetworkErr)
	hc.delegate.ShutdownWithError(cause)

	waitClosed(t, hc.Done(), "delegate teardown")
	waitClosed(t, hc.Monitor().Stopped(), "monitor stop")

	clock.Advance(10 * time.Second)
	if d := hc.Monitor().Drift(); d != 0 {
		t.Errorf("Drift() after teardown = %d, want 0", d)
	}
	if err := hc.Err(); !ckerrors.Is(err, ckerrors.ErrCodeNetworkErr) {
		t.Errorf("Err() = %v, want NETWORK_ERR", err)
	}
}

func TestConn_TimeoutPropagatesToDelegate(t *testing.T) {
	// Monitor-declared death flows downward: the delegate's own
	// lifecycle ends with the heartbeat cause, so observers holding
	// only the delegate see it too.
	hc, peer, clock := newDecorated(t, 1)

	clock.Advance(time.Second)
	waitDrift(t, hc.Monitor(), 1)
	clock.Advance(time.Second)

	waitClosed(t, hc.delegate.Done(), "delegate teardown")
	if err := hc.delegate.Err(); !ckerrors.Is(err, ckerrors.ErrCodeHeartbeatTimeout) {
		t.Errorf("delegate Err() = %v, want HEARTBEAT_TIMEOUT", err)
	}
	// The pipe propagates the close to the peer as well.
	waitClosed(t, peer.Done(), "peer teardown")
}

func TestConn_FilteredStreamClosesOnTeardown(t *testing.T) {
	hc, _, _ := newDecorated(t, 2)
	sub := hc.Incoming().Subscribe()

	hc.Shutdown()

	select {
	case _, ok := <-sub.Items():
		if ok {
			t.Error("received item after teardown, want closed stream")
		}
	case <-time.After(time.Second):
		t.Fatal("filtered stream not closed after shutdown")
	}
}

func TestConn_ShutdownIdempotentUnderRace(t *testing.T) {
	hc, _, _ := newDecorated(t, 2)
	cause := ckerrors.FromCode(ckerrors.ErrCodeCanceled)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hc.Shutdown()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			hc.ShutdownWithError(cause)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			hc.delegate.Shutdown()
		}()
	}
	wg.Wait()

	waitClosed(t, hc.Done(), "connection teardown")
	waitClosed(t, hc.Monitor().Stopped(), "monitor stop")
}

func TestConn_PostTeardownMarkerIgnored(t *testing.T) {
	hc, _, _ := newDecorated(t, 2)
	hc.Shutdown()
	waitClosed(t, hc.Monitor().Stopped(), "monitor stop")

	// Late marker delivery must not panic or resurrect anything; the
	// counter still moves but nobody checks it anymore.
	hc.Monitor().HeartbeatReceived()
	if d := hc.Monitor().Drift(); d != -1 {
		t.Errorf("Drift() = %d, want -1", d)
	}
}
