// Package heartbeat adds liveness monitoring to a connection by
// decorating it with periodic heartbeat exchange.
//
// # Overview
//
// The decorator injects heartbeat markers into the outbound channel at
// a fixed interval and consumes the markers the peer sends back. A
// drift counter tracks sent-but-unanswered heartbeats: each tick
// increments it, each received marker decrements it. At steady state
// it hovers around -1, 0 or 1 depending on which side is faster. When
// drift exceeds the configured tolerance the connection is declared
// dead and torn down with a HEARTBEAT_TIMEOUT cause.
//
// # Architecture
//
//	delegate incoming ──filter──> exposed incoming (markers removed)
//	                      │
//	                      └──> Monitor.HeartbeatReceived()
//	clock tick ──> Monitor ──> delegate.Submit(marker) | fatal teardown
//
// # Usage
//
//	hc, err := heartbeat.NewConn(delegate, heartbeat.Config{
//	    Interval:  time.Second,
//	    Tolerance: 3,
//	})
//	if err != nil {
//	    return err
//	}
//	defer hc.Shutdown()
//
//	sub := hc.Incoming().Subscribe() // heartbeat markers never appear here
//
// Teardown fires from any of three triggers: caller shutdown, delegate
// lifecycle completion, or monitor-detected failure. Whichever fires
// first wins; the rest are no-ops.
//
// # Known limitation
//
// The filtered incoming stream keeps the delegate's hot-stream
// semantics: consumers that fall behind miss items. This layer adds no
// buffering or backpressure.
package heartbeat
