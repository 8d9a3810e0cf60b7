// Package conn defines the bidirectional asynchronous connection
// contract used throughout connkit, together with three
// implementations: an in-memory pipe pair, a WebSocket-backed
// connection, and a NATS-backed connection.
//
// # Contract
//
// A Conn never blocks the caller: Submit and SubmitWithAck hand back a
// one-shot result channel, Incoming exposes a hot multicast stream of
// inbound payloads, and the lifecycle is observed through Done/Err.
// Shutdown and ShutdownWithError are idempotent.
//
// # Wire format
//
// The WebSocket and NATS connections exchange kind-tagged JSON
// envelopes. Heartbeat markers travel as their own envelope kind,
// disjoint from application data, so a receiver recognizes them by
// type alone. Acknowledgments are correlated by envelope ID.
//
// # Usage
//
//	a, b := conn.Pipe(conn.PipeConfig{})
//	defer a.Shutdown()
//	defer b.Shutdown()
//
//	sub := b.Incoming().Subscribe()
//	<-a.Submit("hello")
//	fmt.Println(<-sub.Items())
//
// Liveness monitoring is layered on top by the heartbeat package,
// which decorates any Conn.
package conn
