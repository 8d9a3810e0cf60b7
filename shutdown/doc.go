// Package shutdown coordinates graceful teardown of connections and
// their supporting resources.
//
// A process typically holds several layers that must close in order:
// heartbeat-decorated connections first, raw transports next, shared
// broker connections last. The Coordinator runs registered handlers
// by phase (lower phases first, same phase concurrently) and closes
// exactly once no matter how many triggers race, including OS signals.
//
// Usage:
//
//	coord := shutdown.NewCoordinator(shutdown.Config{})
//	coord.RegisterConn("edge", hbConn, 10)
//	coord.RegisterFunc("nats", func(ctx context.Context) error {
//		nc.Close()
//		return nil
//	}, 20)
//	coord.HandleSignals()
//	<-coord.Done()
package shutdown
